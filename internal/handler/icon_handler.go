package handler

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/pkg/storage"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const iconPrefix = "icons/"

// UploadIcon stores an SVG marker icon in the object store. The key carries a
// millisecond timestamp so repeated uploads of the same filename never clash.
func UploadIcon(c echo.Context) error {
	log := logger.FromContext(c)

	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is required"})
	}

	filename := path.Base(file.Filename)
	if !strings.HasSuffix(strings.ToLower(filename), ".svg") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "only .svg icons are accepted"})
	}

	src, err := file.Open()
	if err != nil {
		log.Error("Failed to open uploaded file", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}
	defer src.Close()

	key := fmt.Sprintf("%s%d-%s", iconPrefix, time.Now().UnixMilli(), filename)

	if err := storage.Upload(c.Request().Context(), key, src, file.Size, "image/svg+xml"); err != nil {
		log.Error("Failed to store icon", zap.String("key", key), zap.Error(err))
		prometheus.RecordStorageOperation("upload_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload failed"})
	}

	prometheus.RecordStorageOperation("upload")
	recordAudit(c, "upload", "icon", key, map[string]interface{}{"filename": filename})
	log.Info("Icon uploaded", zap.String("key", key))

	return c.JSON(http.StatusCreated, echo.Map{
		"name": filename,
		"key":  key,
		"url":  iconURL(key),
	})
}

// ListIcons returns the available marker icons with their public URLs
func ListIcons(c echo.Context) error {
	log := logger.FromContext(c)

	keys, err := storage.ListPrefix(c.Request().Context(), iconPrefix)
	if err != nil {
		log.Error("Failed to list icons", zap.Error(err))
		prometheus.RecordStorageOperation("list_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list icons"})
	}

	prometheus.RecordStorageOperation("list")

	icons := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		icons = append(icons, map[string]string{
			"name": strings.TrimPrefix(key, iconPrefix),
			"url":  iconURL(key),
		})
	}

	return c.JSON(http.StatusOK, icons)
}

// DeleteIcon removes a marker icon from the object store
func DeleteIcon(c echo.Context) error {
	log := logger.FromContext(c)

	name := path.Base(c.Param("name"))
	key := iconPrefix + name

	if err := storage.Remove(c.Request().Context(), key); err != nil {
		log.Error("Failed to remove icon", zap.String("key", key), zap.Error(err))
		prometheus.RecordStorageOperation("remove_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	prometheus.RecordStorageOperation("remove")
	recordAudit(c, "delete", "icon", key, nil)
	log.Info("Icon removed", zap.String("key", key))

	return c.JSON(http.StatusOK, echo.Map{"message": "icon deleted"})
}

// iconURL builds the public URL of a stored object behind the storage proxy
func iconURL(key string) string {
	return fmt.Sprintf("/storage/%s/%s", storage.Bucket(), key)
}
