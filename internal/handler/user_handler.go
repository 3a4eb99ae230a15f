package handler

import (
	"net/http"
	"time"

	"github.com/casadesoftware/GeoMun/internal/authz"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/internal/plan"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateUser creates an ADMIN or EDITOR inside the caller's tenant. The
// plan-limit guard runs in the same transaction as the insert.
func CreateUser(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// Parse request
	var req struct {
		Email    string  `json:"email"`
		Password string  `json:"password"`
		Name     string  `json:"name"`
		Role     string  `json:"role,omitempty"`
		TenantID *string `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse create user request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	if req.Role == "" {
		req.Role = model.RoleEditor
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleEditor {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be ADMIN or EDITOR"})
	}

	// Non-SUPERADMIN callers always create inside their own tenant
	tenantID := claims.TenantID
	if claims.Role == model.RoleSuperAdmin && req.TenantID != nil {
		tenantID = req.TenantID
	}
	if tenantID == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no tenant assigned"})
	}

	// Check email uniqueness
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&existing); result.Error == nil {
		log.Warn("User already exists", zap.String("email", req.Email))
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	user := model.User{
		Email:    req.Email,
		Password: string(hashedPassword),
		Name:     req.Name,
		Role:     req.Role,
		TenantID: tenantID,
		Active:   true,
	}

	// Plan check and insert share one transaction (see plan.Reserve)
	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := plan.Reserve(tx, claims, plan.ResourceUsers); err != nil {
			return err
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if resp, handled := planErrorResponse(c, err, plan.ResourceUsers); handled {
			log.Warn("User creation rejected by plan guard", zap.Error(err))
			return resp
		}
		log.Error("Failed to create user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	recordAudit(c, "create", "user", user.ID, map[string]interface{}{"email": user.Email, "role": user.Role})
	log.Info("User created", zap.String("email", user.Email), zap.String("role", user.Role))

	return c.JSON(http.StatusCreated, user)
}

// ListUsers returns the users of the caller's tenant (all tenants for SUPERADMIN)
func ListUsers(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		Order("created_at DESC").
		Find(&users)
	if result.Error != nil {
		log.Error("Failed to list users", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list users"})
	}

	return c.JSON(http.StatusOK, users)
}

// GetUser returns a single user from the caller's tenant
func GetUser(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		First(&user, "id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("User not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, user)
}

// UpdateUser updates name, role, active flag or password of a tenant user
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name     *string `json:"name,omitempty"`
		Role     *string `json:"role,omitempty"`
		Active   *bool   `json:"active,omitempty"`
		Password *string `json:"password,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse update user request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		First(&user, "id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("User not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Role != nil {
		if *req.Role != model.RoleAdmin && *req.Role != model.RoleEditor {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be ADMIN or EDITOR"})
		}
		updates["role"] = *req.Role
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Password != nil {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("Failed to hash password", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
		}
		updates["password"] = string(hashedPassword)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
		log.Error("Failed to update user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	recordAudit(c, "update", "user", user.ID, nil)
	log.Info("User updated", zap.String("id", user.ID))

	return c.JSON(http.StatusOK, user)
}

// DeleteUser soft-deactivates a user; the row is kept so audit entries stay
// resolvable
func DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().
		Scopes(authz.TenantScope(claims)).
		First(&user, "id = ?", c.Param("id"))
	if result.Error != nil {
		log.Warn("User not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Model(&user).Update("active", false).Error; err != nil {
		log.Error("Failed to deactivate user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	recordAudit(c, "delete", "user", user.ID, map[string]interface{}{"email": user.Email})
	log.Info("User deactivated", zap.String("id", user.ID))

	return c.JSON(http.StatusOK, echo.Map{"message": "user deactivated"})
}
