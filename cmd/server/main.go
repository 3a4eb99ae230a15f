package main

import (
	"context"

	"github.com/casadesoftware/GeoMun/internal/handler"
	"github.com/casadesoftware/GeoMun/internal/middleware"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/config"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/pkg/mailer"
	"github.com/casadesoftware/GeoMun/pkg/storage"
	"github.com/casadesoftware/GeoMun/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg.Log.Level, cfg.Server.Env); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting GeoMun API...", cfg.LogConfig()...)

	// Initialize JWT utility
	jwtutil.Initialize(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})

	// Initialize database
	if err := database.Initialize(database.DBConfig{
		DSN:             cfg.DB.GetDSN(),
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.DB.LogLevel,
	}); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize object storage for map icons
	if err := storage.Initialize(context.Background(), storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	}); err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	log.Info("Object storage ready", zap.String("bucket", cfg.Storage.Bucket))

	// Initialize outgoing mail and payment provider
	mailer.Initialize(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, cfg.AppURL)
	stripe.Key = cfg.Stripe.SecretKey
	handler.SetStripeConfig(cfg.Stripe)
	handler.SetAppURL(cfg.AppURL)

	// Ensure the platform operator account exists
	if err := seedSuperAdmin(database.GetDB(), cfg.Admin); err != nil {
		log.Fatal("Failed to seed admin account", zap.Error(err))
	}

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication and self-service registration
	auth := e.Group("/api/auth")
	auth.POST("/login", handler.Login)
	auth.POST("/register", handler.Register)
	auth.GET("/verify/:token", handler.VerifyEmail)

	// Public map catalog - consumed by the map viewer without a session
	e.GET("/api/maps/public", handler.ListPublicMaps)
	e.GET("/api/maps/public/theme/:theme", handler.ListPublicMapsByTheme)
	e.GET("/api/maps/public/:slug", handler.GetPublicMapBySlug)

	// Billing webhook authenticates through its signature, not a session
	e.POST("/api/billing/webhook", handler.StripeWebhook)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	api.GET("/auth/profile", handler.Profile)

	// User management within a tenant
	users := api.Group("/users")
	users.POST("", handler.CreateUser, middleware.Authorize("users.create"))
	users.GET("", handler.ListUsers, middleware.Authorize("users.list"))
	users.GET("/:id", handler.GetUser, middleware.Authorize("users.get"))
	users.PUT("/:id", handler.UpdateUser, middleware.Authorize("users.update"))
	users.DELETE("/:id", handler.DeleteUser, middleware.Authorize("users.delete"))

	// Maps, layers and features
	maps := api.Group("/maps")
	maps.POST("", handler.CreateMap, middleware.Authorize("maps.create"))
	maps.GET("", handler.ListMaps, middleware.Authorize("maps.list"))
	maps.GET("/:id", handler.GetMap, middleware.Authorize("maps.get"))
	maps.PUT("/:id", handler.UpdateMap, middleware.Authorize("maps.update"))
	maps.DELETE("/:id", handler.DeleteMap, middleware.Authorize("maps.delete"))
	maps.POST("/:mapId/layers", handler.CreateLayer, middleware.Authorize("layers.create"))
	maps.GET("/:mapId/layers", handler.ListLayers, middleware.Authorize("layers.list"))

	layers := api.Group("/layers")
	layers.GET("/:id", handler.GetLayer, middleware.Authorize("layers.get"))
	layers.PUT("/:id", handler.UpdateLayer, middleware.Authorize("layers.update"))
	layers.DELETE("/:id", handler.DeleteLayer, middleware.Authorize("layers.delete"))
	layers.POST("/:layerId/features", handler.CreateFeature, middleware.Authorize("features.create"))
	layers.GET("/:layerId/features", handler.ListFeatures, middleware.Authorize("features.list"))

	features := api.Group("/features")
	features.PUT("/:id", handler.UpdateFeature, middleware.Authorize("features.update"))
	features.DELETE("/:id", handler.DeleteFeature, middleware.Authorize("features.delete"))

	// Tenant administration - SUPERADMIN only through the permission table
	tenants := api.Group("/tenants")
	tenants.POST("", handler.CreateTenant, middleware.Authorize("tenants.create"))
	tenants.GET("", handler.ListTenants, middleware.Authorize("tenants.list"))
	tenants.GET("/:id", handler.GetTenant, middleware.Authorize("tenants.get"))
	tenants.PUT("/:id", handler.UpdateTenant, middleware.Authorize("tenants.update"))
	tenants.DELETE("/:id", handler.DeleteTenant, middleware.Authorize("tenants.delete"))

	// Billing
	billing := api.Group("/billing")
	billing.POST("/checkout", handler.CreateCheckoutSession, middleware.Authorize("billing.checkout"))
	billing.POST("/portal", handler.CreatePortalSession, middleware.Authorize("billing.portal"))
	billing.GET("/status", handler.BillingStatus, middleware.Authorize("billing.status"))

	// Marker icons
	icons := api.Group("/storage/icons")
	icons.POST("/upload", handler.UploadIcon, middleware.Authorize("icons.upload"))
	icons.GET("", handler.ListIcons, middleware.Authorize("icons.list"))
	icons.DELETE("/:name", handler.DeleteIcon, middleware.Authorize("icons.delete"))

	// Audit trail
	api.GET("/audit", handler.ListAuditLog, middleware.Authorize("audit.list"))

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// seedSuperAdmin creates the platform operator account on first boot. The
// account has no tenant and bypasses tenant scoping entirely.
func seedSuperAdmin(db *gorm.DB, admin config.AdminConfig) error {
	var existing model.User
	if result := db.Where("role = ?", model.RoleSuperAdmin).First(&existing); result.Error == nil {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return db.Create(&model.User{
		Email:    admin.Email,
		Password: string(hashedPassword),
		Name:     admin.Name,
		Role:     model.RoleSuperAdmin,
		Active:   true,
	}).Error
}
