package handler

import (
	"net/http"
	"time"

	"github.com/casadesoftware/GeoMun/internal/audit"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/pkg/mailer"
	"github.com/casadesoftware/GeoMun/pkg/slugify"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// VerifyTokenTTL is how long a tenant verification token stays valid
const VerifyTokenTTL = 24 * time.Hour

var appURL string

// SetAppURL configures the front-end base URL used for verification redirects
func SetAppURL(u string) {
	appURL = u
}

// Login authenticates a user and issues a bearer token
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	// Parse request
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	// Find user in database - track DB operation duration
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().Where("email = ?", req.Email).First(&user)
	if result.Error != nil || !user.Active {
		log.Warn("Login rejected", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_credentials")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Generate JWT token carrying role and tenant
	token, err := jwtutil.GenerateToken(user.ID, user.Email, user.Role, user.TenantID)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("role", user.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": map[string]interface{}{
			"id":        user.ID,
			"email":     user.Email,
			"name":      user.Name,
			"role":      user.Role,
			"tenant_id": user.TenantID,
		},
	})
}

// Register creates a new organization with a pending-verification tenant and
// an inactive ADMIN user, then emails the verification link
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	// Parse request
	var req struct {
		OrgName  string `json:"orgName"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.OrgName == "" || req.Email == "" || req.Password == "" {
		log.Error("Invalid registration data", zap.String("email", req.Email))
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "orgName, email and password are required"})
	}

	slug := slugify.Make(req.OrgName)
	if slug == "" {
		prometheus.RecordAuthError("invalid_org_name")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "organization name must contain letters or digits"})
	}

	// Check uniqueness of slug and email
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existingTenant model.Tenant
	if result := database.GetDB().Where("slug = ?", slug).First(&existingTenant); result.Error == nil {
		log.Warn("Organization slug already exists", zap.String("slug", slug))
		prometheus.RecordAuthError("slug_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "organization already registered"})
	}

	var existingUser model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&existingUser); result.Error == nil {
		log.Warn("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	// Create tenant and admin together; the tenant stays inactive until the
	// verification token is presented
	verifyToken := uuid.NewString()
	expiresAt := time.Now().Add(VerifyTokenTTL)

	tenant := model.Tenant{
		Name:                 req.OrgName,
		Slug:                 slug,
		Plan:                 model.PlanFree,
		MaxUsers:             2,
		MaxMaps:              1,
		MaxLayers:            3,
		Active:               false,
		VerifyToken:          &verifyToken,
		VerifyTokenExpiresAt: &expiresAt,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		admin := model.User{
			Email:    req.Email,
			Password: string(hashedPassword),
			Name:     req.Name,
			Role:     model.RoleAdmin,
			TenantID: &tenant.ID,
			Active:   false,
		}
		return tx.Create(&admin).Error
	})
	if err != nil {
		log.Error("Failed to create tenant", zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	// A lost email must not strand the tenant row, so a send failure is
	// logged but does not fail the registration
	if err := mailer.SendVerificationEmail(req.Email, req.Name, verifyToken); err != nil {
		log.Error("Failed to send verification email",
			zap.String("email", req.Email),
			zap.Error(err))
	}

	log.Info("Organization registered",
		zap.String("slug", slug),
		zap.String("email", req.Email))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Organization registered, check your email to verify the account",
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
			"slug": tenant.Slug,
			"plan": tenant.Plan,
		},
	})
}

// VerifyEmail consumes a tenant verification token. On success the tenant and
// its ADMIN users are activated and the token is cleared; a used or unknown
// token is invalid, an expired one is left in place and reported as expired.
func VerifyEmail(c echo.Context) error {
	log := logger.FromContext(c)
	token := c.Param("token")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	result := database.GetDB().Where("verify_token = ?", token).First(&tenant)
	if result.Error != nil {
		log.Warn("Verification token not found")
		prometheus.VerificationCounter.WithLabelValues("invalid").Inc()
		return c.Redirect(http.StatusFound, appURL+"/?verified=false&reason=invalid")
	}

	if tenant.VerifyTokenExpiresAt == nil || time.Now().After(*tenant.VerifyTokenExpiresAt) {
		log.Warn("Verification token expired", zap.String("tenant_id", tenant.ID))
		prometheus.VerificationCounter.WithLabelValues("expired").Inc()
		return c.Redirect(http.StatusFound, appURL+"/?verified=false&reason=expired")
	}

	// Activate tenant and its admins, clear the token so it can be accepted
	// exactly once
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Tenant{}).
			Where("id = ?", tenant.ID).
			Updates(map[string]interface{}{
				"active":                  true,
				"email_verified":          true,
				"verify_token":            nil,
				"verify_token_expires_at": nil,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).
			Where("tenant_id = ? AND role = ?", tenant.ID, model.RoleAdmin).
			Update("active", true).Error
	})
	if err != nil {
		log.Error("Failed to activate tenant", zap.String("tenant_id", tenant.ID), zap.Error(err))
		prometheus.VerificationCounter.WithLabelValues("error").Inc()
		return c.Redirect(http.StatusFound, appURL+"/?verified=false&reason=error")
	}

	prometheus.VerificationCounter.WithLabelValues("verified").Inc()
	prometheus.ActiveTenantsGauge.Inc()
	log.Info("Tenant verified", zap.String("tenant_id", tenant.ID), zap.String("slug", tenant.Slug))

	return c.Redirect(http.StatusFound, appURL+"/?verified=true")
}

// Profile returns the authenticated user without the password hash
func Profile(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := currentClaims(c)
	if !ok {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().First(&user, "id = ?", claims.UserID()); result.Error != nil {
		log.Error("Profile user not found", zap.String("user_id", claims.UserID()))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, user)
}

// recordAudit is a small wrapper so handlers don't repeat the claims plumbing
func recordAudit(c echo.Context, action, entity, entityID string, details map[string]interface{}) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	audit.Record(database.GetDB(), claims.UserID(), claims.TenantID, action, entity, entityID, details)
}
