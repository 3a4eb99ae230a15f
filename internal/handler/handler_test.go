package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/casadesoftware/GeoMun/internal/middleware"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/jwtutil"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// setupTest wires an in-memory database and test configuration into the
// package globals the handlers read
func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	database.SetDB(db)

	jwtutil.Initialize(&jwtutil.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})
	SetAppURL("http://localhost:4200")

	return db
}

// newRequest builds an echo context with an optional JSON body
func newRequest(t *testing.T, method, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// asCaller injects validated claims the way AuthMiddleware would
func asCaller(c echo.Context, userID, email, role string, tenantID *string) {
	c.Set(middleware.ClaimsKey, &jwtutil.UserClaims{
		Email:    email,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	})
}

// seedTenant creates an active tenant on the given plan limits
func seedTenant(t *testing.T, db *gorm.DB, slug, plan string, maxUsers, maxMaps, maxLayers int) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{
		Name:          slug,
		Slug:          slug,
		Plan:          plan,
		MaxUsers:      maxUsers,
		MaxMaps:       maxMaps,
		MaxLayers:     maxLayers,
		Active:        true,
		EmailVerified: true,
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

// seedUser creates an active user with a bcrypt password
func seedUser(t *testing.T, db *gorm.DB, email, password, role string, tenantID *string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &model.User{
		Email:    email,
		Password: string(hash),
		Name:     email,
		Role:     role,
		TenantID: tenantID,
		Active:   true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// decodeBody parses the recorded JSON response into a generic map
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}
