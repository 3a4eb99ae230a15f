package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/database"
)

func TestRegisterCreatesPendingTenant(t *testing.T) {
	db := setupTest(t)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"orgName":  "Ayuntamiento de León",
		"name":     "Ana",
		"email":    "ana@leon.test",
		"password": "secret123",
	})
	if err := Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var tenant model.Tenant
	if err := db.First(&tenant, "slug = ?", "ayuntamiento-de-leon").Error; err != nil {
		t.Fatalf("tenant not created: %v", err)
	}
	if tenant.Active {
		t.Error("tenant must stay inactive until verified")
	}
	if tenant.Plan != model.PlanFree || tenant.MaxMaps != 1 {
		t.Errorf("new tenant should start on FREE limits, got %s/%d", tenant.Plan, tenant.MaxMaps)
	}
	if tenant.VerifyToken == nil || tenant.VerifyTokenExpiresAt == nil {
		t.Fatal("tenant should carry a verification token with expiry")
	}

	var admin model.User
	if err := db.First(&admin, "email = ?", "ana@leon.test").Error; err != nil {
		t.Fatalf("admin not created: %v", err)
	}
	if admin.Role != model.RoleAdmin || admin.Active {
		t.Errorf("registrant should be an inactive ADMIN, got role=%s active=%v", admin.Role, admin.Active)
	}
	if admin.TenantID == nil || *admin.TenantID != tenant.ID {
		t.Error("admin should belong to the new tenant")
	}
}

func TestRegisterRejectsDuplicateSlug(t *testing.T) {
	db := setupTest(t)
	seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"orgName":  "ACME",
		"email":    "other@acme.test",
		"password": "secret123",
	})
	if err := Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate slug, got %d", rec.Code)
	}
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	setupTest(t)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"orgName": "Acme",
	})
	if err := Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestVerifyEmailActivatesExactlyOnce(t *testing.T) {
	db := setupTest(t)

	c, _ := newRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"orgName":  "Acme",
		"email":    "admin@acme.test",
		"password": "secret123",
	})
	if err := Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var tenant model.Tenant
	if err := db.First(&tenant, "slug = ?", "acme").Error; err != nil {
		t.Fatalf("tenant not found: %v", err)
	}
	token := *tenant.VerifyToken

	// First presentation activates
	c, rec := newRequest(t, http.MethodGet, "/api/auth/verify/"+token, nil)
	c.SetParamNames("token")
	c.SetParamValues(token)
	if err := VerifyEmail(c); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "verified=true") {
		t.Errorf("expected success redirect, got %q", loc)
	}

	if err := db.First(&tenant, "id = ?", tenant.ID).Error; err != nil {
		t.Fatalf("reload tenant: %v", err)
	}
	if !tenant.Active || !tenant.EmailVerified {
		t.Error("tenant should be active and verified")
	}
	if tenant.VerifyToken != nil {
		t.Error("token should be cleared after use")
	}

	var admin model.User
	database.GetDB().First(&admin, "email = ?", "admin@acme.test")
	if !admin.Active {
		t.Error("admin should be activated with the tenant")
	}

	// Second presentation of the same token is invalid
	c, rec = newRequest(t, http.MethodGet, "/api/auth/verify/"+token, nil)
	c.SetParamNames("token")
	c.SetParamValues(token)
	if err := VerifyEmail(c); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "reason=invalid") {
		t.Errorf("reused token should be reported invalid, got %q", loc)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	db := setupTest(t)

	token := "expired-token"
	past := time.Now().Add(-time.Hour)
	tenant := model.Tenant{
		Name:                 "Stale Org",
		Slug:                 "stale-org",
		Plan:                 model.PlanFree,
		MaxUsers:             2,
		MaxMaps:              1,
		MaxLayers:            3,
		VerifyToken:          &token,
		VerifyTokenExpiresAt: &past,
	}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	c, rec := newRequest(t, http.MethodGet, "/api/auth/verify/"+token, nil)
	c.SetParamNames("token")
	c.SetParamValues(token)
	if err := VerifyEmail(c); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "reason=expired") {
		t.Errorf("expected expired redirect, got %q", loc)
	}

	// Token stays in place and the tenant stays inactive
	var got model.Tenant
	db.First(&got, "id = ?", tenant.ID)
	if got.Active {
		t.Error("tenant must not activate through an expired token")
	}
	if got.VerifyToken == nil {
		t.Error("expired token should be left in place")
	}
}

func TestLoginIssuesToken(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "admin@acme.test",
		"password": "secret123",
	})
	if err := Login(c); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["token"] == "" || body["token"] == nil {
		t.Error("expected a token in the response")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "admin@acme.test",
		"password": "wrong",
	})
	if err := Login(c); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	user := seedUser(t, db, "pending@acme.test", "secret123", model.RoleAdmin, &tenant.ID)
	db.Model(user).Update("active", false)

	c, rec := newRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "pending@acme.test",
		"password": "secret123",
	})
	if err := Login(c); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unverified accounts must not log in, got %d", rec.Code)
	}
}
