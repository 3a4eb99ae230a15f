package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/casadesoftware/GeoMun/internal/model"
)

func TestCreateUserEnforcesPlanLimit(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	admin := seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)
	seedUser(t, db, "second@acme.test", "secret123", model.RoleEditor, &tenant.ID)

	// Two active users already fill the FREE quota
	c, rec := newRequest(t, http.MethodPost, "/api/users", map[string]string{
		"email":    "third@acme.test",
		"password": "secret123",
	})
	asCaller(c, admin.ID, admin.Email, admin.Role, &tenant.ID)
	if err := CreateUser(c); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 at quota, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "FREE") || !strings.Contains(msg, "2") {
		t.Errorf("rejection should name the plan and limit, got %q", msg)
	}
}

func TestCreateUserDefaultsToEditor(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanBasic, 10, 5, 15)
	admin := seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)

	c, rec := newRequest(t, http.MethodPost, "/api/users", map[string]string{
		"email":    "new@acme.test",
		"password": "secret123",
		"name":     "New",
	})
	asCaller(c, admin.ID, admin.Email, admin.Role, &tenant.ID)
	if err := CreateUser(c); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got model.User
	if err := db.First(&got, "email = ?", "new@acme.test").Error; err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if got.Role != model.RoleEditor {
		t.Errorf("role should default to EDITOR, got %s", got.Role)
	}
	if got.TenantID == nil || *got.TenantID != tenant.ID {
		t.Error("user should land in the caller's tenant")
	}
}

func TestCreateUserRejectsSuperAdminRole(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanBasic, 10, 5, 15)
	admin := seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)

	c, rec := newRequest(t, http.MethodPost, "/api/users", map[string]string{
		"email":    "evil@acme.test",
		"password": "secret123",
		"role":     model.RoleSuperAdmin,
	})
	asCaller(c, admin.ID, admin.Email, admin.Role, &tenant.ID)
	if err := CreateUser(c); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("SUPERADMIN must not be grantable, got %d", rec.Code)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanBasic, 10, 5, 15)
	admin := seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)

	c, rec := newRequest(t, http.MethodPost, "/api/users", map[string]string{
		"email":    "admin@acme.test",
		"password": "secret123",
	})
	asCaller(c, admin.ID, admin.Email, admin.Role, &tenant.ID)
	if err := CreateUser(c); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", rec.Code)
	}
}

func TestDeleteUserDeactivates(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanBasic, 10, 5, 15)
	admin := seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)
	victim := seedUser(t, db, "editor@acme.test", "secret123", model.RoleEditor, &tenant.ID)

	c, rec := newRequest(t, http.MethodDelete, "/api/users/"+victim.ID, nil)
	c.SetParamNames("id")
	c.SetParamValues(victim.ID)
	asCaller(c, admin.ID, admin.Email, admin.Role, &tenant.ID)
	if err := DeleteUser(c); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got model.User
	if err := db.First(&got, "id = ?", victim.ID).Error; err != nil {
		t.Fatal("row should survive a delete, only deactivated")
	}
	if got.Active {
		t.Error("user should be inactive after delete")
	}
}

func TestUsersAreTenantScoped(t *testing.T) {
	db := setupTest(t)
	tenantA := seedTenant(t, db, "org-a", model.PlanBasic, 10, 5, 15)
	tenantB := seedTenant(t, db, "org-b", model.PlanBasic, 10, 5, 15)
	target := seedUser(t, db, "a@org-a.test", "secret123", model.RoleEditor, &tenantA.ID)
	adminB := seedUser(t, db, "admin@org-b.test", "secret123", model.RoleAdmin, &tenantB.ID)

	c, rec := newRequest(t, http.MethodGet, "/api/users/"+target.ID, nil)
	c.SetParamNames("id")
	c.SetParamValues(target.ID)
	asCaller(c, adminB.ID, adminB.Email, adminB.Role, &tenantB.ID)
	if err := GetUser(c); err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-tenant user access should 404, got %d", rec.Code)
	}
}
