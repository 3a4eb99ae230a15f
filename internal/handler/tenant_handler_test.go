package handler

import (
	"net/http"
	"testing"

	"github.com/casadesoftware/GeoMun/internal/model"
)

func TestCreateTenantAppliesPlanLimits(t *testing.T) {
	db := setupTest(t)

	c, rec := newRequest(t, http.MethodPost, "/api/tenants", map[string]string{
		"name": "Diputación",
		"plan": model.PlanBasic,
	})
	asCaller(c, "root", "root@geomun.local", model.RoleSuperAdmin, nil)
	if err := CreateTenant(c); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var tenant model.Tenant
	if err := db.First(&tenant, "slug = ?", "diputacion").Error; err != nil {
		t.Fatalf("tenant not created: %v", err)
	}
	if !tenant.Active || !tenant.EmailVerified {
		t.Error("operator-provisioned tenants start active and verified")
	}
	if tenant.MaxUsers != 10 || tenant.MaxMaps != 5 || tenant.MaxLayers != 15 {
		t.Errorf("BASIC limits not applied: %d/%d/%d", tenant.MaxUsers, tenant.MaxMaps, tenant.MaxLayers)
	}
}

func TestUpdateTenantPlanChange(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)

	c, rec := newRequest(t, http.MethodPut, "/api/tenants/"+tenant.ID, map[string]string{
		"plan": model.PlanPro,
	})
	c.SetParamNames("id")
	c.SetParamValues(tenant.ID)
	asCaller(c, "root", "root@geomun.local", model.RoleSuperAdmin, nil)
	if err := UpdateTenant(c); err != nil {
		t.Fatalf("UpdateTenant failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got model.Tenant
	db.First(&got, "id = ?", tenant.ID)
	if got.Plan != model.PlanPro || got.MaxMaps != -1 {
		t.Errorf("PRO limits not applied, got %s/%d", got.Plan, got.MaxMaps)
	}

	// The response reflects the applied plan, not the pre-update row
	body := decodeBody(t, rec)
	if body["plan"] != model.PlanPro {
		t.Errorf("response should carry the new plan, got %v", body["plan"])
	}
	if maxMaps, _ := body["max_maps"].(float64); maxMaps != -1 {
		t.Errorf("response should carry the new limits, got %v", body["max_maps"])
	}
}

func TestDeleteTenantDeactivatesUsers(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	user := seedUser(t, db, "admin@acme.test", "secret123", model.RoleAdmin, &tenant.ID)

	c, rec := newRequest(t, http.MethodDelete, "/api/tenants/"+tenant.ID, nil)
	c.SetParamNames("id")
	c.SetParamValues(tenant.ID)
	asCaller(c, "root", "root@geomun.local", model.RoleSuperAdmin, nil)
	if err := DeleteTenant(c); err != nil {
		t.Fatalf("DeleteTenant failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var gotTenant model.Tenant
	db.First(&gotTenant, "id = ?", tenant.ID)
	if gotTenant.Active {
		t.Error("tenant should be deactivated")
	}

	var gotUser model.User
	db.First(&gotUser, "id = ?", user.ID)
	if gotUser.Active {
		t.Error("tenant users should be deactivated with the tenant")
	}
}
