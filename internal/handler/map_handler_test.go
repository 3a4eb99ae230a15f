package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/casadesoftware/GeoMun/internal/model"
)

func TestCreateMapEnforcesPlanLimit(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	user := seedUser(t, db, "editor@acme.test", "secret123", model.RoleEditor, &tenant.ID)

	// First map fits the FREE quota
	c, rec := newRequest(t, http.MethodPost, "/api/maps", map[string]string{"name": "Parques"})
	asCaller(c, user.ID, user.Email, user.Role, &tenant.ID)
	if err := CreateMap(c); err != nil {
		t.Fatalf("CreateMap failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second map exceeds it
	c, rec = newRequest(t, http.MethodPost, "/api/maps", map[string]string{"name": "Otro mapa"})
	asCaller(c, user.ID, user.Email, user.Role, &tenant.ID)
	if err := CreateMap(c); err != nil {
		t.Fatalf("CreateMap failed: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 at quota, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "FREE") || !strings.Contains(msg, "1") {
		t.Errorf("rejection should name the plan and limit, got %q", msg)
	}
}

func TestCreateMapSuperAdminBypassesQuota(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	if err := db.Create(&model.Map{TenantID: tenant.ID, Name: "m", Slug: "m"}).Error; err != nil {
		t.Fatalf("create map: %v", err)
	}

	c, rec := newRequest(t, http.MethodPost, "/api/maps", map[string]string{"name": "Operator map"})
	asCaller(c, "root", "root@geomun.local", model.RoleSuperAdmin, &tenant.ID)
	if err := CreateMap(c); err != nil {
		t.Fatalf("CreateMap failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("SUPERADMIN should bypass the quota, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMapsAreTenantScoped(t *testing.T) {
	db := setupTest(t)
	tenantA := seedTenant(t, db, "org-a", model.PlanFree, 2, 1, 3)
	tenantB := seedTenant(t, db, "org-b", model.PlanFree, 2, 1, 3)

	m := model.Map{TenantID: tenantA.ID, Name: "Secret", Slug: "secret"}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("create map: %v", err)
	}

	// Tenant B cannot fetch tenant A's map
	c, rec := newRequest(t, http.MethodGet, "/api/maps/"+m.ID, nil)
	c.SetParamNames("id")
	c.SetParamValues(m.ID)
	asCaller(c, "user-b", "b@org-b.test", model.RoleAdmin, &tenantB.ID)
	if err := GetMap(c); err != nil {
		t.Fatalf("GetMap failed: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-tenant access should 404, got %d", rec.Code)
	}

	// Tenant B's listing is empty
	c, rec = newRequest(t, http.MethodGet, "/api/maps", nil)
	asCaller(c, "user-b", "b@org-b.test", model.RoleAdmin, &tenantB.ID)
	if err := ListMaps(c); err != nil {
		t.Fatalf("ListMaps failed: %v", err)
	}
	var maps []model.Map
	if err := json.Unmarshal(rec.Body.Bytes(), &maps); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(maps) != 0 {
		t.Errorf("tenant B should see no maps, got %d", len(maps))
	}

	// SUPERADMIN sees everything
	c, rec = newRequest(t, http.MethodGet, "/api/maps", nil)
	asCaller(c, "root", "root@geomun.local", model.RoleSuperAdmin, nil)
	if err := ListMaps(c); err != nil {
		t.Fatalf("ListMaps failed: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &maps); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(maps) != 1 {
		t.Errorf("SUPERADMIN should see all maps, got %d", len(maps))
	}
}

func TestUpdateMapVisibilityRequiresAdmin(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanFree, 2, 1, 3)
	m := model.Map{TenantID: tenant.ID, Name: "Mapa", Slug: "mapa"}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("create map: %v", err)
	}

	// EDITOR cannot publish
	c, rec := newRequest(t, http.MethodPut, "/api/maps/"+m.ID, map[string]interface{}{"is_public": true})
	c.SetParamNames("id")
	c.SetParamValues(m.ID)
	asCaller(c, "editor", "e@acme.test", model.RoleEditor, &tenant.ID)
	if err := UpdateMap(c); err != nil {
		t.Fatalf("UpdateMap failed: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("EDITOR publishing should 403, got %d", rec.Code)
	}

	// ADMIN can
	c, rec = newRequest(t, http.MethodPut, "/api/maps/"+m.ID, map[string]interface{}{"is_public": true})
	c.SetParamNames("id")
	c.SetParamValues(m.ID)
	asCaller(c, "admin", "a@acme.test", model.RoleAdmin, &tenant.ID)
	if err := UpdateMap(c); err != nil {
		t.Fatalf("UpdateMap failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("ADMIN publishing should succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	var got model.Map
	db.First(&got, "id = ?", m.ID)
	if !got.IsPublic {
		t.Error("map should be public after the admin update")
	}

	// EDITOR may still rename
	c, rec = newRequest(t, http.MethodPut, "/api/maps/"+m.ID, map[string]interface{}{"name": "Renamed"})
	c.SetParamNames("id")
	c.SetParamValues(m.ID)
	asCaller(c, "editor", "e@acme.test", model.RoleEditor, &tenant.ID)
	if err := UpdateMap(c); err != nil {
		t.Fatalf("UpdateMap failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("EDITOR rename should succeed, got %d", rec.Code)
	}
}

func TestPublicMapCatalog(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanBasic, 10, 5, 15)

	public := model.Map{TenantID: tenant.ID, Name: "Turismo", Slug: "turismo", Theme: "tourism", IsPublic: true}
	private := model.Map{TenantID: tenant.ID, Name: "Borrador", Slug: "borrador", Theme: "tourism"}
	for _, m := range []*model.Map{&public, &private} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("create map: %v", err)
		}
	}

	// Catalog only lists public maps
	c, rec := newRequest(t, http.MethodGet, "/api/maps/public", nil)
	if err := ListPublicMaps(c); err != nil {
		t.Fatalf("ListPublicMaps failed: %v", err)
	}
	var catalog []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(catalog) != 1 || catalog[0]["slug"] != "turismo" {
		t.Errorf("expected only the public map, got %v", catalog)
	}

	// Theme match is case-insensitive
	c, rec = newRequest(t, http.MethodGet, "/api/maps/public/theme/TOURISM", nil)
	c.SetParamNames("theme")
	c.SetParamValues("TOURISM")
	if err := ListPublicMapsByTheme(c); err != nil {
		t.Fatalf("ListPublicMapsByTheme failed: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(catalog) != 1 {
		t.Errorf("theme match should be case-insensitive, got %v", catalog)
	}

	// Non-matching theme yields an empty catalog
	c, rec = newRequest(t, http.MethodGet, "/api/maps/public/theme/transport", nil)
	c.SetParamNames("theme")
	c.SetParamValues("transport")
	if err := ListPublicMapsByTheme(c); err != nil {
		t.Fatalf("ListPublicMapsByTheme failed: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(catalog) != 0 {
		t.Errorf("theme filter should exclude everything, got %v", catalog)
	}
}

func TestGetPublicMapBySlugHidesPrivateLayers(t *testing.T) {
	db := setupTest(t)
	tenant := seedTenant(t, db, "acme", model.PlanBasic, 10, 5, 15)

	m := model.Map{TenantID: tenant.ID, Name: "Turismo", Slug: "turismo", IsPublic: true}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("create map: %v", err)
	}
	visible := model.Layer{MapID: m.ID, Name: "Monumentos", IsPublic: true}
	hidden := model.Layer{MapID: m.ID, Name: "Notas internas"}
	for _, l := range []*model.Layer{&visible, &hidden} {
		if err := db.Create(l).Error; err != nil {
			t.Fatalf("create layer: %v", err)
		}
	}

	c, rec := newRequest(t, http.MethodGet, "/api/maps/public/turismo", nil)
	c.SetParamNames("slug")
	c.SetParamValues("turismo")
	if err := GetPublicMapBySlug(c); err != nil {
		t.Fatalf("GetPublicMapBySlug failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got model.Map
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Layers) != 1 || got.Layers[0].Name != "Monumentos" {
		t.Errorf("only public layers should be served, got %v", got.Layers)
	}

	// Private maps are invisible by slug
	priv := model.Map{TenantID: tenant.ID, Name: "Borrador", Slug: "borrador"}
	if err := db.Create(&priv).Error; err != nil {
		t.Fatalf("create map: %v", err)
	}
	c, rec = newRequest(t, http.MethodGet, "/api/maps/public/borrador", nil)
	c.SetParamNames("slug")
	c.SetParamValues("borrador")
	if err := GetPublicMapBySlug(c); err != nil {
		t.Fatalf("GetPublicMapBySlug failed: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("private maps must not be served publicly, got %d", rec.Code)
	}
}
