package authz

import (
	"github.com/casadesoftware/GeoMun/internal/model"
)

// Permissions is the declarative table of allowed roles per action. Every
// protected entry point consults it exactly once through
// middleware.Authorize. SUPERADMIN is granted implicit superset access and
// never needs to be listed.
var Permissions = map[string][]string{
	"users.create": {model.RoleAdmin},
	"users.list":   {model.RoleAdmin},
	"users.get":    {model.RoleAdmin},
	"users.update": {model.RoleAdmin},
	"users.delete": {model.RoleAdmin},

	"maps.create": {model.RoleAdmin, model.RoleEditor},
	"maps.list":   {model.RoleAdmin, model.RoleEditor},
	"maps.get":    {model.RoleAdmin, model.RoleEditor},
	"maps.update": {model.RoleAdmin, model.RoleEditor},
	"maps.delete": {model.RoleAdmin},

	"layers.create": {model.RoleAdmin, model.RoleEditor},
	"layers.list":   {model.RoleAdmin, model.RoleEditor},
	"layers.get":    {model.RoleAdmin, model.RoleEditor},
	"layers.update": {model.RoleAdmin, model.RoleEditor},
	"layers.delete": {model.RoleAdmin, model.RoleEditor},

	"features.create": {model.RoleAdmin, model.RoleEditor},
	"features.list":   {model.RoleAdmin, model.RoleEditor},
	"features.update": {model.RoleAdmin, model.RoleEditor},
	"features.delete": {model.RoleAdmin, model.RoleEditor},

	"tenants.create": {},
	"tenants.list":   {},
	"tenants.get":    {},
	"tenants.update": {},
	"tenants.delete": {},

	"billing.checkout": {model.RoleAdmin},
	"billing.portal":   {model.RoleAdmin},
	"billing.status":   {model.RoleAdmin, model.RoleEditor},

	"icons.upload": {model.RoleAdmin, model.RoleEditor},
	"icons.list":   {model.RoleAdmin, model.RoleEditor},
	"icons.delete": {model.RoleAdmin},

	"audit.list": {model.RoleAdmin},
}

// Allowed reports whether the role may perform the action. SUPERADMIN passes
// every check; unknown actions are denied for everyone else.
func Allowed(action, role string) bool {
	if role == model.RoleSuperAdmin {
		return true
	}
	for _, allowed := range Permissions[action] {
		if allowed == role {
			return true
		}
	}
	return false
}
