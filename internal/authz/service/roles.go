package service

import (
	"strings"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/pkg/permset"
)

// DefaultCatalogue lists every permission the platform knows. Role defaults
// and override targets are validated against it at startup.
func DefaultCatalogue() []permset.Permission {
	perms := []permset.Permission{}
	add := func(resource string, actions ...string) {
		for _, action := range actions {
			perms = append(perms, permset.New(resource, action))
		}
	}

	add("harvest", "read", "create", "update", "delete", "approve")
	add("gate", "read", "checkin", "checkout", "manage")
	add("weighing", "read", "create", "update")
	add("grading", "read", "create", "update")
	add("reports", "read", "export")
	add("users", "read", "create", "update", "delete", "manage")
	add("companies", "read", "create", "update", "delete")
	add("estates", "read", "create", "update", "delete")
	add("divisions", "read", "create", "update", "delete")
	add("blocks", "read", "create", "update", "delete")
	add("qr", "read", "generate", "scan")

	return perms
}

// NewCatalogue compiles the default permission catalogue.
func NewCatalogue() (*permset.Registry, error) {
	return permset.NewRegistry(DefaultCatalogue())
}

// DefaultRoles is the plantation role table. Level 0 is the highest
// authority; every manageable role must sit at a strictly higher level
// number, which NewRoleRegistry enforces.
func DefaultRoles() []domain.RoleDefinition {
	p := func(strs ...string) []permset.Permission {
		out := make([]permset.Permission, 0, len(strs))
		for _, s := range strs {
			resource, action, _ := strings.Cut(s, ":")
			out = append(out, permset.New(resource, action))
		}
		return out
	}

	return []domain.RoleDefinition{
		{
			Name:        "super_admin",
			DisplayName: "Super Admin",
			Level:       0,
			ScopeLevel:  domain.ScopeLevelSystem,
			Manageable: []string{
				"area_manager", "company_admin", "manager", "asisten",
				"mandor", "satpam", "timbangan", "grading",
			},
			DefaultPermissions: p(
				"harvest:*", "gate:*", "weighing:*", "grading:*",
				"reports:*", "users:*", "companies:*", "estates:*",
				"divisions:*", "blocks:*", "qr:*",
			),
		},
		{
			Name:        "area_manager",
			DisplayName: "Area Manager",
			Level:       1,
			ScopeLevel:  domain.ScopeLevelCompany,
			Manageable: []string{
				"company_admin", "manager", "asisten", "mandor",
				"satpam", "timbangan", "grading",
			},
			ScopeRequirements: []domain.ScopeLevel{domain.ScopeLevelCompany},
			DefaultPermissions: p(
				"companies:read", "estates:read", "estates:create", "estates:update",
				"divisions:read", "blocks:read", "users:read",
				"harvest:read", "weighing:read", "grading:read",
				"reports:read", "reports:export",
			),
		},
		{
			Name:        "company_admin",
			DisplayName: "Company Admin",
			Level:       2,
			ScopeLevel:  domain.ScopeLevelCompany,
			Manageable: []string{
				"manager", "asisten", "mandor", "satpam", "timbangan", "grading",
			},
			ScopeRequirements: []domain.ScopeLevel{domain.ScopeLevelCompany},
			DefaultPermissions: p(
				"companies:read", "companies:update",
				"estates:read", "estates:create", "estates:update", "estates:delete",
				"divisions:read", "divisions:create", "divisions:update", "divisions:delete",
				"blocks:read", "blocks:create", "blocks:update", "blocks:delete",
				"users:read", "users:create", "users:update", "users:delete", "users:manage",
				"harvest:read", "weighing:read", "grading:read",
				"reports:read", "reports:export", "qr:read", "qr:generate",
			),
		},
		{
			Name:        "manager",
			DisplayName: "Estate Manager",
			Level:       3,
			ScopeLevel:  domain.ScopeLevelEstate,
			Manageable: []string{
				"asisten", "mandor", "satpam", "timbangan", "grading",
			},
			ScopeRequirements: []domain.ScopeLevel{domain.ScopeLevelEstate},
			DefaultPermissions: p(
				"estates:read",
				"divisions:read", "divisions:create", "divisions:update",
				"blocks:read", "blocks:create", "blocks:update", "blocks:delete",
				"users:read", "harvest:read", "harvest:approve",
				"weighing:read", "grading:read", "reports:read", "qr:read",
			),
		},
		{
			Name:        "asisten",
			DisplayName: "Asisten Divisi",
			Level:       4,
			ScopeLevel:  domain.ScopeLevelDivision,
			Manageable:  []string{"mandor"},
			ScopeRequirements: []domain.ScopeLevel{
				domain.ScopeLevelDivision,
			},
			DefaultPermissions: p(
				"divisions:read", "blocks:read", "blocks:update",
				"harvest:read", "harvest:create", "harvest:update", "harvest:approve",
				"users:read", "qr:read",
			),
		},
		{
			Name:        "mandor",
			DisplayName: "Mandor Panen",
			Level:       5,
			ScopeLevel:  domain.ScopeLevelDivision,
			ScopeRequirements: []domain.ScopeLevel{
				domain.ScopeLevelDivision,
			},
			DefaultPermissions: p(
				"harvest:read", "harvest:create", "harvest:update",
				"blocks:read", "qr:read", "qr:scan",
			),
		},
		{
			Name:              "satpam",
			DisplayName:       "Satpam",
			Level:             6,
			ScopeLevel:        domain.ScopeLevelEstate,
			ScopeRequirements: []domain.ScopeLevel{domain.ScopeLevelEstate},
			DefaultPermissions: p(
				"gate:read", "gate:checkin", "gate:checkout", "qr:scan",
			),
		},
		{
			Name:              "timbangan",
			DisplayName:       "Operator Timbangan",
			Level:             7,
			ScopeLevel:        domain.ScopeLevelEstate,
			ScopeRequirements: []domain.ScopeLevel{domain.ScopeLevelEstate},
			DefaultPermissions: p(
				"weighing:read", "weighing:create", "weighing:update", "qr:scan",
			),
		},
		{
			Name:              "grading",
			DisplayName:       "Operator Grading",
			Level:             8,
			ScopeLevel:        domain.ScopeLevelEstate,
			ScopeRequirements: []domain.ScopeLevel{domain.ScopeLevelEstate},
			DefaultPermissions: p(
				"grading:read", "grading:create", "grading:update", "qr:scan",
			),
		},
	}
}
