package domain

import "github.com/verdantops/canopy/pkg/permset"

// ScopeLevel is the organisational tier a role operates at.
type ScopeLevel string

const (
	ScopeLevelSystem   ScopeLevel = "system"
	ScopeLevelCompany  ScopeLevel = "company"
	ScopeLevelEstate   ScopeLevel = "estate"
	ScopeLevelDivision ScopeLevel = "division"
)

// RoleDefinition is one row of the static role table. The table is loaded
// once at startup and validated; it never changes at runtime.
type RoleDefinition struct {
	Name        string
	DisplayName string

	// Level orders the hierarchy; 0 is the highest authority.
	Level int

	// ScopeLevel is the tier this role's assigned scopes live at. System
	// roles bypass scope checks entirely.
	ScopeLevel ScopeLevel

	// Manageable names the roles this role may administer. Startup
	// validation requires every entry to sit at a strictly lower level.
	Manageable []string

	// ScopeRequirements names which organisational tiers must be assigned
	// when a user is given this role.
	ScopeRequirements []ScopeLevel

	// DefaultPermissions are the role's baseline grants before per-user
	// overrides are applied.
	DefaultPermissions []permset.Permission
}
