package service

import (
	"fmt"
	"sort"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/pkg/permset"
)

// RoleRegistry holds the static role table. It is built once at startup,
// validated in full, and never mutated afterwards, so lookups need no
// locking.
type RoleRegistry struct {
	roles     map[string]domain.RoleDefinition
	defaults  map[string]permset.Set
	catalogue *permset.Registry
}

// NewRoleRegistry validates and compiles the role table against the
// permission catalogue. Any inconsistency is an ErrConfigInconsistent and
// must abort startup: a role managing an unknown role or itself, a
// manageable role that does not sit at a strictly lower authority level,
// duplicate role names, a system-scoped role carrying scope requirements,
// or a default permission outside the catalogue.
func NewRoleRegistry(defs []domain.RoleDefinition, catalogue *permset.Registry) (*RoleRegistry, error) {
	r := &RoleRegistry{
		roles:     make(map[string]domain.RoleDefinition, len(defs)),
		defaults:  make(map[string]permset.Set, len(defs)),
		catalogue: catalogue,
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: role with empty name", ErrConfigInconsistent)
		}
		if _, dup := r.roles[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate role %q", ErrConfigInconsistent, def.Name)
		}
		if def.ScopeLevel == domain.ScopeLevelSystem && len(def.ScopeRequirements) > 0 {
			return nil, fmt.Errorf("%w: system role %q must not require scopes", ErrConfigInconsistent, def.Name)
		}
		r.roles[def.Name] = def
		r.defaults[def.Name] = permset.NewSet(def.DefaultPermissions...)
	}

	for _, def := range r.roles {
		for _, target := range def.Manageable {
			targetDef, ok := r.roles[target]
			if !ok {
				return nil, fmt.Errorf("%w: role %q manages unknown role %q", ErrConfigInconsistent, def.Name, target)
			}
			if target == def.Name {
				return nil, fmt.Errorf("%w: role %q manages itself", ErrConfigInconsistent, def.Name)
			}
			if targetDef.Level <= def.Level {
				return nil, fmt.Errorf("%w: role %q (level %d) manages %q (level %d) which is not strictly lower",
					ErrConfigInconsistent, def.Name, def.Level, target, targetDef.Level)
			}
		}

		for _, perm := range def.DefaultPermissions {
			if _, err := catalogue.Parse(perm.String()); err != nil {
				return nil, fmt.Errorf("%w: role %q default permission %q: %v",
					ErrConfigInconsistent, def.Name, perm.String(), err)
			}
		}
	}

	return r, nil
}

// Get returns the definition for a role name.
func (r *RoleRegistry) Get(name string) (domain.RoleDefinition, bool) {
	def, ok := r.roles[name]
	return def, ok
}

// Defaults returns the role's compiled default permission set. Lookups honour
// held wildcards; an unknown role yields the zero set, which denies
// everything.
func (r *RoleRegistry) Defaults(name string) permset.Set {
	return r.defaults[name]
}

// CanManage reports whether the acting role may administer the target role.
func (r *RoleRegistry) CanManage(actingRole, targetRole string) bool {
	def, ok := r.roles[actingRole]
	if !ok {
		return false
	}
	for _, name := range def.Manageable {
		if name == targetRole {
			return true
		}
	}
	return false
}

// ManageableRoles returns the roles the acting role may administer, sorted
// by authority level.
func (r *RoleRegistry) ManageableRoles(actingRole string) []domain.RoleDefinition {
	def, ok := r.roles[actingRole]
	if !ok {
		return nil
	}
	out := make([]domain.RoleDefinition, 0, len(def.Manageable))
	for _, name := range def.Manageable {
		out = append(out, r.roles[name])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// Roles returns every role definition sorted by authority level.
func (r *RoleRegistry) Roles() []domain.RoleDefinition {
	out := make([]domain.RoleDefinition, 0, len(r.roles))
	for _, def := range r.roles {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// Catalogue returns the compiled permission catalogue the table was
// validated against.
func (r *RoleRegistry) Catalogue() *permset.Registry {
	return r.catalogue
}
