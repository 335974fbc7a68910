// Package permset models permissions as closed (resource, action) pairs.
//
// The string form is "resource:action". Two extensions are supported:
// "resource:*" matches every action on the resource, and a comma action list
// "resource:a,b" names several actions at once. Lists are expanded at parse
// time; whether they combine as all-required or any-required is decided by
// the caller.
//
// Every permission a caller can ask about must be declared in a Registry up
// front, so a typo in a permission string is a startup or request error
// instead of a silent deny.
package permset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// WildcardAction matches any action under a resource.
const WildcardAction = "*"

var ErrUnknownPermission = errors.New("permset: unknown permission")

// Permission is a single (resource, action) pair.
type Permission struct {
	Resource string
	Action   string
}

func New(resource, action string) Permission {
	return Permission{Resource: resource, Action: action}
}

// String returns the canonical "resource:action" form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// IsWildcard reports whether p matches every action under its resource.
func (p Permission) IsWildcard() bool {
	return p.Action == WildcardAction
}

// Match reports whether a held permission satisfies a requested one. A held
// wildcard covers every action on its resource; a requested wildcard is only
// satisfied by a held wildcard.
func Match(held, requested Permission) bool {
	if held.Resource != requested.Resource {
		return false
	}
	if held.IsWildcard() {
		return true
	}
	return held.Action == requested.Action
}

// Registry is the compiled catalogue of every permission the system knows.
type Registry struct {
	actions map[string]map[string]struct{}
}

// NewRegistry compiles the catalogue. Duplicate or malformed entries are
// construction errors so an inconsistent table cannot make it past startup.
func NewRegistry(perms []Permission) (*Registry, error) {
	r := &Registry{actions: make(map[string]map[string]struct{})}
	for _, p := range perms {
		if p.Resource == "" || p.Action == "" {
			return nil, fmt.Errorf("permset: malformed permission %q", p.String())
		}
		if p.Action == WildcardAction {
			return nil, fmt.Errorf("permset: wildcard entries are not declarable: %q", p.String())
		}
		set, ok := r.actions[p.Resource]
		if !ok {
			set = make(map[string]struct{})
			r.actions[p.Resource] = set
		}
		if _, dup := set[p.Action]; dup {
			return nil, fmt.Errorf("permset: duplicate permission %q", p.String())
		}
		set[p.Action] = struct{}{}
	}
	return r, nil
}

// Parse expands a permission string into its concrete permissions. A comma
// action list yields one permission per action; "resource:*" yields the
// single wildcard permission. Unknown resources or actions fail with
// ErrUnknownPermission.
func (r *Registry) Parse(s string) ([]Permission, error) {
	resource, actions, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || resource == "" || actions == "" {
		return nil, fmt.Errorf("%w: malformed %q", ErrUnknownPermission, s)
	}

	known, ok := r.actions[resource]
	if !ok {
		return nil, fmt.Errorf("%w: resource %q", ErrUnknownPermission, resource)
	}

	if actions == WildcardAction {
		return []Permission{{Resource: resource, Action: WildcardAction}}, nil
	}

	var out []Permission
	for _, action := range strings.Split(actions, ",") {
		action = strings.TrimSpace(action)
		if _, ok := known[action]; !ok {
			return nil, fmt.Errorf("%w: %s:%s", ErrUnknownPermission, resource, action)
		}
		out = append(out, Permission{Resource: resource, Action: action})
	}
	return out, nil
}

// ParseOne is Parse for strings that must name exactly one permission, such
// as override targets.
func (r *Registry) ParseOne(s string) (Permission, error) {
	perms, err := r.Parse(s)
	if err != nil {
		return Permission{}, err
	}
	if len(perms) != 1 {
		return Permission{}, fmt.Errorf("%w: %q names %d permissions, want 1", ErrUnknownPermission, s, len(perms))
	}
	return perms[0], nil
}

// All returns every declared permission in stable order, used for seeding.
func (r *Registry) All() []Permission {
	var out []Permission
	for resource, actions := range r.actions {
		for action := range actions {
			out = append(out, Permission{Resource: resource, Action: action})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Set is an unordered collection of held permissions, compiled once from a
// role's defaults. The zero Set holds nothing and denies every lookup.
type Set map[Permission]struct{}

func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether the set satisfies the requested permission, honouring
// held wildcards.
func (s Set) Has(requested Permission) bool {
	if _, ok := s[requested]; ok {
		return true
	}
	_, ok := s[Permission{Resource: requested.Resource, Action: WildcardAction}]
	return ok
}
