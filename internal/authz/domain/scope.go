package domain

// ScopeType is the kind of node in the organisational tree.
type ScopeType string

const (
	ScopeCompany  ScopeType = "company"
	ScopeEstate   ScopeType = "estate"
	ScopeDivision ScopeType = "division"
	ScopeBlock    ScopeType = "block"
)

// ScopeAll is the wildcard assigned-scope marker held by system-scoped roles.
const ScopeAll = "all"

// ScopeNode is one node of the organisational tree. Root nodes have an empty
// ParentID. The tree itself is owned by the org-hierarchy collaborator; the
// engine only reads it.
type ScopeNode struct {
	ID       string
	Type     ScopeType
	ParentID string
	Name     string
}

// ScopeRef names the scope a check or an override is constrained to.
type ScopeRef struct {
	Type ScopeType
	ID   string
}

func (r ScopeRef) IsZero() bool { return r.ID == "" }

// Hash returns a stable token for cache keys. The zero ref hashes to a fixed
// marker so unscoped and scoped checks never collide.
func (r ScopeRef) Hash() string {
	if r.IsZero() {
		return "unscoped"
	}
	return string(r.Type) + "/" + r.ID
}
