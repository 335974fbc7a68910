package sqlite

import (
	"context"
	"database/sql"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store"
)

type orgNodesRepo struct {
	db dbtx
}

func (r *orgNodesRepo) Get(ctx context.Context, id string) (domain.ScopeNode, error) {
	var (
		n      domain.ScopeNode
		parent sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, type, parent_id, name FROM org_nodes WHERE id = ?`, id).
		Scan(&n.ID, (*string)(&n.Type), &parent, &n.Name)
	if err != nil {
		return domain.ScopeNode{}, mapNotFound(err)
	}
	n.ParentID = parent.String
	return n, nil
}

// AncestryOf walks the parent chain with a recursive CTE and returns the
// path ordered root first.
func (r *orgNodesRepo) AncestryOf(ctx context.Context, id string) ([]domain.ScopeNode, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH RECURSIVE chain (id, type, parent_id, name, depth) AS (
			SELECT id, type, parent_id, name, 0
			FROM org_nodes WHERE id = ?
			UNION ALL
			SELECT o.id, o.type, o.parent_id, o.name, chain.depth + 1
			FROM org_nodes o
			JOIN chain ON o.id = chain.parent_id
		)
		SELECT id, type, parent_id, name FROM chain ORDER BY depth DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var path []domain.ScopeNode
	for rows.Next() {
		var (
			n      domain.ScopeNode
			parent sql.NullString
		)
		if err := rows.Scan(&n.ID, (*string)(&n.Type), &parent, &n.Name); err != nil {
			return nil, err
		}
		n.ParentID = parent.String
		path = append(path, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, store.ErrNotFound
	}
	return path, nil
}

func (r *orgNodesRepo) Create(ctx context.Context, n domain.ScopeNode) error {
	var parent any
	if n.ParentID != "" {
		parent = n.ParentID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_nodes (id, type, parent_id, name)
		VALUES (?, ?, ?, ?)`, n.ID, string(n.Type), parent, n.Name)
	return err
}
