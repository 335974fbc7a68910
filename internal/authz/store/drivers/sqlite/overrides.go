package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
)

type overridesRepo struct {
	db dbtx
}

func (r *overridesRepo) ListByUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, resource, action, is_granted, scope_type, scope_id,
		       expires_at, created_by, created_at, reason
		FROM permission_overrides
		WHERE user_id = ?
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PermissionOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *overridesRepo) Upsert(ctx context.Context, o domain.PermissionOverride) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permission_overrides
			(id, user_id, resource, action, is_granted, scope_type, scope_id,
			 expires_at, created_by, created_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource, action, scope_id) DO UPDATE SET
			is_granted = excluded.is_granted,
			scope_type = excluded.scope_type,
			expires_at = excluded.expires_at,
			created_by = excluded.created_by,
			created_at = excluded.created_at,
			reason     = excluded.reason`,
		o.ID, o.UserID, o.Permission.Resource, o.Permission.Action, o.IsGranted,
		string(o.Scope.Type), o.Scope.ID,
		mapOptionalTime(o.ExpiresAt), o.CreatedBy, o.CreatedAt, o.Reason)
	return err
}

func (r *overridesRepo) Delete(ctx context.Context, userID, permission, scopeID string) error {
	resource, action, _ := cutPermission(permission)
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM permission_overrides
		WHERE user_id = ? AND resource = ? AND action = ? AND scope_id = ?`,
		userID, resource, action, scopeID)
	return err
}

func (r *overridesRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM permission_overrides
		WHERE expires_at IS NOT NULL AND expires_at <= ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanOverride(rows *sql.Rows) (domain.PermissionOverride, error) {
	var (
		o         domain.PermissionOverride
		granted   bool
		scopeType string
		expiresAt sql.NullTime
	)
	err := rows.Scan(
		&o.ID, &o.UserID, &o.Permission.Resource, &o.Permission.Action,
		&granted, &scopeType, &o.Scope.ID,
		&expiresAt, &o.CreatedBy, &o.CreatedAt, &o.Reason)
	if err != nil {
		return domain.PermissionOverride{}, err
	}

	o.IsGranted = granted
	o.Scope.Type = domain.ScopeType(scopeType)
	o.ExpiresAt = mapNullTimePtr(expiresAt)
	return o, nil
}

func cutPermission(s string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(s, ":")
	return resource, action, ok
}
