package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/verdantops/canopy/internal/authz/domain"
	"github.com/verdantops/canopy/internal/authz/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, password_hash, role, is_active, created_at, updated_at`

func (r *usersRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, is_active,
		                   profile_modified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.IsActive,
		u.CreatedAt, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *usersRepo) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var (
		p        domain.Profile
		modified time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, role, profile_modified_at FROM users
		WHERE id = ? AND is_active = 1`, userID).
		Scan(&p.UserID, &p.Role, &modified)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	p.LastModified = modified

	rows, err := r.db.QueryContext(ctx, `
		SELECT scope_id FROM user_scope_assignments
		WHERE user_id = ? ORDER BY scope_id`, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var scopeID string
		if err := rows.Scan(&scopeID); err != nil {
			return domain.Profile{}, err
		}
		p.AssignedScopes = append(p.AssignedScopes, scopeID)
	}
	return p, rows.Err()
}

// AssignScopes replaces the scope set as one atomic unit: a failed insert
// must not leave the user with the old set half-deleted. When the repo is
// backed by the raw handle it opens its own transaction; inside WithTx the
// surrounding transaction already provides atomicity.
func (r *usersRepo) AssignScopes(ctx context.Context, userID string, scopeIDs []string) error {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return assignScopes(ctx, r.db, userID, scopeIDs)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := assignScopes(ctx, tx, userID, scopeIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func assignScopes(ctx context.Context, db dbtx, userID string, scopeIDs []string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM user_scope_assignments WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, scopeID := range scopeIDs {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO user_scope_assignments (user_id, scope_id)
			VALUES (?, ?)`, userID, scopeID); err != nil {
			return err
		}
	}
	return touchProfile(ctx, db, userID, time.Now().UTC())
}

func (r *usersRepo) TouchProfile(ctx context.Context, userID string, at time.Time) error {
	return touchProfile(ctx, r.db, userID, at)
}

func touchProfile(ctx context.Context, db dbtx, userID string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE users SET profile_modified_at = ?, updated_at = ?
		WHERE id = ?`, at, at, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}
