package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/verdantops/canopy/internal/authz/store"

	_ "modernc.org/sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the repositories can be
// shared between the plain store and transaction-scoped stores.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Single writer; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Overrides() store.Overrides { return &overridesRepo{db: s.db} }
func (s *Store) Users() store.Users         { return &usersRepo{db: s.db} }
func (s *Store) OrgNodes() store.OrgNodes   { return &orgNodesRepo{db: s.db} }
func (s *Store) Audit() store.Audit         { return &auditRepo{db: s.db} }

// WithTx executes fn within a transaction, automatically handling the
// commit/rollback logic.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Safe to call even after commit.
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Overrides() store.Overrides { return &overridesRepo{db: t.tx} }
func (t *txStore) Users() store.Users         { return &usersRepo{db: t.tx} }
func (t *txStore) OrgNodes() store.OrgNodes   { return &orgNodesRepo{db: t.tx} }
func (t *txStore) Audit() store.Audit         { return &auditRepo{db: t.tx} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapOptionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	val := nt.Time
	return &val
}
