package sqlite

import (
	"context"

	"github.com/verdantops/canopy/internal/authz/domain"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) Record(ctx context.Context, e domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_id, subject_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.ActorID, e.SubjectID, e.Detail, e.CreatedAt)
	return err
}

func (r *auditRepo) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, actor_id, subject_id, detail, created_at
		FROM audit_log
		WHERE subject_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, (*string)(&e.Action), &e.ActorID,
			&e.SubjectID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
