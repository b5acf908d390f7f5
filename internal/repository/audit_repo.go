package repository

import (
	"context"

	"bakubin-auth/internal/domain"
)

// AuditRepository sólo permite anexar entradas; no hay update ni delete.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

// PgAuditRepository implementa AuditRepository usando pgxpool.
type PgAuditRepository struct {
	pool DBTX
}

func NewPgAuditRepository(pool DBTX) *PgAuditRepository {
	return &PgAuditRepository{pool: pool}
}

// Append es idempotente por ID para que los reintentos no dupliquen entradas.
func (r *PgAuditRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	const query = `
		INSERT INTO audit_logs (id, event, user_id, details, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		string(entry.Event),
		entry.UserID,
		entry.Details,
		entry.IP,
		entry.UserAgent,
		entry.CreatedAt,
	)
	return err
}
