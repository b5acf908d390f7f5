package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bakubin-auth/internal/domain"
)

// VerificationTokenRepository persiste tokens de verificación de un solo uso.
//
// Consume debe borrar y devolver el registro en una única operación atómica:
// dos llamadas concurrentes con el mismo token nunca pueden devolver ambas el
// registro.
type VerificationTokenRepository interface {
	Create(ctx context.Context, token domain.VerificationToken) error
	Consume(ctx context.Context, token string) (domain.VerificationToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PgVerificationTokenRepository implementa VerificationTokenRepository sobre Postgres.
type PgVerificationTokenRepository struct {
	pool DBTX
}

func NewPgVerificationTokenRepository(pool DBTX) *PgVerificationTokenRepository {
	return &PgVerificationTokenRepository{pool: pool}
}

func (r *PgVerificationTokenRepository) Create(ctx context.Context, token domain.VerificationToken) error {
	const query = `
		INSERT INTO verification_tokens (token, identifier, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		token.Token,
		token.Identifier,
		token.IssuedAt,
		token.ExpiresAt,
	)
	return err
}

// Consume usa DELETE ... RETURNING: la fila se bloquea y se borra en la misma
// sentencia, así que sólo una transacción concurrente recibe la fila.
func (r *PgVerificationTokenRepository) Consume(ctx context.Context, token string) (domain.VerificationToken, error) {
	const query = `
		DELETE FROM verification_tokens
		WHERE token = $1
		RETURNING token, identifier, issued_at, expires_at
	`
	var t domain.VerificationToken
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.Token,
		&t.Identifier,
		&t.IssuedAt,
		&t.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VerificationToken{}, ErrTokenNotFound
	}
	if err != nil {
		return domain.VerificationToken{}, err
	}
	return t, nil
}

func (r *PgVerificationTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM verification_tokens WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
