package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakubin-auth/internal/domain"
)

func TestPgAuditRepository_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO audit_logs.*ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("a1", "USER_LOGIN_FAILED", pgxmock.AnyArg(), "unknown email", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPgAuditRepository(mock)
	err = repo.Append(context.Background(), domain.AuditLogEntry{
		ID:        "a1",
		Event:     domain.AuditUserLoginFailed,
		Details:   "unknown email",
		IP:        domain.OptionalString("10.0.0.1"),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
