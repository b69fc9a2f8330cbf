package postgres

import (
	"context"
	"testing"
	"time"

	"payment-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        strPtr("ops@example.com"),
		Action:       domain.AuditActionRegisterIPN,
		ResourceType: "ipn",
		ResourceID:   "ipn-42",
		Details:      `{"url":"https://shop.example.com/ipn"}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.Actor, "REGISTER_IPN", "ipn", "ipn-42",
			[]byte(entry.Details), "10.0.0.1", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), entry)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_NoDetails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionReconcile, ResourceType: "payment"}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.Actor, "RECONCILE", "payment", "", []byte(nil), "", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
