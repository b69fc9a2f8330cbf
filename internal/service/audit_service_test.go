package service

import (
	"context"
	"testing"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports/mocks"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	done := make(chan struct{})
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			if log.Action != domain.AuditActionCreatePayment {
				t.Errorf("expected CREATE_PAYMENT, got %s", log.Action)
			}
			close(done)
			return nil
		},
	)

	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionCreatePayment,
		ResourceType: "payment",
		ResourceID:   "ORDER-001",
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	actor := "ops"
	// Should not panic
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &actor,
		Action:       domain.AuditActionReconcile,
		ResourceType: "payment",
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	time.Sleep(50 * time.Millisecond) // let goroutine run
}
