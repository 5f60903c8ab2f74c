package service

import (
	"context"
	"io"
	"testing"
	"time"

	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())
	defer svc.Close()

	done := make(chan struct{})
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			if log.Action != domain.AuditActionTransfer {
				t.Errorf("expected TRANSFER, got %s", log.Action)
			}
			close(done)
			return nil
		},
	)

	walletID := uuid.New()
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		WalletID:     &walletID,
		Action:       domain.AuditActionTransfer,
		ResourceType: "transfer",
		ResourceID:   uuid.New().String(),
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	select {
	case <-done:
		// OK
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	walletID := uuid.New()
	// Should not panic
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		WalletID:     &walletID,
		Action:       domain.AuditActionDeposit,
		ResourceType: "wallet",
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	svc.Close()
}

func TestAuditService_Close_DrainsBuffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	const n = 10
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).Times(n)

	for i := 0; i < n; i++ {
		svc.Log(context.Background(), &domain.AuditLog{
			ID:        uuid.New(),
			Action:    domain.AuditActionWebhook,
			IPAddress: "127.0.0.1",
			CreatedAt: time.Now(),
		})
	}

	// Close must not return until every buffered entry is persisted.
	svc.Close()
}
