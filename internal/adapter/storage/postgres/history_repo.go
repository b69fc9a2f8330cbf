package postgres

import (
	"context"
	"fmt"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HistoryRepo implements ports.StatusHistoryRepository.
type HistoryRepo struct {
	pool Pool
}

var _ ports.StatusHistoryRepository = (*HistoryRepo)(nil)

// NewHistoryRepo creates a new HistoryRepo.
func NewHistoryRepo(pool Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// Append inserts a status change within a database transaction.
func (r *HistoryRepo) Append(ctx context.Context, tx pgx.Tx, h *domain.StatusHistoryEntry) error {
	meta, err := encodeMetadata(h.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_status_history (id, payment_id, old_status, new_status, source, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, query,
		h.ID, h.PaymentID, h.OldStatus, h.NewStatus, string(h.Source), h.Reason, meta, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// ListByPayment returns the status history of a payment, oldest first.
func (r *HistoryRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.StatusHistoryEntry, error) {
	query := `SELECT id, payment_id, old_status, new_status, source, reason, metadata, created_at
		FROM payment_status_history WHERE payment_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var (
			h      domain.StatusHistoryEntry
			source string
			meta   []byte
		)
		if err := rows.Scan(&h.ID, &h.PaymentID, &h.OldStatus, &h.NewStatus, &source, &h.Reason, &meta, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		h.Source = domain.SignalSource(source)
		if h.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history rows: %w", err)
	}
	return entries, nil
}
