package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.PaymentEventRepository.
type EventRepo struct {
	pool Pool
}

var _ ports.PaymentEventRepository = (*EventRepo)(nil)

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append inserts an event within a database transaction.
func (r *EventRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.PaymentEvent) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_events (id, payment_id, event_type, status, source, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, query,
		e.ID, e.PaymentID, string(e.EventType), e.Status, string(e.Source), meta, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// ListByPayment returns the events of a payment, oldest first.
func (r *EventRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	query := `SELECT id, payment_id, event_type, status, source, metadata, created_at
		FROM payment_events WHERE payment_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var (
			e         domain.PaymentEvent
			eventType string
			source    string
			meta      []byte
		)
		if err := rows.Scan(&e.ID, &e.PaymentID, &eventType, &e.Status, &source, &meta, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		e.Source = domain.SignalSource(source)
		if e.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment event rows: %w", err)
	}
	return events, nil
}

func encodeMetadata(m domain.Metadata) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func decodeMetadata(b []byte) (domain.Metadata, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m domain.Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
