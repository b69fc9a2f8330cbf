package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, order_id, amount::text, currency, description, status, payment_state,
		order_tracking_id, redirect_url, payment_method, confirmation_code,
		callback_received, callback_received_at, webhook_received, webhook_received_at,
		last_status_check, created_at, updated_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

var _ ports.PaymentRepository = (*PaymentRepo)(nil)

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment within a database transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (id, order_id, amount, currency, description, status, payment_state,
		order_tracking_id, redirect_url, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.OrderID, p.Amount.StringFixed(2), p.Currency, p.Description,
		p.Status, string(p.State), p.OrderTrackingID, p.RedirectURL,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByOrderID fetches a payment by merchant order id.
func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, orderID))
}

// GetByTrackingID fetches a payment by gateway tracking id.
func (r *PaymentRepo) GetByTrackingID(ctx context.Context, trackingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_tracking_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, trackingID))
}

// GetByOrderIDForUpdate fetches a payment with a row lock (SELECT ... FOR UPDATE).
func (r *PaymentRepo) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, orderID))
}

// GetByTrackingIDForUpdate fetches a payment by tracking id with a row lock.
func (r *PaymentRepo) GetByTrackingIDForUpdate(ctx context.Context, tx pgx.Tx, trackingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_tracking_id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, trackingID))
}

// SetSubmission stores the gateway tracking id and redirect URL once.
func (r *PaymentRepo) SetSubmission(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, trackingID, redirectURL string) (bool, error) {
	query := `UPDATE payments SET order_tracking_id = $2, redirect_url = NULLIF($3, ''), updated_at = $4
		WHERE id = $1 AND order_tracking_id IS NULL`

	tag, err := tx.Exec(ctx, query, paymentID, trackingID, redirectURL, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set submission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateReconciled writes the reconciled status fields of p. Completion
// evidence and receipt flags are never cleared once set.
func (r *PaymentRepo) UpdateReconciled(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `UPDATE payments SET
		status = $2,
		payment_state = $3,
		payment_method = COALESCE($4, payment_method),
		confirmation_code = COALESCE($5, confirmation_code),
		callback_received = callback_received OR $6,
		callback_received_at = COALESCE(callback_received_at, $7),
		webhook_received = webhook_received OR $8,
		webhook_received_at = COALESCE(webhook_received_at, $9),
		last_status_check = COALESCE($10, last_status_check),
		updated_at = $11
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		p.ID, p.Status, string(p.State),
		p.PaymentMethod, p.ConfirmationCode,
		p.CallbackReceived, p.CallbackReceivedAt,
		p.WebhookReceived, p.WebhookReceivedAt,
		p.LastStatusCheck, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", p.ID)
	}
	return nil
}

// List fetches payments with an optional state filter and pagination.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.State != nil {
		conditions = append(conditions, fmt.Sprintf("payment_state = $%d", argIdx))
		args = append(args, string(*params.State))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	payments, err := r.queryPayments(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListStale returns submitted, non-terminal payments last updated before
// updatedBefore, oldest first.
func (r *PaymentRepo) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE payment_state IN ('PENDING', 'PROCESSING')
		AND order_tracking_id IS NOT NULL
		AND updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`

	return r.queryPayments(ctx, query, updatedBefore, limit)
}

// GetStats aggregates payment counts per state and completed volume per
// currency, optionally limited to payments created since the given time.
func (r *PaymentRepo) GetStats(ctx context.Context, since *time.Time) (*ports.PaymentStats, error) {
	var args []any
	condition := "TRUE"
	if since != nil {
		condition = "created_at >= $1"
		args = append(args, *since)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE payment_state = 'PENDING') AS pending,
		COUNT(*) FILTER (WHERE payment_state = 'PROCESSING') AS processing,
		COUNT(*) FILTER (WHERE payment_state = 'COMPLETED') AS completed,
		COUNT(*) FILTER (WHERE payment_state = 'FAILED') AS failed,
		COUNT(*) FILTER (WHERE payment_state = 'CANCELLED') AS cancelled
		FROM payments WHERE %s`, condition)

	stats := &ports.PaymentStats{CompletedVolume: map[string]decimal.Decimal{}}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Pending, &stats.Processing,
		&stats.Completed, &stats.Failed, &stats.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("get payment stats: %w", err)
	}

	volumeQuery := fmt.Sprintf(`SELECT currency, SUM(amount)::text FROM payments
		WHERE payment_state = 'COMPLETED' AND %s GROUP BY currency`, condition)
	rows, err := r.pool.Query(ctx, volumeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("get payment volume: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var currency, sum string
		if err := rows.Scan(&currency, &sum); err != nil {
			return nil, fmt.Errorf("scan payment volume: %w", err)
		}
		v, err := decimal.NewFromString(sum)
		if err != nil {
			return nil, fmt.Errorf("parse payment volume %q: %w", sum, err)
		}
		stats.CompletedVolume[currency] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment volume rows: %w", err)
	}
	return stats, nil
}

func (r *PaymentRepo) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

// scanPayment scans a single row into a Payment. It returns nil, nil when
// the row does not exist.
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		amount string
		state  string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &amount, &p.Currency, &p.Description, &p.Status, &state,
		&p.OrderTrackingID, &p.RedirectURL, &p.PaymentMethod, &p.ConfirmationCode,
		&p.CallbackReceived, &p.CallbackReceivedAt, &p.WebhookReceived, &p.WebhookReceivedAt,
		&p.LastStatusCheck, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.State = domain.PaymentState(state)
	return &p, nil
}
