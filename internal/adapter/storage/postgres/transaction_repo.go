package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, payment_id, reference, transaction_type, status, amount::text, currency,
		provider, provider_reference, payment_method, description, created_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

var _ ports.TransactionRepository = (*TransactionRepo)(nil)

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction. A second
// transaction with the same reference is ignored.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, payment_id, reference, transaction_type, status, amount, currency,
		provider, provider_reference, payment_method, description, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (reference) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		t.ID, t.PaymentID, t.Reference, string(t.TransactionType), string(t.Status),
		t.Amount.StringFixed(2), t.Currency, t.Provider, t.ProviderReference,
		t.PaymentMethod, t.Description, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByReference fetches a transaction by its unique reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// ListByPayment returns the transactions recorded for a payment, oldest first.
func (r *TransactionRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// UpdateStatus updates a transaction's status within a database transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	now := time.Now().UTC()
	query := `UPDATE transactions SET status = $1, processed_at = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, string(status), now, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		txType string
		status string
		amount string
	)
	err := row.Scan(
		&t.ID, &t.PaymentID, &t.Reference, &txType, &status, &amount, &t.Currency,
		&t.Provider, &t.ProviderReference, &t.PaymentMethod, &t.Description,
		&t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse transaction amount %q: %w", amount, err)
	}
	t.TransactionType = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	return &t, nil
}
