package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestPayment() *domain.Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Payment{
		ID:              uuid.New(),
		OrderID:         "ORDER-001",
		Amount:          decimal.RequireFromString("2500.00"),
		Currency:        "KES",
		Description:     "Concert tickets",
		Status:          domain.StatusSubmitted,
		State:           domain.PaymentStatePending,
		OrderTrackingID: strPtr("trk-001"),
		RedirectURL:     strPtr("https://pay.example.com/r/trk-001"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func paymentColumnNames() []string {
	return []string{"id", "order_id", "amount", "currency", "description", "status", "payment_state",
		"order_tracking_id", "redirect_url", "payment_method", "confirmation_code",
		"callback_received", "callback_received_at", "webhook_received", "webhook_received_at",
		"last_status_check", "created_at", "updated_at"}
}

func paymentRow(rows *pgxmock.Rows, p *domain.Payment) *pgxmock.Rows {
	return rows.AddRow(
		p.ID, p.OrderID, p.Amount.StringFixed(2), p.Currency, p.Description, p.Status, string(p.State),
		p.OrderTrackingID, p.RedirectURL, p.PaymentMethod, p.ConfirmationCode,
		p.CallbackReceived, p.CallbackReceivedAt, p.WebhookReceived, p.WebhookReceivedAt,
		p.LastStatusCheck, p.CreatedAt, p.UpdatedAt,
	)
}

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(
			p.ID, p.OrderID, "2500.00", p.Currency, p.Description,
			p.Status, string(p.State), p.OrderTrackingID, p.RedirectURL,
			p.CreatedAt, p.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByOrderID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	p.PaymentMethod = strPtr("MpesaKE")

	mock.ExpectQuery("SELECT .+ FROM payments WHERE order_id").
		WithArgs(p.OrderID).
		WillReturnRows(paymentRow(pgxmock.NewRows(paymentColumnNames()), p))

	result, err := repo.GetByOrderID(context.Background(), p.OrderID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.ID, result.ID)
	assert.True(t, p.Amount.Equal(result.Amount))
	assert.Equal(t, domain.PaymentStatePending, result.State)
	assert.Equal(t, "trk-001", result.TrackingID())
	assert.Equal(t, "MpesaKE", *result.PaymentMethod)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByTrackingID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE order_tracking_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(paymentColumnNames()))

	result, err := repo.GetByTrackingID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByOrderIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM payments WHERE order_id = \\$1 FOR UPDATE").
		WithArgs(p.OrderID).
		WillReturnRows(paymentRow(pgxmock.NewRows(paymentColumnNames()), p))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByOrderIDForUpdate(context.Background(), dbTx, p.OrderID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.OrderID, result.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByTrackingIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM payments WHERE order_tracking_id = \\$1 FOR UPDATE").
		WithArgs("trk-001").
		WillReturnRows(paymentRow(pgxmock.NewRows(paymentColumnNames()), p))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByTrackingIDForUpdate(context.Background(), dbTx, "trk-001")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_SetSubmission(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"first submission", 1, true},
		{"tracking id already set", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewPaymentRepo(mock)
			id := uuid.New()

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE payments SET order_tracking_id .+ AND order_tracking_id IS NULL").
				WithArgs(id, "trk-001", "https://pay.example.com", pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			dbTx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			updated, err := repo.SetSubmission(context.Background(), dbTx, id, "trk-001", "https://pay.example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, updated)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentRepo_UpdateReconciled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	now := time.Now().UTC()
	p.Status = "COMPLETED"
	p.State = domain.PaymentStateCompleted
	p.ConfirmationCode = strPtr("QK12AB")
	p.CallbackReceived = true
	p.CallbackReceivedAt = &now
	p.LastStatusCheck = &now
	p.UpdatedAt = now

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET.+COALESCE\\(\\$4, payment_method\\)").
		WithArgs(
			p.ID, "COMPLETED", "COMPLETED",
			p.PaymentMethod, p.ConfirmationCode,
			true, p.CallbackReceivedAt,
			false, p.WebhookReceivedAt,
			p.LastStatusCheck, p.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateReconciled(context.Background(), dbTx, p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_UpdateReconciled_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateReconciled(context.Background(), dbTx, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment not found")
}

func TestPaymentRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	state := domain.PaymentStatePending

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments WHERE payment_state = \\$1").
		WithArgs("PENDING").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(21)))
	mock.ExpectQuery("SELECT .+ FROM payments WHERE payment_state = \\$1 ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("PENDING", 20, 20).
		WillReturnRows(paymentRow(pgxmock.NewRows(paymentColumnNames()), p))

	payments, total, err := repo.List(context.Background(), ports.PaymentListParams{State: &state, Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(21), total)
	require.Len(t, payments, 1)
	assert.Equal(t, p.OrderID, payments[0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_List_NoFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT .+ FROM payments +ORDER BY created_at DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows(paymentColumnNames()))

	payments, total, err := repo.List(context.Background(), ports.PaymentListParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, payments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p1, p2 := newTestPayment(), newTestPayment()
	p2.OrderID = "ORDER-002"
	cutoff := time.Now().UTC().Add(-15 * time.Minute)

	rows := pgxmock.NewRows(paymentColumnNames())
	paymentRow(rows, p1)
	paymentRow(rows, p2)
	mock.ExpectQuery("SELECT .+ FROM payments\\s+WHERE payment_state IN \\('PENDING', 'PROCESSING'\\)").
		WithArgs(cutoff, 50).
		WillReturnRows(rows)

	payments, err := repo.ListStale(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "ORDER-002", payments[1].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListStale_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payments").
		WithArgs(pgxmock.AnyArg(), 10).
		WillReturnError(errors.New("connection reset"))

	_, err = repo.ListStale(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPaymentRepo_GetStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	since := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\) AS total.+FROM payments WHERE created_at >= \\$1").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"total", "pending", "processing", "completed", "failed", "cancelled"}).
			AddRow(int64(10), int64(3), int64(1), int64(4), int64(1), int64(1)))
	mock.ExpectQuery("SELECT currency, SUM\\(amount\\)::text FROM payments").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"currency", "sum"}).
			AddRow("KES", "10000.00").
			AddRow("USD", "42.50"))

	stats, err := repo.GetStats(context.Background(), &since)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(4), stats.Completed)
	assert.Equal(t, int64(1), stats.Cancelled)
	assert.Equal(t, "10000", stats.CompletedVolume["KES"].String())
	assert.Equal(t, "42.5", stats.CompletedVolume["USD"].String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetStats_AllTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("FROM payments WHERE TRUE").
		WillReturnRows(pgxmock.NewRows([]string{"total", "pending", "processing", "completed", "failed", "cancelled"}).
			AddRow(int64(0), int64(0), int64(0), int64(0), int64(0), int64(0)))
	mock.ExpectQuery("SELECT currency").
		WillReturnRows(pgxmock.NewRows([]string{"currency", "sum"}))

	stats, err := repo.GetStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.CompletedVolume)
	assert.NoError(t, mock.ExpectationsWereMet())
}
