package service

import (
	"context"
	"fmt"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ReconciliationServiceImpl implements ports.ReconciliationService. It is the
// only code path that writes a payment's status, state or logs.
type ReconciliationServiceImpl struct {
	paymentRepo ports.PaymentRepository
	eventRepo   ports.PaymentEventRepository
	historyRepo ports.StatusHistoryRepository
	txRepo      ports.TransactionRepository
	transactor  ports.DBTransactor
	notifier    ports.StatusNotifier
	log         zerolog.Logger
	now         func() time.Time
}

// NewReconciliationService creates a new ReconciliationServiceImpl.
// notifier may be nil.
func NewReconciliationService(
	paymentRepo ports.PaymentRepository,
	eventRepo ports.PaymentEventRepository,
	historyRepo ports.StatusHistoryRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	notifier ports.StatusNotifier,
	log zerolog.Logger,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		historyRepo: historyRepo,
		txRepo:      txRepo,
		transactor:  transactor,
		notifier:    notifier,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ApplySignal folds one status observation into the stored payment.
// The row lock taken inside the transaction serializes concurrent signals
// for the same order.
func (s *ReconciliationServiceImpl) ApplySignal(ctx context.Context, sig domain.Signal) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	p, err := s.lockPayment(ctx, dbTx, sig)
	if err != nil {
		return nil, err
	}

	out, err := s.apply(ctx, dbTx, p, sig)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterCommit(ctx, p, sig, out)
	return p, nil
}

// RecordSubmission stores the gateway identifiers of a freshly submitted
// order and applies the submission status. A payment that already carries a
// tracking id is returned unchanged.
func (s *ReconciliationServiceImpl) RecordSubmission(ctx context.Context, orderID string, result ports.SubmitOrderResult) (*domain.Payment, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	p, err := s.paymentRepo.GetByOrderIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if p.IsSubmitted() {
		return p, nil
	}

	updated, err := s.paymentRepo.SetSubmission(ctx, dbTx, p.ID, result.OrderTrackingID, result.RedirectURL)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("set submission: %w", err))
	}
	if updated {
		trk, redirect := result.OrderTrackingID, result.RedirectURL
		p.OrderTrackingID = &trk
		if redirect != "" {
			p.RedirectURL = &redirect
		}
	}

	status := result.Status
	if status == "" {
		status = domain.StatusSubmitted
	}
	sig := domain.Signal{
		OrderID:  orderID,
		Source:   domain.SourceCreation,
		Status:   domain.GatewayStatus{StatusDescription: status},
		Reason:   "order submitted to gateway",
		Metadata: domain.NewMetadata("order_tracking_id", result.OrderTrackingID),
	}
	out, err := s.apply(ctx, dbTx, p, sig)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.afterCommit(ctx, p, sig, out)
	return p, nil
}

func (s *ReconciliationServiceImpl) lockPayment(ctx context.Context, dbTx pgx.Tx, sig domain.Signal) (*domain.Payment, error) {
	var (
		p   *domain.Payment
		err error
	)
	switch {
	case sig.OrderID != "":
		p, err = s.paymentRepo.GetByOrderIDForUpdate(ctx, dbTx, sig.OrderID)
	case sig.TrackingID != "":
		p, err = s.paymentRepo.GetByTrackingIDForUpdate(ctx, dbTx, sig.TrackingID)
	default:
		return nil, apperror.Validation("signal does not identify a payment")
	}
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return p, nil
}

// apply runs the pure reconciliation step and persists its result in dbTx.
func (s *ReconciliationServiceImpl) apply(ctx context.Context, dbTx pgx.Tx, p *domain.Payment, sig domain.Signal) (domain.Outcome, error) {
	now := s.now()
	out := p.Apply(sig, now)

	if out.History != nil {
		if err := s.historyRepo.Append(ctx, dbTx, out.History); err != nil {
			return out, apperror.ErrDatabaseError(fmt.Errorf("append status history: %w", err))
		}
	}
	for i := range out.Events {
		if err := s.eventRepo.Append(ctx, dbTx, &out.Events[i]); err != nil {
			return out, apperror.ErrDatabaseError(fmt.Errorf("append event: %w", err))
		}
	}
	if err := s.paymentRepo.UpdateReconciled(ctx, dbTx, p); err != nil {
		return out, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}
	if txn := domain.TransactionFor(p, out, now); txn != nil {
		if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
			return out, apperror.ErrDatabaseError(fmt.Errorf("create transaction: %w", err))
		}
		if txn.TransactionType == domain.TransactionTypeReversal {
			if err := s.reversePayment(ctx, dbTx, p.OrderID); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// reversePayment marks the PAYMENT ledger entry of orderID as reversed.
func (s *ReconciliationServiceImpl) reversePayment(ctx context.Context, dbTx pgx.Tx, orderID string) error {
	orig, err := s.txRepo.GetByReference(ctx, orderID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get payment transaction: %w", err))
	}
	if orig == nil || orig.Status == domain.TransactionStatusReversed {
		return nil
	}
	if err := s.txRepo.UpdateStatus(ctx, dbTx, orig.ID, domain.TransactionStatusReversed); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("reverse payment transaction: %w", err))
	}
	return nil
}

func (s *ReconciliationServiceImpl) afterCommit(ctx context.Context, p *domain.Payment, sig domain.Signal, out domain.Outcome) {
	ev := s.log.Info()
	if out.Stale {
		ev = s.log.Warn().Bool("stale", true)
	}
	ev.Str("order_id", p.OrderID).
		Str("order_tracking_id", p.TrackingID()).
		Str("source", string(sig.Source)).
		Str("status", p.Status).
		Str("payment_state", string(p.State)).
		Bool("status_changed", out.StatusChanged).
		Msg("signal applied")

	if !out.StateChanged || s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStateChange(ctx, p, out.PreviousState); err != nil {
		s.log.Warn().Err(err).Str("order_id", p.OrderID).Msg("state change notification failed")
	}
}
