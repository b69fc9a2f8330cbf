package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"

	"github.com/rs/zerolog"
)

// Retry triggers recorded on scheduled status checks.
const (
	TriggerCreation     = "creation"
	TriggerManualCheck  = "manual_check"
	TriggerCallback     = "callback"
	TriggerNotification = "notification"
	TriggerSweep        = "sweep"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaymentServiceConfig carries the gateway settings the payment flows need.
type PaymentServiceConfig struct {
	CallbackURL         string
	NotificationID      string
	SubmitTimeout       time.Duration
	StatusTimeout       time.Duration
	NotificationTimeout time.Duration
	SubmissionLockTTL   time.Duration
	// AllowUnsignedNotifications accepts notifications that carry no
	// signature at all; they are recorded as unverified.
	AllowUnsignedNotifications bool
}

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	paymentRepo ports.PaymentRepository
	eventRepo   ports.PaymentEventRepository
	historyRepo ports.StatusHistoryRepository
	txRepo      ports.TransactionRepository
	transactor  ports.DBTransactor
	reconciler  ports.ReconciliationService
	gateway     ports.GatewayClient
	lock        ports.SubmissionLock
	retry       ports.RetryScheduler
	verifier    ports.NotificationVerifier
	cfg         PaymentServiceConfig
	log         zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	eventRepo ports.PaymentEventRepository,
	historyRepo ports.StatusHistoryRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	reconciler ports.ReconciliationService,
	gateway ports.GatewayClient,
	lock ports.SubmissionLock,
	retry ports.RetryScheduler,
	verifier ports.NotificationVerifier,
	cfg PaymentServiceConfig,
	log zerolog.Logger,
) *PaymentServiceImpl {
	if cfg.SubmissionLockTTL <= 0 {
		cfg.SubmissionLockTTL = time.Minute
	}
	return &PaymentServiceImpl{
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		historyRepo: historyRepo,
		txRepo:      txRepo,
		transactor:  transactor,
		reconciler:  reconciler,
		gateway:     gateway,
		lock:        lock,
		retry:       retry,
		verifier:    verifier,
		cfg:         cfg,
		log:         log,
	}
}

// CreatePayment stores a new payment and submits it to the gateway.
// An order id that already exists returns the stored payment untouched.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Payment, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := domain.ValidateNewPayment(req.OrderID, req.Amount, req.Currency, req.Description); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	acquired, err := s.lock.Acquire(ctx, req.OrderID, s.cfg.SubmissionLockTTL)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("order_id", req.OrderID).Msg("submission lock unavailable, proceeding without it")
	case !acquired:
		return nil, apperror.ErrSubmissionInProgress()
	default:
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), req.OrderID); err != nil {
				s.log.Warn().Err(err).Str("order_id", req.OrderID).Msg("failed to release submission lock")
			}
		}()
	}

	existing, err := s.paymentRepo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if existing != nil {
		s.log.Info().Str("order_id", req.OrderID).Str("payment_state", string(existing.State)).Msg("payment already exists")
		return existing, nil
	}

	p := domain.NewPayment(req.OrderID, req.Amount, req.Currency, req.Description, time.Now().UTC())
	if err := s.insert(ctx, p, req.ClientIP); err != nil {
		return nil, err
	}

	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = s.cfg.CallbackURL
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	result, err := s.gateway.SubmitOrder(submitCtx, ports.SubmitOrderRequest{
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Description:    p.Description,
		CallbackURL:    callbackURL,
		NotificationID: s.cfg.NotificationID,
		BillingAddress: req.BillingAddress,
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_id", p.OrderID).Msg("gateway submission failed")
		s.markSubmissionFailed(ctx, p.OrderID, err)
		return nil, err
	}

	return s.reconciler.RecordSubmission(ctx, p.OrderID, *result)
}

func (s *PaymentServiceImpl) insert(ctx context.Context, p *domain.Payment, clientIP string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.paymentRepo.Create(ctx, dbTx, p); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("create payment: %w", err))
	}

	created := p.CreatedEvent(domain.NewMetadata(
		"amount", p.Amount.StringFixed(2),
		"currency", p.Currency,
		"client_ip", clientIP,
	))
	if err := s.eventRepo.Append(ctx, dbTx, &created); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("append event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *PaymentServiceImpl) markSubmissionFailed(ctx context.Context, orderID string, cause error) {
	_, err := s.reconciler.ApplySignal(context.WithoutCancel(ctx), domain.Signal{
		OrderID:  orderID,
		Source:   domain.SourceCreation,
		Status:   domain.GatewayStatus{StatusDescription: domain.StatusFailed},
		Reason:   "gateway submission failed",
		Metadata: domain.NewMetadata("error", cause.Error(), "error_code", apperror.CodeOf(cause)),
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_id", orderID).Msg("failed to mark payment as failed")
	}
}

// GetPayment returns a payment with its status history and events.
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	if p.StatusHistory, err = s.historyRepo.ListByPayment(ctx, p.ID); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list status history: %w", err))
	}
	if p.Events, err = s.eventRepo.ListByPayment(ctx, p.ID); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list events: %w", err))
	}
	return p, nil
}

// CheckStatus polls the gateway for orderID. Gateway failures are logged and
// the last known payment is returned.
func (s *PaymentServiceImpl) CheckStatus(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return s.poll(ctx, p)
}

// CheckStatusByTrackingID is CheckStatus keyed by the gateway tracking id.
func (s *PaymentServiceImpl) CheckStatusByTrackingID(ctx context.Context, trackingID string) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return s.poll(ctx, p)
}

func (s *PaymentServiceImpl) poll(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	if !p.IsSubmitted() {
		return nil, apperror.ErrNotSubmitted()
	}

	st, err := s.fetchStatus(ctx, p, s.cfg.StatusTimeout)
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", p.OrderID).Msg("status check failed, returning last known state")
		s.scheduleRetry(ctx, p.OrderID, TriggerManualCheck, err)
		return p, nil
	}

	return s.reconciler.ApplySignal(ctx, domain.Signal{
		OrderID: p.OrderID,
		Source:  domain.SourceManualCheck,
		Status:  *st,
	})
}

// HandleCallback reconciles the browser redirect that follows a payment
// attempt. It applies exactly one CALLBACK signal.
func (s *PaymentServiceImpl) HandleCallback(ctx context.Context, n domain.Notification) (*domain.Payment, error) {
	if !n.HasIdentifiers() {
		return nil, apperror.Validation("OrderTrackingId or OrderMerchantReference is required")
	}
	p, err := s.findByNotification(ctx, n)
	if err != nil {
		return nil, err
	}

	meta := domain.NewMetadata("notification_type", n.NotificationType)
	var status domain.GatewayStatus
	if p.IsSubmitted() {
		st, err := s.fetchStatus(ctx, p, s.cfg.StatusTimeout)
		if err != nil {
			s.log.Warn().Err(err).Str("order_id", p.OrderID).Msg("callback status fetch failed")
			meta = meta.Set("gateway_error", err.Error())
			s.scheduleRetry(ctx, p.OrderID, TriggerCallback, err)
		} else {
			status = *st
		}
	}

	return s.reconciler.ApplySignal(ctx, domain.Signal{
		OrderID:  p.OrderID,
		Source:   domain.SourceCallback,
		Status:   status,
		Metadata: meta,
	})
}

// HandleNotification authenticates and reconciles a gateway push
// notification. Processing failures are reported through the ack body;
// only a rejected signature surfaces as an error.
func (s *PaymentServiceImpl) HandleNotification(ctx context.Context, req ports.NotificationRequest) (domain.NotificationAck, error) {
	verified := false
	switch {
	case req.SignaturePresent:
		if !s.verifier.Verify(req.Payload, req.Signature) {
			s.log.Warn().Msg("notification rejected: invalid signature")
			return domain.NotificationAck{}, apperror.ErrInvalidSignature()
		}
		verified = true
	case !s.cfg.AllowUnsignedNotifications:
		s.log.Warn().Msg("notification rejected: missing signature")
		return domain.NotificationAck{}, apperror.ErrSignatureRequired()
	}

	n := domain.ParseNotification(req.Payload)
	if !n.HasIdentifiers() {
		s.log.Warn().Msg("notification without identifiers")
		return n.Ack(false), nil
	}

	p, err := s.findByNotification(ctx, n)
	if err != nil {
		s.log.Warn().Err(err).
			Str("order_tracking_id", n.TrackingID).
			Str("merchant_reference", n.MerchantReference).
			Msg("notification for unknown payment")
		return n.Ack(false), nil
	}

	meta := domain.NewMetadata(
		"notification_type", n.NotificationType,
		"signature_verified", strconv.FormatBool(verified),
	)

	// Without a tracking id there is nothing to ask the gateway.
	ok := true
	var status *domain.GatewayStatus
	if p.IsSubmitted() {
		st, err := s.fetchStatus(ctx, p, s.cfg.NotificationTimeout)
		if err != nil {
			ok = false
			s.log.Warn().Err(err).Str("order_id", p.OrderID).Msg("notification status fetch failed")
			meta = meta.Set("gateway_error", err.Error())
			s.scheduleRetry(ctx, p.OrderID, TriggerNotification, err)
		} else {
			status = st
		}
	}
	if status == nil {
		status = &domain.GatewayStatus{}
		if verified {
			reported := n.ReportedStatus()
			status = &reported
			meta = meta.Set("status_source", "notification")
		}
	}

	if _, err := s.reconciler.ApplySignal(ctx, domain.Signal{
		OrderID:  p.OrderID,
		Source:   domain.SourceWebhook,
		Status:   *status,
		Metadata: meta,
	}); err != nil {
		s.log.Error().Err(err).Str("order_id", p.OrderID).Msg("failed to apply notification")
		return n.Ack(false), nil
	}
	return n.Ack(ok), nil
}

// RetryStatusCheck runs a scheduled status check. Errors are returned so the
// queue can decide whether to retry.
func (s *PaymentServiceImpl) RetryStatusCheck(ctx context.Context, task ports.StatusCheckTask) error {
	p, err := s.paymentRepo.GetByOrderID(ctx, task.OrderID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return apperror.ErrNotFound("payment")
	}
	if !p.IsSubmitted() {
		return apperror.ErrNotSubmitted()
	}

	st, err := s.fetchStatus(ctx, p, s.cfg.StatusTimeout)
	if err != nil {
		return err
	}

	_, err = s.reconciler.ApplySignal(ctx, domain.Signal{
		OrderID:  p.OrderID,
		Source:   domain.SourceManualCheck,
		Status:   *st,
		Reason:   "scheduled status check",
		Metadata: domain.NewMetadata("trigger", task.Trigger, "attempt", strconv.Itoa(task.Attempt)),
	})
	return err
}

// ReconcileStale polls the gateway for submitted payments that have not
// reached a terminal state and were last updated before olderThan ago.
func (s *PaymentServiceImpl) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*ports.ReconcileSummary, error) {
	payments, err := s.paymentRepo.ListStale(ctx, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list stale payments: %w", err))
	}

	summary := &ports.ReconcileSummary{}
	for i := range payments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		p := &payments[i]
		if !p.IsSubmitted() || p.State.IsTerminal() {
			continue
		}
		summary.Scanned++

		st, err := s.fetchStatus(ctx, p, s.cfg.StatusTimeout)
		if err != nil {
			summary.Failed++
			s.log.Warn().Err(err).Str("order_id", p.OrderID).Msg("sweep: status fetch failed")
			continue
		}
		updated, err := s.reconciler.ApplySignal(ctx, domain.Signal{
			OrderID:  p.OrderID,
			Source:   domain.SourceManualCheck,
			Status:   *st,
			Reason:   "stale payment sweep",
			Metadata: domain.NewMetadata("trigger", TriggerSweep),
		})
		if err != nil {
			summary.Failed++
			s.log.Error().Err(err).Str("order_id", p.OrderID).Msg("sweep: apply failed")
			continue
		}
		if updated.Status != p.Status || updated.State != p.State {
			summary.Updated++
		}
	}

	s.log.Info().
		Int("scanned", summary.Scanned).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("stale payment sweep finished")
	return summary, nil
}

// ListPayments returns payments with pagination.
func (s *PaymentServiceImpl) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	if params.State != nil && !params.State.IsValid() {
		return nil, 0, apperror.Validation(fmt.Sprintf("unknown payment_state %q", *params.State))
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	payments, total, err := s.paymentRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list payments: %w", err))
	}
	return payments, total, nil
}

// ListTransactions returns the ledger entries recorded for orderID.
func (s *PaymentServiceImpl) ListTransactions(ctx context.Context, orderID string) ([]domain.Transaction, error) {
	p, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	txns, err := s.txRepo.ListByPayment(ctx, p.ID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, nil
}

func (s *PaymentServiceImpl) fetchStatus(ctx context.Context, p *domain.Payment, timeout time.Duration) (*domain.GatewayStatus, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.gateway.GetTransactionStatus(fetchCtx, p.TrackingID(), p.OrderID)
}

// findByNotification resolves the payment by tracking id, then by merchant reference.
func (s *PaymentServiceImpl) findByNotification(ctx context.Context, n domain.Notification) (*domain.Payment, error) {
	if n.TrackingID != "" {
		p, err := s.paymentRepo.GetByTrackingID(ctx, n.TrackingID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment by tracking id: %w", err))
		}
		if p != nil {
			return p, nil
		}
	}
	if n.MerchantReference != "" {
		p, err := s.paymentRepo.GetByOrderID(ctx, n.MerchantReference)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, apperror.ErrNotFound("payment")
}

// scheduleRetry queues an out-of-band status check for transient failures.
func (s *PaymentServiceImpl) scheduleRetry(ctx context.Context, orderID, trigger string, cause error) {
	if s.retry == nil || !apperror.IsRetryable(cause) {
		return
	}
	task := ports.StatusCheckTask{OrderID: orderID, Trigger: trigger}
	if err := s.retry.ScheduleStatusCheck(context.WithoutCancel(ctx), task); err != nil {
		s.log.Error().Err(err).Str("order_id", orderID).Str("trigger", trigger).Msg("failed to schedule status check")
	}
}
