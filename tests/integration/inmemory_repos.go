package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// memStore is a committed snapshot of every table. Row locks taken through
// the ForUpdate lookups are held until the owning memTx commits or rolls back,
// mirroring SELECT ... FOR UPDATE.
type memStore struct {
	mu           sync.Mutex
	payments     map[uuid.UUID]domain.Payment
	byOrder      map[string]uuid.UUID
	byTracking   map[string]uuid.UUID
	events       []domain.PaymentEvent
	history      []domain.StatusHistoryEntry
	transactions []domain.Transaction
	rowLocks     map[uuid.UUID]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		payments:   make(map[uuid.UUID]domain.Payment),
		byOrder:    make(map[string]uuid.UUID),
		byTracking: make(map[string]uuid.UUID),
		rowLocks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *memStore) rowLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[id] = l
	}
	return l
}

func (s *memStore) payment(id uuid.UUID) (*domain.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (s *memStore) lookup(index map[string]uuid.UUID, key string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := index[key]
	return id, ok
}

// --- Transactor ---

type memTransactor struct {
	store *memStore
}

func (t *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{store: t.store, held: make(map[uuid.UUID]*sync.Mutex)}, nil
}

// memTx buffers writes until Commit.
type memTx struct {
	store *memStore
	ops   []func(*memStore)
	held  map[uuid.UUID]*sync.Mutex
	done  bool
}

func asMemTx(tx pgx.Tx) (*memTx, error) {
	m, ok := tx.(*memTx)
	if !ok || m.done {
		return nil, errors.New("in-memory store: closed or foreign transaction")
	}
	return m, nil
}

func (t *memTx) lock(id uuid.UUID) {
	if _, ok := t.held[id]; ok {
		return
	}
	l := t.store.rowLock(id)
	l.Lock()
	t.held[id] = l
}

func (t *memTx) stage(op func(*memStore)) {
	t.ops = append(t.ops, op)
}

func (t *memTx) release() {
	for id, l := range t.held {
		l.Unlock()
		delete(t.held, id)
	}
	t.done = true
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("nested tx unsupported") }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("in-memory store: raw queries unsupported")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                             { return nil }

// --- Payments ---

type memPaymentRepo struct {
	store *memStore
}

func (r *memPaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	mtx, err := asMemTx(tx)
	if err != nil {
		return err
	}
	if _, exists := r.store.lookup(r.store.byOrder, p.OrderID); exists {
		return fmt.Errorf("duplicate order_id %q", p.OrderID)
	}
	row := *p
	mtx.stage(func(s *memStore) {
		s.payments[row.ID] = row
		s.byOrder[row.OrderID] = row.ID
	})
	return nil
}

func (r *memPaymentRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	id, ok := r.store.lookup(r.store.byOrder, orderID)
	if !ok {
		return nil, nil
	}
	p, _ := r.store.payment(id)
	return p, nil
}

func (r *memPaymentRepo) GetByTrackingID(ctx context.Context, trackingID string) (*domain.Payment, error) {
	id, ok := r.store.lookup(r.store.byTracking, trackingID)
	if !ok {
		return nil, nil
	}
	p, _ := r.store.payment(id)
	return p, nil
}

func (r *memPaymentRepo) getForUpdate(tx pgx.Tx, index map[string]uuid.UUID, key string) (*domain.Payment, error) {
	mtx, err := asMemTx(tx)
	if err != nil {
		return nil, err
	}
	id, ok := r.store.lookup(index, key)
	if !ok {
		return nil, nil
	}
	mtx.lock(id)
	p, _ := r.store.payment(id)
	return p, nil
}

func (r *memPaymentRepo) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Payment, error) {
	return r.getForUpdate(tx, r.store.byOrder, orderID)
}

func (r *memPaymentRepo) GetByTrackingIDForUpdate(ctx context.Context, tx pgx.Tx, trackingID string) (*domain.Payment, error) {
	return r.getForUpdate(tx, r.store.byTracking, trackingID)
}

func (r *memPaymentRepo) SetSubmission(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, trackingID, redirectURL string) (bool, error) {
	mtx, err := asMemTx(tx)
	if err != nil {
		return false, err
	}
	p, ok := r.store.payment(paymentID)
	if !ok || p.IsSubmitted() {
		return false, nil
	}
	mtx.stage(func(s *memStore) {
		row := s.payments[paymentID]
		row.OrderTrackingID = &trackingID
		if redirectURL != "" {
			row.RedirectURL = &redirectURL
		}
		s.payments[paymentID] = row
		s.byTracking[trackingID] = paymentID
	})
	return true, nil
}

func (r *memPaymentRepo) UpdateReconciled(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	mtx, err := asMemTx(tx)
	if err != nil {
		return err
	}
	if _, ok := r.store.payment(p.ID); !ok {
		return errors.New("payment not found")
	}
	row := *p
	row.StatusHistory, row.Events = nil, nil
	mtx.stage(func(s *memStore) {
		stored := s.payments[row.ID]
		if stored.OrderTrackingID != nil {
			row.OrderTrackingID, row.RedirectURL = stored.OrderTrackingID, stored.RedirectURL
		}
		s.payments[row.ID] = row
	})
	return nil
}

func (r *memPaymentRepo) all() []domain.Payment {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.Payment, 0, len(r.store.payments))
	for _, p := range r.store.payments {
		out = append(out, p)
	}
	return out
}

func (r *memPaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var result []domain.Payment
	for _, p := range r.all() {
		if params.State != nil && p.State != *params.State {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	total := int64(len(result))
	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Payment{}, total, nil
	}
	end := min(start+params.PageSize, len(result))
	return result[start:end], total, nil
}

func (r *memPaymentRepo) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Payment, error) {
	var result []domain.Payment
	for _, p := range r.all() {
		if !p.State.IsTerminal() && p.IsSubmitted() && p.UpdatedAt.Before(updatedBefore) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memPaymentRepo) GetStats(ctx context.Context, since *time.Time) (*ports.PaymentStats, error) {
	stats := &ports.PaymentStats{CompletedVolume: map[string]decimal.Decimal{}}
	for _, p := range r.all() {
		if since != nil && p.CreatedAt.Before(*since) {
			continue
		}
		stats.Total++
		switch p.State {
		case domain.PaymentStatePending:
			stats.Pending++
		case domain.PaymentStateProcessing:
			stats.Processing++
		case domain.PaymentStateCompleted:
			stats.Completed++
			stats.CompletedVolume[p.Currency] = stats.CompletedVolume[p.Currency].Add(p.Amount)
		case domain.PaymentStateFailed:
			stats.Failed++
		case domain.PaymentStateCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// --- Event log and status history ---

type memEventRepo struct {
	store *memStore
}

func (r *memEventRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.PaymentEvent) error {
	mtx, err := asMemTx(tx)
	if err != nil {
		return err
	}
	ev := *e
	mtx.stage(func(s *memStore) { s.events = append(s.events, ev) })
	return nil
}

func (r *memEventRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.PaymentEvent
	for _, e := range r.store.events {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memHistoryRepo struct {
	store *memStore
}

func (r *memHistoryRepo) Append(ctx context.Context, tx pgx.Tx, h *domain.StatusHistoryEntry) error {
	mtx, err := asMemTx(tx)
	if err != nil {
		return err
	}
	entry := *h
	mtx.stage(func(s *memStore) { s.history = append(s.history, entry) })
	return nil
}

func (r *memHistoryRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.StatusHistoryEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.StatusHistoryEntry
	for _, h := range r.store.history {
		if h.PaymentID == paymentID {
			out = append(out, h)
		}
	}
	return out, nil
}

// --- Transactions ---

type memTransactionRepo struct {
	store *memStore
}

func (r *memTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mtx, err := asMemTx(tx)
	if err != nil {
		return err
	}
	row := *t
	mtx.stage(func(s *memStore) {
		for _, existing := range s.transactions {
			if existing.Reference == row.Reference {
				return
			}
		}
		s.transactions = append(s.transactions, row)
	})
	return nil
}

func (r *memTransactionRepo) find(match func(domain.Transaction) bool) *domain.Transaction {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range r.store.transactions {
		if match(t) {
			return &t
		}
	}
	return nil
}

func (r *memTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return r.find(func(t domain.Transaction) bool { return t.Reference == reference }), nil
}

func (r *memTransactionRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Transaction
	for _, t := range r.store.transactions {
		if t.PaymentID == paymentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	mtx, err := asMemTx(tx)
	if err != nil {
		return err
	}
	mtx.stage(func(s *memStore) {
		for i := range s.transactions {
			if s.transactions[i].ID == id {
				s.transactions[i].Status = status
			}
		}
	})
	return nil
}

// --- Gateway ---

// fakeGateway answers like the payment gateway from a per-order status table.
type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]domain.GatewayStatus // keyed by tracking id
	failNext error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]domain.GatewayStatus)}
}

func trackingIDFor(orderID string) string {
	return "TRK-" + orderID
}

func (g *fakeGateway) setStatus(orderID string, st domain.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[trackingIDFor(orderID)] = st
}

func (g *fakeGateway) failOnce(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

func (g *fakeGateway) SubmitOrder(ctx context.Context, req ports.SubmitOrderRequest) (*ports.SubmitOrderResult, error) {
	trk := trackingIDFor(req.OrderID)
	return &ports.SubmitOrderResult{
		OrderTrackingID: trk,
		RedirectURL:     "https://pay.example.com/r/" + trk,
		Status:          domain.StatusSubmitted,
	}, nil
}

func (g *fakeGateway) GetTransactionStatus(ctx context.Context, trackingID, merchantReference string) (*domain.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failNext; err != nil {
		g.failNext = nil
		return nil, err
	}
	st, ok := g.statuses[trackingID]
	if !ok {
		code := domain.StatusCodeCompleted
		st = domain.GatewayStatus{StatusCode: &code}
	}
	return &st, nil
}

func (g *fakeGateway) RegisterIPN(ctx context.Context, url, notificationType string) (*domain.IPNRegistration, error) {
	return &domain.IPNRegistration{IPNID: "ipn-1", URL: url, NotificationType: notificationType}, nil
}

func (g *fakeGateway) ListIPNs(ctx context.Context) ([]domain.IPNRegistration, error) {
	return []domain.IPNRegistration{{IPNID: "ipn-1"}}, nil
}

// recordingScheduler captures scheduled status checks.
type recordingScheduler struct {
	mu    sync.Mutex
	tasks []ports.StatusCheckTask
}

func (s *recordingScheduler) ScheduleStatusCheck(ctx context.Context, task ports.StatusCheckTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *recordingScheduler) scheduled() []ports.StatusCheckTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.StatusCheckTask(nil), s.tasks...)
}
