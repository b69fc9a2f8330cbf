package handler

import (
	"errors"
	"io"
	"strings"
	"time"

	"payment-reconciler/internal/adapter/http/dto"
	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"
	"payment-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
)

// Defaults for ad-hoc sweeps triggered over the API.
const (
	defaultSweepAge   = 15 * time.Minute
	defaultSweepLimit = 100
	defaultPageSize   = 20
)

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	paymentSvc   ports.PaymentService
	ipnSvc       ports.IPNService
	reportingSvc ports.ReportingService
	sweepAge     time.Duration
	sweepLimit   int
}

// NewAdminHandler creates a new AdminHandler. Zero sweep settings fall back
// to defaults.
func NewAdminHandler(
	paymentSvc ports.PaymentService,
	ipnSvc ports.IPNService,
	reportingSvc ports.ReportingService,
	sweepAge time.Duration,
	sweepLimit int,
) *AdminHandler {
	if sweepAge <= 0 {
		sweepAge = defaultSweepAge
	}
	if sweepLimit <= 0 {
		sweepLimit = defaultSweepLimit
	}
	return &AdminHandler{
		paymentSvc:   paymentSvc,
		ipnSvc:       ipnSvc,
		reportingSvc: reportingSvc,
		sweepAge:     sweepAge,
		sweepLimit:   sweepLimit,
	}
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	var q dto.ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}

	params := ports.PaymentListParams{Page: q.Page, PageSize: q.PageSize}
	if q.PaymentState != "" {
		state := domain.PaymentState(strings.ToUpper(q.PaymentState))
		params.State = &state
	}

	payments, total, err := h.paymentSvc.ListPayments(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, dto.NewPaymentResponse(&payments[i]))
	}
	response.Paginated(c, items, total, q.Page, q.PageSize)
}

// ListTransactions handles GET /api/v1/admin/payments/:order_id/transactions.
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	txns, err := h.paymentSvc.ListTransactions(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.NewTransactionResponse(&txns[i]))
	}
	response.OK(c, items)
}

// RegisterIPN handles POST /api/v1/admin/ipn.
func (h *AdminHandler) RegisterIPN(c *gin.Context) {
	var req dto.RegisterIPNRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	reg, err := h.ipnSvc.Register(c.Request.Context(), req.URL, strings.ToUpper(req.NotificationType))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// ListIPNs handles GET /api/v1/admin/ipn.
func (h *AdminHandler) ListIPNs(c *gin.Context) {
	regs, err := h.ipnSvc.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if regs == nil {
		regs = []domain.IPNRegistration{}
	}
	response.OK(c, regs)
}

// Reconcile handles POST /api/v1/admin/reconcile. The body is optional.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	var req dto.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	age := h.sweepAge
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d < 0 {
			response.Error(c, apperror.Validation("older_than must be a non-negative duration such as 15m"))
			return
		}
		age = d
	}
	limit := h.sweepLimit
	if req.Limit > 0 {
		limit = req.Limit
	}

	summary, err := h.paymentSvc.ReconcileStale(c.Request.Context(), age, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Stats handles GET /api/v1/admin/stats?period=day|week|month|all.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.reportingSvc.GetStats(c.Request.Context(), c.DefaultQuery("period", "all"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
