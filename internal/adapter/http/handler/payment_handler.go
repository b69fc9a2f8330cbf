package handler

import (
	"payment-reconciler/internal/adapter/http/dto"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"
	"payment-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles the public payment endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// CreatePayment handles POST /api/v1/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	callbackURL := req.CallbackURL
	dto.SanitizeStruct(&req)

	in := ports.CreatePaymentRequest{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		CallbackURL: callbackURL,
		ClientIP:    c.ClientIP(),
	}
	if b := req.BillingAddress; b != nil {
		in.BillingAddress = ports.BillingAddress{
			Email:       b.Email,
			Phone:       b.Phone,
			CountryCode: b.CountryCode,
			FirstName:   b.FirstName,
			LastName:    b.LastName,
		}
	}

	p, err := h.paymentSvc.CreatePayment(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewPaymentResponse(p))
}

// GetPayment handles GET /api/v1/payments/:order_id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	p, err := h.paymentSvc.GetPayment(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentResponse(p))
}

// CheckStatus handles GET /api/v1/payments/:order_id/status.
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	p, err := h.paymentSvc.CheckStatus(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentStatusResponse(p))
}

// TransactionStatus handles GET /api/v1/transaction-status?orderTrackingId=.
func (h *PaymentHandler) TransactionStatus(c *gin.Context) {
	trackingID := c.Query("orderTrackingId")
	if trackingID == "" {
		trackingID = c.Query("order_tracking_id")
	}
	if trackingID == "" {
		response.Error(c, apperror.Validation("orderTrackingId is required"))
		return
	}

	p, err := h.paymentSvc.CheckStatusByTrackingID(c.Request.Context(), trackingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentStatusResponse(p))
}
