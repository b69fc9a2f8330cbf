package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"payment-reconciler/internal/adapter/http/dto"
	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"
	"payment-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// Places a notification signature may arrive in.
const (
	HeaderSignature    = "X-Pesapal-Signature"
	HeaderSignatureAlt = "Pesapal-Signature"
	QuerySignature     = "signature"
)

// PesapalHandler receives the gateway's browser callbacks and push
// notifications.
type PesapalHandler struct {
	paymentSvc ports.PaymentService
}

// NewPesapalHandler creates a new PesapalHandler.
func NewPesapalHandler(paymentSvc ports.PaymentService) *PesapalHandler {
	return &PesapalHandler{paymentSvc: paymentSvc}
}

// Callback handles GET /api/v1/pesapal/callback.
func (h *PesapalHandler) Callback(c *gin.Context) {
	n := domain.ParseNotification(flatten(c.Request.URL.Query()))
	if !n.HasIdentifiers() {
		response.Error(c, apperror.Validation("OrderTrackingId or OrderMerchantReference is required"))
		return
	}

	p, err := h.paymentSvc.HandleCallback(c.Request.Context(), n)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentStatusResponse(p))
}

// IPN handles GET and POST /api/v1/pesapal/ipn. The gateway always gets an
// HTTP 200 with the ack body unless the signature is rejected.
func (h *PesapalHandler) IPN(c *gin.Context) {
	payload := flatten(c.Request.URL.Query())
	if c.Request.Method == http.MethodPost {
		if err := mergeBody(c, payload); err != nil {
			ack := domain.ParseNotification(payload).Ack(false)
			c.JSON(http.StatusOK, ack)
			return
		}
	}

	signature, present := extractSignature(c, payload)
	delete(payload, QuerySignature)

	ack, err := h.paymentSvc.HandleNotification(c.Request.Context(), ports.NotificationRequest{
		Payload:          payload,
		Signature:        signature,
		SignaturePresent: present,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func extractSignature(c *gin.Context, payload map[string]string) (string, bool) {
	for _, h := range []string{HeaderSignature, HeaderSignatureAlt} {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v, true
		}
	}
	if v, ok := payload[QuerySignature]; ok && v != "" {
		return v, true
	}
	return "", false
}

// mergeBody adds form or JSON body fields to payload. JSON numbers and
// booleans keep their literal text; objects, arrays and nulls are skipped.
func mergeBody(c *gin.Context, payload map[string]string) error {
	switch c.ContentType() {
	case binding.MIMEJSON:
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		var body map[string]any
		if err := dec.Decode(&body); err != nil {
			return err
		}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				payload[k] = val
			case json.Number:
				payload[k] = val.String()
			case bool:
				payload[k] = strconv.FormatBool(val)
			}
		}
	case binding.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err != nil {
			return err
		}
		for k, v := range flatten(c.Request.PostForm) {
			payload[k] = v
		}
	}
	return nil
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
