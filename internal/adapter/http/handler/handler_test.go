package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/internal/core/ports/mocks"
	"payment-reconciler/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const operatorToken = "operator-token"

type handlerDeps struct {
	payments  *mocks.MockPaymentService
	ipns      *mocks.MockIPNService
	reporting *mocks.MockReportingService
	tokens    *mocks.MockTokenService
	router    *gin.Engine
}

func setupRouter(t *testing.T, checkers ...ports.HealthChecker) *handlerDeps {
	t.Helper()
	ctrl := gomock.NewController(t)

	d := &handlerDeps{
		payments:  mocks.NewMockPaymentService(ctrl),
		ipns:      mocks.NewMockIPNService(ctrl),
		reporting: mocks.NewMockReportingService(ctrl),
		tokens:    mocks.NewMockTokenService(ctrl),
	}
	d.tokens.EXPECT().Validate(operatorToken).Return(&ports.TokenClaims{Subject: "ops"}, nil).AnyTimes()

	d.router = SetupRouter(RouterDeps{
		PaymentSvc:     d.payments,
		IPNSvc:         d.ipns,
		ReportingSvc:   d.reporting,
		TokenSvc:       d.tokens,
		HealthCheckers: checkers,
		SweepAge:       10 * time.Minute,
		SweepLimit:     50,
		Mode:           gin.TestMode,
		Logger:         zerolog.Nop(),
	})
	return d
}

func (d *handlerDeps) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	d.router.ServeHTTP(w, req)
	return w
}

func adminRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+operatorToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func samplePayment() *domain.Payment {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := domain.NewPayment("ORD-1", decimal.RequireFromString("1500.5"), "KES", "Order 1", now)
	tracking := "TRK-1"
	redirect := "https://pay.example.com/redirect"
	p.OrderTrackingID = &tracking
	p.RedirectURL = &redirect
	p.Status = domain.StatusSubmitted
	return p
}

// --- Payments ---

func TestCreatePayment_Success(t *testing.T) {
	d := setupRouter(t)

	d.payments.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.CreatePaymentRequest) (*domain.Payment, error) {
			assert.Equal(t, "ORD-1", req.OrderID)
			assert.True(t, req.Amount.Equal(decimal.RequireFromString("1500.5")))
			assert.Equal(t, "KES", req.Currency)
			assert.Equal(t, "https://shop.example.com/cb?a=1&b=2", req.CallbackURL)
			assert.Equal(t, "jane@example.com", req.BillingAddress.Email)
			assert.NotEmpty(t, req.ClientIP)
			return samplePayment(), nil
		},
	)

	body := []byte(`{
		"order_id": "ORD-1",
		"amount": 1500.5,
		"currency": "KES",
		"description": "Order 1",
		"callback_url": "https://shop.example.com/cb?a=1&b=2",
		"billing_address": {"email_address": "jane@example.com"}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := d.do(req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "ORD-1", data["order_id"])
	assert.Equal(t, "1500.50", data["amount"])
	assert.Equal(t, "TRK-1", data["order_tracking_id"])
	assert.Equal(t, "PENDING", data["payment_state"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreatePayment_ValidationError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing order id", `{"amount": 10, "currency": "KES", "description": "x"}`},
		{"unsafe order id", `{"order_id": "ORD 1;", "amount": 10, "currency": "KES", "description": "x"}`},
		{"unsupported currency", `{"order_id": "ORD-1", "amount": 10, "currency": "EUR", "description": "x"}`},
		{"bad callback url", `{"order_id": "ORD-1", "amount": 10, "currency": "KES", "description": "x", "callback_url": "ftp://x"}`},
		{"malformed json", `{"order_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupRouter(t)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := d.do(req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperror.CodeValidation, decodeBody(t, w)["error_code"])
		})
	}
}

func TestCreatePayment_GatewayError(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrGatewayBusiness("amount too low"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments",
		strings.NewReader(`{"order_id": "ORD-1", "amount": 1, "currency": "KES", "description": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := d.do(req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeGatewayBusiness, decodeBody(t, w)["error_code"])
}

func TestGetPayment(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().GetPayment(gomock.Any(), "ORD-1").Return(samplePayment(), nil)
	d.payments.EXPECT().GetPayment(gomock.Any(), "ORD-404").Return(nil, apperror.ErrNotFound("payment"))

	w := d.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/ORD-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ORD-1", decodeBody(t, w)["data"].(map[string]any)["order_id"])

	w = d.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/ORD-404", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, decodeBody(t, w)["error_code"])
}

func TestCheckStatus(t *testing.T) {
	d := setupRouter(t)

	p := samplePayment()
	method := "MPESA"
	p.PaymentMethod = &method
	p.State = domain.PaymentStateCompleted
	d.payments.EXPECT().CheckStatus(gomock.Any(), "ORD-1").Return(p, nil)

	w := d.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/ORD-1/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "COMPLETED", data["payment_state"])
	assert.Equal(t, "MPESA", data["payment_method"])
}

func TestTransactionStatus(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().CheckStatusByTrackingID(gomock.Any(), "TRK-1").Return(samplePayment(), nil).Times(2)

	w := d.do(httptest.NewRequest(http.MethodGet, "/api/v1/transaction-status?orderTrackingId=TRK-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = d.do(httptest.NewRequest(http.MethodGet, "/api/v1/transaction-status?order_tracking_id=TRK-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = d.do(httptest.NewRequest(http.MethodGet, "/api/v1/transaction-status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Gateway callbacks and notifications ---

func TestCallback(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().HandleCallback(gomock.Any(), domain.Notification{
		TrackingID:        "TRK-1",
		MerchantReference: "ORD-1",
		NotificationType:  domain.NotificationTypeCallback,
	}).Return(samplePayment(), nil)

	w := d.do(httptest.NewRequest(http.MethodGet,
		"/api/v1/pesapal/callback?OrderTrackingId=TRK-1&OrderMerchantReference=ORD-1&OrderNotificationType=CALLBACKURL", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ORD-1", decodeBody(t, w)["data"].(map[string]any)["order_id"])
}

func TestCallback_MissingIdentifiers(t *testing.T) {
	d := setupRouter(t)

	w := d.do(httptest.NewRequest(http.MethodGet, "/api/v1/pesapal/callback?foo=bar", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func ipnAck() domain.NotificationAck {
	return domain.Notification{
		TrackingID:        "TRK-1",
		MerchantReference: "ORD-1",
		NotificationType:  domain.NotificationTypeIPNChange,
	}.Ack(true)
}

func TestIPN_PayloadAndSignatureSources(t *testing.T) {
	wantPayload := map[string]string{
		"OrderTrackingId":        "TRK-1",
		"OrderMerchantReference": "ORD-1",
		"OrderNotificationType":  "IPNCHANGE",
	}
	query := "OrderTrackingId=TRK-1&OrderMerchantReference=ORD-1&OrderNotificationType=IPNCHANGE"

	tests := []struct {
		name    string
		request func() *http.Request
		sig     string
		present bool
	}{
		{
			name: "get with signature header",
			request: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/pesapal/ipn?"+query, nil)
				r.Header.Set(HeaderSignature, "sig-a")
				return r
			},
			sig: "sig-a", present: true,
		},
		{
			name: "get with alternate header",
			request: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/pesapal/ipn?"+query, nil)
				r.Header.Set(HeaderSignatureAlt, "sig-b")
				return r
			},
			sig: "sig-b", present: true,
		},
		{
			name: "get with signature query parameter",
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/pesapal/ipn?"+query+"&signature=sig-c", nil)
			},
			sig: "sig-c", present: true,
		},
		{
			name: "post json unsigned",
			request: func() *http.Request {
				body := `{"OrderTrackingId":"TRK-1","OrderMerchantReference":"ORD-1","OrderNotificationType":"IPNCHANGE"}`
				r := httptest.NewRequest(http.MethodPost, "/api/v1/pesapal/ipn", strings.NewReader(body))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
		},
		{
			name: "post form with header",
			request: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/pesapal/ipn", strings.NewReader(query))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				r.Header.Set(HeaderSignature, "sig-d")
				return r
			},
			sig: "sig-d", present: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupRouter(t)
			d.payments.EXPECT().HandleNotification(gomock.Any(), ports.NotificationRequest{
				Payload:          wantPayload,
				Signature:        tt.sig,
				SignaturePresent: tt.present,
			}).Return(ipnAck(), nil)

			w := d.do(tt.request())

			require.Equal(t, http.StatusOK, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, "TRK-1", body["orderTrackingId"])
			assert.Equal(t, "ORD-1", body["orderMerchantReference"])
			assert.Equal(t, "IPNCHANGE", body["orderNotificationType"])
			assert.EqualValues(t, 200, body["status"])
		})
	}
}

func TestIPN_JSONScalarsKeepLiteralText(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().HandleNotification(gomock.Any(), ports.NotificationRequest{
		Payload: map[string]string{
			"OrderTrackingId":        "TRK-1",
			"OrderMerchantReference": "ORD-1",
			"Amount":                 "1500000",
			"Fee":                    "12.50",
			"Test":                   "false",
		},
		Signature:        "sig-n",
		SignaturePresent: true,
	}).Return(ipnAck(), nil)

	body := `{"OrderTrackingId":"TRK-1","OrderMerchantReference":"ORD-1","Amount":1500000,"Fee":12.50,"Test":false,"Extra":{"a":1},"Missing":null}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pesapal/ipn", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, "sig-n")
	w := d.do(req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestIPN_ProcessingFailureStillHTTP200(t *testing.T) {
	d := setupRouter(t)
	n := domain.Notification{TrackingID: "TRK-1"}
	d.payments.EXPECT().HandleNotification(gomock.Any(), gomock.Any()).Return(n.Ack(false), nil)

	w := d.do(httptest.NewRequest(http.MethodGet, "/api/v1/pesapal/ipn?OrderTrackingId=TRK-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 500, decodeBody(t, w)["status"])
}

func TestIPN_SignatureRejected(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().HandleNotification(gomock.Any(), gomock.Any()).Return(domain.NotificationAck{}, apperror.ErrInvalidSignature())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pesapal/ipn?OrderTrackingId=TRK-1", nil)
	req.Header.Set(HeaderSignature, "forged")
	w := d.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeInvalidSignature, decodeBody(t, w)["error_code"])
}

func TestIPN_MalformedBodyAcksFailure(t *testing.T) {
	d := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pesapal/ipn?OrderTrackingId=TRK-1", strings.NewReader(`{"broken`))
	req.Header.Set("Content-Type", "application/json")
	w := d.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 500, body["status"])
	assert.Equal(t, "TRK-1", body["orderTrackingId"])
}

// --- Admin ---

func TestAdmin_RequiresToken(t *testing.T) {
	d := setupRouter(t)

	w := d.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_ListPayments(t *testing.T) {
	d := setupRouter(t)

	completed := domain.PaymentStateCompleted
	d.payments.EXPECT().ListPayments(gomock.Any(), ports.PaymentListParams{
		State:    &completed,
		Page:     2,
		PageSize: 10,
	}).Return([]domain.Payment{*samplePayment()}, int64(11), nil)

	w := d.do(adminRequest(http.MethodGet, "/api/v1/admin/payments?payment_state=completed&page=2&page_size=10", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 11, data["total"])
	assert.EqualValues(t, 2, data["total_pages"])
	assert.Len(t, data["items"], 1)
}

func TestAdmin_ListPayments_Defaults(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().ListPayments(gomock.Any(), ports.PaymentListParams{Page: 1, PageSize: 20}).
		Return(nil, int64(0), nil)

	w := d.do(adminRequest(http.MethodGet, "/api/v1/admin/payments", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Empty(t, data["items"])
}

func TestAdmin_ListTransactions(t *testing.T) {
	d := setupRouter(t)
	d.payments.EXPECT().ListTransactions(gomock.Any(), "ORD-1").Return([]domain.Transaction{{
		Reference:       "TRK-1",
		TransactionType: domain.TransactionTypePayment,
		Status:          domain.TransactionStatusCompleted,
		Amount:          decimal.RequireFromString("10"),
		Currency:        "KES",
		Provider:        "pesapal",
	}}, nil)

	w := d.do(adminRequest(http.MethodGet, "/api/v1/admin/payments/ORD-1/transactions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "10.00", items[0].(map[string]any)["amount"])
}

func TestAdmin_RegisterIPN(t *testing.T) {
	d := setupRouter(t)
	d.ipns.EXPECT().Register(gomock.Any(), "https://api.example.com/api/v1/pesapal/ipn", "POST").
		Return(&domain.IPNRegistration{IPNID: "ipn-1", URL: "https://api.example.com/api/v1/pesapal/ipn", NotificationType: "POST"}, nil)

	w := d.do(adminRequest(http.MethodPost, "/api/v1/admin/ipn",
		[]byte(`{"url": "https://api.example.com/api/v1/pesapal/ipn", "ipn_notification_type": "post"}`)))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "ipn-1", decodeBody(t, w)["data"].(map[string]any)["ipn_id"])

	w = d.do(adminRequest(http.MethodPost, "/api/v1/admin/ipn", []byte(`{"url": "not a url"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_ListIPNs(t *testing.T) {
	d := setupRouter(t)
	d.ipns.EXPECT().List(gomock.Any()).Return(nil, nil)

	w := d.do(adminRequest(http.MethodGet, "/api/v1/admin/ipn", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decodeBody(t, w)["data"])
}

func TestAdmin_Reconcile(t *testing.T) {
	tests := []struct {
		name      string
		body      []byte
		wantAge   time.Duration
		wantLimit int
	}{
		{name: "defaults without body", wantAge: 10 * time.Minute, wantLimit: 50},
		{name: "overrides", body: []byte(`{"older_than": "1h", "limit": 5}`), wantAge: time.Hour, wantLimit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupRouter(t)
			d.payments.EXPECT().ReconcileStale(gomock.Any(), tt.wantAge, tt.wantLimit).
				Return(&ports.ReconcileSummary{Scanned: 3, Updated: 1}, nil)

			w := d.do(adminRequest(http.MethodPost, "/api/v1/admin/reconcile", tt.body))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			data := decodeBody(t, w)["data"].(map[string]any)
			assert.EqualValues(t, 3, data["scanned"])
			assert.EqualValues(t, 1, data["updated"])
		})
	}
}

func TestAdmin_Reconcile_BadDuration(t *testing.T) {
	d := setupRouter(t)

	w := d.do(adminRequest(http.MethodPost, "/api/v1/admin/reconcile", []byte(`{"older_than": "soon"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_Stats(t *testing.T) {
	d := setupRouter(t)
	d.reporting.EXPECT().GetStats(gomock.Any(), "week").Return(&ports.PaymentStats{
		Total:           4,
		Completed:       2,
		CompletedVolume: map[string]decimal.Decimal{"KES": decimal.RequireFromString("250")},
	}, nil)
	d.reporting.EXPECT().GetStats(gomock.Any(), "year").Return(nil, apperror.Validation("invalid period"))

	w := d.do(adminRequest(http.MethodGet, "/api/v1/admin/stats?period=week", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["data"].(map[string]any)["completed"])

	w = d.do(adminRequest(http.MethodGet, "/api/v1/admin/stats?period=year", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Health ---

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Ping(context.Context) error { return f.err }
func (f fakeChecker) Name() string               { return f.name }

func TestHealthCheck(t *testing.T) {
	d := setupRouter(t, fakeChecker{name: "postgresql"}, fakeChecker{name: "redis"})
	w := d.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])

	d = setupRouter(t, fakeChecker{name: "postgresql"}, fakeChecker{name: "redis", err: errors.New("connection refused")})
	w = d.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]any)["status"])
}

func TestFlatten(t *testing.T) {
	got := flatten(url.Values{"a": {"1", "2"}, "b": {}})
	assert.Equal(t, map[string]string{"a": "1"}, got)
}
