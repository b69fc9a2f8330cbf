package pesapal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// API endpoints relative to the base URL.
const (
	EndpointRequestToken = "/api/Auth/RequestToken"
	EndpointSubmitOrder  = "/api/Transactions/SubmitOrderRequest"
	EndpointGetStatus    = "/api/Transactions/GetTransactionStatus"
	EndpointRegisterIPN  = "/api/URLSetup/RegisterIPN"
	EndpointListIPNs     = "/api/URLSetup/GetIpnList"
)

// Response field aliases accepted from the submit endpoint, in lookup order.
var (
	trackingIDKeys  = []string{"order_tracking_id", "orderTrackingId", "OrderTrackingId", "tracking_id"}
	redirectURLKeys = []string{"redirect_url", "redirectUrl", "RedirectUrl", "payment_url", "paymentUrl"}
	statusKeys      = []string{"status", "Status", "payment_status_code"}
	messageKeys     = []string{"message", "Message", "error_message", "errorMessage"}
)

// Config holds the client settings.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

// Client implements ports.GatewayClient against the Pesapal v3 API.
// It is safe for concurrent use.
type Client struct {
	http           *resty.Client
	consumerKey    string
	consumerSecret string
	log            zerolog.Logger
	now            func() time.Time

	mu    sync.Mutex
	token TokenCache
}

var _ ports.GatewayClient = (*Client)(nil)

// NewClient creates a new Pesapal client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:           httpClient,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		log:            log,
		now:            time.Now,
	}
}

type submitOrderBody struct {
	ID             string                `json:"id"`
	Currency       string                `json:"currency"`
	Amount         json.Number           `json:"amount"`
	Description    string                `json:"description"`
	CallbackURL    string                `json:"callback_url"`
	NotificationID string                `json:"notification_id,omitempty"`
	BillingAddress *ports.BillingAddress `json:"billing_address,omitempty"`
}

// SubmitOrder submits a payment order and returns the tracking id and redirect URL.
func (c *Client) SubmitOrder(ctx context.Context, req ports.SubmitOrderRequest) (*ports.SubmitOrderResult, error) {
	body := submitOrderBody{
		ID:             req.OrderID,
		Currency:       req.Currency,
		Amount:         json.Number(req.Amount.StringFixed(2)),
		Description:    req.Description,
		CallbackURL:    req.CallbackURL,
		NotificationID: req.NotificationID,
	}
	if req.BillingAddress != (ports.BillingAddress{}) {
		body.BillingAddress = &req.BillingAddress
	}

	var out map[string]any
	if err := c.call(ctx, http.MethodPost, EndpointSubmitOrder, body, nil, &out); err != nil {
		return nil, err
	}

	result := &ports.SubmitOrderResult{
		OrderTrackingID: firstString(out, trackingIDKeys),
		RedirectURL:     firstString(out, redirectURLKeys),
		Status:          firstString(out, statusKeys),
	}
	if result.OrderTrackingID == "" {
		msg := firstString(out, messageKeys)
		if msg == "" {
			msg = "gateway response is missing order_tracking_id"
		}
		return nil, apperror.ErrGatewayBusiness(msg)
	}

	c.log.Info().
		Str("order_id", req.OrderID).
		Str("order_tracking_id", result.OrderTrackingID).
		Msg("order submitted to gateway")
	return result, nil
}

// GetTransactionStatus fetches the current status of a submitted order.
func (c *Client) GetTransactionStatus(ctx context.Context, trackingID, merchantReference string) (*domain.GatewayStatus, error) {
	if trackingID == "" {
		return nil, apperror.ErrGatewayBusiness("order tracking id is required")
	}
	query := map[string]string{"orderTrackingId": trackingID}
	if merchantReference != "" {
		query["merchantReference"] = merchantReference
	}

	resp, err := c.send(ctx, http.MethodGet, EndpointGetStatus, nil, query)
	if err != nil {
		return nil, err
	}

	// Failed and invalid orders come back as 200 with both a status and an
	// error object; the status wins.
	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperror.ErrGatewayBusiness(fmt.Sprintf("unexpected gateway response from %s", EndpointGetStatus))
	}
	if intField(out, "status_code") == nil && firstString(out, statusDescriptionKeys) == "" {
		if msg, ok := bodyError(resp.Body()); ok {
			c.log.Warn().Str("path", EndpointGetStatus).Str("error", msg).Msg("gateway request failed")
			return nil, apperror.ErrGatewayBusiness(msg)
		}
	}

	return &domain.GatewayStatus{
		StatusCode:        intField(out, "status_code"),
		StatusDescription: firstString(out, statusDescriptionKeys),
		PaymentMethod:     firstString(out, []string{"payment_method", "paymentMethod"}),
		ConfirmationCode:  firstString(out, []string{"confirmation_code", "confirmationCode"}),
		PaymentAccount:    firstString(out, []string{"payment_account", "paymentAccount"}),
		MerchantReference: firstString(out, []string{"merchant_reference", "merchantReference"}),
		Message:           firstString(out, messageKeys),
	}, nil
}

var statusDescriptionKeys = []string{"payment_status_description", "paymentStatusDescription"}

type ipnRecord struct {
	URL              string `json:"url"`
	CreatedDate      string `json:"created_date"`
	IPNID            string `json:"ipn_id"`
	NotificationType string `json:"ipn_notification_type_description"`
	Status           string `json:"ipn_status_description"`
}

func (r ipnRecord) toDomain() domain.IPNRegistration {
	reg := domain.IPNRegistration{
		IPNID:            r.IPNID,
		URL:              r.URL,
		NotificationType: r.NotificationType,
		Status:           r.Status,
	}
	if t, ok := parseTime(r.CreatedDate); ok {
		reg.CreatedAt = &t
	}
	return reg
}

// RegisterIPN registers url for push notifications of the given type (GET or POST).
func (c *Client) RegisterIPN(ctx context.Context, url, notificationType string) (*domain.IPNRegistration, error) {
	body := map[string]string{"url": url, "ipn_notification_type": notificationType}

	var out ipnRecord
	if err := c.call(ctx, http.MethodPost, EndpointRegisterIPN, body, nil, &out); err != nil {
		return nil, err
	}
	if out.IPNID == "" {
		return nil, apperror.ErrGatewayBusiness("gateway response is missing ipn_id")
	}
	reg := out.toDomain()
	if reg.NotificationType == "" {
		reg.NotificationType = notificationType
	}
	return &reg, nil
}

// ListIPNs returns the IPN URLs registered for the merchant account.
func (c *Client) ListIPNs(ctx context.Context) ([]domain.IPNRegistration, error) {
	var out []ipnRecord
	if err := c.call(ctx, http.MethodGet, EndpointListIPNs, nil, nil, &out); err != nil {
		return nil, err
	}
	regs := make([]domain.IPNRegistration, 0, len(out))
	for _, r := range out {
		regs = append(regs, r.toDomain())
	}
	return regs, nil
}

// call performs an authenticated request and decodes the JSON body into out.
// An error object in a 200 body is a business failure.
func (c *Client) call(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	resp, err := c.send(ctx, method, path, body, query)
	if err != nil {
		return err
	}
	if msg, ok := bodyError(resp.Body()); ok {
		c.log.Warn().Str("path", path).Str("error", msg).Msg("gateway request failed")
		return apperror.ErrGatewayBusiness(msg)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperror.ErrGatewayBusiness(fmt.Sprintf("unexpected gateway response from %s", path))
	}
	return nil
}

// send performs an authenticated request and classifies the HTTP status.
func (c *Client) send(ctx context.Context, method, path string, body any, query map[string]string) (*resty.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx).SetAuthToken(token)
	if body != nil {
		req.SetBody(body)
	}
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, apperror.ErrGatewayNetwork(fmt.Errorf("%s %s: %w", method, path, err))
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		c.invalidateToken()
	}
	if err := classify(resp); err != nil {
		c.log.Warn().Err(err).Str("path", path).Int("status", resp.StatusCode()).Msg("gateway request failed")
		return nil, err
	}
	return resp, nil
}

// classify maps an HTTP response to the gateway error taxonomy.
func classify(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperror.ErrGatewayAuth(fmt.Errorf("gateway returned %d: %s", code, errorMessage(resp.Body())))
	case code >= http.StatusInternalServerError:
		return apperror.ErrGatewayNetwork(fmt.Errorf("gateway returned %d", code))
	case code >= http.StatusBadRequest:
		return apperror.ErrGatewayBusiness(errorMessage(resp.Body()))
	}
	return nil
}

type apiError struct {
	Error *struct {
		ErrorType string `json:"error_type"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// bodyError reports an error object embedded in an otherwise successful response.
func bodyError(body []byte) (string, bool) {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Error == nil {
		return "", false
	}
	if e.Error.Message == "" && e.Error.Code == "" {
		return "", false
	}
	if e.Error.Message != "" {
		return e.Error.Message, true
	}
	return e.Error.Code, true
}

func errorMessage(body []byte) string {
	if msg, ok := bodyError(body); ok {
		return msg
	}
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return "gateway rejected the request"
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intField(m map[string]any, key string) *int {
	switch v := m[key].(type) {
	case float64:
		n := int(v)
		return &n
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return &n
		}
	}
	return nil
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
