package pesapal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"payment-reconciler/pkg/apperror"
)

// tokenRefreshBuffer renews the access token this long before it expires.
const tokenRefreshBuffer = 30 * time.Second

// defaultTokenLifetime applies when the gateway omits or garbles expiryDate.
const defaultTokenLifetime = 5 * time.Minute

// TokenCache is the current bearer token and its expiry.
type TokenCache struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now.
func (t TokenCache) Valid(now time.Time) bool {
	return t.Token != "" && now.Add(tokenRefreshBuffer).Before(t.ExpiresAt)
}

type tokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
}

// accessToken returns a cached token or requests a new one. Concurrent
// callers wait for a single refresh.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.Valid(now) {
		return c.token.Token, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"consumer_key":    c.consumerKey,
			"consumer_secret": c.consumerSecret,
		}).
		Post(EndpointRequestToken)
	if err != nil {
		return "", apperror.ErrGatewayNetwork(fmt.Errorf("request token: %w", err))
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return "", apperror.ErrGatewayNetwork(fmt.Errorf("request token: gateway returned %d", resp.StatusCode()))
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apperror.ErrGatewayAuth(fmt.Errorf("request token: %d: %s", resp.StatusCode(), errorMessage(resp.Body())))
	}
	if msg, ok := bodyError(resp.Body()); ok {
		return "", apperror.ErrGatewayAuth(fmt.Errorf("request token: %s", msg))
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", apperror.ErrGatewayAuth(fmt.Errorf("decode token response: %w", err))
	}
	if tr.Token == "" {
		return "", apperror.ErrGatewayAuth(errors.New("request token: no token in response"))
	}

	expiresAt, ok := parseTime(tr.ExpiryDate)
	if !ok {
		expiresAt = now.Add(defaultTokenLifetime)
	}
	c.token = TokenCache{Token: tr.Token, ExpiresAt: expiresAt}
	c.log.Debug().Time("expires_at", expiresAt).Msg("gateway access token refreshed")
	return tr.Token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = TokenCache{}
	c.mu.Unlock()
}
