package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"payment-reconciler/internal/core/ports"
)

// SignatureField is the payload key that may carry the notification signature.
// It never takes part in the canonical string.
const SignatureField = "signature"

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA256 of payload using secretKey.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks if signature matches HMAC-SHA256(secretKey, payload).
// Uses constant-time comparison to prevent timing attacks.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	expected := s.Sign(secretKey, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// CanonicalString serializes a flat payload for signing.
// Format: k1=v1&k2=v2 with keys sorted bytewise, signature key excluded.
func (s *HMACSignatureService) CanonicalString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.EqualFold(k, SignatureField) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// NotificationVerifier authenticates gateway push notifications with a shared
// secret. With no secret configured every notification is rejected.
type NotificationVerifier struct {
	sigSvc ports.SignatureService
	secret string
}

// NewNotificationVerifier creates a verifier bound to secret.
func NewNotificationVerifier(sigSvc ports.SignatureService, secret string) *NotificationVerifier {
	return &NotificationVerifier{sigSvc: sigSvc, secret: secret}
}

// Verify recomputes the signature over the canonical form of fields.
func (v *NotificationVerifier) Verify(fields map[string]string, signature string) bool {
	if v.secret == "" || signature == "" {
		return false
	}
	return v.sigSvc.Verify(v.secret, v.sigSvc.CanonicalString(fields), signature)
}
