package service

import (
	"context"
	"net/url"
	"strings"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"

	"github.com/rs/zerolog"
)

// ipnService implements ports.IPNService.
type ipnService struct {
	gateway ports.GatewayClient
	log     zerolog.Logger
}

// NewIPNService creates a new IPN registration service.
func NewIPNService(gateway ports.GatewayClient, log zerolog.Logger) ports.IPNService {
	return &ipnService{gateway: gateway, log: log}
}

// Register registers an absolute http(s) URL for push notifications.
// notificationType defaults to GET.
func (s *ipnService) Register(ctx context.Context, rawURL, notificationType string) (*domain.IPNRegistration, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperror.Validation("url must be an absolute http(s) URL")
	}

	notificationType = strings.ToUpper(strings.TrimSpace(notificationType))
	if notificationType == "" {
		notificationType = domain.IPNMethodGET
	}
	if notificationType != domain.IPNMethodGET && notificationType != domain.IPNMethodPOST {
		return nil, apperror.Validation("ipn_notification_type must be GET or POST")
	}

	reg, err := s.gateway.RegisterIPN(ctx, u.String(), notificationType)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("ipn_id", reg.IPNID).Str("url", reg.URL).Msg("IPN URL registered")
	return reg, nil
}

// List returns the IPN URLs registered at the gateway.
func (s *ipnService) List(ctx context.Context) ([]domain.IPNRegistration, error) {
	return s.gateway.ListIPNs(ctx)
}
