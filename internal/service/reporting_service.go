package service

import (
	"context"
	"time"

	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	paymentRepo ports.PaymentRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(paymentRepo ports.PaymentRepository) ports.ReportingService {
	return &reportingService{paymentRepo: paymentRepo}
}

// GetStats returns aggregated payment stats for the period: day, week, month or all.
func (s *reportingService) GetStats(ctx context.Context, period string) (*ports.PaymentStats, error) {
	var since *time.Time

	now := time.Now().UTC()
	switch period {
	case "day":
		t := now.AddDate(0, 0, -1)
		since = &t
	case "week":
		t := now.AddDate(0, 0, -7)
		since = &t
	case "month":
		t := now.AddDate(0, -1, 0)
		since = &t
	case "all", "":
		// No time filter
	default:
		return nil, apperror.Validation("invalid period: must be day, week, month, or all")
	}

	stats, err := s.paymentRepo.GetStats(ctx, since)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return stats, nil
}
