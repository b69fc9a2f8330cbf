package postgres

import (
	"context"
	"fmt"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	pool Pool
}

var _ ports.AuditRepository = (*AuditRepo)(nil)

// NewAuditRepo creates a PostgreSQL-backed audit repository.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create inserts an audit log entry. Details must be a JSON document or empty.
func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	var details []byte
	if log.Details != "" {
		details = []byte(log.Details)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, actor, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.Actor, string(log.Action), log.ResourceType,
		log.ResourceID, details, log.IPAddress, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
