package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful write operations after the handler ran.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var actor *string
		if op, ok := Operator(c); ok {
			actor = &op
		}

		details, _ := json.Marshal(map[string]any{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString("request_id"),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("order_id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/payments" && method == http.MethodPost:
		return domain.AuditActionCreatePayment, "payment"
	case route == "/api/v1/admin/ipn" && method == http.MethodPost:
		return domain.AuditActionRegisterIPN, "ipn"
	case route == "/api/v1/admin/reconcile" && method == http.MethodPost:
		return domain.AuditActionReconcile, "payment"
	}
	return "", ""
}
