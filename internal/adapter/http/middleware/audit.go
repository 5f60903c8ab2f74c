package middleware

import (
	"encoding/json"
	"time"

	"pix-wallet-service/internal/core/domain"
	"pix-wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// It maps routes to audit actions; reads and failed requests are not audited.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var walletID *uuid.UUID
		if raw := c.Param("id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				walletID = &id
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			WalletID:     walletID,
			Action:       action,
			ResourceType: resourceType,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	if method != "POST" {
		return "", ""
	}
	switch route {
	case "/wallets":
		return domain.AuditActionCreateWallet, "wallet"
	case "/wallets/:id/pix-keys":
		return domain.AuditActionRegisterPixKey, "pix_key"
	case "/wallets/:id/deposit":
		return domain.AuditActionDeposit, "wallet"
	case "/wallets/:id/withdraw":
		return domain.AuditActionWithdraw, "wallet"
	case "/pix/transfers":
		return domain.AuditActionTransfer, "transfer"
	case "/pix/webhook":
		return domain.AuditActionWebhook, "transfer"
	}
	return "", ""
}
