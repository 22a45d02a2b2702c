package server

import (
	"net/http"
	"strings"

	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type paymentWebhookRequest struct {
	Event  string `json:"event" binding:"required"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// HandlePaymentWebhook ingests provider payment notifications. Succeeded
// topups credit the wallet exactly once; the ledger's idempotency key
// absorbs webhook redelivery. Unknown events are acknowledged so the
// provider stops retrying them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	providerPaymentID := strings.TrimSpace(req.Object.ID)
	if providerPaymentID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	switch req.Event {
	case "payment.succeeded":
		payment, err := s.paymentSvc.ApplySucceededTopup(c.Request.Context(), providerPaymentID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payment": payment})
	case "payment.canceled":
		payment, err := s.paymentSvc.MarkPaymentFailed(c.Request.Context(), providerPaymentID, paymentdomain.PaymentStatusCanceled)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payment": payment})
	default:
		c.JSON(http.StatusOK, gin.H{"ignored": true})
	}
}
