package server

import (
	"errors"
	"net/http"

	billingdomain "github.com/airislabs/kassa/internal/billing/domain"
	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware renders the last error a handler attached. Domain
// errors map to stable machine-readable codes; anything unrecognized becomes
// an opaque 500.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, gin.H) {
	var insufficient *billingdomain.InsufficientFundsError
	if errors.As(err, &insufficient) {
		payload := gin.H{
			"error":     "insufficient_funds",
			"available": insufficient.Available,
			"required":  insufficient.Required,
			"currency":  insufficient.Currency,
		}
		if insufficient.AutoTopup != nil {
			payload["auto_topup_status"] = insufficient.AutoTopup.Status
			if insufficient.AutoTopup.PaymentID != nil {
				payload["auto_topup_payment_id"] = insufficient.AutoTopup.PaymentID.String()
			}
		}
		return http.StatusPaymentRequired, payload
	}

	var maxReply *billingdomain.MaxReplyCostError
	if errors.As(err, &maxReply) {
		return http.StatusPaymentRequired, gin.H{
			"error":    "max_reply_cost_exceeded",
			"limit":    maxReply.Limit,
			"required": maxReply.Required,
		}
	}

	var dailyCap *billingdomain.DailyCapError
	if errors.As(err, &dailyCap) {
		return http.StatusTooManyRequests, gin.H{
			"error":    "daily_cap_exceeded",
			"cap":      dailyCap.Cap,
			"spent":    dailyCap.Spent,
			"required": dailyCap.Required,
		}
	}

	switch {
	case errors.Is(err, billingdomain.ErrModalityDisabled),
		errors.Is(err, pricingdomain.ErrNoActiveRateCard):
		return http.StatusUnprocessableEntity, gin.H{"error": "modality_disabled"}
	case errors.Is(err, billingdomain.ErrInvalidUnits),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidTopupAmount),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, gin.H{"error": validationCode(err)}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"error": "unauthorized"}
	case errors.Is(err, walletdomain.ErrSettleExceedsHold):
		return http.StatusConflict, gin.H{"error": "settle_exceeds_hold"}
	case isNotFoundError(err):
		return http.StatusNotFound, gin.H{"error": notFoundCode(err)}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal_error"}
	}
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidUnits):
		return "invalid_units"
	case errors.Is(err, walletdomain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, paymentdomain.ErrInvalidTopupAmount):
		return "invalid_topup_amount"
	default:
		return "invalid_request"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, walletdomain.ErrWalletNotFound),
		errors.Is(err, walletdomain.ErrHoldNotFound),
		errors.Is(err, pricingdomain.ErrRateCardNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundCode(err error) string {
	switch {
	case errors.Is(err, walletdomain.ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, walletdomain.ErrHoldNotFound):
		return "hold_not_found"
	case errors.Is(err, pricingdomain.ErrRateCardNotFound):
		return "rate_card_not_found"
	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return "payment_not_found"
	default:
		return "not_found"
	}
}

// classifyErrorForLog buckets request errors for structured logging without
// leaking payload details into log fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code, _ := payload["error"].(string)
	if status >= http.StatusInternalServerError {
		return "server_error", code
	}
	return "client_error", code
}
