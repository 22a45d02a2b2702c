package server

import (
	"net/http"

	billingdomain "github.com/airislabs/kassa/internal/billing/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// The preflight endpoints return an opaque billing context the caller must
// hand back on settle or release. It carries the hold reference and the rate
// cards quoted at preflight, so restarts of the inference gateway cannot
// reprice an in-flight request.

type preflightChatRequest struct {
	ModelID         string                      `json:"model_id" binding:"required"`
	RequestID       string                      `json:"request_id"`
	Messages        []billingdomain.ChatMessage `json:"messages"`
	MaxOutputTokens int64                       `json:"max_output_tokens"`
	ChatID          *string                     `json:"chat_id"`
	MessageID       *string                     `json:"message_id"`
}

func (s *Server) PreflightChat(c *gin.Context) {
	var req preflightChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	bctx, err := s.billingSvc.PreflightTokenHold(c.Request.Context(), billingdomain.TokenHoldRequest{
		UserID:          currentUserID(c),
		ModelID:         req.ModelID,
		RequestID:       req.RequestID,
		Messages:        req.Messages,
		MaxOutputTokens: req.MaxOutputTokens,
		ChatID:          req.ChatID,
		MessageID:       req.MessageID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"context": bctx})
}

type preflightUnitsRequest struct {
	ModelID   string          `json:"model_id" binding:"required"`
	Modality  string          `json:"modality" binding:"required"`
	Unit      string          `json:"unit" binding:"required"`
	Units     decimal.Decimal `json:"units"`
	RequestID string          `json:"request_id"`
}

func (s *Server) PreflightUnits(c *gin.Context) {
	var req preflightUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	bctx, err := s.billingSvc.PreflightUnitHold(c.Request.Context(), billingdomain.UnitHoldRequest{
		UserID:    currentUserID(c),
		ModelID:   req.ModelID,
		Modality:  req.Modality,
		Unit:      req.Unit,
		Units:     req.Units,
		RequestID: req.RequestID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"context": bctx})
}

type settleChatRequest struct {
	Context   *billingdomain.Context `json:"context"`
	Usage     map[string]any         `json:"usage"`
	ChatID    *string                `json:"chat_id"`
	MessageID *string                `json:"message_id"`
}

func (s *Server) SettleChat(c *gin.Context) {
	var req settleChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.billingSvc.SettleTokenUsage(c.Request.Context(), req.Context, req.Usage, req.ChatID, req.MessageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event})
}

type settleUnitsRequest struct {
	Context       *billingdomain.Context `json:"context"`
	MeasuredUnits map[string]any         `json:"measured_units"`
	Units         decimal.Decimal        `json:"units"`
	ChatID        *string                `json:"chat_id"`
	MessageID     *string                `json:"message_id"`
}

func (s *Server) SettleUnits(c *gin.Context) {
	var req settleUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.billingSvc.SettleUnitUsage(c.Request.Context(), req.Context, req.MeasuredUnits, req.Units, req.ChatID, req.MessageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event})
}

type releaseHoldRequest struct {
	Context *billingdomain.Context `json:"context"`
}

// ReleaseBillingHold abandons an in-flight request and returns its held
// funds. Safe to call more than once.
func (s *Server) ReleaseBillingHold(c *gin.Context) {
	var req releaseHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.billingSvc.ReleaseHold(c.Request.Context(), req.Context); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": true})
}
