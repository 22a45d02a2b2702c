package server

import (
	"net/http"

	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/gin-gonic/gin"
)

// GetWallet returns the caller's wallet, creating an empty one on first
// touch. RefreshWallet folds in daily resets and included-balance expiry so
// the response never shows stale balances.
func (s *Server) GetWallet(c *gin.Context) {
	userID := currentUserID(c)

	w, err := s.walletSvc.GetOrCreateWallet(c.Request.Context(), userID, s.cfg.Billing.Currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	w, err = s.walletSvc.RefreshWallet(c.Request.Context(), w.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":         w,
		"available":      w.Available(),
		"topup_packages": s.cfg.Billing.TopupPackages,
	})
}

// ListLedgerEntries pages the caller's ledger history, newest first. The
// type query param takes a comma-separated entry type filter.
func (s *Server) ListLedgerEntries(c *gin.Context) {
	req := walletdomain.ListEntriesRequest{
		UserID: currentUserID(c),
		Types:  parseEntryTypes(c.Query("type")),
		Page:   parsePagination(c.Query("page_token"), c.Query("page_size")),
	}

	entries, pageInfo, err := s.walletSvc.ListEntriesByUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"page_info": pageInfo,
	})
}

type createTopupRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	ReturnURL string `json:"return_url"`
}

// CreateTopup starts a topup payment at the provider and returns the
// confirmation URL the user must visit. Funds land on the wallet only when
// the provider's webhook reports success.
func (s *Server) CreateTopup(c *gin.Context) {
	var req createTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	userID := currentUserID(c)
	w, err := s.walletSvc.GetOrCreateWallet(c.Request.Context(), userID, s.cfg.Billing.Currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.paymentSvc.CreateTopupPayment(c.Request.Context(), userID, w.ID, req.Amount, req.ReturnURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetQuotaState reports the caller's remaining free quota for the current
// cycle. Returns an empty object when the feature is disabled.
func (s *Server) GetQuotaState(c *gin.Context) {
	state, err := s.leadMagnetSvc.GetState(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"state":   state,
	})
}
