package server

import (
	"net/http"
	"strings"

	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/gin-gonic/gin"
)

// ListModels returns the model catalog. Inactive models are included only
// when include_inactive=true.
func (s *Server) ListModels(c *gin.Context) {
	activeOnly := !strings.EqualFold(c.Query("include_inactive"), "true")

	models, err := s.catalogSvc.ListModels(c.Request.Context(), activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

// ListModelRates returns every rate card version published for one model.
func (s *Server) ListModelRates(c *gin.Context) {
	modelID := strings.TrimSpace(c.Param("id"))
	if modelID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cards, err := s.pricingSvc.ListByModelIDs(c.Request.Context(), []string{modelID})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rate_cards": cards})
}

type createRateCardRequest struct {
	ModelID        string  `json:"model_id" binding:"required"`
	Modality       string  `json:"modality" binding:"required"`
	Unit           string  `json:"unit" binding:"required"`
	Version        string  `json:"version" binding:"required"`
	RawCostPerUnit int64   `json:"raw_cost_per_unit"`
	PlatformFactor float64 `json:"platform_factor"`
	FixedFee       int64   `json:"fixed_fee"`
	MinCharge      int64   `json:"min_charge"`
	Provider       *string `json:"provider"`
	IsDefault      bool    `json:"is_default"`
	EffectiveFrom  int64   `json:"effective_from"`
	EffectiveTo    *int64  `json:"effective_to"`
}

// CreateRateCard publishes a new rate card version. Existing versions are
// never mutated; repricing a model means publishing a newer version.
func (s *Server) CreateRateCard(c *gin.Context) {
	var req createRateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	card := &pricingdomain.RateCard{
		ModelID:        req.ModelID,
		Modality:       req.Modality,
		Unit:           req.Unit,
		Version:        req.Version,
		RawCostPerUnit: req.RawCostPerUnit,
		PlatformFactor: req.PlatformFactor,
		FixedFee:       req.FixedFee,
		MinCharge:      req.MinCharge,
		Provider:       req.Provider,
		IsDefault:      req.IsDefault,
		IsActive:       true,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveTo:    req.EffectiveTo,
	}
	if err := s.pricingSvc.CreateRateCard(c.Request.Context(), card); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, card)
}
