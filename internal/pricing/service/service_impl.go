package service

import (
	"context"
	"fmt"

	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  pricingdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  pricingdomain.Repository
}

func NewService(p Params) pricingdomain.Service {
	return &Service{
		log:   p.Log.Named("pricing.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) GetRateCard(ctx context.Context, modelID, modality, unit string, asOf int64) (*pricingdomain.RateCard, error) {
	card, err := s.repo.GetActive(ctx, modelID, modality, unit, asOf)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%s/%s/%s: %w", modelID, modality, unit, pricingdomain.ErrNoActiveRateCard)
	}
	return card, nil
}

func (s *Service) GetRateCardByID(ctx context.Context, id snowflake.ID) (*pricingdomain.RateCard, error) {
	card, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, pricingdomain.ErrRateCardNotFound
	}
	return card, nil
}

func (s *Service) CreateRateCard(ctx context.Context, card *pricingdomain.RateCard) error {
	if card.ID == 0 {
		card.ID = s.genID.Generate()
	}
	if card.PlatformFactor == 0 {
		card.PlatformFactor = 1
	}
	return s.repo.Create(ctx, card)
}

func (s *Service) ListByModelIDs(ctx context.Context, modelIDs []string) ([]*pricingdomain.RateCard, error) {
	return s.repo.ListByModelIDs(ctx, modelIDs)
}

// CalculateCost converts a unit count into a charge in minor currency units.
// Rounding is always up, never in the payer's favor, and the result is
// floored at the card's minimum charge. Zero or negative usage costs nothing.
func (s *Service) CalculateCost(units decimal.Decimal, card *pricingdomain.RateCard, discountPercent int) int64 {
	if units.Sign() <= 0 {
		return 0
	}
	if discountPercent < 0 {
		discountPercent = 0
	}

	factor := card.PlatformFactor
	if factor == 0 {
		factor = 1
	}

	discountFactor := decimal.NewFromInt(int64(100 - discountPercent)).Div(decimal.NewFromInt(100))
	raw := decimal.NewFromInt(card.RawCostPerUnit).Mul(units)
	amount := raw.
		Mul(decimal.NewFromFloat(factor)).
		Mul(discountFactor).
		Add(decimal.NewFromInt(card.FixedFee))

	rounded := amount.Ceil().IntPart()
	if rounded < card.MinCharge {
		return card.MinCharge
	}
	return rounded
}

// CalculateCostRange prices both bounds of a unit range, producing the
// authorization envelope for a hold.
func (s *Service) CalculateCostRange(minUnits, maxUnits decimal.Decimal, card *pricingdomain.RateCard, discountPercent int) (int64, int64) {
	return s.CalculateCost(minUnits, card, discountPercent),
		s.CalculateCost(maxUnits, card, discountPercent)
}
