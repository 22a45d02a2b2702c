package service

import (
	"context"
	"fmt"
	"testing"

	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/airislabs/kassa/internal/pricing/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) pricingdomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&pricingdomain.RateCard{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(conn),
	})
}

func TestCalculateCost(t *testing.T) {
	svc := setupService(t)

	tests := []struct {
		name     string
		units    decimal.Decimal
		card     pricingdomain.RateCard
		discount int
		want     int64
	}{
		{
			name:  "zero units cost nothing even with a minimum charge",
			units: decimal.Zero,
			card:  pricingdomain.RateCard{RawCostPerUnit: 100, PlatformFactor: 1, MinCharge: 5},
			want:  0,
		},
		{
			name:  "minimum charge floor",
			units: decimal.RequireFromString("1.1"),
			card:  pricingdomain.RateCard{RawCostPerUnit: 1, PlatformFactor: 1, MinCharge: 5},
			want:  5,
		},
		{
			name:     "discount then fixed fee",
			units:    decimal.NewFromInt(1),
			card:     pricingdomain.RateCard{RawCostPerUnit: 100, PlatformFactor: 1, FixedFee: 50},
			discount: 20,
			want:     130,
		},
		{
			name:  "rounds up",
			units: decimal.RequireFromString("0.001"),
			card:  pricingdomain.RateCard{RawCostPerUnit: 1, PlatformFactor: 1},
			want:  1,
		},
		{
			name:  "platform factor markup",
			units: decimal.NewFromInt(10),
			card:  pricingdomain.RateCard{RawCostPerUnit: 10, PlatformFactor: 1.5},
			want:  150,
		},
		{
			name:  "negative units cost nothing",
			units: decimal.NewFromInt(-3),
			card:  pricingdomain.RateCard{RawCostPerUnit: 100, PlatformFactor: 1, MinCharge: 5},
			want:  0,
		},
		{
			name:  "zero factor treated as no markup",
			units: decimal.NewFromInt(2),
			card:  pricingdomain.RateCard{RawCostPerUnit: 10},
			want:  20,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, svc.CalculateCost(tc.units, &tc.card, tc.discount))
		})
	}
}

func TestCalculateCostMonotonic(t *testing.T) {
	svc := setupService(t)
	card := pricingdomain.RateCard{RawCostPerUnit: 7, PlatformFactor: 1.2, FixedFee: 3, MinCharge: 10}

	prev := int64(0)
	for units := int64(0); units <= 1000; units += 50 {
		cost := svc.CalculateCost(decimal.NewFromInt(units), &card, 0)
		assert.GreaterOrEqual(t, cost, prev, "units=%d", units)
		prev = cost
	}
}

func TestCalculateCostRange(t *testing.T) {
	svc := setupService(t)
	card := pricingdomain.RateCard{RawCostPerUnit: 100, PlatformFactor: 1}

	minCost, maxCost := svc.CalculateCostRange(
		pricingdomain.TokenUnits(500),
		pricingdomain.TokenUnits(2000),
		&card, 0,
	)
	assert.Equal(t, int64(50), minCost)
	assert.Equal(t, int64(200), maxCost)
}

func TestTokenUnits(t *testing.T) {
	assert.True(t, pricingdomain.TokenUnits(1500).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, pricingdomain.TokenUnits(0).IsZero())
}

func TestGetRateCard(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	mk := func(version string, createdAt int64, isDefault, isActive bool) *pricingdomain.RateCard {
		card := &pricingdomain.RateCard{
			ModelID:        "gpt-test",
			Modality:       pricingdomain.ModalityText,
			Unit:           pricingdomain.UnitTokens,
			Version:        version,
			RawCostPerUnit: 100,
			PlatformFactor: 1,
			IsDefault:      isDefault,
			IsActive:       isActive,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		}
		require.NoError(t, svc.CreateRateCard(ctx, card))
		return card
	}

	v1 := mk("v1", 1000, false, true)
	v2 := mk("v2", 2000, false, true)
	mk("v3", 3000, false, false) // inactive, never selected

	t.Run("newest active card as of now", func(t *testing.T) {
		got, err := svc.GetRateCard(ctx, "gpt-test", pricingdomain.ModalityText, pricingdomain.UnitTokens, 5000)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, got.ID)
	})

	t.Run("historical as-of picks the card in force then", func(t *testing.T) {
		got, err := svc.GetRateCard(ctx, "gpt-test", pricingdomain.ModalityText, pricingdomain.UnitTokens, 1500)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := svc.GetRateCard(ctx, "unknown", pricingdomain.ModalityText, pricingdomain.UnitTokens, 5000)
		assert.ErrorIs(t, err, pricingdomain.ErrNoActiveRateCard)
	})

	t.Run("default flag breaks creation ties", func(t *testing.T) {
		preferred := mk("v4", 4000, true, true)
		mk("v5", 4000, false, true)

		got, err := svc.GetRateCard(ctx, "gpt-test", pricingdomain.ModalityText, pricingdomain.UnitTokens, 5000)
		require.NoError(t, err)
		assert.Equal(t, preferred.ID, got.ID)
	})

	t.Run("lookup by id reproduces historical cards", func(t *testing.T) {
		got, err := svc.GetRateCardByID(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, "v1", got.Version)

		_, err = svc.GetRateCardByID(ctx, snowflake.ID(999999))
		assert.ErrorIs(t, err, pricingdomain.ErrRateCardNotFound)
	})
}
