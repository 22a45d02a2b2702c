package seed

import (
	"context"
	"errors"
	"time"

	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Baseline price sheet applied on first boot so a fresh install can bill
// out of the box. Amounts are minor currency units; token rates are quoted
// per thousand tokens. Operators replace these by publishing new versions.
var defaultRateCards = []pricingdomain.RateCard{
	{ModelID: "gpt-4o-mini", Modality: pricingdomain.ModalityText, Unit: pricingdomain.UnitTokenInput, Version: "2025-01", RawCostPerUnit: 15, PlatformFactor: 2, IsDefault: true, IsActive: true},
	{ModelID: "gpt-4o-mini", Modality: pricingdomain.ModalityText, Unit: pricingdomain.UnitTokenOutput, Version: "2025-01", RawCostPerUnit: 60, PlatformFactor: 2, IsDefault: true, IsActive: true},
	{ModelID: "gpt-4o", Modality: pricingdomain.ModalityText, Unit: pricingdomain.UnitTokenInput, Version: "2025-01", RawCostPerUnit: 250, PlatformFactor: 2, IsDefault: true, IsActive: true},
	{ModelID: "gpt-4o", Modality: pricingdomain.ModalityText, Unit: pricingdomain.UnitTokenOutput, Version: "2025-01", RawCostPerUnit: 1000, PlatformFactor: 2, IsDefault: true, IsActive: true},
	{ModelID: "gpt-image-1", Modality: pricingdomain.ModalityImage, Unit: "image_1024", Version: "2025-01", RawCostPerUnit: 400, PlatformFactor: 2, MinCharge: 100, IsDefault: true, IsActive: true},
	{ModelID: "tts-1", Modality: pricingdomain.ModalityTTS, Unit: "tts_char", Version: "2025-01", RawCostPerUnit: 2, PlatformFactor: 2, MinCharge: 10, IsDefault: true, IsActive: true},
	{ModelID: "whisper-1", Modality: pricingdomain.ModalitySTT, Unit: "stt_second", Version: "2025-01", RawCostPerUnit: 1, PlatformFactor: 2, MinCharge: 10, IsDefault: true, IsActive: true},
}

// EnsureDefaultRateCards inserts the baseline price sheet, skipping any
// (model, modality, unit, version) key an operator has already published.
func EnsureDefaultRateCards(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	now := time.Now().Unix()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, card := range defaultRateCards {
			var count int64
			if err := tx.Model(&pricingdomain.RateCard{}).
				Where("model_id = ? AND modality = ? AND unit = ? AND version = ?",
					card.ModelID, card.Modality, card.Unit, card.Version).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			card.ID = node.Generate()
			card.CreatedAt = now
			card.UpdatedAt = now
			if err := tx.Create(&card).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
