package service

import (
	"context"
	"errors"

	billingdomain "github.com/airislabs/kassa/internal/billing/domain"
	"github.com/airislabs/kassa/internal/clock"
	"github.com/airislabs/kassa/internal/config"
	leadmagnetdomain "github.com/airislabs/kassa/internal/leadmagnet/domain"
	"github.com/airislabs/kassa/internal/observability/metrics"
	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Wallet     walletdomain.Service
	Pricing    pricingdomain.Service
	LeadMagnet leadmagnetdomain.Service
	UsageEvent usageeventdomain.Service

	Payment    paymentdomain.Service `optional:"true"`
	ObsMetrics *metrics.Metrics      `optional:"true"`
}

// Service is the billing orchestrator: it owns the preflight-settle-release
// lifecycle of one request and is the only writer of usage events.
type Service struct {
	cfg        config.Config
	log        *zap.Logger
	clock      clock.Clock
	wallet     walletdomain.Service
	pricing    pricingdomain.Service
	leadMagnet leadmagnetdomain.Service
	usageEvent usageeventdomain.Service
	payment    paymentdomain.Service
	obsMetrics *metrics.Metrics
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		cfg:        p.Cfg,
		log:        p.Log.Named("billing.service"),
		clock:      p.Clock,
		wallet:     p.Wallet,
		pricing:    p.Pricing,
		leadMagnet: p.LeadMagnet,
		usageEvent: p.UsageEvent,
		payment:    p.Payment,
		obsMetrics: p.ObsMetrics,
	}
}

// PreflightTokenHold estimates a chat completion's cost from the prompt
// length and the output token cap, then places a hold for the sum. Requests
// admitted on free quota get a zero-hold context instead.
func (s *Service) PreflightTokenHold(ctx context.Context, req billingdomain.TokenHoldRequest) (*billingdomain.Context, error) {
	if !s.cfg.Billing.Enabled {
		return nil, nil
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	estimatedPrompt := billingdomain.EstimateTokensFromMessages(req.Messages)
	maxOutput := req.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = int64(s.cfg.Billing.DefaultMaxOutputTokens)
	}

	wallet, err := s.wallet.GetOrCreateWallet(ctx, req.UserID, s.cfg.Billing.Currency)
	if err != nil {
		return nil, err
	}

	bctx := &billingdomain.Context{
		UserID:        req.UserID,
		WalletID:      wallet.ID,
		RequestID:     requestID,
		ModelID:       req.ModelID,
		Modality:      pricingdomain.ModalityText,
		ReferenceType: billingdomain.ReferenceChatCompletion,
		Currency:      wallet.Currency,
		BillingSource: usageeventdomain.BillingSourcePAYG,

		EstimatedPromptTokens:    estimatedPrompt,
		EstimatedMaxOutputTokens: maxOutput,
	}

	decision, err := s.leadMagnet.Evaluate(ctx, req.UserID, req.ModelID, map[string]int64{
		config.QuotaTokensInput:  estimatedPrompt,
		config.QuotaTokensOutput: maxOutput,
	})
	if err != nil {
		return nil, err
	}
	if decision != nil && decision.Allowed {
		bctx.BillingSource = usageeventdomain.BillingSourceLeadMagnet
		return bctx, nil
	}

	asOf := s.clock.Now().Unix()
	rateIn, err := s.pricing.GetRateCard(ctx, req.ModelID, pricingdomain.ModalityText, pricingdomain.UnitTokenInput, asOf)
	if err != nil {
		return nil, s.mapRateCardErr(err, req.ModelID, pricingdomain.UnitTokenInput)
	}
	rateOut, err := s.pricing.GetRateCard(ctx, req.ModelID, pricingdomain.ModalityText, pricingdomain.UnitTokenOutput, asOf)
	if err != nil {
		return nil, s.mapRateCardErr(err, req.ModelID, pricingdomain.UnitTokenOutput)
	}
	bctx.RateIn = rateIn
	bctx.RateOut = rateOut

	hold := s.pricing.CalculateCost(pricingdomain.TokenUnits(estimatedPrompt), rateIn, 0) +
		s.pricing.CalculateCost(pricingdomain.TokenUnits(maxOutput), rateOut, 0)

	if err := s.placeHold(ctx, bctx, hold); err != nil {
		return nil, err
	}
	return bctx, nil
}

// PreflightUnitHold prices a unit-metered request against one rate card and
// places a hold for the full amount.
func (s *Service) PreflightUnitHold(ctx context.Context, req billingdomain.UnitHoldRequest) (*billingdomain.Context, error) {
	if !s.cfg.Billing.Enabled {
		return nil, nil
	}
	if req.Units.Sign() <= 0 {
		return nil, billingdomain.ErrInvalidUnits
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	wallet, err := s.wallet.GetOrCreateWallet(ctx, req.UserID, s.cfg.Billing.Currency)
	if err != nil {
		return nil, err
	}

	bctx := &billingdomain.Context{
		UserID:        req.UserID,
		WalletID:      wallet.ID,
		RequestID:     requestID,
		ModelID:       req.ModelID,
		Modality:      req.Modality,
		Unit:          req.Unit,
		ReferenceType: billingdomain.ReferenceTypeFor(req.Modality),
		Currency:      wallet.Currency,
		BillingSource: usageeventdomain.BillingSourcePAYG,
		Units:         req.Units,
	}

	if resource, amount := quotaRequirement(req.Modality, req.Unit, req.Units); resource != "" {
		decision, err := s.leadMagnet.Evaluate(ctx, req.UserID, req.ModelID, map[string]int64{resource: amount})
		if err != nil {
			return nil, err
		}
		if decision != nil && decision.Allowed {
			bctx.BillingSource = usageeventdomain.BillingSourceLeadMagnet
			return bctx, nil
		}
	}

	card, err := s.pricing.GetRateCard(ctx, req.ModelID, req.Modality, req.Unit, s.clock.Now().Unix())
	if err != nil {
		return nil, s.mapRateCardErr(err, req.ModelID, req.Unit)
	}
	bctx.RateCard = card

	hold := s.pricing.CalculateCost(req.Units, card, 0)
	if err := s.placeHold(ctx, bctx, hold); err != nil {
		return nil, err
	}
	return bctx, nil
}

// SettleTokenUsage finalizes a token hold against provider-reported usage
// and records the usage event. Missing usage falls back to the preflight
// estimates and marks the event estimated.
func (s *Service) SettleTokenUsage(ctx context.Context, bctx *billingdomain.Context, usage map[string]any, chatID, messageID *string) (*usageeventdomain.UsageEvent, error) {
	if bctx == nil {
		return nil, nil
	}

	prompt := bctx.EstimatedPromptTokens
	completion := bctx.EstimatedMaxOutputTokens
	isEstimated := true
	var estimateReason *string
	if usage != nil {
		prompt = billingdomain.ParseNonNegativeInt(usage["prompt_tokens"])
		completion = billingdomain.ParseNonNegativeInt(usage["completion_tokens"])
		isEstimated = false
	} else {
		reason := usageeventdomain.EstimateReasonUsageMissing
		estimateReason = &reason
	}

	event := &usageeventdomain.UsageEvent{
		UserID:    bctx.UserID,
		WalletID:  bctx.WalletID,
		ChatID:    chatID,
		MessageID: messageID,
		RequestID: bctx.RequestID,
		ModelID:   bctx.ModelID,
		Modality:  bctx.Modality,
		MeasuredUnits: map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
		},
		PromptTokens:     &prompt,
		CompletionTokens: &completion,
		BillingSource:    bctx.BillingSource,
		IsEstimated:      isEstimated,
		EstimateReason:   estimateReason,
	}

	if bctx.FreeQuota() {
		if _, err := s.leadMagnet.Consume(ctx, bctx.UserID, map[string]int64{
			config.QuotaTokensInput:  prompt,
			config.QuotaTokensOutput: completion,
		}); err != nil {
			return nil, err
		}
		return s.usageEvent.Record(ctx, event)
	}

	chargedInput := s.pricing.CalculateCost(pricingdomain.TokenUnits(prompt), bctx.RateIn, 0)
	chargedOutput := s.pricing.CalculateCost(pricingdomain.TokenUnits(completion), bctx.RateOut, 0)
	charge := chargedInput + chargedOutput

	if err := s.finalizeCharge(ctx, bctx, charge, &chargedInput, &chargedOutput); err != nil {
		return nil, err
	}

	rawInput := rawCost(pricingdomain.TokenUnits(prompt), bctx.RateIn)
	rawOutput := rawCost(pricingdomain.TokenUnits(completion), bctx.RateOut)

	event.Provider = bctx.RateIn.Provider
	event.CostRaw = rawInput + rawOutput
	event.CostRawInput = &rawInput
	event.CostRawOutput = &rawOutput
	event.CostCharged = charge
	event.CostChargedInput = &chargedInput
	event.CostChargedOutput = &chargedOutput
	event.RateCardInputID = &bctx.RateIn.ID
	event.RateCardOutputID = &bctx.RateOut.ID

	return s.usageEvent.Record(ctx, event)
}

// SettleUnitUsage finalizes a single-rate hold at the measured unit count.
func (s *Service) SettleUnitUsage(ctx context.Context, bctx *billingdomain.Context, measuredUnits map[string]any, units decimal.Decimal, chatID, messageID *string) (*usageeventdomain.UsageEvent, error) {
	if bctx == nil {
		return nil, nil
	}
	if units.Sign() < 0 {
		return nil, billingdomain.ErrInvalidUnits
	}

	event := &usageeventdomain.UsageEvent{
		UserID:        bctx.UserID,
		WalletID:      bctx.WalletID,
		ChatID:        chatID,
		MessageID:     messageID,
		RequestID:     bctx.RequestID,
		ModelID:       bctx.ModelID,
		Modality:      bctx.Modality,
		MeasuredUnits: measuredUnits,
		BillingSource: bctx.BillingSource,
	}

	if bctx.FreeQuota() {
		if resource, amount := quotaRequirement(bctx.Modality, bctx.Unit, units); resource != "" {
			if _, err := s.leadMagnet.Consume(ctx, bctx.UserID, map[string]int64{resource: amount}); err != nil {
				return nil, err
			}
		}
		return s.usageEvent.Record(ctx, event)
	}

	charge := s.pricing.CalculateCost(units, bctx.RateCard, 0)
	if err := s.finalizeCharge(ctx, bctx, charge, nil, nil); err != nil {
		return nil, err
	}

	event.Provider = bctx.RateCard.Provider
	event.CostRaw = rawCost(units, bctx.RateCard)
	event.CostCharged = charge
	event.RateCardID = &bctx.RateCard.ID

	return s.usageEvent.Record(ctx, event)
}

// ReleaseHold returns the held funds of an abandoned request. Safe to call
// after a settle; the ledger treats that as a no-op.
func (s *Service) ReleaseHold(ctx context.Context, bctx *billingdomain.Context) error {
	if bctx == nil || bctx.FreeQuota() || bctx.HoldAmount <= 0 {
		return nil
	}
	_, err := s.wallet.ReleaseHold(ctx, bctx.WalletID, bctx.RequestID, bctx.ReferenceType)
	if errors.Is(err, walletdomain.ErrHoldNotFound) {
		return nil
	}
	return err
}

// placeHold enforces the wallet's spending limits and places the hold,
// escalating a rejection into an auto-topup attempt. Limits are checked
// before auto-topup so a capped wallet is never topped up.
func (s *Service) placeHold(ctx context.Context, bctx *billingdomain.Context, amount int64) error {
	wallet, err := s.wallet.RefreshWallet(ctx, bctx.WalletID)
	if err != nil {
		return err
	}

	if wallet.MaxReplyCost != nil && amount > *wallet.MaxReplyCost {
		return &billingdomain.MaxReplyCostError{Limit: *wallet.MaxReplyCost, Required: amount}
	}
	if wallet.DailyCap != nil && wallet.DailySpent+amount > *wallet.DailyCap {
		return &billingdomain.DailyCapError{Cap: *wallet.DailyCap, Spent: wallet.DailySpent, Required: amount}
	}

	if amount <= 0 {
		return nil
	}

	holdExpiresAt := s.clock.Now().Unix() + s.cfg.Billing.HoldTTLSeconds
	_, err = s.wallet.HoldFunds(ctx, walletdomain.HoldRequest{
		WalletID:      bctx.WalletID,
		Amount:        amount,
		ReferenceID:   bctx.RequestID,
		ReferenceType: bctx.ReferenceType,
		HoldExpiresAt: &holdExpiresAt,
	})
	if errors.Is(err, walletdomain.ErrInsufficientFunds) {
		return s.rejectInsufficient(ctx, bctx, wallet, amount)
	}
	if err != nil {
		return err
	}

	bctx.HoldAmount = amount
	return nil
}

func (s *Service) rejectInsufficient(ctx context.Context, bctx *billingdomain.Context, wallet *walletdomain.Wallet, required int64) error {
	available := wallet.Available()
	reason := bctx.Modality + "_preflight"
	s.obsMetrics.RecordInsufficientFunds(ctx, reason)

	var autoTopup *paymentdomain.AutoTopupResult
	if s.payment != nil {
		result, err := s.payment.MaybeTriggerAutoTopup(ctx, bctx.UserID, bctx.WalletID, available, required, reason)
		if err != nil {
			s.log.Warn("auto topup attempt failed",
				zap.String("user_id", bctx.UserID),
				zap.Error(err),
			)
		} else {
			autoTopup = result
		}
	}

	s.log.Info("hold rejected",
		zap.String("user_id", bctx.UserID),
		zap.String("request_id", bctx.RequestID),
		zap.Int64("available", available),
		zap.Int64("required", required),
	)

	return &billingdomain.InsufficientFundsError{
		Available: available,
		Required:  required,
		Currency:  wallet.Currency,
		AutoTopup: autoTopup,
	}
}

// finalizeCharge settles the hold at the final charge. A charge above the
// hold settles the full hold and debits the overage as an adjustment on the
// same reference, so the request still costs exactly what was measured.
func (s *Service) finalizeCharge(ctx context.Context, bctx *billingdomain.Context, charge int64, chargedInput, chargedOutput *int64) error {
	if bctx.HoldAmount <= 0 {
		if charge <= 0 {
			return nil
		}
		_, err := s.wallet.ApplyAdjustment(ctx, walletdomain.AdjustmentRequest{
			WalletID:      bctx.WalletID,
			Amount:        -charge,
			ReferenceID:   bctx.RequestID,
			ReferenceType: bctx.ReferenceType,
			Metadata:      map[string]any{walletdomain.MetaReason: "direct_charge"},
		})
		return err
	}

	settleAmount := charge
	if settleAmount > bctx.HoldAmount {
		settleAmount = bctx.HoldAmount
	}
	if _, err := s.wallet.SettleHold(ctx, walletdomain.SettleRequest{
		WalletID:      bctx.WalletID,
		ReferenceID:   bctx.RequestID,
		ReferenceType: bctx.ReferenceType,
		Amount:        settleAmount,
		ChargedInput:  chargedInput,
		ChargedOutput: chargedOutput,
	}); err != nil {
		return err
	}

	if overage := charge - bctx.HoldAmount; overage > 0 {
		s.log.Warn("charge exceeds hold",
			zap.String("request_id", bctx.RequestID),
			zap.Int64("hold", bctx.HoldAmount),
			zap.Int64("charge", charge),
		)
		if _, err := s.wallet.ApplyAdjustment(ctx, walletdomain.AdjustmentRequest{
			WalletID:      bctx.WalletID,
			Amount:        -overage,
			ReferenceID:   bctx.RequestID,
			ReferenceType: bctx.ReferenceType,
			Metadata:      map[string]any{walletdomain.MetaReason: "charge_exceeds_hold"},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mapRateCardErr(err error, modelID, unit string) error {
	if errors.Is(err, pricingdomain.ErrNoActiveRateCard) {
		s.log.Info("no active rate card",
			zap.String("model_id", modelID),
			zap.String("unit", unit),
		)
		return billingdomain.ErrModalityDisabled
	}
	return err
}

// quotaRequirement maps a single-rate request onto a free-quota resource.
// Speech characters convert to estimated audio seconds; other modalities
// round units up. Text is handled by the token preflight.
func quotaRequirement(modality, unit string, units decimal.Decimal) (string, int64) {
	switch modality {
	case pricingdomain.ModalityImage:
		return config.QuotaImages, units.Ceil().IntPart()
	case pricingdomain.ModalityTTS:
		if unit == "tts_char" {
			return config.QuotaTTSSeconds, leadmagnetdomain.EstimateTTSSeconds(int(units.Ceil().IntPart()))
		}
		return config.QuotaTTSSeconds, units.Ceil().IntPart()
	case pricingdomain.ModalitySTT:
		return config.QuotaSTTSeconds, units.Ceil().IntPart()
	default:
		return "", 0
	}
}

// rawCost is the provider-side cost before markup, fees and floors.
func rawCost(units decimal.Decimal, card *pricingdomain.RateCard) int64 {
	if units.Sign() <= 0 || card == nil {
		return 0
	}
	return units.Mul(decimal.NewFromInt(card.RawCostPerUnit)).Ceil().IntPart()
}
