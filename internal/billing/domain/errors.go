package domain

import (
	"errors"
	"fmt"

	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
)

var (
	// ErrInvalidUnits rejects single-rate preflights with zero or negative
	// unit counts.
	ErrInvalidUnits = errors.New("invalid_units")

	// ErrModalityDisabled means no active rate card covers the requested
	// (model, modality, unit) key, so the modality cannot be billed.
	ErrModalityDisabled = errors.New("modality_disabled")
)

// InsufficientFundsError carries everything a client needs to resolve a
// rejected hold, including the outcome of the auto-topup attempt the
// rejection triggered.
type InsufficientFundsError struct {
	Available int64
	Required  int64
	Currency  string
	AutoTopup *paymentdomain.AutoTopupResult
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, required %d %s", e.Available, e.Required, e.Currency)
}

// MaxReplyCostError rejects a hold larger than the wallet's per-reply limit.
type MaxReplyCostError struct {
	Limit    int64
	Required int64
}

func (e *MaxReplyCostError) Error() string {
	return fmt.Sprintf("max reply cost exceeded: limit %d, required %d", e.Limit, e.Required)
}

// DailyCapError rejects a hold that would push the daily spend over the
// wallet's cap.
type DailyCapError struct {
	Cap      int64
	Spent    int64
	Required int64
}

func (e *DailyCapError) Error() string {
	return fmt.Sprintf("daily cap exceeded: cap %d, spent %d, required %d", e.Cap, e.Spent, e.Required)
}
