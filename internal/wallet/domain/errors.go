package domain

import "errors"

var (
	ErrWalletNotFound    = errors.New("wallet_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrHoldNotFound      = errors.New("hold_not_found")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrSettleExceedsHold = errors.New("settle_exceeds_hold")
)
