package domain

import "errors"

var (
	ErrInvalidTopupAmount = errors.New("invalid_topup_amount")
	ErrPaymentNotFound    = errors.New("payment_not_found")
)
