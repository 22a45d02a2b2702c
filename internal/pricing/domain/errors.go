package domain

import "errors"

var (
	ErrNoActiveRateCard = errors.New("no_active_rate_card")
	ErrRateCardNotFound = errors.New("rate_card_not_found")
)
