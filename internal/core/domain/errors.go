package domain

import "errors"

// Validation errors. Callers surface these to the user without touching
// any store.
var (
	ErrMissingName        = errors.New("name is required")
	ErrMissingTitle       = errors.New("title is required")
	ErrMissingDestination = errors.New("destination is required")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrExceedsAvailable   = errors.New("quantity exceeds available amount")
	ErrInvalidPrice       = errors.New("price must not be negative")
	ErrQuantityPrecision  = errors.New("quantity allows at most 3 decimal places")
	ErrPricePrecision     = errors.New("price allows at most 2 decimal places")
	ErrInvalidDistance    = errors.New("distance must be positive")
	ErrInvalidSchedule    = errors.New("end must not be before start")
	ErrInvalidKind        = errors.New("unknown kind")
	ErrInvalidEmail       = errors.New("email is required")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrMissingFarm        = errors.New("farm name is required for farmers")
	ErrInvalidCarrierRate = errors.New("price per km must be positive")
	ErrInvalidCapacity    = errors.New("max capacity must be positive")
	ErrUnknownRole        = errors.New("unknown role")
)

// State errors raised by lifecycle rules.
var (
	ErrListingSold       = errors.New("listing already sold")
	ErrInvalidTransition = errors.New("invalid status transition")
)
