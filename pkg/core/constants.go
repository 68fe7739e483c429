package core

import "errors"

// Errors
var (
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrMissingPrice        = errors.New("missing price")
	ErrMissingTriggerPrice = errors.New("missing trigger price")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidSide         = errors.New("invalid side")
	ErrInvalidOrderType    = errors.New("invalid order type")
	ErrSymbolMismatch      = errors.New("symbol does not match order book")
	ErrOrderExists         = errors.New("order exists")
	ErrNonexistentOrder    = errors.New("nonexistent order")
	ErrInvalidPolicy       = errors.New("invalid reference price policy")
)

// DefaultDepthLevels is the number of levels per side returned when a depth
// request does not name a positive count.
const DefaultDepthLevels = 10

// IsValidationError reports whether err is an admission rejection caused by
// the order itself rather than the state of the book.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrMissingPrice) ||
		errors.Is(err, ErrMissingTriggerPrice) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrInvalidOrderType) ||
		errors.Is(err, ErrSymbolMismatch)
}
