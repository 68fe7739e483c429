// Package api holds the wire types shared by the HTTP, websocket, gRPC and
// queue transports, and the conversions from engine types.
package api

import (
	"errors"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/shopspring/decimal"
)

// EnginePlaces is the number of fraction digits the engine's fixed point keeps
const EnginePlaces = 3

var (
	// ErrPrecision is returned for values with more fraction digits than the engine keeps
	ErrPrecision = errors.New("too many decimal places")
	// ErrOutOfRange is returned for values the engine's fixed point cannot hold
	ErrOutOfRange = errors.New("decimal out of range")
	// ErrInvalidDecimal is returned for malformed numbers
	ErrInvalidDecimal = errors.New("invalid decimal")
)

var maxMagnitude = decimal.New(1, 15)

// ToFixed converts an arbitrary precision decimal into the engine's fixed
// point. Values are never rounded: anything that would change under rounding
// is rejected.
func ToFixed(d decimal.Decimal) (fpdecimal.Decimal, error) {
	if !d.Equal(d.Truncate(EnginePlaces)) {
		return fpdecimal.Zero, fmt.Errorf("%w: %s has more than %d", ErrPrecision, d.String(), EnginePlaces)
	}
	if d.Abs().GreaterThanOrEqual(maxMagnitude) {
		return fpdecimal.Zero, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return fpdecimal.FromString(d.StringFixed(EnginePlaces))
}

// ParseDecimal parses a decimal string into the engine's fixed point
func ParseDecimal(s string) (fpdecimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fpdecimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	return ToFixed(d)
}

// optionalFixed converts a nullable decimal, reporting whether it was set
func optionalFixed(d decimal.NullDecimal) (*fpdecimal.Decimal, error) {
	if !d.Valid {
		return nil, nil
	}
	v, err := ToFixed(d.Decimal)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// IsDecimalError reports whether err came from decimal conversion
func IsDecimalError(err error) bool {
	return errors.Is(err, ErrPrecision) || errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrInvalidDecimal)
}
