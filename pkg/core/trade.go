package core

import (
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Trade is a single fill between a resting maker and an incoming taker.
// Trades are values and never change once created.
type Trade struct {
	ID            string
	Symbol        string
	Price         fpdecimal.Decimal
	Quantity      fpdecimal.Decimal
	AggressorSide Side
	MakerOrderID  string
	TakerOrderID  string
	Timestamp     time.Time
}
