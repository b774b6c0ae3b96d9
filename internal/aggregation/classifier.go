package aggregation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the taker side of a trade.
type Side int

const (
	Sell Side = iota
	Buy
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// TradeEvent is one executed trade as seen by the classifier.
type TradeEvent struct {
	Notional decimal.Decimal // price * quantity in quote currency
	Side     Side
}

// Thresholds is the size-tier table. Amounts are measured in whole multiples of Unit
// (truncated); anything below Min is ignored.
type Thresholds struct {
	Unit   int64
	Min    int64
	Medium int64
	Large  int64
}

// DefaultThresholds filters trades under 10k and splits at 100k and 1M quote currency.
func DefaultThresholds() Thresholds {
	return Thresholds{Unit: 1000, Min: 10, Medium: 100, Large: 1000}
}

// Validate rejects tables that cannot classify consistently.
func (t Thresholds) Validate() error {
	if t.Unit <= 0 {
		return fmt.Errorf("unit must be positive, got %d", t.Unit)
	}
	if t.Min < 0 || t.Medium <= t.Min || t.Large <= t.Medium {
		return fmt.Errorf("thresholds must increase: min=%d medium=%d large=%d", t.Min, t.Medium, t.Large)
	}
	return nil
}

// Units converts a notional value into whole units, truncating toward zero.
func (t Thresholds) Units(notional decimal.Decimal) int64 {
	return notional.Div(decimal.NewFromInt(t.Unit)).Truncate(0).IntPart()
}

// Classify maps a trade to its slot and amount. ok is false when the trade is
// below the minimum and must not be counted anywhere.
func (t Thresholds) Classify(ev TradeEvent) (index int, amount int64, ok bool) {
	amount = t.Units(ev.Notional)
	if amount < t.Min {
		return 0, 0, false
	}

	tier := 0
	switch {
	case amount >= t.Large:
		tier = 2
	case amount >= t.Medium:
		tier = 1
	}

	return tier*2 + int(ev.Side), amount, true
}
