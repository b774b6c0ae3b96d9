package binance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"takerflow/internal/aggregation"
)

// Notional returns price * quantity in quote currency.
func (t AggTrade) Notional() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", t.Price, err)
	}
	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quantity %q: %w", t.Quantity, err)
	}
	return price.Mul(qty), nil
}

// TakerSide maps the maker flag to the aggressor side.
func (t AggTrade) TakerSide() aggregation.Side {
	if t.IsBuyerMaker {
		return aggregation.Sell
	}
	return aggregation.Buy
}

func (t AggTrade) Time() time.Time {
	return time.UnixMilli(t.TradeTime)
}

// ToTradeEvent converts a wire trade for the classifier.
func (t AggTrade) ToTradeEvent() (aggregation.TradeEvent, error) {
	notional, err := t.Notional()
	if err != nil {
		return aggregation.TradeEvent{}, err
	}
	return aggregation.TradeEvent{Notional: notional, Side: t.TakerSide()}, nil
}
