package cache

import "strings"

const (
	ratioKey      = "ratio:latest"
	rangeKeyStart = "range:"
)

// RatioKey holds the latest ratio snapshot.
func RatioKey() string { return ratioKey }

// RangeKey holds the cached bucket sum of one period for one symbol.
func RangeKey(symbol, period string) string {
	return rangeKeyStart + strings.ToLower(symbol) + ":" + period
}
