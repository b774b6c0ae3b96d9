package aggregation

// Slot positions inside a Vector. Even slots are taker sells, odd slots taker buys.
const (
	SellSmall = iota
	BuySmall
	SellMedium
	BuyMedium
	SellLarge
	BuyLarge

	Slots
)

// Vector holds the six bucket counters in the order
// sell-small, buy-small, sell-medium, buy-medium, sell-large, buy-large.
// It encodes to JSON as a 6-element array.
type Vector [Slots]int64

// IsZero reports whether every counter is zero.
func (v Vector) IsZero() bool {
	return v == Vector{}
}

// Add returns the element-wise sum of v and o.
func (v Vector) Add(o Vector) Vector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// Short is the taker sell total (slots 0, 2, 4).
func (v Vector) Short() int64 {
	return v[SellSmall] + v[SellMedium] + v[SellLarge]
}

// Long is the taker buy total (slots 1, 3, 5).
func (v Vector) Long() int64 {
	return v[BuySmall] + v[BuyMedium] + v[BuyLarge]
}

// Total is Short plus Long.
func (v Vector) Total() int64 {
	return v.Short() + v.Long()
}

// Slice returns the counters as a slice, for storage drivers that take arrays.
func (v Vector) Slice() []int64 {
	out := make([]int64, Slots)
	copy(out, v[:])
	return out
}

// VectorFrom copies up to six values into a Vector.
func VectorFrom(values []int64) Vector {
	var v Vector
	copy(v[:], values)
	return v
}
