package aggregation

import "sync"

// Accumulator collects classified trades into two independent vectors: one drained
// for live broadcasts once enough trades arrived, one drained on the persistence
// cadence. All methods are safe for concurrent use.
type Accumulator struct {
	mu sync.Mutex

	thresholds    Thresholds
	liveThreshold int

	live      Vector
	liveCount int
	persist   Vector
}

// NewAccumulator creates an accumulator. liveThreshold below 1 is treated as 1.
func NewAccumulator(t Thresholds, liveThreshold int) *Accumulator {
	if liveThreshold < 1 {
		liveThreshold = 1
	}
	return &Accumulator{
		thresholds:    t,
		liveThreshold: liveThreshold,
	}
}

// Absorb classifies each trade and adds qualifying ones to both vectors.
// It returns how many trades qualified.
func (a *Accumulator) Absorb(events []TradeEvent) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	absorbed := 0
	for _, ev := range events {
		idx, amount, ok := a.thresholds.Classify(ev)
		if !ok {
			continue
		}
		a.live[idx] += amount
		a.persist[idx] += amount
		a.liveCount++
		absorbed++
	}
	return absorbed
}

// DrainLive returns the live vector and resets it together with the live count.
func (a *Accumulator) DrainLive() Vector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drainLiveLocked()
}

// DrainLiveIfReady drains the live vector only when the live count reached the
// threshold. Check and drain happen under one lock.
func (a *Accumulator) DrainLiveIfReady() (Vector, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.liveCount < a.liveThreshold {
		return Vector{}, false
	}
	return a.drainLiveLocked(), true
}

func (a *Accumulator) drainLiveLocked() Vector {
	out := a.live
	a.live = Vector{}
	a.liveCount = 0
	return out
}

// DrainPersistence returns the persistence vector and resets it.
func (a *Accumulator) DrainPersistence() Vector {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.persist
	a.persist = Vector{}
	return out
}

// LiveCount returns the number of qualifying trades since the last live drain.
func (a *Accumulator) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveCount
}

// Pending returns a copy of the persistence vector without draining it.
func (a *Accumulator) Pending() Vector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persist
}
