package eval

import (
	"log/slog"
	"math"
)

// TrendConfig defines when a series of evaluations counts as stalled
type TrendConfig struct {
	// Patience is the number of consecutive evaluations without significant
	// improvement before the series is flagged as stalled
	Patience int

	// Threshold is the minimum relative cost decrease that counts as progress,
	// measured against the last significant cost: (last - cost) / last
	Threshold float64
}

// DefaultTrendConfig returns a patience of 3 evaluations at 0.1% improvement
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		Patience:  3,
		Threshold: 0.001,
	}
}

// TrendTracker follows a lower-is-better cost across evaluations, e.g.
// Report.Cost over successive training checkpoints.
type TrendTracker struct {
	config          TrendConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewTrendTracker creates a tracker with the given config
func NewTrendTracker(config TrendConfig) *TrendTracker {
	return &TrendTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a cost and reports whether the series has stalled
func (t *TrendTracker) Update(cost float64) bool {
	t.history = append(t.history, cost)
	if cost < t.best {
		t.best = cost
	}

	if len(t.history) == 1 {
		t.lastSignificant = cost
		return false
	}

	var improvement float64
	switch {
	case t.lastSignificant == 0:
		// Nothing left to improve on
		improvement = 0
	default:
		improvement = (t.lastSignificant - cost) / math.Abs(t.lastSignificant)
	}

	if improvement >= t.config.Threshold {
		t.lastSignificant = cost
		t.staleCount = 0
		slog.Debug("Cost improvement detected", "cost", cost, "relative_improvement", improvement)
		return false
	}

	t.staleCount++
	slog.Debug("No significant cost improvement",
		"cost", cost,
		"last_significant", t.lastSignificant,
		"stale_count", t.staleCount,
		"patience", t.config.Patience,
	)
	return t.staleCount >= t.config.Patience
}

// Best returns the lowest cost seen
func (t *TrendTracker) Best() float64 {
	return t.best
}

// History returns a copy of all recorded costs
func (t *TrendTracker) History() []float64 {
	return append([]float64{}, t.history...)
}

// StaleCount returns the number of evaluations since the last significant
// improvement
func (t *TrendTracker) StaleCount() int {
	return t.staleCount
}
