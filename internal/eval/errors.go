package eval

import (
	"errors"
	"fmt"
)

// ErrEmptyRequest is returned when a request carries neither an image nor a
// depth pair.
var ErrEmptyRequest = errors.New("evaluation request has no inputs")

// ErrNonFiniteMetric is returned when a metric evaluates to NaN or an
// infinity it cannot represent. Use errors.Is(err, ErrNonFiniteMetric).
var ErrNonFiniteMetric = &NonFiniteMetricError{}

// NonFiniteMetricError reports the metric that produced a non-finite value,
// usually because an input contained NaN or Inf samples. +Inf PSNR for
// identical inputs is not an error.
type NonFiniteMetricError struct {
	Metric string
	Value  float64
}

func (e *NonFiniteMetricError) Error() string {
	if e.Metric == "" {
		return "metric is not finite"
	}
	return fmt.Sprintf("metric %s is not finite (%v); check the inputs for NaN or Inf samples", e.Metric, e.Value)
}

func (e *NonFiniteMetricError) Is(target error) bool {
	_, ok := target.(*NonFiniteMetricError)
	return ok
}
