package loss

import (
	"errors"
	"fmt"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// ErrShapeMismatch is returned when two operands have incompatible shapes.
// It is the same sentinel the tensor package uses, so errors.Is works across
// both packages.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// ErrInvalidWindow is returned for an even or non-positive window size, or a
// non-positive sigma.
var ErrInvalidWindow = errors.New("invalid gaussian window")

// ErrInvalidScale is returned when a multi-scale factor is below 1.
var ErrInvalidScale = errors.New("invalid scale factor")

// ErrDimensionTooSmall is returned when an axis is too short for a
// finite-difference loss. Use errors.Is(err, ErrDimensionTooSmall).
var ErrDimensionTooSmall = &DimensionTooSmallError{}

// DimensionTooSmallError reports an axis with fewer than the required samples.
type DimensionTooSmallError struct {
	Axis string
	Size int
	Min  int
}

func (e *DimensionTooSmallError) Error() string {
	if e.Axis == "" {
		return "dimension too small"
	}
	return fmt.Sprintf("dimension too small: %s has %d samples, need at least %d", e.Axis, e.Size, e.Min)
}

func (e *DimensionTooSmallError) Is(target error) bool {
	_, ok := target.(*DimensionTooSmallError)
	return ok
}

// ErrResampleDegenerate is returned when downscaling would produce an empty
// spatial axis. Use errors.Is(err, ErrResampleDegenerate).
var ErrResampleDegenerate = &ResampleDegenerateError{}

// ResampleDegenerateError reports a scale factor that shrinks an input below
// one pixel.
type ResampleDegenerateError struct {
	Scale         int
	Height, Width int
}

func (e *ResampleDegenerateError) Error() string {
	if e.Scale == 0 {
		return "resample degenerate"
	}
	return fmt.Sprintf("resample degenerate: %dx%d at 1/%d has an empty axis", e.Height, e.Width, e.Scale)
}

func (e *ResampleDegenerateError) Is(target error) bool {
	_, ok := target.(*ResampleDegenerateError)
	return ok
}
