package tensor

import "fmt"

// ErrShapeMismatch is returned when operand shapes are incompatible.
// Use errors.Is(err, ErrShapeMismatch) to check for this error.
var ErrShapeMismatch = &ShapeMismatchError{}

// ShapeMismatchError describes two operands whose shapes cannot be combined.
type ShapeMismatchError struct {
	Op    string
	Left  []int
	Right []int
}

func (e *ShapeMismatchError) Error() string {
	if e.Op == "" {
		return "shape mismatch"
	}
	return fmt.Sprintf("shape mismatch in %s: %v vs %v", e.Op, e.Left, e.Right)
}

func (e *ShapeMismatchError) Is(target error) bool {
	_, ok := target.(*ShapeMismatchError)
	return ok
}
