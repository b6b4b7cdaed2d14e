package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense, row-major N-dimensional array of float64 values.
//
// Image tensors follow the [batch, channels, height, width] layout; rank-3
// tensors are read as [channels, height, width].
type Tensor struct {
	shape []int
	data  []float64
}

// New allocates a zero-filled tensor with the given shape
func New(shape ...int) *Tensor {
	return &Tensor{
		shape: append([]int(nil), shape...),
		data:  make([]float64, numel(shape)),
	}
}

// Full allocates a tensor with every element set to value
func Full(value float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice wraps data in a tensor of the given shape. The slice is not copied.
func FromSlice(data []float64, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("tensor: %d values cannot fill shape %v (%d elements)", len(data), shape, n)
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data}, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

// Shape returns a copy of the tensor's shape
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank returns the number of dimensions
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len returns the total number of elements
func (t *Tensor) Len() int {
	return len(t.data)
}

// Dim returns the size of dimension i. Negative indices count from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Data returns the backing slice. Callers must treat it as read-only unless
// they own the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v does not match rank %d", idx, len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// At returns the element at the given index
func (t *Tensor) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set writes v at the given index
func (t *Tensor) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

// Clone returns a deep copy
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape: append([]int(nil), t.shape...),
		data:  append([]float64(nil), t.data...),
	}
}

// Reshape returns a tensor sharing t's data with a new shape
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if numel(shape) != len(t.data) {
		return nil, &ShapeMismatchError{Op: "reshape", Left: t.Shape(), Right: shape}
	}
	return &Tensor{shape: append([]int(nil), shape...), data: t.data}, nil
}

// AsBatch returns t viewed as a rank-4 [N, C, H, W] tensor. Rank-3 tensors
// gain a leading batch dimension of 1.
func (t *Tensor) AsBatch() (*Tensor, error) {
	switch t.Rank() {
	case 4:
		return t, nil
	case 3:
		return t.Reshape(1, t.shape[0], t.shape[1], t.shape[2])
	default:
		return nil, fmt.Errorf("tensor: expected rank 3 or 4, got shape %v: %w", t.shape, ErrShapeMismatch)
	}
}

// Plane returns a matrix view over the [H, W] plane at (n, c) of a rank-4
// tensor. The view shares storage with t.
func (t *Tensor) Plane(n, c int) *mat.Dense {
	if t.Rank() != 4 {
		panic(fmt.Sprintf("tensor: Plane requires rank 4, got shape %v", t.shape))
	}
	h, w := t.shape[2], t.shape[3]
	start := (n*t.shape[1] + c) * h * w
	return mat.NewDense(h, w, t.data[start:start+h*w])
}

// SameShape reports whether a and b have identical shapes
func SameShape(a, b *Tensor) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

func checkSame(op string, a, b *Tensor) error {
	if !SameShape(a, b) {
		return &ShapeMismatchError{Op: op, Left: a.Shape(), Right: b.Shape()}
	}
	return nil
}

// Add returns a + b element-wise
func Add(a, b *Tensor) (*Tensor, error) {
	if err := checkSame("add", a, b); err != nil {
		return nil, err
	}
	out := New(a.shape...)
	floats.AddTo(out.data, a.data, b.data)
	return out, nil
}

// Sub returns a - b element-wise
func Sub(a, b *Tensor) (*Tensor, error) {
	if err := checkSame("sub", a, b); err != nil {
		return nil, err
	}
	out := New(a.shape...)
	floats.SubTo(out.data, a.data, b.data)
	return out, nil
}

// Mul returns a * b element-wise
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := checkSame("mul", a, b); err != nil {
		return nil, err
	}
	out := New(a.shape...)
	floats.MulTo(out.data, a.data, b.data)
	return out, nil
}

// Scale returns c * t
func (t *Tensor) Scale(c float64) *Tensor {
	out := New(t.shape...)
	floats.ScaleTo(out.data, c, t.data)
	return out
}

// Square returns t * t element-wise
func (t *Tensor) Square() *Tensor {
	out := New(t.shape...)
	floats.MulTo(out.data, t.data, t.data)
	return out
}

// Sum returns the sum of all elements
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// Mean returns the arithmetic mean of all elements. The mean of an empty
// tensor is NaN.
func (t *Tensor) Mean() float64 {
	return floats.Sum(t.data) / float64(len(t.data))
}

// MeanPerBatch averages over every dimension except the first and returns
// one value per leading index.
func (t *Tensor) MeanPerBatch() []float64 {
	if t.Rank() == 0 {
		return []float64{t.Mean()}
	}
	n := t.shape[0]
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	stride := len(t.data) / n
	for i := 0; i < n; i++ {
		out[i] = floats.Sum(t.data[i*stride:(i+1)*stride]) / float64(stride)
	}
	return out
}

// NarrowChannels keeps the first n entries of dimension 1 of a rank-4 tensor
func (t *Tensor) NarrowChannels(n int) (*Tensor, error) {
	if t.Rank() != 4 {
		return nil, fmt.Errorf("tensor: narrow requires rank 4, got shape %v: %w", t.shape, ErrShapeMismatch)
	}
	batch, c, h, w := t.shape[0], t.shape[1], t.shape[2], t.shape[3]
	if n < 0 || n > c {
		return nil, fmt.Errorf("tensor: cannot narrow %d channels to %d: %w", c, n, ErrShapeMismatch)
	}
	if n == c {
		return t, nil
	}
	out := New(batch, n, h, w)
	plane := h * w
	for b := 0; b < batch; b++ {
		src := t.data[b*c*plane : (b*c+n)*plane]
		copy(out.data[b*n*plane:(b+1)*n*plane], src)
	}
	return out, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}
