package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// MSE returns the mean squared difference between two equally shaped tensors
func MSE(a, b *tensor.Tensor) (float64, error) {
	diff, err := tensor.Sub(a, b)
	if err != nil {
		return 0, err
	}
	d := diff.Data()
	return floats.Dot(d, d) / float64(len(d)), nil
}

// L1 returns the mean absolute difference between two equally shaped tensors
func L1(a, b *tensor.Tensor) (float64, error) {
	if !tensor.SameShape(a, b) {
		return 0, &tensor.ShapeMismatchError{Op: "l1", Left: a.Shape(), Right: b.Shape()}
	}
	return floats.Distance(a.Data(), b.Data(), 1) / float64(a.Len()), nil
}

// PSNR returns the peak signal-to-noise ratio in dB for inputs scaled to
// [0, 1]. Identical inputs give +Inf.
func PSNR(a, b *tensor.Tensor) (float64, error) {
	return PSNRWithMax(a, b, 1.0)
}

// PSNRWithMax returns 20*log10(maxValue/sqrt(mse)). A zero error gives +Inf
// rather than NaN.
func PSNRWithMax(a, b *tensor.Tensor, maxValue float64) (float64, error) {
	if !(maxValue > 0) {
		return 0, fmt.Errorf("psnr: max value %v must be positive", maxValue)
	}

	mse, err := MSE(a, b)
	if err != nil {
		return 0, fmt.Errorf("psnr: %w", err)
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 20 * math.Log10(maxValue/math.Sqrt(mse)), nil
}
