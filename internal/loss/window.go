package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

const (
	// DefaultWindowSize is the SSIM window edge length
	DefaultWindowSize = 11

	// DefaultSigma is the standard deviation of the SSIM Gaussian window
	DefaultSigma = 1.5
)

// Gaussian returns windowSize samples of a Gaussian centered at
// windowSize/2 with the given sigma, normalized to sum to 1.
func Gaussian(windowSize int, sigma float64) ([]float64, error) {
	if windowSize <= 0 || windowSize%2 == 0 {
		return nil, fmt.Errorf("window size %d must be odd and positive: %w", windowSize, ErrInvalidWindow)
	}
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("sigma %v must be positive and finite: %w", sigma, ErrInvalidWindow)
	}

	center := windowSize / 2
	g := make([]float64, windowSize)
	for x := range g {
		d := float64(x - center)
		g[x] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(g), g)
	return g, nil
}

// CreateWindow builds the [channel, 1, windowSize, windowSize] SSIM
// convolution window with sigma 1.5.
func CreateWindow(windowSize, channel int) (*tensor.Tensor, error) {
	return CreateWindowSigma(windowSize, channel, DefaultSigma)
}

// CreateWindowSigma builds a separable 2D Gaussian window, the outer product
// of the 1D Gaussian with itself, replicated once per channel.
func CreateWindowSigma(windowSize, channel int, sigma float64) (*tensor.Tensor, error) {
	if channel <= 0 {
		return nil, fmt.Errorf("channel count %d must be positive: %w", channel, ErrShapeMismatch)
	}

	g, err := Gaussian(windowSize, sigma)
	if err != nil {
		return nil, err
	}

	v := mat.NewVecDense(windowSize, g)
	var kernel mat.Dense
	kernel.Outer(1, v, v)

	window := tensor.New(channel, 1, windowSize, windowSize)
	for c := 0; c < channel; c++ {
		window.Plane(c, 0).Copy(&kernel)
	}
	return window, nil
}
