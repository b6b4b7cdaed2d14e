package loss

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// SSIM stability constants for images scaled to [0, 1]
const (
	ssimC1 = 0.01 * 0.01
	ssimC2 = 0.03 * 0.03
)

// SSIM returns the structural similarity of two images averaged over every
// pixel, channel and batch element.
//
// Images are [C, H, W] or [N, C, H, W] with values in [0, 1]. Identical
// inputs score 1.
func SSIM(img1, img2 *tensor.Tensor, windowSize int) (float64, error) {
	scores, err := ssim(img1, img2, windowSize, true)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// SSIMPerImage returns one SSIM score per batch element, each the mean over
// channels, height and width. Rank-3 inputs yield a single score.
func SSIMPerImage(img1, img2 *tensor.Tensor, windowSize int) ([]float64, error) {
	return ssim(img1, img2, windowSize, false)
}

func ssim(img1, img2 *tensor.Tensor, windowSize int, sizeAverage bool) ([]float64, error) {
	if err := checkImagePair(img1, img2); err != nil {
		return nil, err
	}

	window, err := CreateWindow(windowSize, img1.Dim(-3))
	if err != nil {
		return nil, err
	}
	return SSIMWithWindow(img1, img2, window, sizeAverage)
}

// SSIMWithWindow computes SSIM with a prebuilt [C, 1, k, k] window, letting
// callers reuse one window across calls. With sizeAverage the result holds a
// single value; otherwise it holds one value per batch element.
func SSIMWithWindow(img1, img2, window *tensor.Tensor, sizeAverage bool) ([]float64, error) {
	m, err := SSIMMap(img1, img2, window)
	if err != nil {
		return nil, err
	}
	if sizeAverage {
		return []float64{m.Mean()}, nil
	}
	return m.MeanPerBatch(), nil
}

// SSIMMap returns the per-pixel SSIM map, shaped [N, C, H, W].
func SSIMMap(img1, img2, window *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkImagePair(img1, img2); err != nil {
		return nil, err
	}

	x, err := img1.AsBatch()
	if err != nil {
		return nil, err
	}
	y, err := img2.AsBatch()
	if err != nil {
		return nil, err
	}

	channel := x.Dim(1)
	if window.Rank() != 4 || window.Dim(0) != channel || window.Dim(1) != 1 ||
		window.Dim(2) != window.Dim(3) || window.Dim(2)%2 == 0 {
		return nil, &tensor.ShapeMismatchError{Op: "ssim window", Left: x.Shape(), Right: window.Shape()}
	}
	pad := window.Dim(2) / 2

	xx := x.Square()
	yy := y.Square()
	xy, err := tensor.Mul(x, y)
	if err != nil {
		return nil, err
	}

	// mu1, mu2, E[x^2], E[y^2], E[xy]
	var stats [5]*tensor.Tensor
	for i, in := range []*tensor.Tensor{x, y, xx, yy, xy} {
		stats[i], err = tensor.Conv2DGrouped(in, window, pad)
		if err != nil {
			return nil, fmt.Errorf("ssim local statistics: %w", err)
		}
	}

	mu1, mu2 := stats[0].Data(), stats[1].Data()
	e11, e22, e12 := stats[2].Data(), stats[3].Data(), stats[4].Data()

	out := tensor.New(stats[0].Shape()...)
	m := out.Data()
	for i := range m {
		mu1sq := mu1[i] * mu1[i]
		mu2sq := mu2[i] * mu2[i]
		mu12 := mu1[i] * mu2[i]

		sigma1sq := e11[i] - mu1sq
		sigma2sq := e22[i] - mu2sq
		sigma12 := e12[i] - mu12

		m[i] = ((2*mu12 + ssimC1) * (2*sigma12 + ssimC2)) /
			((mu1sq + mu2sq + ssimC1) * (sigma1sq + sigma2sq + ssimC2))
	}

	slog.Debug("SSIM map computed", "shape", out.Shape(), "window", window.Dim(2))
	return out, nil
}

// checkImagePair rejects pairs that are not identically shaped rank-3 or
// rank-4 image tensors.
func checkImagePair(img1, img2 *tensor.Tensor) error {
	if !tensor.SameShape(img1, img2) {
		return &tensor.ShapeMismatchError{Op: "ssim", Left: img1.Shape(), Right: img2.Shape()}
	}
	if r := img1.Rank(); r != 3 && r != 4 {
		return fmt.Errorf("ssim expects [C,H,W] or [N,C,H,W], got %v: %w", img1.Shape(), ErrShapeMismatch)
	}
	return nil
}
