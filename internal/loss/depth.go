package loss

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// DefaultDepthScales are the downscale factors used by MultiScaleDepthLoss
// when none are given.
var DefaultDepthScales = []int{1, 2, 4}

// DepthDifference returns the mean absolute difference between a predicted
// and a ground-truth depth map of identical shape.
func DepthDifference(predicted, gt *tensor.Tensor) (float64, error) {
	l, err := L1(predicted, gt)
	if err != nil {
		return 0, fmt.Errorf("depth difference: %w", err)
	}
	return l, nil
}

// MultiScaleDepthLoss sums the L1 loss between predicted and ground-truth
// depth after bilinearly resampling both by 1/s (align corners) for every
// scale s. Depth maps are [N, C, H, W]; rank-3 maps are read as a batch of
// one. When the ground truth carries more channels than the prediction only
// the leading ones are compared.
//
// Without scales, DefaultDepthScales is used.
func MultiScaleDepthLoss(predicted, gt *tensor.Tensor, scales ...int) (float64, error) {
	if len(scales) == 0 {
		scales = DefaultDepthScales
	}

	pred, err := predicted.AsBatch()
	if err != nil {
		return 0, fmt.Errorf("multi-scale depth loss: predicted: %w", err)
	}
	truth, err := gt.AsBatch()
	if err != nil {
		return 0, fmt.Errorf("multi-scale depth loss: ground truth: %w", err)
	}

	var total float64
	for _, s := range scales {
		if s < 1 {
			return 0, fmt.Errorf("multi-scale depth loss: scale %d: %w", s, ErrInvalidScale)
		}

		scaledPred, err := downscale(pred, s)
		if err != nil {
			return 0, err
		}
		scaledTruth, err := downscale(truth, s)
		if err != nil {
			return 0, err
		}

		if !tensor.SameShape(scaledPred, scaledTruth) && scaledTruth.Dim(1) > scaledPred.Dim(1) {
			scaledTruth, err = scaledTruth.NarrowChannels(scaledPred.Dim(1))
			if err != nil {
				return 0, err
			}
		}

		l, err := L1(scaledPred, scaledTruth)
		if err != nil {
			return 0, fmt.Errorf("multi-scale depth loss at 1/%d: %w", s, err)
		}
		slog.Debug("Depth loss scale", "scale", s, "l1", l)
		total += l
	}

	return total, nil
}

func downscale(t *tensor.Tensor, s int) (*tensor.Tensor, error) {
	factor := 1 / float64(s)
	h := tensor.ScaledSize(t.Dim(2), factor)
	w := tensor.ScaledSize(t.Dim(3), factor)
	if h < 1 || w < 1 {
		return nil, &ResampleDegenerateError{Scale: s, Height: t.Dim(2), Width: t.Dim(3)}
	}
	if s == 1 {
		return t, nil
	}
	return tensor.ResizeBilinear(t, h, w)
}
