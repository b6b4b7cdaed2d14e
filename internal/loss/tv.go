package loss

import (
	"fmt"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// TVLoss returns the total-variation smoothness penalty of a [C, H, W] depth
// or disparity map:
//
//	2 * (sum(dy^2)/(C*(H-1)*W) + sum(dx^2)/(C*H*(W-1)))
//
// A [N, C, H, W] input is treated as N*C channels. Both spatial axes need at
// least two samples.
func TVLoss(depth *tensor.Tensor) (float64, error) {
	var c, h, w int
	switch depth.Rank() {
	case 3:
		c, h, w = depth.Dim(0), depth.Dim(1), depth.Dim(2)
	case 4:
		c, h, w = depth.Dim(0)*depth.Dim(1), depth.Dim(2), depth.Dim(3)
	default:
		return 0, fmt.Errorf("tv loss expects [C,H,W], got %v: %w", depth.Shape(), ErrShapeMismatch)
	}

	if c < 1 {
		return 0, &DimensionTooSmallError{Axis: "channels", Size: c, Min: 1}
	}
	if h < 2 {
		return 0, &DimensionTooSmallError{Axis: "height", Size: h, Min: 2}
	}
	if w < 2 {
		return 0, &DimensionTooSmallError{Axis: "width", Size: w, Min: 2}
	}

	data := depth.Data()
	var hTV, wTV float64
	for ch := 0; ch < c; ch++ {
		plane := data[ch*h*w : (ch+1)*h*w]
		for y := 0; y < h; y++ {
			row := plane[y*w : (y+1)*w]
			for x := 1; x < w; x++ {
				d := row[x] - row[x-1]
				wTV += d * d
			}
			if y == 0 {
				continue
			}
			prev := plane[(y-1)*w : y*w]
			for x := 0; x < w; x++ {
				d := row[x] - prev[x]
				hTV += d * d
			}
		}
	}

	countH := float64(c * (h - 1) * w)
	countW := float64(c * h * (w - 1))
	return 2 * (hTV/countH + wTV/countW), nil
}
