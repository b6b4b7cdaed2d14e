package tensor

import (
	"fmt"
	"math"
)

// ScaledSize returns floor(size * factor), the output length used when
// resampling by a scale factor.
func ScaledSize(size int, factor float64) int {
	return int(math.Floor(float64(size) * factor))
}

// ResizeBilinear resamples the spatial dimensions of a [N, C, H, W] tensor to
// outH x outW with bilinear interpolation and align-corners semantics: the
// corner samples of the input and output grids coincide exactly. A target
// length of 1 samples the first row or column.
func ResizeBilinear(input *Tensor, outH, outW int) (*Tensor, error) {
	if input.Rank() != 4 {
		return nil, fmt.Errorf("resize: input must be rank 4, got %v: %w", input.shape, ErrShapeMismatch)
	}
	if outH < 1 || outW < 1 {
		return nil, fmt.Errorf("resize: invalid output size %dx%d", outH, outW)
	}

	n, c, h, w := input.shape[0], input.shape[1], input.shape[2], input.shape[3]
	if h < 1 || w < 1 {
		return nil, fmt.Errorf("resize: empty input %v", input.shape)
	}

	ys := alignCornersTaps(h, outH)
	xs := alignCornersTaps(w, outW)

	out := New(n, c, outH, outW)
	inPlane := h * w
	outPlane := outH * outW

	for p := 0; p < n*c; p++ {
		src := input.data[p*inPlane : (p+1)*inPlane]
		dst := out.data[p*outPlane : (p+1)*outPlane]
		for oy, ty := range ys {
			top := src[ty.i0*w : (ty.i0+1)*w]
			bottom := src[ty.i1*w : (ty.i1+1)*w]
			for ox, tx := range xs {
				upper := top[tx.i0]*(1-tx.frac) + top[tx.i1]*tx.frac
				lower := bottom[tx.i0]*(1-tx.frac) + bottom[tx.i1]*tx.frac
				dst[oy*outW+ox] = upper*(1-ty.frac) + lower*ty.frac
			}
		}
	}

	return out, nil
}

// tap holds the two source indices and the weight of the second one for a
// single output coordinate.
type tap struct {
	i0, i1 int
	frac   float64
}

func alignCornersTaps(in, out int) []tap {
	var step float64
	if out > 1 {
		step = float64(in-1) / float64(out-1)
	}

	taps := make([]tap, out)
	for i := range taps {
		src := step * float64(i)
		i0 := int(math.Floor(src))
		if i0 > in-1 {
			i0 = in - 1
		}
		i1 := i0 + 1
		if i1 > in-1 {
			i1 = in - 1
		}
		taps[i] = tap{i0: i0, i1: i1, frac: src - float64(i0)}
	}
	return taps
}
