package tensor

import "fmt"

// Conv2DGrouped convolves a [N, C, H, W] input with a [C, 1, kH, kW] kernel
// using one group per channel, stride 1 and zero padding of `padding` pixels
// on every side. Channels never mix.
//
// Like the usual deep-learning conv2d this is a cross-correlation: the kernel
// is not flipped. Output shape is [N, C, H+2p-kH+1, W+2p-kW+1].
func Conv2DGrouped(input, kernel *Tensor, padding int) (*Tensor, error) {
	if input.Rank() != 4 {
		return nil, fmt.Errorf("conv2d: input must be rank 4, got %v: %w", input.shape, ErrShapeMismatch)
	}
	if kernel.Rank() != 4 || kernel.shape[1] != 1 {
		return nil, fmt.Errorf("conv2d: kernel must be [C, 1, kH, kW], got %v: %w", kernel.shape, ErrShapeMismatch)
	}
	if padding < 0 {
		return nil, fmt.Errorf("conv2d: negative padding %d", padding)
	}

	n, c, h, w := input.shape[0], input.shape[1], input.shape[2], input.shape[3]
	if kernel.shape[0] != c {
		return nil, &ShapeMismatchError{Op: "conv2d groups", Left: input.Shape(), Right: kernel.Shape()}
	}
	kh, kw := kernel.shape[2], kernel.shape[3]

	outH := h + 2*padding - kh + 1
	outW := w + 2*padding - kw + 1
	if outH < 1 || outW < 1 {
		return nil, fmt.Errorf("conv2d: kernel %dx%d larger than padded input %dx%d: %w",
			kh, kw, h+2*padding, w+2*padding, ErrShapeMismatch)
	}

	out := New(n, c, outH, outW)
	inPlane := h * w
	outPlane := outH * outW
	kPlane := kh * kw

	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			src := input.data[(b*c+ch)*inPlane : (b*c+ch+1)*inPlane]
			dst := out.data[(b*c+ch)*outPlane : (b*c+ch+1)*outPlane]
			k := kernel.data[ch*kPlane : (ch+1)*kPlane]

			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					var sum float64
					for ky := 0; ky < kh; ky++ {
						iy := oy + ky - padding
						if iy < 0 || iy >= h {
							continue
						}
						row := src[iy*w : (iy+1)*w]
						krow := k[ky*kw : (ky+1)*kw]
						for kx := 0; kx < kw; kx++ {
							ix := ox + kx - padding
							if ix < 0 || ix >= w {
								continue
							}
							sum += row[ix] * krow[kx]
						}
					}
					dst[oy*outW+ox] = sum
				}
			}
		}
	}

	return out, nil
}
