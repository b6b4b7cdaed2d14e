package loss

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// ---------------------- Test Utilities ----------------------

// randomImage creates a tensor with uniform values in [0, 1)
func randomImage(seed int64, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	t := tensor.New(shape...)
	for i := range t.Data() {
		t.Data()[i] = rng.Float64()
	}
	return t
}

// noisy returns a copy of t with uniform noise of the given amplitude added
func noisy(t *tensor.Tensor, amplitude float64, seed int64) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	out := t.Clone()
	for i := range out.Data() {
		out.Data()[i] += amplitude * (rng.Float64()*2 - 1)
	}
	return out
}

// ---------------------- Gaussian Window ----------------------

func TestGaussianNormalized(t *testing.T) {
	for _, size := range []int{1, 3, 5, 11, 21} {
		t.Run(fmt.Sprintf("size%d", size), func(t *testing.T) {
			g, err := Gaussian(size, DefaultSigma)
			if err != nil {
				t.Fatalf("Gaussian failed: %v", err)
			}
			var sum float64
			for _, v := range g {
				sum += v
			}
			if math.Abs(sum-1) > 1e-12 {
				t.Errorf("Expected sum 1, got %.15f", sum)
			}

			// Symmetric and peaked at the center
			center := size / 2
			for i := 0; i < center; i++ {
				if math.Abs(g[i]-g[size-1-i]) > 1e-15 {
					t.Errorf("Not symmetric at %d: %g vs %g", i, g[i], g[size-1-i])
				}
				if g[i] >= g[center] {
					t.Errorf("Sample %d (%g) not below center (%g)", i, g[i], g[center])
				}
			}
		})
	}
}

func TestGaussianInvalid(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		sigma float64
	}{
		{"even size", 10, 1.5},
		{"zero size", 0, 1.5},
		{"negative size", -3, 1.5},
		{"zero sigma", 11, 0},
		{"negative sigma", 11, -1},
		{"nan sigma", 11, math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Gaussian(tt.size, tt.sigma); !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("Expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

func TestCreateWindowPerChannelSum(t *testing.T) {
	window, err := CreateWindow(11, 3)
	if err != nil {
		t.Fatalf("CreateWindow failed: %v", err)
	}

	if got := fmt.Sprint(window.Shape()); got != "[3 1 11 11]" {
		t.Fatalf("Unexpected window shape %s", got)
	}

	for c := 0; c < 3; c++ {
		var sum float64
		for y := 0; y < 11; y++ {
			for x := 0; x < 11; x++ {
				sum += window.At(c, 0, y, x)
			}
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("Channel %d sums to %.15f, want 1", c, sum)
		}
	}
}

func TestCreateWindowSeparable(t *testing.T) {
	g, _ := Gaussian(5, DefaultSigma)
	window, err := CreateWindow(5, 2)
	if err != nil {
		t.Fatalf("CreateWindow failed: %v", err)
	}

	for c := 0; c < 2; c++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 5; x++ {
				want := g[y] * g[x]
				if got := window.At(c, 0, y, x); math.Abs(got-want) > 1e-15 {
					t.Errorf("window[%d,0,%d,%d] = %g, want %g", c, y, x, got, want)
				}
			}
		}
	}
}

func TestCreateWindowMatchesReferenceKernel(t *testing.T) {
	// Center and corner of the well-known 11x11 sigma=1.5 SSIM kernel
	window, err := CreateWindow(11, 1)
	if err != nil {
		t.Fatalf("CreateWindow failed: %v", err)
	}

	if got := window.At(0, 0, 5, 5); math.Abs(got-7.0762e-02) > 1e-5 {
		t.Errorf("Center weight = %g, want ~7.0762e-02", got)
	}
	if got := window.At(0, 0, 0, 0); math.Abs(got-1.0576e-06) > 1e-9 {
		t.Errorf("Corner weight = %g, want ~1.0576e-06", got)
	}
}

// ---------------------- PSNR ----------------------

func TestPSNRIdenticalIsInf(t *testing.T) {
	x := randomImage(1, 1, 3, 8, 8)

	psnr, err := PSNR(x, x)
	if err != nil {
		t.Fatalf("PSNR failed: %v", err)
	}
	if !math.IsInf(psnr, 1) {
		t.Errorf("Expected +Inf for identical inputs, got %f", psnr)
	}
}

func TestPSNRKnownValue(t *testing.T) {
	a := tensor.Full(0.5, 1, 1, 4, 4)
	b := tensor.Full(0.6, 1, 1, 4, 4)

	// mse = 0.01 -> 20*log10(1/0.1) = 20 dB
	psnr, err := PSNR(a, b)
	if err != nil {
		t.Fatalf("PSNR failed: %v", err)
	}
	if math.Abs(psnr-20) > 1e-9 {
		t.Errorf("Expected 20 dB, got %f", psnr)
	}
}

func TestPSNRWithMax(t *testing.T) {
	a := tensor.Full(100, 1, 3, 2, 2)
	b := tensor.Full(110, 1, 3, 2, 2)

	// mse = 100 -> 20*log10(255/10)
	want := 20 * math.Log10(25.5)
	psnr, err := PSNRWithMax(a, b, 255)
	if err != nil {
		t.Fatalf("PSNRWithMax failed: %v", err)
	}
	if math.Abs(psnr-want) > 1e-9 {
		t.Errorf("Expected %f dB, got %f", want, psnr)
	}

	if _, err := PSNRWithMax(a, b, 0); err == nil {
		t.Error("Expected error for zero max value")
	}
}

func TestPSNRShapeMismatch(t *testing.T) {
	_, err := PSNR(tensor.New(1, 3, 4, 4), tensor.New(1, 3, 4, 5))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

// ---------------------- SSIM ----------------------

func TestSSIMIdentical(t *testing.T) {
	shapes := [][]int{
		{3, 16, 16},
		{1, 3, 16, 16},
		{2, 1, 9, 13},
		{1, 3, 4, 4}, // smaller than the window
	}

	for _, shape := range shapes {
		t.Run(fmt.Sprint(shape), func(t *testing.T) {
			x := randomImage(3, shape...)
			score, err := SSIM(x, x, DefaultWindowSize)
			if err != nil {
				t.Fatalf("SSIM failed: %v", err)
			}
			if math.Abs(score-1) > 1e-9 {
				t.Errorf("SSIM(x, x) = %.12f, want 1", score)
			}
		})
	}
}

func TestSSIMSymmetric(t *testing.T) {
	a := randomImage(10, 2, 3, 20, 17)
	b := noisy(a, 0.2, 11)

	ab, err := SSIM(a, b, DefaultWindowSize)
	if err != nil {
		t.Fatalf("SSIM failed: %v", err)
	}
	ba, err := SSIM(b, a, DefaultWindowSize)
	if err != nil {
		t.Fatalf("SSIM failed: %v", err)
	}
	if math.Abs(ab-ba) > 1e-12 {
		t.Errorf("SSIM not symmetric: %f vs %f", ab, ba)
	}
}

func TestSSIMDecreasesWithNoise(t *testing.T) {
	a := randomImage(20, 1, 3, 24, 24)

	prev := 1.0
	for _, amp := range []float64{0.05, 0.2, 0.5} {
		score, err := SSIM(a, noisy(a, amp, 21), DefaultWindowSize)
		if err != nil {
			t.Fatalf("SSIM failed: %v", err)
		}
		if score >= prev {
			t.Errorf("SSIM with noise %.2f = %f, expected below %f", amp, score, prev)
		}
		prev = score
	}
}

func TestSSIMPerImage(t *testing.T) {
	a := randomImage(30, 3, 2, 12, 12)
	b := a.Clone()
	// Perturb only the second batch element
	plane := 2 * 12 * 12
	for i := plane; i < 2*plane; i++ {
		b.Data()[i] = 1 - b.Data()[i]
	}

	scores, err := SSIMPerImage(a, b, DefaultWindowSize)
	if err != nil {
		t.Fatalf("SSIMPerImage failed: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("Expected 3 scores, got %d", len(scores))
	}

	for i, s := range scores {
		if s < -1-1e-9 || s > 1+1e-9 {
			t.Errorf("Score %d out of range: %f", i, s)
		}
	}
	if math.Abs(scores[0]-1) > 1e-9 || math.Abs(scores[2]-1) > 1e-9 {
		t.Errorf("Untouched elements should score 1, got %f and %f", scores[0], scores[2])
	}
	if scores[1] >= 0.5 {
		t.Errorf("Inverted element should score low, got %f", scores[1])
	}

	// The averaged score is the mean of the per-image scores
	avg, err := SSIM(a, b, DefaultWindowSize)
	if err != nil {
		t.Fatalf("SSIM failed: %v", err)
	}
	mean := (scores[0] + scores[1] + scores[2]) / 3
	if math.Abs(avg-mean) > 1e-12 {
		t.Errorf("Averaged SSIM %f differs from mean of per-image scores %f", avg, mean)
	}
}

func TestSSIMErrors(t *testing.T) {
	tests := []struct {
		name       string
		a, b       *tensor.Tensor
		windowSize int
		want       error
	}{
		{"shape mismatch", tensor.New(1, 3, 8, 8), tensor.New(1, 3, 8, 9), 11, ErrShapeMismatch},
		{"channel mismatch", tensor.New(1, 3, 8, 8), tensor.New(1, 1, 8, 8), 11, ErrShapeMismatch},
		{"rank 2", tensor.New(8, 8), tensor.New(8, 8), 11, ErrShapeMismatch},
		{"even window", tensor.New(1, 3, 8, 8), tensor.New(1, 3, 8, 8), 10, ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SSIM(tt.a, tt.b, tt.windowSize); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSSIMWithWindowChannelMismatch(t *testing.T) {
	window, _ := CreateWindow(11, 1)
	x := randomImage(4, 1, 3, 8, 8)

	if _, err := SSIMWithWindow(x, x, window, true); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for a 1-channel window on 3 channels, got %v", err)
	}
}

func TestSSIMMapShape(t *testing.T) {
	window, _ := CreateWindow(7, 3)
	x := randomImage(5, 3, 10, 12)

	m, err := SSIMMap(x, noisy(x, 0.1, 6), window)
	if err != nil {
		t.Fatalf("SSIMMap failed: %v", err)
	}
	if got := fmt.Sprint(m.Shape()); got != "[1 3 10 12]" {
		t.Errorf("Unexpected map shape %s", got)
	}
}

// ---------------------- Total Variation ----------------------

func TestTVLossConstant(t *testing.T) {
	depth := tensor.Full(3.7, 2, 5, 6)

	tv, err := TVLoss(depth)
	if err != nil {
		t.Fatalf("TVLoss failed: %v", err)
	}
	if tv != 0 {
		t.Errorf("Expected 0 for a constant map, got %f", tv)
	}
}

func TestTVLossKnownValue(t *testing.T) {
	// Horizontal ramp 0,1,2 on two rows: no vertical change,
	// every horizontal step is 1.
	depth, _ := tensor.FromSlice([]float64{
		0, 1, 2,
		0, 1, 2,
	}, 1, 2, 3)

	// h_tv = 0, w_tv = 4 over count_w = 1*2*2 = 4 -> 2*(0 + 1) = 2
	tv, err := TVLoss(depth)
	if err != nil {
		t.Fatalf("TVLoss failed: %v", err)
	}
	if math.Abs(tv-2) > 1e-12 {
		t.Errorf("Expected 2, got %f", tv)
	}
}

func TestTVLossVertical(t *testing.T) {
	// Vertical steps of 2 on a 3x2 map
	depth, _ := tensor.FromSlice([]float64{
		0, 0,
		2, 2,
		4, 4,
	}, 1, 3, 2)

	// h_tv = 4*4 = 16 over 1*2*2 = 4 -> 4; w_tv = 0 -> 2*4 = 8
	tv, err := TVLoss(depth)
	if err != nil {
		t.Fatalf("TVLoss failed: %v", err)
	}
	if math.Abs(tv-8) > 1e-12 {
		t.Errorf("Expected 8, got %f", tv)
	}
}

func TestTVLossTooSmall(t *testing.T) {
	for _, shape := range [][]int{{1, 1, 5}, {1, 5, 1}, {2, 1, 1}} {
		t.Run(fmt.Sprint(shape), func(t *testing.T) {
			_, err := TVLoss(tensor.New(shape...))
			if !errors.Is(err, ErrDimensionTooSmall) {
				t.Errorf("Expected ErrDimensionTooSmall, got %v", err)
			}
		})
	}
}

// ---------------------- Depth Losses ----------------------

func TestDepthDifference(t *testing.T) {
	a := tensor.Full(1, 1, 1, 3, 3)
	b := tensor.Full(1.5, 1, 1, 3, 3)

	d, err := DepthDifference(a, b)
	if err != nil {
		t.Fatalf("DepthDifference failed: %v", err)
	}
	if math.Abs(d-0.5) > 1e-12 {
		t.Errorf("Expected 0.5, got %f", d)
	}

	if _, err := DepthDifference(a, tensor.New(1, 1, 3, 4)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestMultiScaleSingleScaleEqualsL1(t *testing.T) {
	pred := randomImage(40, 2, 1, 16, 12)
	gt := randomImage(41, 2, 1, 16, 12)

	ms, err := MultiScaleDepthLoss(pred, gt, 1)
	if err != nil {
		t.Fatalf("MultiScaleDepthLoss failed: %v", err)
	}
	l1, err := DepthDifference(pred, gt)
	if err != nil {
		t.Fatalf("DepthDifference failed: %v", err)
	}
	if math.Abs(ms-l1) > 1e-12 {
		t.Errorf("scales=[1] gave %f, plain L1 gave %f", ms, l1)
	}
}

func TestMultiScaleMonotonic(t *testing.T) {
	pred := randomImage(50, 1, 1, 32, 32)
	gt := randomImage(51, 1, 1, 32, 32)

	scales := []int{1, 2, 4, 8}
	prev := 0.0
	for i := range scales {
		loss, err := MultiScaleDepthLoss(pred, gt, scales[:i+1]...)
		if err != nil {
			t.Fatalf("MultiScaleDepthLoss(%v) failed: %v", scales[:i+1], err)
		}
		if loss < prev {
			t.Errorf("Loss decreased from %f to %f when adding scale %d", prev, loss, scales[i])
		}
		prev = loss
	}
}

func TestMultiScaleDefaultScales(t *testing.T) {
	pred := randomImage(60, 1, 1, 16, 16)
	gt := randomImage(61, 1, 1, 16, 16)

	def, err := MultiScaleDepthLoss(pred, gt)
	if err != nil {
		t.Fatalf("MultiScaleDepthLoss failed: %v", err)
	}
	explicit, err := MultiScaleDepthLoss(pred, gt, 1, 2, 4)
	if err != nil {
		t.Fatalf("MultiScaleDepthLoss failed: %v", err)
	}
	if def != explicit {
		t.Errorf("Default scales gave %f, explicit [1 2 4] gave %f", def, explicit)
	}
}

func TestMultiScaleIdenticalIsZero(t *testing.T) {
	x := randomImage(70, 1, 1, 16, 16)

	loss, err := MultiScaleDepthLoss(x, x)
	if err != nil {
		t.Fatalf("MultiScaleDepthLoss failed: %v", err)
	}
	if loss != 0 {
		t.Errorf("Expected 0 for identical maps, got %f", loss)
	}
}

func TestMultiScaleTruncatesGroundTruthChannels(t *testing.T) {
	pred := randomImage(80, 1, 1, 8, 8)
	gt := tensor.New(1, 3, 8, 8)
	// Channel 0 matches the prediction, the rest is noise
	copy(gt.Data()[:64], pred.Data())
	for i := 64; i < len(gt.Data()); i++ {
		gt.Data()[i] = 100
	}

	loss, err := MultiScaleDepthLoss(pred, gt, 1, 2)
	if err != nil {
		t.Fatalf("MultiScaleDepthLoss failed: %v", err)
	}
	if loss > 1e-12 {
		t.Errorf("Expected extra ground-truth channels to be ignored, got loss %f", loss)
	}
}

func TestMultiScaleErrors(t *testing.T) {
	tests := []struct {
		name     string
		pred, gt *tensor.Tensor
		scales   []int
		want     error
	}{
		{"degenerate", tensor.New(1, 1, 3, 3), tensor.New(1, 1, 3, 3), []int{1, 4}, ErrResampleDegenerate},
		{"zero scale", tensor.New(1, 1, 4, 4), tensor.New(1, 1, 4, 4), []int{0}, ErrInvalidScale},
		{"spatial mismatch", tensor.New(1, 1, 8, 8), tensor.New(1, 1, 8, 6), []int{1}, ErrShapeMismatch},
		{"prediction has more channels", tensor.New(1, 2, 8, 8), tensor.New(1, 1, 8, 8), []int{1}, ErrShapeMismatch},
		{"rank 2", tensor.New(8, 8), tensor.New(8, 8), []int{1}, ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MultiScaleDepthLoss(tt.pred, tt.gt, tt.scales...); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

// ---------------------- End to End ----------------------

func TestConstantImageEndToEnd(t *testing.T) {
	x := tensor.Full(0.5, 1, 1, 4, 4)

	psnr, err := PSNR(x, x)
	if err != nil || !math.IsInf(psnr, 1) {
		t.Errorf("PSNR = %f (err %v), want +Inf", psnr, err)
	}

	ssim, err := SSIM(x, x, DefaultWindowSize)
	if err != nil || math.Abs(ssim-1) > 1e-12 {
		t.Errorf("SSIM = %f (err %v), want 1", ssim, err)
	}

	depth, err := x.Reshape(1, 4, 4)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	tv, err := TVLoss(depth)
	if err != nil || tv != 0 {
		t.Errorf("TVLoss = %f (err %v), want 0", tv, err)
	}

	l1, err := DepthDifference(x, x)
	if err != nil || l1 != 0 {
		t.Errorf("DepthDifference = %f (err %v), want 0", l1, err)
	}
}
