package eval

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/cwbudde/reconmetrics/internal/loss"
	"github.com/cwbudde/reconmetrics/internal/tensor"
)

func randomTensor(seed int64, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	t := tensor.New(shape...)
	for i := range t.Data() {
		t.Data()[i] = rng.Float64()
	}
	return t
}

func newEvaluator(t *testing.T, cfg Config) *Evaluator {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"even window", func(c *Config) { c.WindowSize = 8 }, false},
		{"zero max", func(c *Config) { c.MaxValue = 0 }, false},
		{"no scales", func(c *Config) { c.DepthScales = nil }, false},
		{"zero scale", func(c *Config) { c.DepthScales = []int{1, 0} }, false},
		{"negative depth scale", func(c *Config) { c.DepthScale = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestDefaultConfigScalesAreCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DepthScales[0] = 99
	if loss.DefaultDepthScales[0] != 1 {
		t.Error("DefaultConfig shares its scale slice with the loss package")
	}
}

func TestEvaluateImagesIdentical(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	x := tensor.Full(0.5, 1, 1, 4, 4)

	m, err := e.EvaluateImages(context.Background(), x, x)
	if err != nil {
		t.Fatalf("EvaluateImages failed: %v", err)
	}
	if !math.IsInf(m.PSNR, 1) {
		t.Errorf("PSNR = %f, want +Inf", m.PSNR)
	}
	if math.Abs(m.SSIM-1) > 1e-12 {
		t.Errorf("SSIM = %f, want 1", m.SSIM)
	}
	if m.L1 != 0 {
		t.Errorf("L1 = %f, want 0", m.L1)
	}
}

func TestEvaluateImagesMatchesLoss(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	a := randomTensor(1, 1, 3, 16, 16)
	b := randomTensor(2, 1, 3, 16, 16)

	m, err := e.EvaluateImages(context.Background(), a, b)
	if err != nil {
		t.Fatalf("EvaluateImages failed: %v", err)
	}

	psnr, _ := loss.PSNR(b, a)
	ssim, _ := loss.SSIM(b, a, loss.DefaultWindowSize)
	if m.PSNR != psnr {
		t.Errorf("PSNR = %f, loss.PSNR = %f", m.PSNR, psnr)
	}
	if math.Abs(m.SSIM-ssim) > 1e-15 {
		t.Errorf("SSIM = %f, loss.SSIM = %f", m.SSIM, ssim)
	}
}

func TestEvaluateImagesPerImage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SizeAverage = false
	e := newEvaluator(t, cfg)

	a := randomTensor(3, 2, 3, 12, 12)
	b := randomTensor(4, 2, 3, 12, 12)

	m, err := e.EvaluateImages(context.Background(), a, b)
	if err != nil {
		t.Fatalf("EvaluateImages failed: %v", err)
	}
	if len(m.SSIMPerImage) != 2 {
		t.Fatalf("Expected 2 per-image scores, got %d", len(m.SSIMPerImage))
	}
	mean := (m.SSIMPerImage[0] + m.SSIMPerImage[1]) / 2
	if math.Abs(m.SSIM-mean) > 1e-15 {
		t.Errorf("SSIM %f is not the mean of per-image scores %f", m.SSIM, mean)
	}
}

func TestEvaluateImagesShapeMismatch(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	_, err := e.EvaluateImages(context.Background(), tensor.New(1, 3, 8, 8), tensor.New(1, 1, 8, 8))
	if !errors.Is(err, loss.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestEvaluateDepth(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	pred := randomTensor(5, 1, 1, 16, 16)
	gt := randomTensor(6, 1, 1, 16, 16)

	m, err := e.EvaluateDepth(context.Background(), pred, gt)
	if err != nil {
		t.Fatalf("EvaluateDepth failed: %v", err)
	}

	l1, _ := loss.DepthDifference(pred, gt)
	if m.L1 != l1 {
		t.Errorf("L1 = %f, want %f", m.L1, l1)
	}
	if m.MultiScale < m.L1 {
		t.Errorf("Multi-scale loss %f should include the full-resolution term %f", m.MultiScale, m.L1)
	}
	if m.TV <= 0 {
		t.Errorf("Random prediction should have positive TV, got %f", m.TV)
	}
}

func TestEvaluateDepthDegenerate(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	x := randomTensor(7, 1, 1, 3, 3)

	_, err := e.EvaluateDepth(context.Background(), x, x)
	if !errors.Is(err, loss.ErrResampleDegenerate) {
		t.Errorf("Expected ErrResampleDegenerate for 3x3 at 1/4, got %v", err)
	}
}

func TestEvaluateImagesNonFinite(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	var seen []string
	e.SetObserver(func(metric string, value float64) { seen = append(seen, metric) })

	reference := randomTensor(8, 1, 1, 8, 8)
	candidate := reference.Clone()
	candidate.Set(math.NaN(), 0, 0, 2, 3)

	_, err := e.EvaluateImages(context.Background(), reference, candidate)
	if !errors.Is(err, ErrNonFiniteMetric) {
		t.Fatalf("Expected ErrNonFiniteMetric, got %v", err)
	}
	var nf *NonFiniteMetricError
	if !errors.As(err, &nf) || nf.Metric != MetricPSNR {
		t.Errorf("Expected psnr to be reported, got %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("Observer should not see non-finite values, got %v", seen)
	}
}

func TestEvaluateDepthNonFinite(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	pred := randomTensor(9, 1, 1, 16, 16)
	gt := randomTensor(10, 1, 1, 16, 16)
	pred.Set(math.Inf(1), 0, 0, 0, 0)

	_, err := e.EvaluateDepth(context.Background(), pred, gt)
	var nf *NonFiniteMetricError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NonFiniteMetricError, got %v", err)
	}
	if nf.Metric != MetricDepthL1 || !math.IsInf(nf.Value, 1) {
		t.Errorf("Unexpected error detail: %+v", nf)
	}
	if !strings.Contains(err.Error(), MetricDepthL1) {
		t.Errorf("Error should name the metric: %v", err)
	}
}

func TestEvaluateReportNonFinite(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	reference := randomTensor(11, 1, 1, 8, 8)
	candidate := reference.Clone()
	candidate.Set(math.Inf(-1), 0, 0, 0, 0)

	_, err := e.Evaluate(context.Background(), Request{Reference: reference, Candidate: candidate})
	if !errors.Is(err, ErrNonFiniteMetric) {
		t.Errorf("Expected ErrNonFiniteMetric from Evaluate, got %v", err)
	}
}

func TestEvaluateReport(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())

	var mu sync.Mutex
	seen := map[string]float64{}
	e.SetObserver(func(metric string, value float64) {
		mu.Lock()
		defer mu.Unlock()
		seen[metric] = value
	})

	img := randomTensor(8, 1, 3, 8, 8)
	depth := randomTensor(9, 1, 1, 8, 8)

	report, err := e.Evaluate(context.Background(), Request{
		Reference:       img,
		Candidate:       img,
		Predicted:       depth,
		GroundTruth:     depth,
		ReferenceName:   "ref.png",
		CandidateName:   "render.png",
		PredictedName:   "pred.png",
		GroundTruthName: "gt.png",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if report.ID == "" {
		t.Error("Report ID should not be empty")
	}
	if report.Kind() != "image+depth" {
		t.Errorf("Kind = %s, want image+depth", report.Kind())
	}
	if report.Reference != "ref.png" || report.GroundTruth != "gt.png" {
		t.Errorf("Input names not copied: %+v", report)
	}

	for _, metric := range []string{MetricPSNR, MetricSSIM, MetricImageL1, MetricDepthL1, MetricMultiScale, MetricTV} {
		if _, ok := seen[metric]; !ok {
			t.Errorf("Observer did not receive %s", metric)
		}
		if _, ok := report.Value(metric); !ok {
			t.Errorf("Report does not carry %s", metric)
		}
	}
}

func TestEvaluateEmptyRequest(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	if _, err := e.Evaluate(context.Background(), Request{}); !errors.Is(err, ErrEmptyRequest) {
		t.Errorf("Expected ErrEmptyRequest, got %v", err)
	}
}

func TestEvaluateCancelled(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := randomTensor(10, 1, 3, 8, 8)
	_, err := e.Evaluate(ctx, Request{Reference: x, Candidate: x})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEvaluatorConcurrent(t *testing.T) {
	e := newEvaluator(t, DefaultConfig())
	a := randomTensor(11, 1, 3, 12, 12)
	b := randomTensor(12, 1, 3, 12, 12)

	want, err := e.EvaluateImages(context.Background(), a, b)
	if err != nil {
		t.Fatalf("EvaluateImages failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.EvaluateImages(context.Background(), a, b)
			if err != nil {
				errs <- err
				return
			}
			if got.SSIM != want.SSIM || got.PSNR != want.PSNR {
				errs <- errors.New("concurrent evaluation differs from serial result")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestImageMetricsJSONInfinity(t *testing.T) {
	m := ImageMetrics{PSNR: math.Inf(1), SSIM: 1, L1: 0}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"psnr":null`) || !strings.Contains(string(data), `"psnrInfinite":true`) {
		t.Errorf("Unexpected encoding: %s", data)
	}

	var back ImageMetrics
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !math.IsInf(back.PSNR, 1) {
		t.Errorf("PSNR = %f after decode, want +Inf", back.PSNR)
	}
}

func TestImageMetricsJSONFinite(t *testing.T) {
	data, err := json.Marshal(ImageMetrics{PSNR: 31.5, SSIM: 0.9, L1: 0.02})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"psnr":31.5`) {
		t.Errorf("Unexpected encoding: %s", data)
	}
	if strings.Contains(string(data), "psnrInfinite") {
		t.Errorf("Finite PSNR should not set psnrInfinite: %s", data)
	}
}

func TestReportCost(t *testing.T) {
	r := &Report{
		Image: &ImageMetrics{PSNR: 20, SSIM: 0.75, L1: 0.1},
	}

	tests := []struct {
		metric string
		want   float64
		ok     bool
	}{
		{MetricPSNR, 0.01, true},
		{MetricSSIM, 0.25, true},
		{MetricImageL1, 0.1, true},
		{MetricTV, 0, false},
		{"unknown", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got, ok := r.Cost(tt.metric)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Cost = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestTrendTrackerStalls(t *testing.T) {
	tracker := NewTrendTracker(TrendConfig{Patience: 2, Threshold: 0.01})

	costs := []float64{1.0, 0.8, 0.6, 0.599, 0.598}
	var stalled bool
	for i, c := range costs {
		stalled = tracker.Update(c)
		if i < len(costs)-1 && stalled {
			t.Fatalf("Stalled too early at step %d", i)
		}
	}
	if !stalled {
		t.Error("Expected stall after two insignificant improvements")
	}
	if tracker.Best() != 0.598 {
		t.Errorf("Best = %f, want 0.598", tracker.Best())
	}
	if len(tracker.History()) != len(costs) {
		t.Errorf("History has %d entries, want %d", len(tracker.History()), len(costs))
	}
}

func TestTrendTrackerResetsOnImprovement(t *testing.T) {
	tracker := NewTrendTracker(TrendConfig{Patience: 2, Threshold: 0.01})

	tracker.Update(1.0)
	tracker.Update(1.0)
	if tracker.StaleCount() != 1 {
		t.Fatalf("StaleCount = %d, want 1", tracker.StaleCount())
	}
	tracker.Update(0.5)
	if tracker.StaleCount() != 0 {
		t.Errorf("StaleCount = %d after improvement, want 0", tracker.StaleCount())
	}
}

func TestTrendTrackerZeroCost(t *testing.T) {
	tracker := NewTrendTracker(TrendConfig{Patience: 1, Threshold: 0.01})

	tracker.Update(0)
	if !tracker.Update(0) {
		t.Error("A series stuck at zero cost should stall")
	}
}
