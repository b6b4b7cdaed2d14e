package eval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/reconmetrics/internal/loss"
	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// Observer receives every metric value as soon as it is computed
type Observer func(metric string, value float64)

// Request names the inputs of one evaluation. Either pair may be nil, but not
// both.
type Request struct {
	Reference *tensor.Tensor
	Candidate *tensor.Tensor

	Predicted   *tensor.Tensor
	GroundTruth *tensor.Tensor

	// Names are copied into the report
	ReferenceName   string
	CandidateName   string
	PredictedName   string
	GroundTruthName string
}

// Evaluator runs the configured metric set. It is safe for concurrent use;
// the only shared state is a cache of read-only SSIM windows.
type Evaluator struct {
	cfg      Config
	observer Observer

	mu      sync.Mutex
	windows map[int]*tensor.Tensor // by channel count
}

// New creates an evaluator after validating cfg
func New(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation config: %w", err)
	}
	return &Evaluator{
		cfg:     cfg,
		windows: make(map[int]*tensor.Tensor),
	}, nil
}

// Config returns the evaluator's configuration
func (e *Evaluator) Config() Config {
	return e.cfg
}

// SetObserver installs a callback for individual metric values. Must be set
// before the evaluator is shared.
func (e *Evaluator) SetObserver(o Observer) {
	e.observer = o
}

// record rejects values a report cannot carry and passes the rest to the
// observer.
func (e *Evaluator) record(metric string, value float64) error {
	if math.IsNaN(value) || (math.IsInf(value, 0) && !(metric == MetricPSNR && value > 0)) {
		return &NonFiniteMetricError{Metric: metric, Value: value}
	}
	if e.observer != nil {
		e.observer(metric, value)
	}
	return nil
}

func (e *Evaluator) window(channels int) (*tensor.Tensor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.windows[channels]; ok {
		return w, nil
	}
	w, err := loss.CreateWindow(e.cfg.WindowSize, channels)
	if err != nil {
		return nil, err
	}
	e.windows[channels] = w
	return w, nil
}

// EvaluateImages computes PSNR, SSIM and L1 between a reference and a
// candidate image of identical shape.
func (e *Evaluator) EvaluateImages(ctx context.Context, reference, candidate *tensor.Tensor) (*ImageMetrics, error) {
	var m ImageMetrics
	var err error

	if m.PSNR, err = loss.PSNRWithMax(candidate, reference, e.cfg.MaxValue); err != nil {
		return nil, fmt.Errorf("psnr: %w", err)
	}
	if err := e.record(MetricPSNR, m.PSNR); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if reference.Rank() < 3 {
		return nil, fmt.Errorf("ssim: image rank %d: %w", reference.Rank(), loss.ErrShapeMismatch)
	}
	window, err := e.window(reference.Dim(-3))
	if err != nil {
		return nil, fmt.Errorf("ssim window: %w", err)
	}
	scores, err := loss.SSIMWithWindow(candidate, reference, window, e.cfg.SizeAverage)
	if err != nil {
		return nil, fmt.Errorf("ssim: %w", err)
	}
	if e.cfg.SizeAverage {
		m.SSIM = scores[0]
	} else {
		m.SSIMPerImage = scores
		var sum float64
		for _, s := range scores {
			sum += s
		}
		m.SSIM = sum / float64(len(scores))
	}
	if err := e.record(MetricSSIM, m.SSIM); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.L1, err = loss.L1(candidate, reference); err != nil {
		return nil, fmt.Errorf("l1: %w", err)
	}
	if err := e.record(MetricImageL1, m.L1); err != nil {
		return nil, err
	}

	return &m, nil
}

// EvaluateDepth computes the plain and multi-scale L1 losses between a
// predicted and a ground-truth depth map, plus the total variation of the
// prediction.
func (e *Evaluator) EvaluateDepth(ctx context.Context, predicted, gt *tensor.Tensor) (*DepthMetrics, error) {
	m := DepthMetrics{Scales: append([]int(nil), e.cfg.DepthScales...)}
	var err error

	if m.L1, err = loss.DepthDifference(predicted, gt); err != nil {
		return nil, err
	}
	if err := e.record(MetricDepthL1, m.L1); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.MultiScale, err = loss.MultiScaleDepthLoss(predicted, gt, e.cfg.DepthScales...); err != nil {
		return nil, err
	}
	if err := e.record(MetricMultiScale, m.MultiScale); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// TV is defined per [C, H, W] map; fold the batch into channels
	if m.TV, err = loss.TVLoss(predicted); err != nil {
		return nil, fmt.Errorf("tv loss: %w", err)
	}
	if err := e.record(MetricTV, m.TV); err != nil {
		return nil, err
	}

	return &m, nil
}

// Evaluate runs every metric group the request has inputs for and returns a
// new report.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Report, error) {
	hasImages := req.Reference != nil && req.Candidate != nil
	hasDepth := req.Predicted != nil && req.GroundTruth != nil
	if !hasImages && !hasDepth {
		return nil, ErrEmptyRequest
	}

	start := time.Now()
	report := &Report{
		ID:          uuid.New().String(),
		CreatedAt:   start,
		Config:      e.cfg,
		Reference:   req.ReferenceName,
		Candidate:   req.CandidateName,
		Predicted:   req.PredictedName,
		GroundTruth: req.GroundTruthName,
	}

	if hasImages {
		m, err := e.EvaluateImages(ctx, req.Reference, req.Candidate)
		if err != nil {
			return nil, fmt.Errorf("image metrics: %w", err)
		}
		report.Image = m
	}

	if hasDepth {
		m, err := e.EvaluateDepth(ctx, req.Predicted, req.GroundTruth)
		if err != nil {
			return nil, fmt.Errorf("depth metrics: %w", err)
		}
		report.Depth = m
	}

	report.Elapsed = time.Since(start)

	slog.Info("Evaluation complete",
		"id", report.ID,
		"kind", report.Kind(),
		"elapsed", report.Elapsed,
	)
	return report, nil
}
