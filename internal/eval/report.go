package eval

import (
	"encoding/json"
	"math"
	"time"
)

// ImageMetrics holds the quality metrics of a rendered image against its
// reference.
type ImageMetrics struct {
	// PSNR in dB, +Inf for identical images
	PSNR float64 `json:"-"`

	SSIM float64 `json:"ssim"`

	// SSIMPerImage is set when the config disables size averaging
	SSIMPerImage []float64 `json:"ssimPerImage,omitempty"`

	// L1 is the mean absolute difference over all channels
	L1 float64 `json:"l1"`
}

type imageMetricsJSON struct {
	PSNR         *float64  `json:"psnr"`
	PSNRInfinite bool      `json:"psnrInfinite,omitempty"`
	SSIM         float64   `json:"ssim"`
	SSIMPerImage []float64 `json:"ssimPerImage,omitempty"`
	L1           float64   `json:"l1"`
}

// MarshalJSON encodes an infinite PSNR as null with psnrInfinite set, since
// JSON has no infinity.
func (m ImageMetrics) MarshalJSON() ([]byte, error) {
	out := imageMetricsJSON{
		SSIM:         m.SSIM,
		SSIMPerImage: m.SSIMPerImage,
		L1:           m.L1,
	}
	if math.IsInf(m.PSNR, 1) {
		out.PSNRInfinite = true
	} else {
		psnr := m.PSNR
		out.PSNR = &psnr
	}
	return json.Marshal(out)
}

func (m *ImageMetrics) UnmarshalJSON(data []byte) error {
	var in imageMetricsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = ImageMetrics{
		SSIM:         in.SSIM,
		SSIMPerImage: in.SSIMPerImage,
		L1:           in.L1,
	}
	switch {
	case in.PSNRInfinite:
		m.PSNR = math.Inf(1)
	case in.PSNR != nil:
		m.PSNR = *in.PSNR
	default:
		m.PSNR = math.NaN()
	}
	return nil
}

// DepthMetrics holds the depth losses of a predicted depth map
type DepthMetrics struct {
	// L1 is the plain mean absolute depth difference
	L1 float64 `json:"l1"`

	// MultiScale is the L1 loss summed over Scales
	MultiScale float64 `json:"multiScale"`
	Scales     []int   `json:"scales"`

	// TV is the total-variation smoothness of the prediction alone
	TV float64 `json:"tv"`
}

// Report is the result of one evaluation
type Report struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Config    Config    `json:"config"`

	// Source paths or upload names, informational only
	Reference   string `json:"reference,omitempty"`
	Candidate   string `json:"candidate,omitempty"`
	Predicted   string `json:"predicted,omitempty"`
	GroundTruth string `json:"groundTruth,omitempty"`

	Image *ImageMetrics `json:"image,omitempty"`
	Depth *DepthMetrics `json:"depth,omitempty"`

	// Elapsed is the evaluation wall time
	Elapsed time.Duration `json:"elapsed"`
}

// Kind describes which metric groups the report carries
func (r *Report) Kind() string {
	switch {
	case r.Image != nil && r.Depth != nil:
		return "image+depth"
	case r.Image != nil:
		return "image"
	case r.Depth != nil:
		return "depth"
	default:
		return "empty"
	}
}

// Metric names accepted by Report.Value
const (
	MetricPSNR       = "psnr"
	MetricSSIM       = "ssim"
	MetricImageL1    = "l1"
	MetricDepthL1    = "depth-l1"
	MetricMultiScale = "multiscale"
	MetricTV         = "tv"
)

// Value returns a named metric from the report, and false when the report
// does not carry it.
func (r *Report) Value(metric string) (float64, bool) {
	switch metric {
	case MetricPSNR, MetricSSIM, MetricImageL1:
		if r.Image == nil {
			return 0, false
		}
		switch metric {
		case MetricPSNR:
			return r.Image.PSNR, true
		case MetricSSIM:
			return r.Image.SSIM, true
		default:
			return r.Image.L1, true
		}
	case MetricDepthL1, MetricMultiScale, MetricTV:
		if r.Depth == nil {
			return 0, false
		}
		switch metric {
		case MetricDepthL1:
			return r.Depth.L1, true
		case MetricMultiScale:
			return r.Depth.MultiScale, true
		default:
			return r.Depth.TV, true
		}
	}
	return 0, false
}

// Cost maps a metric to a lower-is-better value: PSNR becomes the
// normalized MSE it was derived from and SSIM becomes 1-SSIM. Losses are
// returned unchanged.
func (r *Report) Cost(metric string) (float64, bool) {
	v, ok := r.Value(metric)
	if !ok {
		return 0, false
	}
	switch metric {
	case MetricPSNR:
		return math.Pow(10, -v/10), true
	case MetricSSIM:
		return 1 - v, true
	}
	return v, true
}
