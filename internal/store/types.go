package store

import (
	"math"
	"regexp"
	"time"

	"github.com/cwbudde/reconmetrics/internal/eval"
)

// ReportInfo is the listing view of a report. Only the headline metrics are
// carried; the full report is loaded on demand.
type ReportInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Kind      string    `json:"kind"`

	Reference string `json:"reference,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Predicted string `json:"predicted,omitempty"`

	// PSNR is nil when the report has no image metrics or PSNR is infinite
	PSNR         *float64 `json:"psnr,omitempty"`
	PSNRInfinite bool     `json:"psnrInfinite,omitempty"`
	SSIM         *float64 `json:"ssim,omitempty"`

	DepthL1    *float64 `json:"depthL1,omitempty"`
	MultiScale *float64 `json:"multiScale,omitempty"`

	// SizeBytes is the total size of the report directory, filled by ListReports
	SizeBytes int64 `json:"sizeBytes"`
}

// Info converts a full report to its listing view.
func Info(r *eval.Report) ReportInfo {
	info := ReportInfo{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Kind:      r.Kind(),
		Reference: r.Reference,
		Candidate: r.Candidate,
		Predicted: r.Predicted,
	}
	if r.Image != nil {
		if math.IsInf(r.Image.PSNR, 1) {
			info.PSNRInfinite = true
		} else {
			psnr := r.Image.PSNR
			info.PSNR = &psnr
		}
		ssim := r.Image.SSIM
		info.SSIM = &ssim
	}
	if r.Depth != nil {
		l1, ms := r.Depth.L1, r.Depth.MultiScale
		info.DepthL1 = &l1
		info.MultiScale = &ms
	}
	return info
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidID reports whether id is safe to use as a directory name.
func ValidID(id string) bool {
	return len(id) <= 128 && idPattern.MatchString(id)
}

// ValidateReport checks a report before it is persisted.
func ValidateReport(r *eval.Report) error {
	if r == nil {
		return &ValidationError{Field: "Report", Reason: "cannot be nil"}
	}
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if !ValidID(r.ID) {
		return &ValidationError{Field: "ID", Reason: "contains invalid characters"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	if r.Image == nil && r.Depth == nil {
		return &ValidationError{Field: "Image/Depth", Reason: "report carries no metrics"}
	}
	if r.Image != nil {
		if math.IsNaN(r.Image.PSNR) || math.IsInf(r.Image.PSNR, -1) {
			return &ValidationError{Field: "Image.PSNR", Reason: "must be a number or +Inf"}
		}
		if !finite(r.Image.SSIM) {
			return &ValidationError{Field: "Image.SSIM", Reason: "must be finite"}
		}
		for _, s := range r.Image.SSIMPerImage {
			if !finite(s) {
				return &ValidationError{Field: "Image.SSIMPerImage", Reason: "must be finite"}
			}
		}
		if !finite(r.Image.L1) || r.Image.L1 < 0 {
			return &ValidationError{Field: "Image.L1", Reason: "must be finite and non-negative"}
		}
	}
	if r.Depth != nil {
		for _, v := range []float64{r.Depth.L1, r.Depth.MultiScale, r.Depth.TV} {
			if !finite(v) || v < 0 {
				return &ValidationError{Field: "Depth", Reason: "losses must be finite and non-negative"}
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
