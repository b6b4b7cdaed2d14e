package eval

import (
	"fmt"

	"github.com/cwbudde/reconmetrics/internal/loss"
)

// Config controls which parameters the evaluator passes to the metrics
type Config struct {
	// WindowSize is the SSIM Gaussian window edge (odd, default 11)
	WindowSize int `json:"windowSize"`

	// SizeAverage reduces SSIM to one value; otherwise one per batch element
	SizeAverage bool `json:"sizeAverage"`

	// MaxValue is the dynamic range assumed by PSNR (1.0 for [0,1] images)
	MaxValue float64 `json:"maxValue"`

	// DepthScales are the downscale factors of the multi-scale depth loss
	DepthScales []int `json:"depthScales"`

	// DepthScale multiplies normalized depth samples when loading depth maps
	DepthScale float64 `json:"depthScale"`
}

// DefaultConfig returns the settings used for training-time evaluation
func DefaultConfig() Config {
	return Config{
		WindowSize:  loss.DefaultWindowSize,
		SizeAverage: true,
		MaxValue:    1.0,
		DepthScales: append([]int(nil), loss.DefaultDepthScales...),
		DepthScale:  1.0,
	}
}

// Validate checks the config for values the metrics would reject
func (c Config) Validate() error {
	if c.WindowSize <= 0 || c.WindowSize%2 == 0 {
		return fmt.Errorf("window size %d must be odd and positive: %w", c.WindowSize, loss.ErrInvalidWindow)
	}
	if !(c.MaxValue > 0) {
		return fmt.Errorf("max value %v must be positive", c.MaxValue)
	}
	if len(c.DepthScales) == 0 {
		return fmt.Errorf("at least one depth scale is required: %w", loss.ErrInvalidScale)
	}
	for _, s := range c.DepthScales {
		if s < 1 {
			return fmt.Errorf("depth scale %d: %w", s, loss.ErrInvalidScale)
		}
	}
	if !(c.DepthScale > 0) {
		return fmt.Errorf("depth scale multiplier %v must be positive", c.DepthScale)
	}
	return nil
}
