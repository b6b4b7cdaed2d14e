package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/imageio"
	"github.com/cwbudde/reconmetrics/internal/store"
	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// formatPSNR prints PSNR in dB, or "inf" for identical images
func formatPSNR(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f dB", v)
}

func formatScales(scales []int) string {
	parts := make([]string, len(scales))
	for i, s := range scales {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, ",")
}

// printReport writes a report as a metric table or as indented JSON
func printReport(w io.Writer, report *eval.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Report\t%s\n", report.ID)
	if report.Image != nil {
		m := report.Image
		fmt.Fprintf(tw, "PSNR\t%s\n", formatPSNR(m.PSNR))
		fmt.Fprintf(tw, "SSIM\t%.6f\n", m.SSIM)
		for i, s := range m.SSIMPerImage {
			fmt.Fprintf(tw, "  SSIM[%d]\t%.6f\n", i, s)
		}
		fmt.Fprintf(tw, "L1\t%.6f\n", m.L1)
	}
	if report.Depth != nil {
		m := report.Depth
		fmt.Fprintf(tw, "Depth L1\t%.6f\n", m.L1)
		fmt.Fprintf(tw, "Multi-scale L1\t%.6f (scales %s)\n", m.MultiScale, formatScales(m.Scales))
		fmt.Fprintf(tw, "TV\t%.6f\n", m.TV)
	}
	fmt.Fprintf(tw, "Elapsed\t%s\n", report.Elapsed)
	return tw.Flush()
}

func encodeDiff(reference, candidate *tensor.Tensor) ([]byte, error) {
	diff, err := imageio.DiffImage(reference, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, diff); err != nil {
		return nil, fmt.Errorf("failed to encode diff image: %w", err)
	}
	return buf.Bytes(), nil
}

// writeDiff writes the false-color difference image to path
func writeDiff(path string, reference, candidate *tensor.Tensor) error {
	data, err := encodeDiff(reference, candidate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write diff image: %w", err)
	}
	slog.Info("Wrote diff image", "path", path)
	return nil
}

// persistReport stores the report with its trace and, for image pairs, the
// difference image.
func persistReport(baseDir string, report *eval.Report, trace []store.TraceEntry, req eval.Request) error {
	st, err := store.NewFSStore(baseDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}
	if err := st.SaveReport(report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	if err := store.SaveTrace(st, report.ID, trace); err != nil {
		return err
	}

	if req.Reference != nil && req.Candidate != nil {
		data, err := encodeDiff(req.Reference, req.Candidate)
		if err != nil {
			return err
		}
		if err := st.SaveArtifact(report.ID, store.DiffArtifact, bytes.NewReader(data)); err != nil {
			return err
		}
	}

	slog.Info("Report saved", "id", report.ID, "dir", st.ReportDir(report.ID))
	return nil
}
