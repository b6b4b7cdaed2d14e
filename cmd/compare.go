package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/imageio"
	"github.com/cwbudde/reconmetrics/internal/store"
)

var (
	compareRef      string
	compareOut      string
	compareWindow   int
	comparePerBatch bool
	compareMaxValue float64
	compareFit      bool
	compareDiff     string
	compareSave     bool
	compareJSON     bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare a rendered image against its reference",
	Long: `Computes PSNR, SSIM and L1 between a reference image and a rendered
output. Images must have the same size unless --fit resamples the output
to the reference size.`,
	RunE: runCompare,
}

func init() {
	defaults := eval.DefaultConfig()

	compareCmd.Flags().StringVar(&compareRef, "ref", "", "Reference image path (required)")
	compareCmd.Flags().StringVar(&compareOut, "out", "", "Rendered image path (required)")
	compareCmd.Flags().IntVar(&compareWindow, "window", defaults.WindowSize, "SSIM Gaussian window size (odd)")
	compareCmd.Flags().BoolVar(&comparePerBatch, "per-batch", false, "Report SSIM per batch element instead of one average")
	compareCmd.Flags().Float64Var(&compareMaxValue, "max-value", defaults.MaxValue, "Dynamic range assumed by PSNR")
	compareCmd.Flags().BoolVar(&compareFit, "fit", false, "Resample the rendered image to the reference size")
	compareCmd.Flags().StringVar(&compareDiff, "diff", "", "Write a false-color difference image to this path")
	compareCmd.Flags().BoolVar(&compareSave, "save", false, "Store the report under --data-dir")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Print the report as JSON")

	compareCmd.MarkFlagRequired("ref")
	compareCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg := eval.DefaultConfig()
	cfg.WindowSize = compareWindow
	cfg.SizeAverage = !comparePerBatch
	cfg.MaxValue = compareMaxValue

	evaluator, err := eval.New(cfg)
	if err != nil {
		return err
	}

	trace := &store.TraceRecorder{}
	evaluator.SetObserver(trace.Record)

	report, req, err := compareFiles(cmd.Context(), evaluator, compareRef, compareOut, compareFit)
	if err != nil {
		return err
	}

	if compareDiff != "" {
		if err := writeDiff(compareDiff, req.Reference, req.Candidate); err != nil {
			return err
		}
	}

	if compareSave {
		if err := persistReport(dataDir, report, trace.Entries(), req); err != nil {
			return err
		}
	}

	return printReport(cmd.OutOrStdout(), report, compareJSON)
}

// compareFiles loads both images and evaluates them. With fit set, the
// rendered image is resampled to the reference size first.
func compareFiles(ctx context.Context, evaluator *eval.Evaluator, refPath, outPath string, fit bool) (*eval.Report, eval.Request, error) {
	var req eval.Request

	ref, err := imageio.Open(refPath)
	if err != nil {
		return nil, req, fmt.Errorf("failed to load reference: %w", err)
	}
	out, err := imageio.Open(outPath)
	if err != nil {
		return nil, req, fmt.Errorf("failed to load output: %w", err)
	}

	refBounds, outBounds := ref.Bounds(), out.Bounds()
	if refBounds.Size() != outBounds.Size() {
		if !fit {
			return nil, req, fmt.Errorf("image sizes differ (%v vs %v); use --fit to resample", refBounds.Size(), outBounds.Size())
		}
		slog.Info("Resampling output to reference size",
			"from", outBounds.Size().String(),
			"to", refBounds.Size().String(),
		)
		out = imageio.ResizeTo(out, refBounds.Dx(), refBounds.Dy())
	}

	slog.Info("Loaded images", "width", refBounds.Dx(), "height", refBounds.Dy())

	req = eval.Request{
		Reference:     imageio.FromNRGBA(imageio.ToNRGBA(ref)),
		Candidate:     imageio.FromNRGBA(imageio.ToNRGBA(out)),
		ReferenceName: refPath,
		CandidateName: outPath,
	}

	report, err := evaluator.Evaluate(ctx, req)
	if err != nil {
		return nil, req, err
	}
	return report, req, nil
}
