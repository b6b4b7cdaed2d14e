package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/imageio"
	"github.com/cwbudde/reconmetrics/internal/store"
)

var (
	depthPred   string
	depthGT     string
	depthScales []int
	depthScale  float64
	depthSave   bool
	depthJSON   bool
)

var depthCmd = &cobra.Command{
	Use:   "depth",
	Short: "Compare a predicted depth map against ground truth",
	Long: `Computes the L1, multi-scale L1 and total-variation losses of a predicted
depth map. Depth images are read as grayscale; samples are normalized to
[0, 1] and multiplied by --depth-scale.`,
	RunE: runDepth,
}

func init() {
	defaults := eval.DefaultConfig()

	depthCmd.Flags().StringVar(&depthPred, "pred", "", "Predicted depth image path (required)")
	depthCmd.Flags().StringVar(&depthGT, "gt", "", "Ground-truth depth image path (required)")
	depthCmd.Flags().IntSliceVar(&depthScales, "scales", defaults.DepthScales, "Downscale factors of the multi-scale loss")
	depthCmd.Flags().Float64Var(&depthScale, "depth-scale", defaults.DepthScale, "Multiplier applied to normalized depth samples")
	depthCmd.Flags().BoolVar(&depthSave, "save", false, "Store the report under --data-dir")
	depthCmd.Flags().BoolVar(&depthJSON, "json", false, "Print the report as JSON")

	depthCmd.MarkFlagRequired("pred")
	depthCmd.MarkFlagRequired("gt")
	rootCmd.AddCommand(depthCmd)
}

func runDepth(cmd *cobra.Command, args []string) error {
	cfg := eval.DefaultConfig()
	cfg.DepthScales = depthScales
	cfg.DepthScale = depthScale

	evaluator, err := eval.New(cfg)
	if err != nil {
		return err
	}

	trace := &store.TraceRecorder{}
	evaluator.SetObserver(trace.Record)

	report, req, err := compareDepthFiles(cmd.Context(), evaluator, depthPred, depthGT)
	if err != nil {
		return err
	}

	if depthSave {
		if err := persistReport(dataDir, report, trace.Entries(), req); err != nil {
			return err
		}
	}

	return printReport(cmd.OutOrStdout(), report, depthJSON)
}

func compareDepthFiles(ctx context.Context, evaluator *eval.Evaluator, predPath, gtPath string) (*eval.Report, eval.Request, error) {
	var req eval.Request
	scale := evaluator.Config().DepthScale

	pred, err := imageio.LoadDepth(predPath, scale)
	if err != nil {
		return nil, req, fmt.Errorf("failed to load prediction: %w", err)
	}
	gt, err := imageio.LoadDepth(gtPath, scale)
	if err != nil {
		return nil, req, fmt.Errorf("failed to load ground truth: %w", err)
	}

	req = eval.Request{
		Predicted:       pred,
		GroundTruth:     gt,
		PredictedName:   predPath,
		GroundTruthName: gtPath,
	}

	report, err := evaluator.Evaluate(ctx, req)
	if err != nil {
		return nil, req, err
	}
	return report, req, nil
}
