package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool

	trendMetric    string
	trendPatience  int
	trendThreshold float64
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage stored evaluation reports",
	Long: `Manage reports saved with --save or through the HTTP API: list them,
show one in full, clean old ones or follow a metric across reports.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored reports",
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old reports",
	Long: `Delete reports based on a retention policy: keep only the newest N
reports and/or delete reports older than N days.`,
	RunE: runCleanReports,
}

var trendReportsCmd = &cobra.Command{
	Use:   "trend",
	Short: "Follow a metric across stored reports",
	Long: `Walks all reports carrying --metric from oldest to newest and flags the
series as stalled once --patience reports in a row fail to improve the cost
by at least --threshold (relative).`,
	RunE: runTrendReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)

	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(cleanReportsCmd)
	reportsCmd.AddCommand(trendReportsCmd)

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")

	defaults := eval.DefaultTrendConfig()
	trendReportsCmd.Flags().StringVar(&trendMetric, "metric", eval.MetricPSNR, "Metric to follow (psnr, ssim, l1, depth-l1, multiscale, tv)")
	trendReportsCmd.Flags().IntVar(&trendPatience, "patience", defaults.Patience, "Reports without improvement before the series counts as stalled")
	trendReportsCmd.Flags().Float64Var(&trendThreshold, "threshold", defaults.Threshold, "Minimum relative cost improvement")
}

func openStore() (*store.FSStore, error) {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}
	return st, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListReports(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	infos, err := st.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	writeReportTable(out, infos)
	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

func writeReportTable(out io.Writer, infos []store.ReportInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tKIND\tPSNR\tSSIM\tDEPTH L1\tSIZE")
	fmt.Fprintln(w, "--\t-------\t----\t----\t----\t--------\t----")

	for _, info := range infos {
		psnr, ssim, depth := "-", "-", "-"
		switch {
		case info.PSNRInfinite:
			psnr = "inf"
		case info.PSNR != nil:
			psnr = fmt.Sprintf("%.2f", *info.PSNR)
		}
		if info.SSIM != nil {
			ssim = fmt.Sprintf("%.4f", *info.SSIM)
		}
		if info.DepthL1 != nil {
			depth = fmt.Sprintf("%.4f", *info.DepthL1)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(info.ID),
			info.CreatedAt.Format(time.DateTime),
			info.Kind,
			psnr,
			ssim,
			depth,
			formatBytes(info.SizeBytes),
		)
	}
	w.Flush()
}

func runShowReport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	report, err := st.LoadReport(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := printReport(out, report, false); err != nil {
		return err
	}

	tr, err := st.OpenTrace(report.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTrace (%d entries):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s  %-10s %v\n", e.Timestamp.Format("15:04:05.000"), e.Metric, e.Float())
	}
	return nil
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	infos, err := st.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	toDelete := selectReportsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n", shortID(info.ID), info.Kind, info.CreatedAt.Format(time.DateTime))
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := st.DeleteReport(info.ID); err != nil {
			slog.Error("Failed to delete report", "id", info.ID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted report", "id", info.ID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

// selectReportsForDeletion applies the retention policy: reports older than
// olderThanDays are deleted, and beyond that only the newest keepLast are
// kept. Zero disables either rule.
func selectReportsForDeletion(infos []store.ReportInfo, keepLast, olderThanDays int, now time.Time) []store.ReportInfo {
	sorted := make([]store.ReportInfo, len(infos))
	copy(sorted, infos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}

	var toDelete []store.ReportInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.CreatedAt.Before(cutoff)
		beyondKeep := keepLast > 0 && i >= keepLast
		if tooOld || beyondKeep {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// trendPoint is one report's cost in a trend series
type trendPoint struct {
	ID        string
	CreatedAt time.Time
	Value     float64
	Cost      float64
	Stale     int
}

// metricTrend loads reports oldest first and feeds their cost for metric
// into a tracker. It returns the points and whether the series stalled.
func metricTrend(st store.Store, metric string, cfg eval.TrendConfig) ([]trendPoint, bool, error) {
	infos, err := st.ListReports()
	if err != nil {
		return nil, false, fmt.Errorf("failed to list reports: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	tracker := eval.NewTrendTracker(cfg)
	var points []trendPoint
	stalled := false

	for _, info := range infos {
		report, err := st.LoadReport(info.ID)
		if err != nil {
			slog.Warn("Skipping unreadable report", "id", info.ID, "error", err)
			continue
		}
		cost, ok := report.Cost(metric)
		if !ok {
			continue
		}
		value, _ := report.Value(metric)

		stalled = tracker.Update(cost)
		points = append(points, trendPoint{
			ID:        report.ID,
			CreatedAt: report.CreatedAt,
			Value:     value,
			Cost:      cost,
			Stale:     tracker.StaleCount(),
		})
	}
	return points, stalled, nil
}

func runTrendReports(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	cfg := eval.TrendConfig{Patience: trendPatience, Threshold: trendThreshold}
	points, stalled, err := metricTrend(st, trendMetric, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(points) == 0 {
		fmt.Fprintf(out, "No reports carry metric %q.\n", trendMetric)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tCREATED\t%s\tCOST\tSTALE\n", strings.ToUpper(trendMetric))
	for _, p := range points {
		value := fmt.Sprintf("%.6f", p.Value)
		if trendMetric == eval.MetricPSNR {
			value = formatPSNR(p.Value)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6g\t%d\n",
			shortID(p.ID),
			p.CreatedAt.Format(time.DateTime),
			value,
			p.Cost,
			p.Stale,
		)
	}
	w.Flush()

	if stalled {
		fmt.Fprintf(out, "\nStalled: no %.3g%% improvement in the last %d report(s).\n", trendThreshold*100, trendPatience)
	} else {
		fmt.Fprintln(out, "\nStill improving.")
	}
	return nil
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
