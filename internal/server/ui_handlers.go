package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cwbudde/reconmetrics/internal/store"
	"github.com/cwbudde/reconmetrics/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	infos, err := s.store.ListReports()
	if err != nil {
		http.Error(w, "Failed to list reports", http.StatusInternalServerError)
		return
	}

	items := make([]ui.ReportListItem, len(infos))
	for i, info := range infos {
		items[i] = listItem(info)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.ReportList(items).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}

func listItem(info store.ReportInfo) ui.ReportListItem {
	item := ui.ReportListItem{
		ID:        info.ID,
		CreatedAt: info.CreatedAt,
		Kind:      info.Kind,
		PSNR:      "-",
		SSIM:      "-",
		DepthL1:   "-",
		HasDiff:   info.SSIM != nil,
	}

	var inputs []string
	for _, name := range []string{info.Reference, info.Candidate, info.Predicted} {
		if name != "" {
			inputs = append(inputs, name)
		}
	}
	item.Inputs = strings.Join(inputs, " / ")

	switch {
	case info.PSNRInfinite:
		item.PSNR = "inf"
	case info.PSNR != nil:
		item.PSNR = fmt.Sprintf("%.2f dB", *info.PSNR)
	}
	if info.SSIM != nil {
		item.SSIM = fmt.Sprintf("%.4f", *info.SSIM)
	}
	if info.DepthL1 != nil {
		item.DepthL1 = fmt.Sprintf("%.4f", *info.DepthL1)
	}
	return item
}
