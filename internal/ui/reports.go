package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// ReportListItem is one row of the report overview
type ReportListItem struct {
	ID        string
	CreatedAt time.Time
	Kind      string
	Inputs    string

	// Preformatted metric cells, "-" when absent
	PSNR    string
	SSIM    string
	DepthL1 string

	HasDiff bool
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>reconmetrics</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; width: 100%; }
th, td { padding: .4rem .8rem; border-bottom: 1px solid #ddd; text-align: left; }
td.num { font-variant-numeric: tabular-nums; text-align: right; }
form { margin: 1.5rem 0; padding: 1rem; background: #f6f6f6; }
.empty { color: #888; font-style: italic; }
</style>
</head>
<body>
<h1>Reconstruction metrics</h1>
`

const evaluateForm = `<form method="post" action="/api/v1/evaluate" enctype="multipart/form-data">
<fieldset><legend>Image pair</legend>
<label>Reference <input type="file" name="reference"></label>
<label>Candidate <input type="file" name="candidate"></label>
</fieldset>
<fieldset><legend>Depth pair</legend>
<label>Predicted <input type="file" name="predicted"></label>
<label>Ground truth <input type="file" name="groundTruth"></label>
</fieldset>
<label>SSIM window <input type="number" name="window" value="11" min="1" step="2"></label>
<button type="submit">Evaluate</button>
</form>
`

// ReportList renders the index page with the upload form and all stored
// reports.
func ReportList(items []ReportListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead+evaluateForm); err != nil {
			return err
		}

		if len(items) == 0 {
			_, err := io.WriteString(w, `<p class="empty">No reports yet.</p></body></html>`)
			return err
		}

		if _, err := io.WriteString(w, "<table>\n<tr><th>Created</th><th>Kind</th><th>Inputs</th><th>PSNR</th><th>SSIM</th><th>Depth L1</th><th></th></tr>\n"); err != nil {
			return err
		}
		for _, item := range items {
			if err := reportRow(item).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</table>\n</body>\n</html>\n")
		return err
	})
}

func reportRow(item ReportListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		href := "/api/v1/reports/" + templ.EscapeString(item.ID)
		links := fmt.Sprintf(`<a href="%s">json</a>`, href)
		if item.HasDiff {
			links += fmt.Sprintf(` <a href="%s/diff.png">diff</a>`, href)
		}

		_, err := fmt.Fprintf(w,
			"<tr><td>%s</td><td>%s</td><td>%s</td><td class=\"num\">%s</td><td class=\"num\">%s</td><td class=\"num\">%s</td><td>%s</td></tr>\n",
			templ.EscapeString(item.CreatedAt.Format(time.DateTime)),
			templ.EscapeString(item.Kind),
			templ.EscapeString(item.Inputs),
			templ.EscapeString(item.PSNR),
			templ.EscapeString(item.SSIM),
			templ.EscapeString(item.DepthL1),
			links,
		)
		return err
	})
}
