package server

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/imageio"
	"github.com/cwbudde/reconmetrics/internal/store"
	"github.com/cwbudde/reconmetrics/internal/tensor"
)

const maxUploadBytes = 64 << 20

// handleEvaluate handles POST /api/v1/evaluate.
//
// The multipart form carries the files reference+candidate and/or
// predicted+groundTruth, plus optional fields window, sizeAverage, maxValue,
// scales (comma separated) and depthScale overriding the server defaults.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, &badRequestError{msg: fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}
	defer r.MultipartForm.RemoveAll()

	cfg, err := s.requestConfig(r.MultipartForm)
	if err != nil {
		writeError(w, err)
		return
	}

	evaluator, err := eval.New(cfg)
	if err != nil {
		writeError(w, &badRequestError{msg: err.Error()})
		return
	}

	req, err := readRequest(r.MultipartForm, cfg.DepthScale)
	if err != nil {
		writeError(w, err)
		return
	}

	trace := &store.TraceRecorder{}
	evaluator.SetObserver(trace.Record)

	report, err := evaluator.Evaluate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.SaveReport(report); err != nil {
		writeError(w, err)
		return
	}
	// The report is already stored, so a missing trace is only logged
	if err := store.SaveTrace(s.store, report.ID, trace.Entries()); err != nil {
		slog.Warn("Failed to save trace", "id", report.ID, "error", err)
	}
	if report.Image != nil {
		s.saveDiff(report.ID, req.Reference, req.Candidate)
	}

	writeJSON(w, http.StatusCreated, report)
}

// requestConfig overlays form fields on the server's default config
func (s *Server) requestConfig(form *multipart.Form) (eval.Config, error) {
	cfg := s.config
	cfg.DepthScales = append([]int(nil), s.config.DepthScales...)

	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	if v := value("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, &badRequestError{msg: fmt.Sprintf("invalid window %q", v)}
		}
		cfg.WindowSize = n
	}
	if v := value("sizeAverage"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, &badRequestError{msg: fmt.Sprintf("invalid sizeAverage %q", v)}
		}
		cfg.SizeAverage = b
	}
	if v := value("maxValue"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, &badRequestError{msg: fmt.Sprintf("invalid maxValue %q", v)}
		}
		cfg.MaxValue = f
	}
	if v := value("depthScale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, &badRequestError{msg: fmt.Sprintf("invalid depthScale %q", v)}
		}
		cfg.DepthScale = f
	}
	if v := value("scales"); v != "" {
		scales, err := ParseScales(v)
		if err != nil {
			return cfg, &badRequestError{msg: err.Error()}
		}
		cfg.DepthScales = scales
	}
	return cfg, nil
}

// ParseScales parses a comma-separated list of integer downscale factors
func ParseScales(s string) ([]int, error) {
	var scales []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid scale %q", field)
		}
		scales = append(scales, n)
	}
	if len(scales) == 0 {
		return nil, fmt.Errorf("no scales in %q", s)
	}
	return scales, nil
}

// readRequest decodes the uploaded files into an evaluation request
func readRequest(form *multipart.Form, depthScale float64) (eval.Request, error) {
	var req eval.Request

	ref, refName, err := formImage(form, "reference")
	if err != nil {
		return req, err
	}
	cand, candName, err := formImage(form, "candidate")
	if err != nil {
		return req, err
	}
	if (ref == nil) != (cand == nil) {
		return req, &badRequestError{msg: "reference and candidate must be uploaded together"}
	}
	if ref != nil {
		req.Reference = imageio.FromNRGBA(imageio.ToNRGBA(ref))
		req.Candidate = imageio.FromNRGBA(imageio.ToNRGBA(cand))
		req.ReferenceName, req.CandidateName = refName, candName
	}

	pred, predName, err := formImage(form, "predicted")
	if err != nil {
		return req, err
	}
	gt, gtName, err := formImage(form, "groundTruth")
	if err != nil {
		return req, err
	}
	if (pred == nil) != (gt == nil) {
		return req, &badRequestError{msg: "predicted and groundTruth must be uploaded together"}
	}
	if pred != nil {
		req.Predicted = imageio.FromGray(pred, depthScale)
		req.GroundTruth = imageio.FromGray(gt, depthScale)
		req.PredictedName, req.GroundTruthName = predName, gtName
	}

	if ref == nil && pred == nil {
		return req, &badRequestError{msg: "upload reference+candidate and/or predicted+groundTruth"}
	}
	return req, nil
}

// formImage decodes an optional uploaded image. Missing fields yield nil;
// depth maps keep their decoded type so 16-bit samples survive.
func formImage(form *multipart.Form, field string) (image.Image, string, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, "", nil
	}

	f, err := files[0].Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload %s: %w", field, err)
	}
	defer f.Close()

	img, _, err := imageio.Decode(f)
	if err != nil {
		return nil, "", &badRequestError{msg: fmt.Sprintf("%s: %v", field, err)}
	}
	return img, files[0].Filename, nil
}

// saveDiff renders and stores the difference image of a single-image pair
func (s *Server) saveDiff(id string, reference, candidate *tensor.Tensor) {
	diff, err := imageio.DiffImage(reference, candidate)
	if err != nil {
		slog.Warn("Failed to compute diff image", "id", id, "error", err)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, diff); err != nil {
		slog.Warn("Failed to encode diff image", "id", id, "error", err)
		return
	}
	if err := s.store.SaveArtifact(id, store.DiffArtifact, &buf); err != nil {
		slog.Warn("Failed to save diff image", "id", id, "error", err)
	}
}
