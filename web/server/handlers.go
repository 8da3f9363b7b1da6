package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/export"
	"github.com/df07/go-depthmesh/pkg/geometry"
	"github.com/df07/go-depthmesh/pkg/pipeline"
	"github.com/df07/go-depthmesh/pkg/preprocess"
)

// Query parameter limits advertised by /api/config
const (
	minBrightness = -255
	maxBrightness = 255
	minGamma      = 0.05
	maxGamma      = 10.0
	minDepthScale = 0.01
	maxDepthScale = 100.0
	minScale      = 1e-6
	maxScale      = 1e6

	// multipart parts beyond this spill to disk
	multipartMemory = 8 << 20
)

// PreviewResponse carries base64 PNG previews
type PreviewResponse struct {
	Grayscale string `json:"grayscale"`
	Depth     string `json:"depth"`
	Histogram string `json:"histogram,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// handlePreview renders the grayscale and depth previews of an uploaded image
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	opts, err := s.parsePreviewOptions(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, _, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := s.requestTimeout(r.Context())
	defer cancel()
	release, err := s.acquire(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer release()

	start := time.Now()
	result, err := s.pipeline.Preview(ctx, data, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		Grayscale: base64.StdEncoding.EncodeToString(result.Grayscale),
		Depth:     base64.StdEncoding.EncodeToString(result.Depth),
		Histogram: base64.StdEncoding.EncodeToString(result.Histogram),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

// handleExport converts an uploaded image and streams the artifact back
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, err := s.parseExportOptions(r.URL.Query(), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, filename, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := s.requestTimeout(r.Context())
	defer cancel()
	release, err := s.acquire(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer release()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifactName(filename, format)))

	body := &trackingWriter{w: w}
	result, err := s.pipeline.Export(ctx, data, opts, body)
	if err != nil {
		s.metrics.RecordExportFailure(format.String())
		if body.written {
			// headers are gone; the truncated body is all the client gets
			s.logger.Error("export failed mid-stream",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Error(err))
			return
		}
		w.Header().Del("Content-Disposition")
		s.fail(w, r, err)
		return
	}
	s.metrics.RecordExport(format.String(), result.Triangles, result.Bytes, result.Duration)
}

// handleInspect parses an uploaded artifact and reports its contents. The
// format comes from ?format= or else the uploaded file's extension.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	name := r.URL.Query().Get("format")
	if name == "" {
		name = filepath.Ext(filename)
	}
	if name == "" {
		s.fail(w, r, core.NewError(core.StageOptions, core.ErrInvalidParameter,
			"format is required when the upload has no file extension"))
		return
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	release, err := s.acquire(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer release()

	report, err := export.Inspect(bytes.NewReader(data), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// readUpload returns the request's image bytes from the multipart "file"
// field, or the raw body for non-multipart requests
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)

	var (
		data     []byte
		filename string
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, filename, err = readMultipartFile(r)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("upload exceeds %d bytes: %w", tooLarge.Limit, err)
		}
		return nil, "", core.WrapError(core.StageOptions, core.ErrInvalidParameter, err, "reading upload")
	}
	if len(data) == 0 {
		return nil, "", core.NewError(core.StageOptions, core.ErrInvalidParameter, "empty upload")
	}
	return data, filename, nil
}

func readMultipartFile(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", err
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing multipart field %q: %w", "file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

// parseExportOptions builds pipeline options from the query, starting at the
// configured defaults. Resolution is clamped rather than rejected.
func (s *Server) parseExportOptions(values url.Values, format export.Format) (pipeline.Options, error) {
	opts := s.cfg.DefaultOptions()
	opts.Format = format.String()

	var err error
	if opts.Resolution, err = s.parseResolution(values); err != nil {
		return opts, err
	}
	if opts.Brightness, err = parseIntParam(values, "brightness", opts.Brightness, minBrightness, maxBrightness); err != nil {
		return opts, err
	}
	if opts.Gamma, err = parseFloatParam(values, "gamma", opts.Gamma, minGamma, maxGamma); err != nil {
		return opts, err
	}
	if opts.DepthScale, err = parseFloatParam(values, "depthScale", opts.DepthScale, minDepthScale, maxDepthScale); err != nil {
		return opts, err
	}
	if opts.Scale, err = parseFloatParam(values, "scale", opts.Scale, minScale, maxScale); err != nil {
		return opts, err
	}
	if v := values.Get("emission"); v != "" {
		if opts.Emission, err = geometry.ParseEmissionPolicy(v); err != nil {
			return opts, err
		}
	}
	if v := values.Get("mesh"); v != "" {
		if opts.Mesh, err = geometry.ParseMeshStrategy(v); err != nil {
			return opts, err
		}
	}
	switch v := strings.ToLower(values.Get("stl")); v {
	case "":
	case "ascii":
		opts.STLASCII = true
	case "binary":
		opts.STLASCII = false
	default:
		return opts, invalidParam("stl encoding %q (valid: binary, ascii)", v)
	}
	if opts.STLNormals, err = parseBoolParam(values, "normals", opts.STLNormals); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) parsePreviewOptions(values url.Values) (pipeline.PreviewOptions, error) {
	opts := pipeline.DefaultPreviewOptions()

	var err error
	if opts.Resolution, err = s.parseResolution(values); err != nil {
		return opts, err
	}
	if opts.Brightness, err = parseIntParam(values, "brightness", 0, minBrightness, maxBrightness); err != nil {
		return opts, err
	}
	if opts.Gamma, err = parseFloatParam(values, "gamma", 1, minGamma, maxGamma); err != nil {
		return opts, err
	}
	if opts.Background, err = preprocess.ParseBackground(values.Get("bg")); err != nil {
		return opts, err
	}
	if opts.Histogram, err = parseBoolParam(values, "histogram", false); err != nil {
		return opts, err
	}
	if opts.HistogramBins, err = parseIntParam(values, "bins", opts.HistogramBins, 2, 256); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) parseResolution(values url.Values) (int, error) {
	res, err := parseIntParam(values, "res", 0, 0, 1<<16)
	if err != nil {
		return 0, err
	}
	return s.cfg.Pipeline.ClampResolution(res), nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, invalidParam("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, invalidParam("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, invalidParam("invalid %s: %s", key, value)
		}
		if !(parsed >= min && parsed <= max) {
			return 0, invalidParam("%s must be between %g and %g, got: %g", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func parseBoolParam(values url.Values, key string, defaultValue bool) (bool, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, invalidParam("invalid %s: %s", key, value)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func invalidParam(format string, args ...any) error {
	return core.NewError(core.StageOptions, core.ErrInvalidParameter, format, args...)
}

// artifactName derives the download name from the uploaded file name
func artifactName(upload string, format export.Format) string {
	base := filepath.Base(upload)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "mesh"
	}
	return base + format.Extension()
}

// trackingWriter notes whether any artifact bytes reached the client
type trackingWriter struct {
	w       io.Writer
	written bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.written = true
	}
	return t.w.Write(p)
}
