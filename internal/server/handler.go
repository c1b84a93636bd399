package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"
	"cnic-overlay/internal/version"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Attach(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Post("/render", s.handleRender)
	r.Post("/annotate", s.handleAnnotate)
	r.Post("/legend", s.handleLegend)
	r.Post("/analyze", s.handleAnalyze)
}

// Annotation is the JSON response of /annotate and /analyze.
type Annotation struct {
	Image    string             `json:"image"` // base64 encoded PNG
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Drawn    []string           `json:"drawn"`
	Legend   overlay.Legend     `json:"legend"`
	Warnings []string           `json:"warnings"`
	Result   *extraction.Result `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJson(w, version.Get())
}

// handleRender returns the composite as PNG. X-Overlay-Warnings carries the
// number of fields that were not drawn.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	src, err := readImage(r)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result, err := readResult(r)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out, err := s.annotate(r, src, result)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer

	if err := out.composite.EncodePNG(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Overlay-Warnings", fmt.Sprint(len(out.warnings)))
	w.Write(buf.Bytes())
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	src, err := readImage(r)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result, err := readResult(r)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out, err := s.annotate(r, src, result)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp, err := out.annotation()

	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJson(w, resp)
}

// handleLegend builds the legend for a result without any image.
func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	result, err := readResultBody(r)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	fields, warnings := overlay.Normalize(result)
	legend, legendWarnings := overlay.BuildLegend(fields)

	warnings = append(warnings, legendWarnings...)
	overlay.LogWarnings(s.Logger, "field skipped", warnings)

	writeJson(w, legend)
}

// handleAnalyze sends the uploaded image to the extraction backend and
// overlays the fields it reports.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.Extractor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no extraction backend configured"))
		return
	}

	src, err := readImage(r)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	rc, err := src.Open()

	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := s.Extractor.Extract(r.Context(), src.Name, rc)
	rc.Close()

	if err != nil {
		s.Logger.Error("extraction failed", "source", src.Name, "error", err, "request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusBadGateway, err)
		return
	}

	out, err := s.annotate(r, src, result)

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp, err := out.annotation()

	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp.Result = result

	writeJson(w, resp)
}

type annotated struct {
	composite *cnicimage.Composite
	legend    overlay.Legend
	warnings  []overlay.Warning
}

func (a *annotated) annotation() (*Annotation, error) {
	var buf bytes.Buffer

	if err := a.composite.EncodePNG(&buf); err != nil {
		return nil, err
	}

	warnings := make([]string, 0, len(a.warnings))

	for _, w := range a.warnings {
		warnings = append(warnings, w.Error())
	}

	drawn := a.composite.Drawn

	if drawn == nil {
		drawn = []string{}
	}

	return &Annotation{
		Image:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:    a.composite.Width,
		Height:   a.composite.Height,
		Drawn:    drawn,
		Legend:   a.legend,
		Warnings: warnings,
	}, nil
}

// annotate decodes src and runs one render pass. The decoded image is
// released before returning.
func (s *Server) annotate(r *http.Request, src cnicimage.Source, result *extraction.Result) (*annotated, error) {
	decoded, err := s.Decoder.Decode(r.Context(), src)

	if err != nil {
		return nil, err
	}

	defer decoded.Release()

	fields, warnings := overlay.Normalize(result)
	composite, renderWarnings := s.Renderer.Render(decoded.Pixels(), fields)
	legend, _ := overlay.BuildLegend(fields)

	warnings = append(warnings, renderWarnings...)
	overlay.LogWarnings(s.Logger, "field skipped", warnings)

	return &annotated{
		composite: composite,
		legend:    legend,
		warnings:  warnings,
	}, nil
}
