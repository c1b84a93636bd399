// Package server exposes the overlay renderer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cnic-overlay/internal/config"
	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// Extractor produces an extraction result for an uploaded image.
type Extractor interface {
	Extract(ctx context.Context, filename string, image io.Reader) (*extraction.Result, error)
}

type Server struct {
	*config.Config

	Decoder   cnicimage.Decoder
	Renderer  *overlay.Renderer
	Extractor Extractor // nil disables /analyze

	Logger *slog.Logger
}

func New(cfg *config.Config, decoder cnicimage.Decoder, renderer *overlay.Renderer, extractor Extractor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Config: cfg,

		Decoder:   decoder,
		Renderer:  renderer,
		Extractor: extractor,

		Logger: logger.With("component", "server"),
	}
}

// Handler returns the router with CORS, request ids, upload limits and
// request logging installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(s.limitBody)

	s.Attach(r)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.Logger.Info("listening", "address", s.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

const requestIDHeader = "X-Request-ID"

type ctxKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)

		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxUploadBytes > 0 {
			if r.ContentLength > s.MaxUploadBytes {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.MaxUploadBytes))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
		}

		next.ServeHTTP(w, r)
	})
}
