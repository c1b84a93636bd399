// Package app owns the viewer's resources: the decoded image on display, the
// current extraction result and the last rendered overlay.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
	"cnic-overlay/internal/overlay"
)

var (
	// ErrStaleDecode marks a decode that finished after a newer source was
	// selected. Its image is released and never displayed.
	ErrStaleDecode = errors.New("stale decode")

	// ErrDisposed is returned by operations on a disposed State.
	ErrDisposed = errors.New("state disposed")
)

// EventType identifies different application events.
type EventType int

const (
	EventImageLoaded  EventType = iota // data: *cnicimage.Decoded
	EventDecodeFailed                  // data: error
	EventResultLoaded                  // data: *extraction.Result
	EventRendered                      // data: *Output
	EventDisposed                      // data: nil
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Output is the result of one render pass.
type Output struct {
	Fields    []overlay.Field // Renderable fields in paint order
	Composite *cnicimage.Composite
	Legend    overlay.Legend
	Warnings  []overlay.Warning
	Source    string // Name of the image the overlay was drawn on
}

// State holds at most one live decoded image and re-renders the overlay
// whenever the image or the extraction result changes.
type State struct {
	mu sync.RWMutex

	decoder  cnicimage.Decoder
	renderer *overlay.Renderer
	logger   *slog.Logger

	// Decode bookkeeping
	generation uint64
	cancel     context.CancelFunc
	pending    sync.WaitGroup
	disposed   bool

	current *cnicimage.Decoded
	result  *extraction.Result
	output  *Output

	// Event listeners
	listeners map[EventType][]EventListener
}

// NewState creates a State decoding through decoder and drawing with renderer.
func NewState(decoder cnicimage.Decoder, renderer *overlay.Renderer, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		decoder:   decoder,
		renderer:  renderer,
		logger:    logger.With("component", "state"),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetSource starts decoding src in the background. Any decode still in
// flight is cancelled, and if it completes anyway its image is released and
// discarded. Completion is reported through EventImageLoaded or
// EventDecodeFailed.
func (s *State) SetSource(src cnicimage.Source) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pending.Add(1)
	s.mu.Unlock()

	s.logger.Debug("decoding", "source", src.Name, "generation", gen)

	go s.decode(ctx, cancel, gen, src)
	return nil
}

func (s *State) decode(ctx context.Context, cancel context.CancelFunc, gen uint64, src cnicimage.Source) {
	defer s.pending.Done()
	defer cancel()

	decoded, err := s.decoder.Decode(ctx, src)

	s.mu.Lock()
	if s.disposed || gen != s.generation {
		s.mu.Unlock()
		decoded.Release()
		s.logger.Debug("discarding decode", "source", src.Name, "generation", gen, "error", ErrStaleDecode)
		return
	}
	s.cancel = nil
	previous := s.current

	if err != nil {
		s.current = nil
		s.output = nil
		s.mu.Unlock()

		previous.Release()
		if !errors.Is(err, cnicimage.ErrDecodeFailure) {
			err = fmt.Errorf("%w: %s: %v", cnicimage.ErrDecodeFailure, src.Name, err)
		}
		s.logger.Error("failed to decode image", "source", src.Name, "error", err)
		s.Emit(EventDecodeFailed, err)
		return
	}

	s.current = decoded
	s.output = nil
	s.mu.Unlock()

	previous.Release()
	s.logger.Info("image loaded", "source", decoded.Source, "format", decoded.Format,
		"width", decoded.Width, "height", decoded.Height)
	s.Emit(EventImageLoaded, decoded)

	s.render()
}

// SetResult installs a new extraction result and, if an image is on
// display, renders the overlay synchronously. A nil result clears the
// overlay. It never waits for a pending decode.
func (s *State) SetResult(result *extraction.Result) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.result = result
	s.output = nil
	s.mu.Unlock()

	s.Emit(EventResultLoaded, result)
	s.render()
	return nil
}

// render runs one render pass over the current image and result. The output
// is kept only if neither changed while drawing.
func (s *State) render() {
	s.mu.RLock()
	current, result := s.current, s.result
	s.mu.RUnlock()

	if current == nil || result == nil {
		return
	}
	base := current.Pixels()
	if base == nil {
		return
	}

	fields, warnings := overlay.Normalize(result)
	composite, renderWarnings := s.renderer.Render(base, fields)
	legend, _ := overlay.BuildLegend(fields) // same warnings as Render

	warnings = append(warnings, renderWarnings...)
	overlay.LogWarnings(s.logger, "field skipped", warnings)

	out := &Output{
		Fields:    fields,
		Composite: composite,
		Legend:    legend,
		Warnings:  warnings,
		Source:    current.Source,
	}

	s.mu.Lock()
	if s.disposed || s.current != current || s.result != result {
		s.mu.Unlock()
		return
	}
	s.output = out
	s.mu.Unlock()

	s.logger.Info("overlay rendered", "source", current.Source,
		"drawn", len(composite.Drawn), "warnings", len(warnings))
	s.Emit(EventRendered, out)
}

// Output returns the last render, or nil if nothing is rendered.
func (s *State) Output() *Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output
}

// Current returns the decoded image on display, or nil.
func (s *State) Current() *cnicimage.Decoded {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Result returns the current extraction result, or nil.
func (s *State) Result() *extraction.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Wait blocks until every decode started so far has finished.
func (s *State) Wait() {
	s.pending.Wait()
}

// Dispose cancels any pending decode and releases the image on display.
// Calling it again does nothing.
func (s *State) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	current := s.current
	s.current = nil
	s.output = nil
	s.mu.Unlock()

	current.Release()
	s.logger.Debug("disposed")
	s.Emit(EventDisposed, nil)
}
