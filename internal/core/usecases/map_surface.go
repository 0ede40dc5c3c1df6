package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/pkg/metrics"
)

var (
	// ErrNotReady is returned by every map command issued before the engine
	// has loaded, or after teardown.
	ErrNotReady = errors.New("map surface not ready")
	// ErrMapLoad wraps initialization failures (token fetch, engine construction).
	ErrMapLoad = errors.New("map failed to load")
)

// MapSurface exclusively owns the map engine instance. Other components
// reach the engine only through its command methods, which refuse to run
// until the engine reports ready.
type MapSurface struct {
	factory ports.EngineFactory
	tokens  ports.TokenProvider

	mu          sync.Mutex
	gen         uint64 // bumped by Initialize and Teardown; late results from an older gen are dropped
	initialized bool
	container   string
	engine      ports.MapEngine
	ready       bool
	loadErr     error
	readyCh     chan struct{}
	settledCh   chan struct{}
	offLoad     func()
	nextID      uint64
	listeners   map[uint64]func()
	onReady     map[uint64]func()
}

// NewMapSurface creates an uninitialized surface.
func NewMapSurface(factory ports.EngineFactory, tokens ports.TokenProvider) *MapSurface {
	s := &MapSurface{factory: factory, tokens: tokens}
	s.resetLocked()
	return s
}

func (s *MapSurface) resetLocked() {
	s.initialized = false
	s.container = ""
	s.engine = nil
	s.ready = false
	s.loadErr = nil
	s.readyCh = make(chan struct{})
	s.settledCh = make(chan struct{})
	s.offLoad = nil
	s.listeners = make(map[uint64]func())
	s.onReady = make(map[uint64]func())
}

// Initialize fetches the access token and constructs the engine inside
// container. It runs at most once per container: repeated calls for the
// same container return the first outcome. A different container tears
// the current engine down first.
//
// A nil return means the engine was constructed; readiness is signalled
// separately once the engine reports its load event.
func (s *MapSurface) Initialize(ctx context.Context, container string) error {
	s.mu.Lock()
	if s.initialized && s.container == container {
		err := s.loadErr
		s.mu.Unlock()
		return err
	}
	var stale teardownWork
	if s.initialized {
		stale = s.detachLocked()
	}
	s.gen++
	gen := s.gen
	s.initialized = true
	s.container = container
	s.mu.Unlock()

	if err := stale.run(); err != nil {
		slog.Warn("previous map engine teardown failed", "error", err)
	}

	token, err := s.tokens.FetchMapAccessToken(ctx)
	if err == nil && token == "" {
		err = errors.New("empty access token")
	}
	if err != nil {
		return s.fail(gen, fmt.Errorf("%w: fetch access token: %v", ErrMapLoad, err))
	}

	engine, err := s.factory(ctx, container, token)
	if err != nil {
		return s.fail(gen, fmt.Errorf("%w: construct engine: %v", ErrMapLoad, err))
	}

	s.mu.Lock()
	if s.gen != gen {
		// Torn down while we were constructing.
		s.mu.Unlock()
		_ = engine.Remove()
		return ErrNotReady
	}
	s.engine = engine
	s.offLoad = engine.On(ports.EventLoad, func(ports.EngineEvent) { s.markReady(gen) })
	s.mu.Unlock()

	// The load event may have fired before we subscribed.
	if engine.Loaded() {
		s.markReady(gen)
	}
	return nil
}

func (s *MapSurface) fail(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen == gen {
		s.loadErr = err
		close(s.settledCh)
	}
	s.mu.Unlock()

	metrics.MapLoadErrors.Inc()
	slog.Error("map surface failed to load", "error", err)
	return err
}

func (s *MapSurface) markReady(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.ready || s.engine == nil {
		s.mu.Unlock()
		return
	}
	s.ready = true
	close(s.readyCh)
	close(s.settledCh)
	offLoad := s.offLoad
	s.offLoad = nil
	callbacks := make([]func(), 0, len(s.onReady))
	for id, fn := range s.onReady {
		callbacks = append(callbacks, fn)
		delete(s.onReady, id)
	}
	s.mu.Unlock()

	if offLoad != nil {
		offLoad()
	}
	for _, fn := range callbacks {
		fn()
	}
}

// IsReady reports whether the engine has loaded.
func (s *MapSurface) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Ready returns a channel closed once the current engine is ready.
func (s *MapSurface) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyCh
}

// WaitReady blocks until the engine is ready, initialization failed, or
// ctx is done.
func (s *MapSurface) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settledCh
	s.mu.Unlock()

	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return s.loadErr
	}
	if !s.ready {
		return ErrNotReady
	}
	return nil
}

// LoadError returns the initialization failure, if any.
func (s *MapSurface) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Instance returns the live engine, or nil before ready.
func (s *MapSurface) Instance() ports.MapEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	return s.engine
}

// OnReady runs fn once the engine is ready; immediately if it already is.
// Registrations made before ready are deferred, not dropped. The returned
// func cancels a pending registration.
func (s *MapSurface) OnReady(fn func()) (cancel func()) {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.onReady[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.onReady, id)
		s.mu.Unlock()
	}
}

// On attaches an engine event handler. The surface tracks every handler it
// attached so that Teardown can detach whatever callers forgot.
func (s *MapSurface) On(event ports.EngineEventType, h ports.EngineHandler) (off func(), err error) {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	engineOff := s.engine.On(event, h)
	s.nextID++
	id := s.nextID
	s.listeners[id] = engineOff
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		f, ok := s.listeners[id]
		delete(s.listeners, id)
		s.mu.Unlock()
		if ok {
			f()
		}
	}, nil
}

// ListenerCount returns the number of handlers currently attached through On.
func (s *MapSurface) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *MapSurface) withEngine(fn func(ports.MapEngine) error) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	engine := s.engine
	s.mu.Unlock()
	return fn(engine)
}

// AddSource adds a GeoJSON source.
func (s *MapSurface) AddSource(id string, data *geojson.FeatureCollection) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.AddSource(id, data) })
}

// RemoveSource removes a GeoJSON source.
func (s *MapSurface) RemoveSource(id string) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.RemoveSource(id) })
}

// AddLayer adds a style layer.
func (s *MapSurface) AddLayer(spec ports.LayerSpec) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.AddLayer(spec) })
}

// RemoveLayer removes a style layer.
func (s *MapSurface) RemoveLayer(id string) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.RemoveLayer(id) })
}

// AddMarker places a point marker.
func (s *MapSurface) AddMarker(id string, at orb.Point) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.AddMarker(id, at) })
}

// RemoveMarker removes a point marker.
func (s *MapSurface) RemoveMarker(id string) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.RemoveMarker(id) })
}

// FitBounds moves the viewport to b.
func (s *MapSurface) FitBounds(b orb.Bound, opts ports.FitOptions) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.FitBounds(b, opts) })
}

// SetCursor sets the canvas cursor; "" restores the default.
func (s *MapSurface) SetCursor(cursor string) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.SetCursor(cursor) })
}

// ChangeDrawMode switches the draw widget mode.
func (s *MapSurface) ChangeDrawMode(mode string) error {
	return s.withEngine(func(e ports.MapEngine) error { return e.Draw().ChangeMode(mode) })
}

// ClearDrawing deletes the draw widget's in-progress scratch features.
func (s *MapSurface) ClearDrawing() error {
	return s.withEngine(func(e ports.MapEngine) error { return e.Draw().DeleteAll() })
}

// Teardown detaches every tracked listener and removes the engine.
// It is idempotent.
func (s *MapSurface) Teardown() error {
	s.mu.Lock()
	s.gen++
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	work := s.detachLocked()
	s.mu.Unlock()
	return work.run()
}

type teardownWork struct {
	offs   []func()
	engine ports.MapEngine
}

func (w teardownWork) run() error {
	for _, off := range w.offs {
		off()
	}
	if w.engine != nil {
		return w.engine.Remove()
	}
	return nil
}

// detachLocked resets state and returns the engine calls to make once the
// lock is released.
func (s *MapSurface) detachLocked() teardownWork {
	var w teardownWork
	for _, off := range s.listeners {
		w.offs = append(w.offs, off)
	}
	if s.offLoad != nil {
		w.offs = append(w.offs, s.offLoad)
	}
	w.engine = s.engine
	s.resetLocked()
	return w
}
