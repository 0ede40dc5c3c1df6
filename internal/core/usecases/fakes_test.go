package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/core/usecases"
)

// --- Fake MapEngine ---

type fakeEngine struct {
	mu       sync.Mutex
	loaded   bool
	nextID   int
	handlers map[ports.EngineEventType]map[int]ports.EngineHandler

	sources map[string]*geojson.FeatureCollection
	layers  map[string]ports.LayerSpec
	markers map[string]orb.Point
	cursor  string
	fits    []orb.Bound
	fitOpts []ports.FitOptions
	ops     int // add/remove calls on sources, layers and markers
	removed bool

	drawMode   string
	drawClears int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		handlers: make(map[ports.EngineEventType]map[int]ports.EngineHandler),
		sources:  make(map[string]*geojson.FeatureCollection),
		layers:   make(map[string]ports.LayerSpec),
		markers:  make(map[string]orb.Point),
	}
}

func (e *fakeEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *fakeEngine) On(event ports.EngineEventType, h ports.EngineHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[int]ports.EngineHandler)
	}
	e.handlers[event][id] = h
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[event], id)
	}
}

// Emit dispatches ev to a snapshot of the handlers, so handlers may detach
// themselves while running.
func (e *fakeEngine) Emit(ev ports.EngineEvent) {
	e.mu.Lock()
	if ev.Type == ports.EventLoad {
		e.loaded = true
	}
	hs := make([]ports.EngineHandler, 0, len(e.handlers[ev.Type]))
	for _, h := range e.handlers[ev.Type] {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (e *fakeEngine) HandlerCount(event ports.EngineEventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

func (e *fakeEngine) TotalHandlers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, hs := range e.handlers {
		n += len(hs)
	}
	return n
}

func (e *fakeEngine) AddSource(id string, data *geojson.FeatureCollection) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[id]; ok {
		return errors.New("source already exists: " + id)
	}
	e.sources[id] = data
	e.ops++
	return nil
}

func (e *fakeEngine) RemoveSource(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.layers {
		if l.Source == id {
			return errors.New("source in use: " + id)
		}
	}
	delete(e.sources, id)
	e.ops++
	return nil
}

func (e *fakeEngine) AddLayer(spec ports.LayerSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[spec.Source]; !ok {
		return errors.New("missing source: " + spec.Source)
	}
	e.layers[spec.ID] = spec
	e.ops++
	return nil
}

func (e *fakeEngine) RemoveLayer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.layers, id)
	e.ops++
	return nil
}

func (e *fakeEngine) AddMarker(id string, at orb.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markers[id] = at
	e.ops++
	return nil
}

func (e *fakeEngine) RemoveMarker(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.markers, id)
	e.ops++
	return nil
}

func (e *fakeEngine) FitBounds(b orb.Bound, opts ports.FitOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fits = append(e.fits, b)
	e.fitOpts = append(e.fitOpts, opts)
	return nil
}

func (e *fakeEngine) SetCursor(cursor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = cursor
	return nil
}

func (e *fakeEngine) Draw() ports.DrawWidget { return fakeDraw{e} }

func (e *fakeEngine) Remove() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	return nil
}

func (e *fakeEngine) counts() (sources, layers, markers, ops int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sources), len(e.layers), len(e.markers), e.ops
}

func (e *fakeEngine) Cursor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

func (e *fakeEngine) DrawMode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawMode
}

type fakeDraw struct{ e *fakeEngine }

func (d fakeDraw) ChangeMode(mode string) error {
	d.e.mu.Lock()
	defer d.e.mu.Unlock()
	d.e.drawMode = mode
	return nil
}

func (d fakeDraw) DeleteAll() error {
	d.e.mu.Lock()
	defer d.e.mu.Unlock()
	d.e.drawClears++
	return nil
}

// --- Token provider ---

type mockTokens struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (m *mockTokens) FetchMapAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.token, m.err
}

// countingFactory returns a factory that hands out engine and counts calls.
func countingFactory(engine *fakeEngine, calls *int) ports.EngineFactory {
	return func(ctx context.Context, container, accessToken string) (ports.MapEngine, error) {
		*calls++
		return engine, nil
	}
}

// readySurface returns a surface whose engine has emitted load.
func readySurface(t *testing.T) (*usecases.MapSurface, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine()
	var calls int
	surface := usecases.NewMapSurface(countingFactory(engine, &calls), &mockTokens{token: "pk.test"})
	if err := surface.Initialize(context.Background(), "map"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	engine.Emit(ports.EngineEvent{Type: ports.EventLoad})
	if !surface.IsReady() {
		t.Fatal("expected surface to be ready after load")
	}
	return surface, engine
}

func (e *fakeEngine) hasLayer(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.layers[id]
	return ok
}

func (e *fakeEngine) hasMarker(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.markers[id]
	return ok
}

func (e *fakeEngine) isRemoved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}
