// Package mapbridge implements ports.MapEngine on top of a browser-side map
// widget. Engine calls are serialised as commands and sent to the browser;
// widget events come back through Dispatch.
package mapbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/ports"
)

var (
	// ErrRemoved is returned for commands issued after Remove.
	ErrRemoved = errors.New("map engine removed")
	// ErrDuplicate is returned when a source, layer or marker id is reused.
	ErrDuplicate = errors.New("duplicate id")
)

// Command is one instruction to the browser widget.
type Command struct {
	Cmd       string                     `json:"cmd"`
	ID        string                     `json:"id,omitempty"`
	Container string                     `json:"container,omitempty"`
	Token     string                     `json:"token,omitempty"`
	Data      *geojson.FeatureCollection `json:"data,omitempty"`
	Layer     *ports.LayerSpec           `json:"layer,omitempty"`
	LngLat    *orb.Point                 `json:"lngLat,omitempty"`
	Bounds    *[2]orb.Point              `json:"bounds,omitempty"`
	Fit       *ports.FitOptions          `json:"fit,omitempty"`
	Cursor    *string                    `json:"cursor,omitempty"`
	Mode      string                     `json:"mode,omitempty"`
}

// Sender delivers commands to the browser.
type Sender interface {
	Send(cmd Command) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(cmd Command) error

// Send implements Sender.
func (f SenderFunc) Send(cmd Command) error { return f(cmd) }

type listener struct {
	event ports.EngineEventType
	h     ports.EngineHandler
}

// Engine is a ports.MapEngine whose rendering happens in the browser.
type Engine struct {
	out Sender

	mu        sync.Mutex
	loaded    bool
	removed   bool
	nextID    uint64
	listeners map[uint64]listener
	sources   map[string]struct{}
	layers    map[string]struct{}
	markers   map[string]struct{}
}

// New creates an engine writing to out. Nothing is sent until Init.
func New(out Sender) *Engine {
	return &Engine{
		out:       out,
		listeners: make(map[uint64]listener),
		sources:   make(map[string]struct{}),
		layers:    make(map[string]struct{}),
		markers:   make(map[string]struct{}),
	}
}

// Factory returns a ports.EngineFactory that creates one Engine per call,
// each writing to out.
func Factory(out Sender, created func(*Engine)) ports.EngineFactory {
	return func(ctx context.Context, container, accessToken string) (ports.MapEngine, error) {
		e := New(out)
		if created != nil {
			created(e)
		}
		if err := e.Init(ctx, container, accessToken); err != nil {
			return nil, err
		}
		return e, nil
	}
}

// Init asks the browser to build the widget inside container.
func (e *Engine) Init(ctx context.Context, container, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.send(Command{Cmd: "init", Container: container, Token: accessToken})
}

// Loaded reports whether the browser has signalled "load".
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// On registers h for event.
func (e *Engine) On(event ports.EngineEventType, h ports.EngineHandler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = listener{event: event, h: h}
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// ListenerCount returns the number of attached handlers.
func (e *Engine) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Dispatch delivers a browser event to the registered handlers. Events
// arriving after Remove are dropped.
func (e *Engine) Dispatch(ev ports.EngineEvent) {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return
	}
	if ev.Type == ports.EventLoad {
		e.loaded = true
	}
	var hs []ports.EngineHandler
	for _, l := range e.listeners {
		if l.event == ev.Type {
			hs = append(hs, l.h)
		}
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// DecodeEvent parses an event message sent by the browser.
func DecodeEvent(raw []byte) (ports.EngineEvent, error) {
	var ev ports.EngineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, fmt.Errorf("decode engine event: %w", err)
	}
	switch ev.Type {
	case ports.EventClick:
		// orb.Point decodes a missing or short array as zeros.
		var pos struct {
			LngLat []float64 `json:"lngLat"`
		}
		if err := json.Unmarshal(raw, &pos); err != nil {
			return ev, fmt.Errorf("decode engine event: %w", err)
		}
		if len(pos.LngLat) != 2 {
			return ev, fmt.Errorf("click event needs lngLat as [lng, lat], got %d values", len(pos.LngLat))
		}
		return ev, nil
	case ports.EventLoad, ports.EventDrawCreate, ports.EventDrawModeChange:
		return ev, nil
	}
	return ev, fmt.Errorf("unknown engine event %q", ev.Type)
}

func (e *Engine) AddSource(id string, data *geojson.FeatureCollection) error {
	if err := e.claim(e.sources, id); err != nil {
		return err
	}
	return e.sendOrRelease(e.sources, id, Command{Cmd: "addSource", ID: id, Data: data})
}

func (e *Engine) RemoveSource(id string) error {
	if !e.release(e.sources, id) {
		return nil
	}
	return e.send(Command{Cmd: "removeSource", ID: id})
}

func (e *Engine) AddLayer(spec ports.LayerSpec) error {
	e.mu.Lock()
	_, hasSource := e.sources[spec.Source]
	e.mu.Unlock()
	if !hasSource {
		return fmt.Errorf("layer %s: unknown source %s", spec.ID, spec.Source)
	}
	if err := e.claim(e.layers, spec.ID); err != nil {
		return err
	}
	return e.sendOrRelease(e.layers, spec.ID, Command{Cmd: "addLayer", ID: spec.ID, Layer: &spec})
}

func (e *Engine) RemoveLayer(id string) error {
	if !e.release(e.layers, id) {
		return nil
	}
	return e.send(Command{Cmd: "removeLayer", ID: id})
}

func (e *Engine) AddMarker(id string, at orb.Point) error {
	if err := e.claim(e.markers, id); err != nil {
		return err
	}
	return e.sendOrRelease(e.markers, id, Command{Cmd: "addMarker", ID: id, LngLat: &at})
}

func (e *Engine) RemoveMarker(id string) error {
	if !e.release(e.markers, id) {
		return nil
	}
	return e.send(Command{Cmd: "removeMarker", ID: id})
}

func (e *Engine) FitBounds(b orb.Bound, opts ports.FitOptions) error {
	return e.send(Command{Cmd: "fitBounds", Bounds: &[2]orb.Point{b.Min, b.Max}, Fit: &opts})
}

func (e *Engine) SetCursor(cursor string) error {
	return e.send(Command{Cmd: "setCursor", Cursor: &cursor})
}

// Draw returns the draw widget bound to this engine.
func (e *Engine) Draw() ports.DrawWidget {
	return drawWidget{e}
}

// Remove tells the browser to destroy the widget and drops every handler.
// Further calls are no-ops.
func (e *Engine) Remove() error {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil
	}
	e.removed = true
	clear(e.listeners)
	clear(e.sources)
	clear(e.layers)
	clear(e.markers)
	e.mu.Unlock()

	return e.out.Send(Command{Cmd: "remove"})
}

type drawWidget struct{ e *Engine }

func (d drawWidget) ChangeMode(mode string) error {
	return d.e.send(Command{Cmd: "drawChangeMode", Mode: mode})
}

func (d drawWidget) DeleteAll() error {
	return d.e.send(Command{Cmd: "drawDeleteAll"})
}

func (e *Engine) send(cmd Command) error {
	e.mu.Lock()
	removed := e.removed
	e.mu.Unlock()
	if removed {
		return ErrRemoved
	}
	return e.out.Send(cmd)
}

func (e *Engine) claim(set map[string]struct{}, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrRemoved
	}
	if _, ok := set[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	set[id] = struct{}{}
	return nil
}

func (e *Engine) release(set map[string]struct{}, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	return true
}

func (e *Engine) sendOrRelease(set map[string]struct{}, id string, cmd Command) error {
	if err := e.send(cmd); err != nil {
		e.release(set, id)
		return err
	}
	return nil
}
