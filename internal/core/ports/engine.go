package ports

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EngineEventType names an event emitted by the map engine or its draw widget.
type EngineEventType string

const (
	EventLoad           EngineEventType = "load"
	EventClick          EngineEventType = "click"
	EventDrawCreate     EngineEventType = "draw.create"
	EventDrawModeChange EngineEventType = "draw.modechange"
)

// Draw widget modes.
const (
	DrawModePolygon      = "draw_polygon"
	DrawModeSimpleSelect = "simple_select"
)

// EngineEvent is the payload of an engine callback. Only the fields relevant
// to Type are set.
type EngineEvent struct {
	Type     EngineEventType    `json:"event"`
	LngLat   orb.Point          `json:"lngLat,omitempty"`
	Features []*geojson.Feature `json:"features,omitempty"`
	Mode     string             `json:"mode,omitempty"`
}

// EngineHandler receives engine events.
type EngineHandler func(EngineEvent)

// LayerType is the render type of a style layer.
type LayerType string

const (
	LayerFill LayerType = "fill"
	LayerLine LayerType = "line"
)

// LayerSpec describes one style layer bound to a source.
type LayerSpec struct {
	ID     string         `json:"id"`
	Type   LayerType      `json:"type"`
	Source string         `json:"source"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// FitOptions controls FitBounds.
type FitOptions struct {
	Padding int     `json:"padding"`
	MaxZoom float64 `json:"maxZoom"`
}

// MapEngine is the external pan/zoom/draw rendering engine. Its event model
// is not under our control: handlers may fire at any time after On and must
// be detached with the returned func.
type MapEngine interface {
	Loaded() bool
	On(event EngineEventType, h EngineHandler) (off func())

	AddSource(id string, data *geojson.FeatureCollection) error
	RemoveSource(id string) error
	AddLayer(spec LayerSpec) error
	RemoveLayer(id string) error
	AddMarker(id string, at orb.Point) error
	RemoveMarker(id string) error
	FitBounds(b orb.Bound, opts FitOptions) error
	SetCursor(cursor string) error

	Draw() DrawWidget

	// Remove releases the engine and every resource it owns.
	Remove() error
}

// DrawWidget is the drawing plugin bound to an engine instance.
type DrawWidget interface {
	ChangeMode(mode string) error
	DeleteAll() error
}

// EngineFactory constructs an engine inside the given container.
type EngineFactory func(ctx context.Context, container, accessToken string) (MapEngine, error)
