package domain

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Area kinds. Pass areas are the micro-polygons generated around a pass.
const (
	AreaKindDrawn = "drawn"
	AreaKindPass  = "pass"
)

// DriveArea is a team-defined polygon representing a driven-hunt beat.
// Boundary holds the persisted Feature<Polygon>; use AreaPolygon to read it.
type DriveArea struct {
	ID        string           `json:"id"`
	TeamID    string           `json:"team_id"`
	Name      string           `json:"name"`
	Kind      string           `json:"kind"`
	Boundary  *geojson.Feature `json:"boundary"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

// HuntingPass is a fixed stand position. Every pass owns exactly one
// micro DriveArea referenced by DriveAreaID.
type HuntingPass struct {
	ID          string            `json:"id"`
	TeamID      string            `json:"team_id"`
	DriveAreaID string            `json:"drive_area_id"`
	Name        string            `json:"name"`
	Location    *geojson.Geometry `json:"location"`
	Description string            `json:"description,omitempty"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewDriveArea is the write model for a drive area.
type NewDriveArea struct {
	TeamID    string
	Name      string
	Kind      string
	Boundary  orb.Polygon
	CreatedBy string
}

// NewHuntingPass is the write model for a pass. The owning micro-area is
// supplied separately so both rows can be written in one transaction.
type NewHuntingPass struct {
	TeamID      string
	Name        string
	Description string
	Location    orb.Point
	CreatedBy   string
}

// FeatureKind says what a pending feature will become.
type FeatureKind string

const (
	FeatureArea FeatureKind = "area"
	FeaturePass FeatureKind = "pass"
)

// PendingFeature is the UI-local result of a completed draw gesture.
// It is never persisted directly.
type PendingFeature struct {
	Kind     FeatureKind  `json:"kind"`
	Geometry orb.Geometry `json:"-"`
}

// GeoJSON returns the pending geometry as a bare GeoJSON geometry.
func (p PendingFeature) GeoJSON() *geojson.Geometry {
	if p.Geometry == nil {
		return nil
	}
	return geojson.NewGeometry(p.Geometry)
}

// InteractionMode is the active map tool.
type InteractionMode string

const (
	ModePan       InteractionMode = "pan"
	ModeDrawArea  InteractionMode = "draw-area"
	ModePlacePass InteractionMode = "place-pass"
)

// Valid reports whether m is a known mode.
func (m InteractionMode) Valid() bool {
	switch m {
	case ModePan, ModeDrawArea, ModePlacePass:
		return true
	}
	return false
}

// LayerHandle records the rendering objects spawned for one record so they
// can be removed precisely.
type LayerHandle struct {
	Key      string      `json:"key"`
	RecordID string      `json:"record_id"`
	Kind     FeatureKind `json:"kind"`
	SourceID string      `json:"source_id,omitempty"`
	LayerIDs []string    `json:"layer_ids,omitempty"`
	MarkerID string      `json:"marker_id,omitempty"`
}

// AnnotationEvent signals that a team's areas or passes changed.
type AnnotationEvent struct {
	TeamID   string    `json:"team_id"`
	Resource string    `json:"resource"` // "areas" | "passes"
	Action   string    `json:"action"`   // "created" | "deleted"
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
}
