package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrMalformedGeometry is returned for records whose stored geometry cannot
// be rendered.
var ErrMalformedGeometry = errors.New("malformed geometry")

// MinRingPositions is the smallest closed ring: a triangle plus the
// repeated first vertex.
const MinRingPositions = 4

// ValidateBoundary checks a drive-area polygon: exactly one ring, closed,
// at least MinRingPositions positions, lng/lat in WGS84 range.
func ValidateBoundary(poly orb.Polygon) error {
	if len(poly) != 1 {
		return fmt.Errorf("%w: expected a single ring, got %d", ErrMalformedGeometry, len(poly))
	}
	ring := poly[0]
	if len(ring) < MinRingPositions {
		return fmt.Errorf("%w: ring has %d positions, need at least %d", ErrMalformedGeometry, len(ring), MinRingPositions)
	}
	if !ring.Closed() {
		return fmt.Errorf("%w: ring is not closed", ErrMalformedGeometry)
	}
	for _, p := range ring {
		if err := validatePosition(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLocation checks a single [lng, lat] pair.
func ValidateLocation(p orb.Point) error {
	return validatePosition(p)
}

func validatePosition(p orb.Point) error {
	lng, lat := p.Lon(), p.Lat()
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrMalformedGeometry)
	}
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: coordinate [%g, %g] outside WGS84 range", ErrMalformedGeometry, lng, lat)
	}
	return nil
}

// AreaPolygon extracts and validates the polygon of a persisted area.
func AreaPolygon(a DriveArea) (orb.Polygon, error) {
	if a.Boundary == nil || a.Boundary.Geometry == nil {
		return nil, fmt.Errorf("%w: area %s has no geometry", ErrMalformedGeometry, a.ID)
	}
	poly, ok := a.Boundary.Geometry.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("%w: area %s is a %s, not a Polygon", ErrMalformedGeometry, a.ID, a.Boundary.Geometry.GeoJSONType())
	}
	if err := ValidateBoundary(poly); err != nil {
		return nil, fmt.Errorf("area %s: %w", a.ID, err)
	}
	return poly, nil
}

// PassPoint extracts and validates the location of a persisted pass.
func PassPoint(p HuntingPass) (orb.Point, error) {
	if p.Location == nil || p.Location.Coordinates == nil {
		return orb.Point{}, fmt.Errorf("%w: pass %s has no location", ErrMalformedGeometry, p.ID)
	}
	pt, ok := p.Location.Coordinates.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("%w: pass %s is a %s, not a Point", ErrMalformedGeometry, p.ID, p.Location.Coordinates.GeoJSONType())
	}
	if err := validatePosition(pt); err != nil {
		return orb.Point{}, fmt.Errorf("pass %s: %w", p.ID, err)
	}
	return pt, nil
}

// BoundaryFeature wraps a polygon as the persisted Feature<Polygon>.
func BoundaryFeature(poly orb.Polygon) *geojson.Feature {
	return geojson.NewFeature(poly)
}

// DecodeBoundary parses a stored Feature<Polygon>. A bare geometry is also
// accepted and wrapped.
func DecodeBoundary(raw []byte) (*geojson.Feature, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}
	if probe.Type == "Feature" {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		return f, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}
	return geojson.NewFeature(g.Geometry()), nil
}

// DecodePassLocation parses a stored pass location, which is either a
// Feature<Point> or a bare Point geometry.
func DecodePassLocation(raw []byte) (*geojson.Geometry, error) {
	f, err := DecodeBoundary(raw)
	if err != nil {
		return nil, err
	}
	if f.Geometry == nil {
		return nil, fmt.Errorf("%w: empty location", ErrMalformedGeometry)
	}
	return geojson.NewGeometry(f.Geometry), nil
}
