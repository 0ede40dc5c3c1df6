package geospatial_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/pkg/geospatial"
)

func TestBuildPassArea_RingClosure(t *testing.T) {
	points := []orb.Point{
		{18.05, 59.05},
		{0, 0},
		{-179.9999, 89.9},
		{12.345678, -45.6789},
	}
	for _, p := range points {
		for _, h := range []float64{0.0001, 0.5, 1e-7} {
			poly := geospatial.BuildPassArea(p, h)
			if len(poly) != 1 {
				t.Fatalf("expected 1 ring, got %d", len(poly))
			}
			ring := poly[0]
			if len(ring) != 5 {
				t.Fatalf("expected 5 positions, got %d", len(ring))
			}
			if ring[0] != ring[4] {
				t.Errorf("ring not closed for %v/%g: %v != %v", p, h, ring[0], ring[4])
			}
		}
	}
}

func TestBuildPassArea_CenteredSquare(t *testing.T) {
	center := orb.Point{18.05, 59.05}
	ring := geospatial.BuildPassArea(center, geospatial.DefaultPassHalfSide)[0]

	if ring.Orientation() != orb.CCW {
		t.Errorf("expected counter-clockwise ring")
	}

	b := ring.Bound()
	if d := b.Max.Lon() - b.Min.Lon(); math.Abs(d-0.0002) > 1e-12 {
		t.Errorf("expected width 0.0002, got %g", d)
	}
	if d := b.Max.Lat() - b.Min.Lat(); math.Abs(d-0.0002) > 1e-12 {
		t.Errorf("expected height 0.0002, got %g", d)
	}
	c := b.Center()
	if math.Abs(c.Lon()-center.Lon()) > 1e-12 || math.Abs(c.Lat()-center.Lat()) > 1e-12 {
		t.Errorf("expected center %v, got %v", center, c)
	}
}

func TestBuildPassArea_Deterministic(t *testing.T) {
	a := geospatial.BuildPassArea(orb.Point{18.05, 59.05}, 0.0001)
	b := geospatial.BuildPassArea(orb.Point{18.05, 59.05}, 0.0001)
	if !a.Equal(b) {
		t.Errorf("expected identical rings, got %v and %v", a, b)
	}
}

func TestBuildPassArea_DefaultHalfSide(t *testing.T) {
	a := geospatial.BuildPassArea(orb.Point{1, 1}, 0)
	b := geospatial.BuildPassArea(orb.Point{1, 1}, geospatial.DefaultPassHalfSide)
	if !a.Equal(b) {
		t.Errorf("zero half side should use the default")
	}
}

func TestBuildPassArea_SideInMeters(t *testing.T) {
	ring := geospatial.BuildPassArea(orb.Point{18.05, 59.05}, geospatial.DefaultPassHalfSide)[0]
	north := geospatial.PointDistance(ring[1], ring[2])
	if north < 20 || north > 25 {
		t.Errorf("expected ~22m north-south side, got %.2fm", north)
	}
}

func TestCloseRing(t *testing.T) {
	open := []orb.Point{{18.0, 59.0}, {18.1, 59.0}, {18.1, 59.1}, {18.0, 59.1}}
	ring := geospatial.CloseRing(open)
	if len(ring) != 5 {
		t.Fatalf("expected 5 positions, got %d", len(ring))
	}
	if !ring.Closed() {
		t.Error("expected closed ring")
	}

	again := geospatial.CloseRing(ring)
	if len(again) != 5 {
		t.Errorf("closing a closed ring should not grow it, got %d", len(again))
	}

	if len(geospatial.CloseRing(nil)) != 0 {
		t.Error("expected empty ring for empty input")
	}
}

func TestUnionBound(t *testing.T) {
	if _, ok := geospatial.UnionBound(); ok {
		t.Error("expected no bound for no polygons")
	}

	a := geospatial.BuildPassArea(orb.Point{18.0, 59.0}, 0.1)
	b := geospatial.BuildPassArea(orb.Point{19.0, 60.0}, 0.1)
	bound, ok := geospatial.UnionBound(a, nil, b)
	if !ok {
		t.Fatal("expected a bound")
	}
	if math.Abs(bound.Min.Lon()-17.9) > 1e-9 || math.Abs(bound.Max.Lat()-60.1) > 1e-9 {
		t.Errorf("unexpected bound %v", bound)
	}
}
