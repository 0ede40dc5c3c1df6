// Package geospatial builds and measures the geometries drawn on the map.
package geospatial

import "github.com/paulmach/orb"

// DefaultPassHalfSide is half the side of a pass micro-area in degrees
// (side 0.0002°, roughly 20 m).
const DefaultPassHalfSide = 0.0001

// BuildPassArea returns the closed square ring of side 2*halfSide centred on
// p, counter-clockwise from the south-west corner. A non-positive halfSide
// falls back to DefaultPassHalfSide.
func BuildPassArea(p orb.Point, halfSide float64) orb.Polygon {
	if halfSide <= 0 {
		halfSide = DefaultPassHalfSide
	}
	lng, lat := p.Lon(), p.Lat()
	sw := orb.Point{lng - halfSide, lat - halfSide}
	return orb.Polygon{orb.Ring{
		sw,
		{lng + halfSide, lat - halfSide},
		{lng + halfSide, lat + halfSide},
		{lng - halfSide, lat + halfSide},
		sw,
	}}
}

// CloseRing copies points into a ring and repeats the first vertex at the
// end when the input is open.
func CloseRing(points []orb.Point) orb.Ring {
	ring := make(orb.Ring, len(points), len(points)+1)
	copy(ring, points)
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// NormalizePolygon keeps only the outer ring of poly and closes it.
func NormalizePolygon(poly orb.Polygon) orb.Polygon {
	if len(poly) == 0 {
		return nil
	}
	return orb.Polygon{CloseRing(poly[0])}
}

// UnionBound returns the bounding box of all rings of all polygons.
// ok is false when there is nothing to bound.
func UnionBound(polys ...orb.Polygon) (b orb.Bound, ok bool) {
	for _, poly := range polys {
		if len(poly) == 0 || len(poly[0]) == 0 {
			continue
		}
		pb := poly.Bound()
		if !ok {
			b, ok = pb, true
			continue
		}
		b = b.Union(pb)
	}
	return b, ok
}
