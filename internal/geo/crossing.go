package geo

import "math"

// Point is a position in a local flat frame, in nautical miles east and
// north of the frame origin.
type Point struct {
	E, N float64
}

func (p Point) sub(q Point) Point { return Point{E: p.E - q.E, N: p.N - q.N} }

// cross returns the z component of p × q
func cross(p, q Point) float64 { return p.E*q.N - p.N*q.E }

// Frame is an equirectangular projection around an origin. It is only
// accurate for a few tens of miles around the origin, which is all a final
// approach needs.
type Frame struct {
	origin         LatLon
	nmPerLongitude float64
}

// NewFrame returns a local frame centered on origin
func NewFrame(origin LatLon) Frame {
	return Frame{
		origin:         origin,
		nmPerLongitude: NMPerLatitude * math.Cos(radians(origin.Lat)),
	}
}

// Point converts a geographic position into the frame
func (f Frame) Point(p LatLon) Point {
	dlon := p.Lon - f.origin.Lon
	if dlon > 180 {
		dlon -= 360
	} else if dlon < -180 {
		dlon += 360
	}
	return Point{
		E: dlon * f.nmPerLongitude,
		N: (p.Lat - f.origin.Lat) * NMPerLatitude,
	}
}

// ccw reports whether x, y, z make a counter-clockwise turn. Collinear
// points are never counter-clockwise.
func ccw(x, y, z Point) bool {
	return (z.N-x.N)*(y.E-x.E) > (y.N-x.N)*(z.E-x.E)
}

// Intersect reports whether segments p1p2 and p3p4 properly intersect.
// Collinear and endpoint-touching configurations report false.
func Intersect(p1, p2, p3, p4 Point) bool {
	return ccw(p1, p3, p4) != ccw(p2, p3, p4) && ccw(p1, p2, p3) != ccw(p1, p2, p4)
}

// Crosses reports whether segment a crosses segment b in either direction.
// Both segments are evaluated in a flat frame centered on b.Start.
func Crosses(a, b Segment) bool {
	f := NewFrame(b.Start)
	return Intersect(f.Point(a.Start), f.Point(a.End), f.Point(b.Start), f.Point(b.End))
}

// Side returns the signed cross product of (p − b.Start) and
// (b.End − b.Start) in a frame centered on b.Start. Positive means p lies to
// the right of b when looking from b.Start towards b.End.
func Side(p LatLon, b Segment) float64 {
	f := NewFrame(b.Start)
	return cross(f.Point(p), f.Point(b.End))
}

// CrossesDirectional reports whether a crosses b from the right-hand side of
// b to its left-hand side (looking from b.Start towards b.End). Reversing a,
// or b, flips the answer for segments that cross.
func CrossesDirectional(a, b Segment) bool {
	return Crosses(a, b) && Side(a.Start, b) > 0
}
