package airspace

import (
	"errors"

	"github.com/saviobatista/sbs-approach/internal/geo"
)

// Gate is a named directional trigger line. An aircraft path triggers the
// gate when it crosses from the right-hand side of the line (looking from
// Start towards End) to the left-hand side.
type Gate struct {
	Name    string      `json:"name" toml:"name"`
	Segment geo.Segment `json:"segment" toml:"segment"`
}

// Corridor is the set of gates announcements are tied to: a single arrival
// gate, or a pair of opposite-direction gates.
type Corridor struct {
	Gates []Gate `json:"gates" toml:"gate"`
}

// DefaultCorridor is the SFO 28L final approach, crossed westbound by arrivals
var DefaultCorridor = Corridor{
	Gates: []Gate{{
		Name: "arriving",
		Segment: geo.Segment{
			Start: geo.LatLon{Lat: 37.592, Lon: -122.351},
			End:   geo.LatLon{Lat: 37.626, Lon: -122.331},
		},
	}},
}

// NewBidirectionalCorridor models one physical line as two gates: the
// segment as given, and its reverse for traffic in the opposite sense.
func NewBidirectionalCorridor(segment geo.Segment, name, oppositeName string) Corridor {
	return Corridor{Gates: []Gate{
		{Name: name, Segment: segment},
		{Name: oppositeName, Segment: segment.Reverse()},
	}}
}

// Validate checks the corridor is usable
func (c Corridor) Validate() error {
	if len(c.Gates) == 0 {
		return errors.New("corridor has no gates")
	}
	if len(c.Gates) > 2 {
		return errors.New("corridor supports at most two gates")
	}
	for _, g := range c.Gates {
		if g.Segment.Start == g.Segment.End {
			return errors.New("corridor gate " + g.Name + " has zero length")
		}
	}
	return nil
}

// Crossed returns the first gate that path crosses in its direction
func (c Corridor) Crossed(path geo.Segment) (Gate, bool) {
	for _, g := range c.Gates {
		if geo.CrossesDirectional(path, g.Segment) {
			return g, true
		}
	}
	return Gate{}, false
}
