// Package geo holds the small amount of geometry the approach tracker needs:
// great-circle dead reckoning and segment crossing tests in a local flat
// frame.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusNM is the mean earth radius in nautical miles
const EarthRadiusNM = 3440.065

// NMPerLatitude is the length of one degree of latitude on the sphere
const NMPerLatitude = EarthRadiusNM * math.Pi / 180

// LatLon is a geographic position in degrees
type LatLon struct {
	Lat float64 `json:"lat" toml:"lat"`
	Lon float64 `json:"lon" toml:"lon"`
}

func (p LatLon) String() string {
	return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lon)
}

// Segment is a directed line segment between two positions
type Segment struct {
	Start LatLon `json:"start" toml:"start"`
	End   LatLon `json:"end" toml:"end"`
}

// Reverse returns the segment with its endpoints swapped
func (s Segment) Reverse() Segment {
	return Segment{Start: s.End, End: s.Start}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Project dead-reckons a position along a great circle: starting at lat/lon,
// moving at speedKnots on headingDeg (clockwise from true north) for
// elapsedSeconds. elapsedSeconds must not be negative.
func Project(lat, lon, speedKnots, headingDeg, elapsedSeconds float64) (float64, float64) {
	if elapsedSeconds == 0 || speedKnots == 0 {
		return lat, lon
	}

	// angular distance travelled
	d := speedKnots / 3600 * elapsedSeconds / EarthRadiusNM
	brg := radians(headingDeg)
	lat1, lon1 := radians(lat), radians(lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return degrees(lat2), normalizeLon(degrees(lon2))
}

// Project is the LatLon form of Project
func (p LatLon) Project(speedKnots, headingDeg, elapsedSeconds float64) LatLon {
	lat, lon := Project(p.Lat, p.Lon, speedKnots, headingDeg, elapsedSeconds)
	return LatLon{Lat: lat, Lon: lon}
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// DistanceNM returns the great-circle (haversine) distance between two positions
func DistanceNM(a, b LatLon) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dlat, dlon := lat2-lat1, radians(b.Lon-a.Lon)

	x := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return EarthRadiusNM * 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
}
