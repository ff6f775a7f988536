package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMissingField marks an input record that lacks a required field
var ErrMissingField = errors.New("missing required field")

// PositionReport is a normalized position report for a single aircraft
type PositionReport struct {
	AircraftID  string  `json:"aircraft_id"`
	Callsign    string  `json:"callsign"`
	Heading     float64 `json:"heading"`      // degrees clockwise from true north
	Speed       float64 `json:"speed"`        // knots over ground
	Altitude    int     `json:"altitude"`     // feet, 0 when on the ground
	Latitude    float64 `json:"latitude"`     // degrees
	Longitude   float64 `json:"longitude"`    // degrees
	PositionAge float64 `json:"position_age"` // seconds since the position fix
}

// Validate checks the report invariants
func (r *PositionReport) Validate() error {
	if r.AircraftID == "" {
		return fmt.Errorf("aircraft id: %w", ErrMissingField)
	}
	if r.Callsign == "" {
		return fmt.Errorf("callsign: %w", ErrMissingField)
	}
	for name, v := range map[string]float64{
		"heading":      r.Heading,
		"speed":        r.Speed,
		"latitude":     r.Latitude,
		"longitude":    r.Longitude,
		"position age": r.PositionAge,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid %s: %v", name, v)
		}
	}
	if r.PositionAge < 0 {
		return fmt.Errorf("negative position age: %v", r.PositionAge)
	}
	if r.Speed < 0 {
		return fmt.Errorf("negative speed: %v", r.Speed)
	}
	if r.Heading < 0 || r.Heading > 360 {
		return fmt.Errorf("heading out of range: %v", r.Heading)
	}
	if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("position out of range: %v,%v", r.Latitude, r.Longitude)
	}
	return nil
}

// ReportEnvelope carries a report between processes
type ReportEnvelope struct {
	Report     PositionReport `json:"report"`
	ReceivedAt time.Time      `json:"received_at"`
	Source     string         `json:"source"`
}

// Aged returns the carried report with PositionAge advanced by the time
// spent in transit since ReceivedAt
func (e *ReportEnvelope) Aged(now time.Time) PositionReport {
	r := e.Report
	if transit := now.Sub(e.ReceivedAt).Seconds(); !e.ReceivedAt.IsZero() && transit > 0 {
		r.PositionAge += transit
	}
	return r
}

// Announcement is emitted once when an aircraft crosses a corridor gate
type Announcement struct {
	AircraftID string    `json:"aircraft_id"`
	SessionID  string    `json:"session_id"`
	Callsign   string    `json:"callsign"`
	Origin     string    `json:"origin,omitempty"`
	Gate       string    `json:"gate,omitempty"`
	Text       string    `json:"text"`
	Time       time.Time `json:"time"`
}

func (a Announcement) String() string {
	return a.Text
}

// SystemStats is a point-in-time copy of the tracker counters. Counters are
// cumulative since process start.
type SystemStats struct {
	Time               time.Time `json:"time"`
	Reports            uint64    `json:"reports"`
	RejectedReports    uint64    `json:"rejected_reports"`
	IdentityViolations uint64    `json:"identity_violations"`
	ClockViolations    uint64    `json:"clock_violations"`
	Announcements      uint64    `json:"announcements"`
	Evictions          uint64    `json:"evictions"`
	ActiveAircraft     uint64    `json:"active_aircraft"`
	// MessageTypes counts SBS lines by transmission type; index 0 counts
	// lines that were not MSG lines
	MessageTypes [9]uint64     `json:"message_types"`
	Uptime       time.Duration `json:"uptime"`
}
