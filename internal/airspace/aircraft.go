package airspace

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/sbs-approach/internal/geo"
	"github.com/saviobatista/sbs-approach/internal/types"
)

var (
	// ErrInvalidReport is returned for reports that fail validation
	ErrInvalidReport = errors.New("invalid position report")
	// ErrCallsignChanged is returned when a report's callsign differs from
	// the one already tracked for that aircraft id
	ErrCallsignChanged = errors.New("callsign changed for tracked aircraft")
	// ErrClockSkew is returned when an aircraft's computed age is not
	// positive, which means the clock went backwards or reports arrived out
	// of order
	ErrClockSkew = errors.New("non-positive aircraft age")
	// ErrExpired is returned when updating an aircraft that already expired
	ErrExpired = errors.New("aircraft expired")
)

// State is the announcement state of a tracked aircraft. Transitions only
// go forward: Tracked → Announced, and either of them → Expired.
type State int

const (
	Tracked State = iota
	Announced
	Expired
)

func (s State) String() string {
	switch s {
	case Tracked:
		return "tracked"
	case Announced:
		return "announced"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxPathLength bounds the recent-positions trail kept for the status API
const maxPathLength = 32

// Aircraft is the tracked state of one aircraft
type Aircraft struct {
	ID        string
	SessionID string
	Callsign  string

	report    types.PositionReport
	firstSeen time.Time
	updated   time.Time

	// position is the last report dead-reckoned to the time it arrived
	position geo.LatLon
	path     []geo.LatLon

	state   State
	pending *types.Announcement
}

func newAircraft(id string, report types.PositionReport, now time.Time) *Aircraft {
	a := &Aircraft{
		ID:        id,
		SessionID: uuid.New().String(),
		Callsign:  report.Callsign,
		firstSeen: now,
		state:     Tracked,
	}
	a.store(report, now)
	return a
}

// estimate dead-reckons the last report forward by elapsed seconds
func (a *Aircraft) estimate(elapsed float64) geo.LatLon {
	return geo.LatLon{Lat: a.report.Latitude, Lon: a.report.Longitude}.
		Project(a.report.Speed, a.report.Heading, elapsed)
}

func (a *Aircraft) store(report types.PositionReport, now time.Time) {
	a.report = report
	a.updated = now
	a.position = a.estimate(report.PositionAge)
	a.path = append(a.path, a.position)
	if len(a.path) > maxPathLength {
		a.path = a.path[len(a.path)-maxPathLength:]
	}
}

// Update applies a new report. Only the segment from the previous known
// position to the new one is tested against the corridor, since that is
// the only place a new crossing can happen.
func (a *Aircraft) Update(report types.PositionReport, now time.Time, corridor Corridor, origins Origins) error {
	if a.state == Expired {
		return fmt.Errorf("%w: %s", ErrExpired, a.ID)
	}
	if report.Callsign != a.Callsign {
		return fmt.Errorf("%w: %s was %q, got %q", ErrCallsignChanged, a.ID, a.Callsign, report.Callsign)
	}

	previous := a.position
	a.store(report, now)

	if a.state == Tracked {
		if gate, ok := corridor.Crossed(geo.Segment{Start: previous, End: a.position}); ok {
			a.announce(gate, now, corridor, origins)
		}
	}
	return nil
}

func (a *Aircraft) announce(gate Gate, now time.Time, corridor Corridor, origins Origins) {
	origin, _ := origins.Lookup(a.Callsign)
	text := a.Callsign
	if origin != "" {
		text += " from " + origin
	}
	if len(corridor.Gates) > 1 && gate.Name != "" {
		text += " (" + gate.Name + ")"
	}

	a.state = Announced
	a.pending = &types.Announcement{
		AircraftID: a.ID,
		SessionID:  a.SessionID,
		Callsign:   a.Callsign,
		Origin:     origin,
		Gate:       gate.Name,
		Text:       text,
		Time:       now,
	}
}

// Announcement returns the aircraft's announcement if one is due. A latched
// announcement is handed out exactly once. While still Tracked the last
// report is projected to now, so a crossing is caught between reports too.
func (a *Aircraft) Announcement(now time.Time, corridor Corridor, origins Origins) (types.Announcement, bool, error) {
	switch a.state {
	case Announced:
		if a.pending == nil {
			return types.Announcement{}, false, nil
		}
		ann := *a.pending
		a.pending = nil
		return ann, true, nil
	case Expired:
		return types.Announcement{}, false, nil
	}

	age, err := a.Age(now)
	if err != nil {
		return types.Announcement{}, false, err
	}

	estimated := a.estimate(age.Seconds())
	gate, ok := corridor.Crossed(geo.Segment{Start: a.position, End: estimated})
	if !ok {
		return types.Announcement{}, false, nil
	}

	a.announce(gate, now, corridor, origins)
	ann := *a.pending
	a.pending = nil
	return ann, true, nil
}

// Age is the time since the last position fix: time since the report
// arrived plus the report's own position age.
func (a *Aircraft) Age(now time.Time) (time.Duration, error) {
	age := now.Sub(a.updated) + time.Duration(a.report.PositionAge*float64(time.Second))
	if age <= 0 {
		return age, fmt.Errorf("%w: %s age %s", ErrClockSkew, a.ID, age)
	}
	return age, nil
}

// Stale reports whether the aircraft has not been heard from for longer
// than threshold
func (a *Aircraft) Stale(now time.Time, threshold time.Duration) (bool, error) {
	age, err := a.Age(now)
	if err != nil {
		return false, err
	}
	return age > threshold, nil
}

// State returns the current state
func (a *Aircraft) State() State {
	return a.state
}

func (a *Aircraft) expire() {
	a.state = Expired
	a.pending = nil
}

// AircraftView is a read-only copy of an aircraft's state
type AircraftView struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Callsign    string       `json:"callsign"`
	State       string       `json:"state"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Heading     float64      `json:"heading"`
	Speed       float64      `json:"speed"`
	Altitude    int          `json:"altitude"`
	PositionAge float64      `json:"position_age"`
	FirstSeen   time.Time    `json:"first_seen"`
	LastUpdate  time.Time    `json:"last_update"`
	Path        []geo.LatLon `json:"path"`
}

func (a *Aircraft) view() AircraftView {
	path := make([]geo.LatLon, len(a.path))
	copy(path, a.path)
	return AircraftView{
		ID:          a.ID,
		SessionID:   a.SessionID,
		Callsign:    a.Callsign,
		State:       a.state.String(),
		Latitude:    a.report.Latitude,
		Longitude:   a.report.Longitude,
		Heading:     a.report.Heading,
		Speed:       a.report.Speed,
		Altitude:    a.report.Altitude,
		PositionAge: a.report.PositionAge,
		FirstSeen:   a.firstSeen,
		LastUpdate:  a.updated,
		Path:        path,
	}
}
