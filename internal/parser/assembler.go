package parser

import (
	"sync"
	"time"

	"github.com/saviobatista/sbs-approach/internal/types"
)

// partial is what is known so far about one hex ident
type partial struct {
	callsign string
	altitude int
	speed    float64
	track    float64
	onGround bool

	hasSpeed bool
	hasTrack bool
	lastSeen time.Time
}

// Assembler merges the partial updates carried by individual SBS messages
// into full position reports. A report is emitted whenever a position
// arrives for an aircraft whose callsign, speed and track are known.
type Assembler struct {
	mu     sync.Mutex
	states map[string]*partial
	now    func() time.Time
}

// NewAssembler creates an empty assembler
func NewAssembler() *Assembler {
	return &Assembler{
		states: make(map[string]*partial),
		now:    time.Now,
	}
}

// Add merges msg and returns a report if one is complete
func (a *Assembler) Add(msg *Message) (types.PositionReport, bool) {
	if msg == nil {
		return types.PositionReport{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.states[msg.HexIdent]
	if !ok {
		s = &partial{}
		a.states[msg.HexIdent] = s
	}
	s.lastSeen = msg.Received

	if msg.Has(FieldCallsign) {
		s.callsign = msg.Callsign
	}
	if msg.Has(FieldAltitude) {
		s.altitude = msg.Altitude
	}
	if msg.Has(FieldGroundSpeed) {
		s.speed = msg.GroundSpeed
		s.hasSpeed = true
	}
	if msg.Has(FieldTrack) {
		s.track = msg.Track
		s.hasTrack = true
	}
	if msg.Has(FieldOnGround) {
		s.onGround = msg.OnGround
	}

	if !msg.Has(FieldPosition) || s.callsign == "" || !s.hasSpeed || !s.hasTrack {
		return types.PositionReport{}, false
	}

	age := a.now().Sub(msg.Received).Seconds()
	if age < 0 {
		age = 0
	}
	altitude := s.altitude
	if s.onGround {
		altitude = 0
	}

	return types.PositionReport{
		AircraftID:  msg.HexIdent,
		Callsign:    s.callsign,
		Heading:     s.track,
		Speed:       s.speed,
		Altitude:    altitude,
		Latitude:    msg.Latitude,
		Longitude:   msg.Longitude,
		PositionAge: age,
	}, true
}

// Prune drops partial state not updated for longer than maxAge and returns
// how many entries were removed
func (a *Assembler) Prune(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-maxAge)
	removed := 0
	for hex, s := range a.states {
		if s.lastSeen.Before(cutoff) {
			delete(a.states, hex)
			removed++
		}
	}
	return removed
}

// Len returns the number of aircraft with partial state
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.states)
}
