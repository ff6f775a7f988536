package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidMessage is returned for lines that are not valid SBS messages
var ErrInvalidMessage = errors.New("invalid SBS message")

// TransmissionType is the second field of an SBS "MSG" line
type TransmissionType int

const (
	// SBS transmission types
	TransmissionIdentification TransmissionType = 1 // callsign
	TransmissionSurface        TransmissionType = 2 // ground position, speed, track
	TransmissionAirborne       TransmissionType = 3 // airborne position
	TransmissionVelocity       TransmissionType = 4 // speed, track, vertical rate
	TransmissionSurveillance   TransmissionType = 5 // altitude
	TransmissionSquawk         TransmissionType = 6
	TransmissionAirToAir       TransmissionType = 7 // altitude
	TransmissionAllCall        TransmissionType = 8
)

// SBS BaseStation field indices
const (
	fieldMessageType = iota
	fieldTransmissionType
	fieldSessionID
	fieldAircraftID
	fieldHexIdent
	fieldFlightID
	fieldDateGenerated
	fieldTimeGenerated
	fieldDateLogged
	fieldTimeLogged
	fieldCallsign
	fieldAltitude
	fieldGroundSpeed
	fieldTrack
	fieldLatitude
	fieldLongitude
	fieldVerticalRate
	fieldSquawk
	fieldAlert
	fieldEmergency
	fieldSPI
	fieldOnGround

	fieldCount
)

// Field flags which optional values a message carried
type Field uint16

const (
	FieldCallsign Field = 1 << iota
	FieldAltitude
	FieldGroundSpeed
	FieldTrack
	FieldPosition
	FieldVerticalRate
	FieldSquawk
	FieldOnGround
)

// Message is one parsed SBS line. Only the fields flagged in Present were
// carried by the line.
type Message struct {
	TransmissionType TransmissionType
	HexIdent         string
	Callsign         string
	Altitude         int
	GroundSpeed      float64
	Track            float64
	Latitude         float64
	Longitude        float64
	VerticalRate     int
	Squawk           string
	OnGround         bool
	Received         time.Time

	Present Field
}

// Has reports whether the message carried f
func (m *Message) Has(f Field) bool {
	return m.Present&f == f
}

// ParseMessage parses a raw SBS line. Lines other than "MSG" (SEL, ID, AIR,
// STA, CLK) carry no aircraft state and yield a nil message with no error.
func ParseMessage(raw string, received time.Time) (*Message, error) {
	fields := strings.Split(strings.TrimSpace(raw), ",")
	if fields[0] != "MSG" {
		if len(fields) > 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessage, raw)
	}
	if len(fields) < fieldCount {
		return nil, fmt.Errorf("%w: expected at least %d fields, got %d", ErrInvalidMessage, fieldCount, len(fields))
	}

	tt, err := strconv.Atoi(fields[fieldTransmissionType])
	if err != nil || tt < int(TransmissionIdentification) || tt > int(TransmissionAllCall) {
		return nil, fmt.Errorf("%w: unknown transmission type %q", ErrInvalidMessage, fields[fieldTransmissionType])
	}

	msg := &Message{
		TransmissionType: TransmissionType(tt),
		HexIdent:         strings.ToLower(strings.TrimSpace(fields[fieldHexIdent])),
		Received:         received,
	}
	if msg.HexIdent == "" {
		return nil, fmt.Errorf("%w: missing hex ident", ErrInvalidMessage)
	}

	if cs := strings.TrimSpace(fields[fieldCallsign]); cs != "" {
		msg.Callsign = cs
		msg.Present |= FieldCallsign
	}
	if v := fields[fieldAltitude]; v != "" {
		if msg.Altitude, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: altitude %q", ErrInvalidMessage, v)
		}
		msg.Present |= FieldAltitude
	}
	if v := fields[fieldGroundSpeed]; v != "" {
		if msg.GroundSpeed, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%w: ground speed %q", ErrInvalidMessage, v)
		}
		msg.Present |= FieldGroundSpeed
	}
	if v := fields[fieldTrack]; v != "" {
		if msg.Track, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%w: track %q", ErrInvalidMessage, v)
		}
		msg.Present |= FieldTrack
	}
	if lat, lon := fields[fieldLatitude], fields[fieldLongitude]; lat != "" && lon != "" {
		if msg.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
			return nil, fmt.Errorf("%w: latitude %q", ErrInvalidMessage, lat)
		}
		if msg.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
			return nil, fmt.Errorf("%w: longitude %q", ErrInvalidMessage, lon)
		}
		msg.Present |= FieldPosition
	}
	if v := fields[fieldVerticalRate]; v != "" {
		if msg.VerticalRate, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: vertical rate %q", ErrInvalidMessage, v)
		}
		msg.Present |= FieldVerticalRate
	}
	if v := strings.TrimSpace(fields[fieldSquawk]); v != "" {
		msg.Squawk = v
		msg.Present |= FieldSquawk
	}
	// Flags are "-1" (or "1" on some decoders) when set
	if v := strings.TrimSpace(fields[fieldOnGround]); v != "" {
		msg.OnGround = v == "-1" || v == "1"
		msg.Present |= FieldOnGround
	}

	return msg, nil
}
