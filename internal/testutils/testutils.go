package testutils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saviobatista/sbs-approach/internal/types"
)

// SBS BaseStation field indices used by the helpers below
const (
	SBSFieldCallsign = 10
	SBSFieldAltitude = 11
	SBSFieldSpeed    = 12
	SBSFieldTrack    = 13
	SBSFieldLat      = 14
	SBSFieldLon      = 15
	SBSFieldOnGround = 21
)

// MockSBSLine builds a 22-field SBS BaseStation line for the given
// transmission type and hex ident, with the given fields set
func MockSBSLine(transmissionType int, hexIdent string, set map[int]string) string {
	fields := make([]string, 22)
	fields[0] = "MSG"
	fields[1] = fmt.Sprint(transmissionType)
	fields[2] = "1"
	fields[3] = "1"
	fields[4] = hexIdent
	fields[5] = "1"
	fields[6] = "2024/06/01"
	fields[7] = "18:00:00.000"
	fields[8] = "2024/06/01"
	fields[9] = "18:00:00.000"
	for i, v := range set {
		fields[i] = v
	}
	return strings.Join(fields, ",")
}

// MockPositionReport returns a valid report for tests
func MockPositionReport(id, callsign string, lat, lon float64) types.PositionReport {
	return types.PositionReport{
		AircraftID: id,
		Callsign:   callsign,
		Heading:    345,
		Speed:      150,
		Altitude:   1800,
		Latitude:   lat,
		Longitude:  lon,
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}
