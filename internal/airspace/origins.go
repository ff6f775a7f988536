package airspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Origins is the read-only callsign → origin airport table. The zero value
// is an empty table.
type Origins struct {
	routes map[string]string
}

// NewOrigins copies routes into a new table
func NewOrigins(routes map[string]string) Origins {
	m := make(map[string]string, len(routes))
	for callsign, origin := range routes {
		callsign = strings.TrimSpace(callsign)
		if callsign == "" || origin == "" {
			continue
		}
		m[callsign] = origin
	}
	return Origins{routes: m}
}

// LoadOrigins reads a JSON object of callsign → origin. A missing file is
// not an error and yields an empty table.
func LoadOrigins(path string) (Origins, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if errors.Is(err, fs.ErrNotExist) {
		return Origins{}, nil
	}
	if err != nil {
		return Origins{}, fmt.Errorf("failed to read routes file: %w", err)
	}

	var routes map[string]string
	if err := json.Unmarshal(data, &routes); err != nil {
		return Origins{}, fmt.Errorf("failed to parse routes file: %w", err)
	}
	return NewOrigins(routes), nil
}

// Lookup returns the origin for callsign
func (o Origins) Lookup(callsign string) (string, bool) {
	origin, ok := o.routes[callsign]
	return origin, ok
}

// Len returns the number of known routes
func (o Origins) Len() int {
	return len(o.routes)
}
