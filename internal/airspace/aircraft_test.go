package airspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saviobatista/sbs-approach/internal/geo"
)

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Tracked:   "tracked",
		Announced: "announced",
		Expired:   "expired",
		State(9):  "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestAircraft_Lifecycle(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	origins := NewOrigins(map[string]string{"UAL123": "Chicago"})

	a := newAircraft("a1b2c3", report("UAL123", 37.600, -122.340, 345), t0)
	if a.State() != Tracked {
		t.Fatalf("New aircraft should be tracked, got %s", a.State())
	}
	if a.SessionID == "" {
		t.Error("Expected a session id")
	}

	if err := a.Update(report("UAL123", 37.615, -122.345, 345), t0.Add(30*time.Second), DefaultCorridor, origins); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if a.State() != Announced {
		t.Fatalf("Expected announced after crossing, got %s", a.State())
	}

	ann, ok, err := a.Announcement(t0.Add(31*time.Second), DefaultCorridor, origins)
	if err != nil || !ok {
		t.Fatalf("Expected latched announcement, got ok=%v err=%v", ok, err)
	}
	if ann.Text != "UAL123 from Chicago" || ann.Origin != "Chicago" {
		t.Errorf("Unexpected announcement %+v", ann)
	}

	if _, ok, _ := a.Announcement(t0.Add(32*time.Second), DefaultCorridor, origins); ok {
		t.Error("Announcement must be handed out only once")
	}

	a.expire()
	if a.State() != Expired {
		t.Fatalf("Expected expired, got %s", a.State())
	}
	if err := a.Update(report("UAL123", 37.6, -122.3, 345), t0.Add(40*time.Second), DefaultCorridor, origins); !errors.Is(err, ErrExpired) {
		t.Errorf("Expected ErrExpired, got %v", err)
	}
	if _, ok, _ := a.Announcement(t0.Add(41*time.Second), DefaultCorridor, origins); ok {
		t.Error("Expired aircraft must not announce")
	}
}

func TestAircraft_Age(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	r := report("UAL123", 37.6, -122.3, 90)
	r.PositionAge = 2.5
	a := newAircraft("a1b2c3", r, t0)

	age, err := a.Age(t0.Add(10 * time.Second))
	if err != nil {
		t.Fatalf("Age() failed: %v", err)
	}
	if age != 12500*time.Millisecond {
		t.Errorf("Expected 12.5s, got %s", age)
	}

	if _, err := a.Age(t0.Add(-3 * time.Second)); !errors.Is(err, ErrClockSkew) {
		t.Errorf("Expected ErrClockSkew, got %v", err)
	}

	stale, err := a.Stale(t0.Add(298*time.Second), 300*time.Second)
	if err != nil || !stale {
		t.Errorf("Expected stale at 300.5s, got stale=%v err=%v", stale, err)
	}
	stale, err = a.Stale(t0.Add(297*time.Second), 300*time.Second)
	if err != nil || stale {
		t.Errorf("Expected fresh at 299.5s, got stale=%v err=%v", stale, err)
	}
}

func TestAircraft_PathIsBounded(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	a := newAircraft("a1b2c3", report("UAL123", 37.0, -122.0, 90), t0)
	for i := 1; i <= 100; i++ {
		_ = a.Update(report("UAL123", 37.0, -122.0+float64(i)*0.001, 90), t0.Add(time.Duration(i)*time.Second), DefaultCorridor, Origins{})
	}
	if len(a.view().Path) != maxPathLength {
		t.Errorf("Expected path of %d points, got %d", maxPathLength, len(a.view().Path))
	}
}

func TestCorridor_Validate(t *testing.T) {
	seg := DefaultCorridor.Gates[0].Segment
	tests := []struct {
		name        string
		corridor    Corridor
		expectError bool
	}{
		{name: "default", corridor: DefaultCorridor},
		{name: "bidirectional", corridor: NewBidirectionalCorridor(seg, "in", "out")},
		{name: "empty", corridor: Corridor{}, expectError: true},
		{name: "three gates", corridor: Corridor{Gates: []Gate{{Segment: seg}, {Segment: seg}, {Segment: seg}}}, expectError: true},
		{name: "zero length", corridor: Corridor{Gates: []Gate{{Name: "dot", Segment: geo.Segment{Start: seg.Start, End: seg.Start}}}}, expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.corridor.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error, got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadOrigins(t *testing.T) {
	dir := t.TempDir()

	o, err := LoadOrigins(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Missing file should not be an error: %v", err)
	}
	if o.Len() != 0 {
		t.Errorf("Expected empty table, got %d", o.Len())
	}

	path := filepath.Join(dir, "routes.json")
	if err := os.WriteFile(path, []byte(`{"UAL123":"Chicago O'Hare","DAL7":"Atlanta"," ":"Nowhere"}`), 0o600); err != nil {
		t.Fatalf("Failed to write routes: %v", err)
	}
	o, err = LoadOrigins(path)
	if err != nil {
		t.Fatalf("LoadOrigins() failed: %v", err)
	}
	if o.Len() != 2 {
		t.Errorf("Expected 2 routes, got %d", o.Len())
	}
	if origin, ok := o.Lookup("DAL7"); !ok || origin != "Atlanta" {
		t.Errorf("Lookup(DAL7) = %q, %v", origin, ok)
	}
	if _, ok := o.Lookup("SWA1"); ok {
		t.Error("Unknown callsign should not resolve")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`not json`), 0o600); err != nil {
		t.Fatalf("Failed to write routes: %v", err)
	}
	if _, err := LoadOrigins(bad); err == nil {
		t.Error("Expected parse error")
	}
}

func TestNewOrigins_IsCopied(t *testing.T) {
	src := map[string]string{"UAL123": "Chicago"}
	o := NewOrigins(src)
	src["UAL123"] = "Denver"
	if origin, _ := o.Lookup("UAL123"); origin != "Chicago" {
		t.Errorf("Origins must not alias the source map, got %q", origin)
	}
}
