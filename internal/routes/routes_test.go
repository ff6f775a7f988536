package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/saviobatista/sbs-approach/internal/airspace"
)

const flightStatus = `{
  "data": [
    {
      "flight_kind": "Arrival",
      "callsign": "UAL123",
      "routes": [
        {"route_seq": 1, "origin_airport": {"airport_name": "Newark"}},
        {"route_seq": 2, "origin_airport": {"airport_name": "Chicago O'Hare"}}
      ]
    },
    {
      "flight_kind": "Departure",
      "callsign": "UAL456",
      "routes": [{"route_seq": 1, "origin_airport": {"airport_name": "San Francisco"}}]
    },
    {
      "flight_kind": "Arrival",
      "callsign": "DAL7",
      "routes": [{"route_seq": 1, "origin_airport": {"airport_name": "Atlanta"}}]
    },
    {
      "flight_kind": "Arrival",
      "callsign": "NOROUTE1",
      "routes": []
    },
    {
      "flight_kind": "Arrival",
      "callsign": "",
      "routes": [{"route_seq": 1, "origin_airport": {"airport_name": "Nowhere"}}]
    }
  ]
}`

type mockStore struct {
	stored map[string]string
	err    error
}

func (m *mockStore) StoreRoutes(ctx context.Context, routes map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.stored = routes
	return nil
}

func TestParseArrivals(t *testing.T) {
	routes, skipped, err := ParseArrivals([]byte(flightStatus))
	if err != nil {
		t.Fatalf("ParseArrivals() failed: %v", err)
	}
	if skipped != 2 {
		t.Errorf("Expected 2 skipped arrivals, got %d", skipped)
	}

	expected := map[string]string{"UAL123": "Chicago O'Hare", "DAL7": "Atlanta"}
	if len(routes) != len(expected) {
		t.Fatalf("Expected %d routes, got %v", len(expected), routes)
	}
	for callsign, origin := range expected {
		if routes[callsign] != origin {
			t.Errorf("Expected %s from %q, got %q", callsign, origin, routes[callsign])
		}
	}
}

func TestParseArrivals_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>maintenance</html>"},
		{"no data", `{"flights": []}`},
		{"data not array", `{"data": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseArrivals([]byte(tt.body)); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("Expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	existing := map[string]string{"UAL123": "Chicago O'Hare", "DAL7": "Atlanta Hartsfield"}
	harvested := map[string]string{"UAL123": "Chicago O'Hare", "DAL7": "Atlanta", "SWA1": "Dallas Love"}

	merged, added, conflicts := Merge(existing, harvested)

	if added != 1 {
		t.Errorf("Expected 1 added, got %d", added)
	}
	if merged["SWA1"] != "Dallas Love" {
		t.Errorf("Expected SWA1 added, got %q", merged["SWA1"])
	}
	if merged["DAL7"] != "Atlanta Hartsfield" {
		t.Errorf("Existing entry must win, got %q", merged["DAL7"])
	}
	if len(conflicts) != 1 || conflicts[0].Callsign != "DAL7" || conflicts[0].Harvested != "Atlanta" {
		t.Errorf("Unexpected conflicts %+v", conflicts)
	}
	if len(existing) != 2 {
		t.Error("Merge must not modify its input")
	}
}

func TestLoadAndSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")

	routes, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() on a missing file failed: %v", err)
	}
	if len(routes) != 0 {
		t.Errorf("Expected empty table, got %v", routes)
	}

	if err := SaveFile(path, map[string]string{"UAL123": "Chicago"}); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}
	routes, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if routes["UAL123"] != "Chicago" {
		t.Errorf("Unexpected routes %v", routes)
	}

	// the tracker reads the same file
	origins, err := airspace.LoadOrigins(path)
	if err != nil {
		t.Fatalf("LoadOrigins() failed: %v", err)
	}
	if origin, ok := origins.Lookup("UAL123"); !ok || origin != "Chicago" {
		t.Errorf("Expected origin Chicago, got %q", origin)
	}

	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestHarvester_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(flightStatus))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "routes.json")
	if err := SaveFile(path, map[string]string{"DAL7": "Atlanta Hartsfield", "KLM605": "Amsterdam"}); err != nil {
		t.Fatal(err)
	}

	store := &mockStore{}
	merged, err := NewHarvester(server.URL, path, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(merged) != 3 {
		t.Errorf("Expected 3 routes, got %v", merged)
	}
	if merged["DAL7"] != "Atlanta Hartsfield" {
		t.Errorf("Existing entry must win, got %q", merged["DAL7"])
	}

	onDisk, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if len(onDisk) != 3 {
		t.Errorf("Expected 3 routes on disk, got %v", onDisk)
	}
	if len(store.stored) != 3 {
		t.Errorf("Expected routes mirrored to the store, got %v", store.stored)
	}
}

func TestHarvester_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "routes.json")
	if _, err := NewHarvester(server.URL, path, nil, nil).Run(context.Background()); err == nil {
		t.Error("Expected error for a bad status")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("A failed harvest must not write the routes file")
	}

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flightStatus))
	}))
	defer ok.Close()

	store := &mockStore{err: errors.New("connection refused")}
	merged, err := NewHarvester(ok.URL, path, store, nil).Run(context.Background())
	if err == nil {
		t.Error("Expected mirror error")
	}
	if len(merged) != 2 {
		t.Errorf("The file should still be updated, got %v", merged)
	}
}
