package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// DefaultURL is the SFO flight status endpoint
const DefaultURL = "https://www.flysfo.com/flysfo/api/flight-status"

// ErrInvalidDocument is returned for bodies that are not a flight status document
var ErrInvalidDocument = errors.New("invalid flight status document")

// Conflict is a harvested origin that disagrees with the one on file
type Conflict struct {
	Callsign  string
	Existing  string
	Harvested string
}

// Store mirrors routes somewhere shared. redis.Client implements it.
type Store interface {
	StoreRoutes(ctx context.Context, routes map[string]string) error
}

// ParseArrivals extracts callsign to origin airport name for every arrival in
// a flight status document. The origin is the one on the route with the
// highest route_seq. Arrivals without a callsign or origin are skipped.
func ParseArrivals(body []byte) (map[string]string, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, ErrInvalidDocument
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, 0, fmt.Errorf("%w: missing data array", ErrInvalidDocument)
	}

	routes := make(map[string]string)
	skipped := 0
	data.ForEach(func(_, flight gjson.Result) bool {
		if flight.Get("flight_kind").String() != "Arrival" {
			return true
		}
		callsign := strings.TrimSpace(flight.Get("callsign").String())
		origin, ok := latestOrigin(flight.Get("routes"))
		if callsign == "" || !ok {
			skipped++
			return true
		}
		routes[callsign] = origin
		return true
	})
	return routes, skipped, nil
}

func latestOrigin(routes gjson.Result) (string, bool) {
	var (
		origin string
		seq    int64
	)
	routes.ForEach(func(_, route gjson.Result) bool {
		if s := route.Get("route_seq").Int(); s > seq {
			if name := route.Get("origin_airport.airport_name").String(); name != "" {
				origin, seq = name, s
			}
		}
		return true
	})
	return origin, origin != ""
}

// Merge adds harvested routes to existing ones. An existing entry always
// wins; disagreements are returned as conflicts, sorted by callsign.
func Merge(existing, harvested map[string]string) (map[string]string, int, []Conflict) {
	merged := make(map[string]string, len(existing)+len(harvested))
	for k, v := range existing {
		merged[k] = v
	}

	added := 0
	var conflicts []Conflict
	for callsign, origin := range harvested {
		current, ok := merged[callsign]
		switch {
		case !ok:
			merged[callsign] = origin
			added++
		case current != origin:
			conflicts = append(conflicts, Conflict{Callsign: callsign, Existing: current, Harvested: origin})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Callsign < conflicts[j].Callsign })
	return merged, added, conflicts
}

// LoadFile reads a routes file. A missing file is an empty table.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	routes := make(map[string]string)
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}
	return routes, nil
}

// SaveFile writes routes to path, replacing it atomically
func SaveFile(path string, routes map[string]string) error {
	data, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal routes: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".routes-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write routes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write routes: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace routes file: %w", err)
	}
	return nil
}

// Harvester fetches flight status and folds arrivals into the routes file
type Harvester struct {
	url    string
	file   string
	client *http.Client
	store  Store
	logger *logger.Logger
}

// NewHarvester creates a harvester for url writing to file. store may be nil.
func NewHarvester(url, file string, store Store, log *logger.Logger) *Harvester {
	if log == nil {
		log = logger.Nop()
	}
	return &Harvester{
		url:    url,
		file:   file,
		client: &http.Client{Timeout: 30 * time.Second},
		store:  store,
		logger: log.Named("routes"),
	}
}

// Fetch downloads the flight status document
func (h *Harvester) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flight status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch flight status: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read flight status: %w", err)
	}
	return body, nil
}

// Run fetches once, merges into the routes file and mirrors the result to
// the store. It returns the merged table.
func (h *Harvester) Run(ctx context.Context) (map[string]string, error) {
	existing, err := LoadFile(h.file)
	if err != nil {
		return nil, err
	}
	h.logger.Info("Loaded routes", logger.Int("routes", len(existing)), logger.String("file", h.file))

	body, err := h.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	harvested, skipped, err := ParseArrivals(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		h.logger.Warn("Skipped arrivals without a callsign or origin", logger.Int("count", skipped))
	}

	merged, added, conflicts := Merge(existing, harvested)
	for _, c := range conflicts {
		h.logger.Warn("Origin changed, keeping the existing entry",
			logger.String("callsign", c.Callsign),
			logger.String("existing", c.Existing),
			logger.String("harvested", c.Harvested))
	}

	if err := SaveFile(h.file, merged); err != nil {
		return nil, err
	}
	h.logger.Info("Saved routes",
		logger.Int("routes", len(merged)),
		logger.Int("added", added),
		logger.Int("conflicts", len(conflicts)))

	if h.store != nil {
		if err := h.store.StoreRoutes(ctx, merged); err != nil {
			return merged, fmt.Errorf("failed to mirror routes: %w", err)
		}
	}
	return merged, nil
}
