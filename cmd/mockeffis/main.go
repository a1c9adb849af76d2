// Command mockeffis serves a canned EFFIS WFS endpoint for local
// development, so riskd can resolve risk without internet access. The
// returned index is deterministic in the coordinate and the date, which
// makes the full range of danger levels reachable by moving around the
// map.
//
// Usage:
//
//	go run ./cmd/mockeffis -addr :9090
//	EFFIS_BASE_URL=http://localhost:9090/effis go run ./cmd/riskd
//
// Force failures to watch the fallback chain at work:
//
//	go run ./cmd/mockeffis -status 503
//	go run ./cmd/mockeffis -empty
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type properties struct {
	FWI     float64 `json:"fwi"`
	Updated string  `json:"updated"`
}

type feature struct {
	Properties properties `json:"properties"`
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type mockServer struct {
	forcedFWI    float64 // NaN means derive from the coordinate
	forcedStatus int     // 0 means 200
	empty        bool
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	fwi := flag.Float64("fwi", math.NaN(), "return this FWI for every request instead of deriving one")
	status := flag.Int("status", 0, "return this HTTP status for every request")
	empty := flag.Bool("empty", false, "return an empty feature collection (no coverage)")
	flag.Parse()

	srv := &mockServer{forcedFWI: *fwi, forcedStatus: *status, empty: *empty}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /effis", srv.handleGetFeature)

	log.Printf("mock EFFIS listening on %s (point EFFIS_BASE_URL at http://localhost%s/effis)", *addr, *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func (s *mockServer) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	if s.forcedStatus != 0 {
		log.Printf("%s %s -> forced status %d", r.Method, r.URL.Path, s.forcedStatus)
		http.Error(w, fmt.Sprintf("forced status %d", s.forcedStatus), s.forcedStatus)
		return
	}

	if s.empty {
		log.Printf("%s %s -> empty collection", r.Method, r.URL.Path)
		writeJSON(w, featureCollection{Features: []feature{}})
		return
	}

	lat, lon, err := bboxCenter(r.URL.Query().Get("bbox"))
	if err != nil {
		log.Printf("%s %s -> bad bbox: %v", r.Method, r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value := s.forcedFWI
	if math.IsNaN(value) {
		value = deriveFWI(lat, lon, time.Now())
	}
	log.Printf("%s %s bbox_center=%.2f,%.2f -> fwi=%.1f", r.Method, r.URL.Path, lat, lon, value)

	writeJSON(w, featureCollection{Features: []feature{{
		Properties: properties{
			FWI:     value,
			Updated: time.Now().UTC().Format(time.RFC3339),
		},
	}}})
}

// bboxCenter parses a WFS bbox (minLon,minLat,maxLon,maxLat) back to
// its center point.
func bboxCenter(bbox string) (lat, lon float64, err error) {
	parts := strings.Split(bbox, ",")
	if len(parts) < 4 {
		return 0, 0, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat, got %q", bbox)
	}
	vals := make([]float64, 4)
	for i := range vals {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bbox component %d is not a number: %q", i, parts[i])
		}
	}
	return (vals[1] + vals[3]) / 2, (vals[0] + vals[2]) / 2, nil
}

// deriveFWI produces a plausible, deterministic index: warm latitudes
// and high summer push it up. A development stand-in, not meteorology.
func deriveFWI(lat, lon float64, now time.Time) float64 {
	base := 45 * (1 - math.Abs(lat)/90)
	season := math.Cos(2 * math.Pi * (float64(now.YearDay()) - 196) / 365)
	if lat < 0 {
		season = -season
	}
	fwi := base + 12*season + 5*math.Sin(lon*math.Pi/180)
	if fwi < 0 {
		return 0
	}
	return math.Round(fwi*10) / 10
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort mock response
}
