// Package geofence tests positions against permitted-area polygons.
package geofence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"skyarena/internal/telemetry"
)

// edgeEpsilon keeps horizontal edges from dividing by zero.
const edgeEpsilon = 1e-12

// GeometryError reports a fence whose geometry could not be used.
type GeometryError struct {
	FenceID int64
	Reason  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("fence %d: %s", e.FenceID, e.Reason)
}

// Point is a lon/lat vertex.
type Point struct {
	Lon float64
	Lat float64
}

// Polygon is a parsed outer ring. The ring is implicitly closed.
type Polygon struct {
	FenceID int64
	Name    string
	Ring    []Point
}

// Index holds the current set of permitted polygons. Reads are lock-free.
type Index struct {
	polys atomic.Pointer[[]Polygon]
	log   *slog.Logger
}

// NewIndex returns an empty index.
func NewIndex(log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	idx := &Index{log: log}
	empty := []Polygon{}
	idx.polys.Store(&empty)
	return idx
}

// Replace swaps in a new fence set. Fences that are not polygons or have
// malformed geometry are skipped and returned as GeometryErrors. An empty
// kind counts as a polygon.
func (idx *Index) Replace(fences []telemetry.Fence) []error {
	polys := make([]Polygon, 0, len(fences))
	var errs []error
	for _, f := range fences {
		ring, err := fenceRing(f)
		if err != nil {
			gerr := &GeometryError{FenceID: f.ID, Reason: err.Error()}
			idx.log.Warn("skipping fence", "fence", f.ID, "name", f.Name, "err", gerr)
			errs = append(errs, gerr)
			continue
		}
		polys = append(polys, Polygon{FenceID: f.ID, Name: f.Name, Ring: ring})
	}
	idx.polys.Store(&polys)
	return errs
}

func fenceRing(f telemetry.Fence) ([]Point, error) {
	if f.Kind != "" && f.Kind != telemetry.FenceKindPolygon {
		return nil, fmt.Errorf("unsupported fence kind %q", f.Kind)
	}
	return ParseRing(f.GeoJSON)
}

// Len returns the number of usable polygons.
func (idx *Index) Len() int { return len(*idx.polys.Load()) }

// Contains reports whether the point lies inside any polygon.
func (idx *Index) Contains(lat, lon float64) bool {
	for _, p := range *idx.polys.Load() {
		if PointInRing(lon, lat, p.Ring) {
			return true
		}
	}
	return false
}

// PointInRing is an even-odd ray cast with x = lon, y = lat.
func PointInRing(x, y float64, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		x1, y1 := ring[j].Lon, ring[j].Lat
		x2, y2 := ring[i].Lon, ring[i].Lat
		if (y1 > y) != (y2 > y) {
			xCross := (x2-x1)*(y-y1)/(y2-y1+edgeEpsilon) + x1
			if x < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

type geometry struct {
	Type        string            `json:"type"`
	Coordinates [][][]json.Number `json:"coordinates"`
}

type feature struct {
	Type     string    `json:"type"`
	Geometry *geometry `json:"geometry"`
}

// ParseRing extracts the outer ring from a GeoJSON Feature or bare Polygon.
func ParseRing(raw json.RawMessage) ([]Point, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing geometry")
	}
	var f feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	var g *geometry
	switch f.Type {
	case "Feature":
		g = f.Geometry
	case "Polygon":
		var bare geometry
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		g = &bare
	default:
		return nil, fmt.Errorf("unsupported geojson type %q", f.Type)
	}
	if g == nil || g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a polygon")
	}
	if len(g.Coordinates) == 0 {
		return nil, fmt.Errorf("polygon has no rings")
	}
	outer := g.Coordinates[0]
	ring := make([]Point, 0, len(outer))
	for i, pos := range outer {
		if len(pos) < 2 {
			return nil, fmt.Errorf("vertex %d has %d coordinates", i, len(pos))
		}
		lon, err := pos[0].Float64()
		if err != nil {
			return nil, fmt.Errorf("vertex %d lon: %w", i, err)
		}
		lat, err := pos[1].Float64()
		if err != nil {
			return nil, fmt.Errorf("vertex %d lat: %w", i, err)
		}
		ring = append(ring, Point{Lon: lon, Lat: lat})
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("ring has %d vertices", len(ring))
	}
	return ring, nil
}

// PolygonFeature wraps a lon/lat ring as a GeoJSON Feature, closing it.
func PolygonFeature(ring [][2]float64) (json.RawMessage, error) {
	if len(ring) < 3 {
		return nil, fmt.Errorf("ring has %d vertices", len(ring))
	}
	coords := make([][2]float64, len(ring), len(ring)+1)
	copy(coords, ring)
	if coords[0] != coords[len(coords)-1] {
		coords = append(coords, coords[0])
	}
	doc := map[string]any{
		"type":       "Feature",
		"properties": map[string]any{},
		"geometry": map[string]any{
			"type":        "Polygon",
			"coordinates": [][][2]float64{coords},
		},
	}
	return json.Marshal(doc)
}
