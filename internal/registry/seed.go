package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"skyarena/internal/geofence"
	"skyarena/internal/logging"
	"skyarena/internal/store"
	"skyarena/internal/telemetry"
)

// FenceSeed describes a fence either as a lon/lat ring or as GeoJSON text.
type FenceSeed struct {
	ID      int64        `yaml:"id"`
	Name    string       `yaml:"name"`
	Color   string       `yaml:"color"`
	Ring    [][2]float64 `yaml:"ring"`
	GeoJSON string       `yaml:"geojson"`
}

// SafeZoneSeed describes one safe zone. Active defaults to true.
type SafeZoneSeed struct {
	ID     int64   `yaml:"id"`
	Name   string  `yaml:"name"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
	Radius float64 `yaml:"radius"`
	Active *bool   `yaml:"active"`
}

// Seed is the registry import file.
type Seed struct {
	Fences    []FenceSeed    `yaml:"fences"`
	SafeZones []SafeZoneSeed `yaml:"safe_zones"`
}

// LoadSeed reads a registry import file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}

// Fence converts the seed, checking that the geometry parses.
func (f FenceSeed) Fence() (telemetry.Fence, error) {
	var raw json.RawMessage
	switch {
	case len(f.Ring) > 0:
		doc, err := geofence.PolygonFeature(f.Ring)
		if err != nil {
			return telemetry.Fence{}, fmt.Errorf("fence %q: %w", f.Name, err)
		}
		raw = doc
	case f.GeoJSON != "":
		raw = json.RawMessage(f.GeoJSON)
	default:
		return telemetry.Fence{}, fmt.Errorf("fence %q: no geometry", f.Name)
	}
	if _, err := geofence.ParseRing(raw); err != nil {
		return telemetry.Fence{}, fmt.Errorf("fence %q: %w", f.Name, err)
	}
	return telemetry.Fence{
		ID:      f.ID,
		Name:    f.Name,
		Kind:    telemetry.FenceKindPolygon,
		GeoJSON: raw,
		Color:   f.Color,
	}, nil
}

// SafeZone converts the seed.
func (z SafeZoneSeed) SafeZone() (telemetry.SafeZone, error) {
	if z.Radius <= 0 {
		return telemetry.SafeZone{}, fmt.Errorf("safe zone %q: radius must be positive", z.Name)
	}
	active := true
	if z.Active != nil {
		active = *z.Active
	}
	return telemetry.SafeZone{ID: z.ID, Name: z.Name, Lat: z.Lat, Lon: z.Lon, Radius: z.Radius, Active: active}, nil
}

// Import upserts every entry of s. Entries are validated before anything is
// written.
func Import(ctx context.Context, reg store.Registry, s *Seed) (fences, zones int, err error) {
	fs := make([]telemetry.Fence, 0, len(s.Fences))
	for _, f := range s.Fences {
		fence, err := f.Fence()
		if err != nil {
			return 0, 0, err
		}
		fs = append(fs, fence)
	}
	zs := make([]telemetry.SafeZone, 0, len(s.SafeZones))
	for _, z := range s.SafeZones {
		zone, err := z.SafeZone()
		if err != nil {
			return 0, 0, err
		}
		zs = append(zs, zone)
	}
	log := logging.FromContext(ctx)
	for _, f := range fs {
		id, err := reg.UpsertFence(ctx, f)
		if err != nil {
			return fences, zones, err
		}
		log.Debug("fence imported", "id", id, "name", f.Name)
		fences++
	}
	for _, z := range zs {
		id, err := reg.UpsertSafeZone(ctx, z)
		if err != nil {
			return fences, zones, err
		}
		log.Debug("safe zone imported", "id", id, "name", z.Name, "active", z.Active)
		zones++
	}
	log.Info("registry imported", "fences", fences, "safe_zones", zones)
	return fences, zones, nil
}
