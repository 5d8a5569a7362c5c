package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"skyarena/internal/telemetry"
)

func parseStamp(s string) time.Time {
	t, err := time.Parse(telemetry.TimestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ListFences returns every registered fence ordered by id.
func (s *SQLStore) ListFences(ctx context.Context) ([]telemetry.Fence, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, geojson, color, updated_at FROM fences ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fences: %w", err)
	}
	defer rows.Close()
	out := []telemetry.Fence{}
	for rows.Next() {
		var (
			f         telemetry.Fence
			geo       string
			color     sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Kind, &geo, &color, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan fence: %w", err)
		}
		f.GeoJSON = []byte(geo)
		f.Color = color.String
		if f.Color == "" {
			f.Color = telemetry.DefaultFenceColor
		}
		f.UpdatedAt = parseStamp(updatedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListSafeZones returns safe zones ordered by id.
func (s *SQLStore) ListSafeZones(ctx context.Context, activeOnly bool) ([]telemetry.SafeZone, error) {
	q := `SELECT id, name, lat, lon, radius, active, updated_at FROM safe_zones`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list safe zones: %w", err)
	}
	defer rows.Close()
	out := []telemetry.SafeZone{}
	for rows.Next() {
		var (
			z         telemetry.SafeZone
			active    int64
			updatedAt string
		)
		if err := rows.Scan(&z.ID, &z.Name, &z.Lat, &z.Lon, &z.Radius, &active, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan safe zone: %w", err)
		}
		z.Active = active == 1
		z.UpdatedAt = parseStamp(updatedAt)
		out = append(out, z)
	}
	return out, rows.Err()
}

// UpsertFence inserts a fence, or replaces it when ID is set.
func (s *SQLStore) UpsertFence(ctx context.Context, f telemetry.Fence) (int64, error) {
	if f.Kind == "" {
		f.Kind = telemetry.FenceKindPolygon
	}
	if f.Color == "" {
		f.Color = telemetry.DefaultFenceColor
	}
	ts := telemetry.FormatTimestamp(s.now())
	if f.ID == 0 {
		var id int64
		q := `INSERT INTO fences (name, kind, geojson, color, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`
		err := s.db.QueryRowContext(ctx, s.d.rebind(q), f.Name, f.Kind, string(f.GeoJSON), f.Color, ts).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert fence: %w", err)
		}
		return id, nil
	}
	q := `INSERT INTO fences (id, name, kind, geojson, color, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, kind = excluded.kind,
			geojson = excluded.geojson, color = excluded.color, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, s.d.rebind(q), f.ID, f.Name, f.Kind, string(f.GeoJSON), f.Color, ts); err != nil {
		return 0, fmt.Errorf("upsert fence %d: %w", f.ID, err)
	}
	return f.ID, nil
}

// UpsertSafeZone inserts a safe zone, or replaces it when ID is set.
func (s *SQLStore) UpsertSafeZone(ctx context.Context, z telemetry.SafeZone) (int64, error) {
	active := 0
	if z.Active {
		active = 1
	}
	ts := telemetry.FormatTimestamp(s.now())
	if z.ID == 0 {
		var id int64
		q := `INSERT INTO safe_zones (name, lat, lon, radius, active, updated_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
		err := s.db.QueryRowContext(ctx, s.d.rebind(q), z.Name, z.Lat, z.Lon, z.Radius, active, ts).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert safe zone: %w", err)
		}
		return id, nil
	}
	q := `INSERT INTO safe_zones (id, name, lat, lon, radius, active, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, lat = excluded.lat, lon = excluded.lon,
			radius = excluded.radius, active = excluded.active, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, s.d.rebind(q), z.ID, z.Name, z.Lat, z.Lon, z.Radius, active, ts); err != nil {
		return 0, fmt.Errorf("upsert safe zone %d: %w", z.ID, err)
	}
	return z.ID, nil
}

// Fingerprint summarizes each registry table so pollers can detect changes.
func (s *SQLStore) Fingerprint(ctx context.Context) (fences, zones string, err error) {
	fingerprint := func(table string) (string, error) {
		var (
			n    int64
			last sql.NullString
		)
		q := fmt.Sprintf(`SELECT COUNT(*), MAX(updated_at) FROM %s`, table)
		if err := s.db.QueryRowContext(ctx, q).Scan(&n, &last); err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", table, err)
		}
		return fmt.Sprintf("%d/%s", n, last.String), nil
	}
	if fences, err = fingerprint("fences"); err != nil {
		return "", "", err
	}
	if zones, err = fingerprint("safe_zones"); err != nil {
		return "", "", err
	}
	return fences, zones, nil
}
