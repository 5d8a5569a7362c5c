package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"skyarena/internal/telemetry"
)

// Config selects the database engine.
type Config struct {
	Type string // sqlite, pgx or duckdb
	Path string // file path for sqlite and duckdb
	DSN  string // connection string for pgx
}

// SQLStore implements Store and Registry over database/sql.
type SQLStore struct {
	db  *sql.DB
	d   dialect
	log *slog.Logger
	now func() time.Time
}

// Open connects, tunes and migrates the database. Drivers must be registered
// by importing skyarena/internal/store/drivers.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*SQLStore, error) {
	if log == nil {
		log = slog.Default()
	}
	d, err := lookupDialect(cfg.Type)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Path
	if d.name == "pgx" {
		dsn = cfg.DSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty connection target", d.name)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	switch d.name {
	case "sqlite", "duckdb":
		// single writer connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(8)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.name, err)
	}

	s := &SQLStore{db: db, d: d, log: log, now: time.Now}
	if d.name == "sqlite" {
		s.tuneSQLite(ctx)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("database ready", "driver", d.name)
	return s, nil
}

func (s *SQLStore) tuneSQLite(ctx context.Context) {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			s.log.Warn("sqlite tuning skipped", "pragma", p, "err", err)
		}
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Append writes one record to its stream.
func (s *SQLStore) Append(ctx context.Context, rec telemetry.Record) error {
	ts := telemetry.FormatTimestamp(rec.ReceivedAt())
	var (
		q    string
		args []any
	)
	switch r := rec.(type) {
	case telemetry.TelemetryRecord:
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("encode telemetry: %w", err)
		}
		q = `INSERT INTO telemetry (ts_utc, team, lat, lon, alt, speed, battery, raw_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		args = []any{ts, r.Team, r.Lat, r.Lon, r.Alt, r.Speed, r.Battery, string(raw)}
	case telemetry.LockRecord:
		end, _ := json.Marshal(r.End)
		extra, err := json.Marshal(lockExtra(r.LockEvent))
		if err != nil {
			return fmt.Errorf("encode lock: %w", err)
		}
		q = `INSERT INTO locks (ts_utc, source_team, target_team, autonomous, end_gps, extra_json) VALUES (?, ?, ?, ?, ?, ?)`
		args = []any{ts, r.Source, r.Target, r.Autonomous, string(end), string(extra)}
	case telemetry.KamikazeRecord:
		start, _ := json.Marshal(r.Start)
		end, _ := json.Marshal(r.End)
		extra, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("encode kamikaze: %w", err)
		}
		var source any
		if r.Source != nil {
			source = *r.Source
		}
		q = `INSERT INTO kamikaze (ts_utc, source_team, qr_text, start_gps, end_gps, extra_json) VALUES (?, ?, ?, ?, ?, ?)`
		args = []any{ts, source, r.QR, string(start), string(end), string(extra)}
	default:
		return fmt.Errorf("unsupported record %T", rec)
	}
	if _, err := s.db.ExecContext(ctx, s.d.rebind(q), args...); err != nil {
		return fmt.Errorf("append %s: %w", rec.Stream(), err)
	}
	return nil
}

// lockExtra keeps the submitted packet and guarantees the rectangle keys.
func lockExtra(ev telemetry.LockEvent) map[string]any {
	extra := make(map[string]any, len(ev.Raw)+4)
	for k, v := range ev.Raw {
		extra[k] = v
	}
	if ev.TargetRect != nil {
		extra[telemetry.FieldTargetX] = ev.CenterX
		extra[telemetry.FieldTargetY] = ev.CenterY
		extra[telemetry.FieldTargetW] = ev.Width
		extra[telemetry.FieldTargetH] = ev.Height
	}
	return extra
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Query returns matching rows of one stream, newest first.
func (s *SQLStore) Query(ctx context.Context, stream telemetry.Stream, f Filter) ([]telemetry.Row, error) {
	var w where
	teamCol := "source_team"
	var cols string
	switch stream {
	case telemetry.StreamTelemetry:
		teamCol = "team"
		cols = "id, ts_utc, team, lat, lon, alt, speed, battery, raw_json"
	case telemetry.StreamLocks:
		cols = "id, ts_utc, source_team, target_team, autonomous, end_gps, extra_json"
	case telemetry.StreamKamikaze:
		cols = "id, ts_utc, source_team, qr_text, start_gps, end_gps, extra_json"
	default:
		return nil, fmt.Errorf("unknown stream %q", stream)
	}
	if f.Team != nil {
		w.add(teamCol+" = ?", *f.Team)
	}
	if f.Target != nil && stream == telemetry.StreamLocks {
		w.add("target_team = ?", *f.Target)
	}
	if f.Start != nil {
		w.add("ts_utc >= ?", telemetry.FormatTimestamp(*f.Start))
	}
	if f.End != nil {
		w.add("ts_utc <= ?", telemetry.FormatTimestamp(*f.End))
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY ts_utc DESC, id DESC LIMIT %d",
		cols, stream, w.String(), clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, s.d.rebind(q), w.args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", stream, err)
	}
	defer rows.Close()

	out := []telemetry.Row{}
	for rows.Next() {
		var row telemetry.Row
		switch stream {
		case telemetry.StreamTelemetry:
			row, err = scanTelemetry(rows)
		case telemetry.StreamLocks:
			row, err = scanLock(rows)
		default:
			row, err = scanKamikaze(rows)
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", stream, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func decodeJSON(s sql.NullString) any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}

func nullInt(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func nullFloat(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func scanTelemetry(rows *sql.Rows) (telemetry.Row, error) {
	var (
		id, team, battery    sql.NullInt64
		ts                   string
		lat, lon, alt, speed sql.NullFloat64
		raw                  sql.NullString
	)
	if err := rows.Scan(&id, &ts, &team, &lat, &lon, &alt, &speed, &battery, &raw); err != nil {
		return nil, err
	}
	return telemetry.Row{
		"id":      nullInt(id),
		"ts_utc":  ts,
		"team":    nullInt(team),
		"lat":     nullFloat(lat),
		"lon":     nullFloat(lon),
		"alt":     nullFloat(alt),
		"speed":   nullFloat(speed),
		"battery": nullInt(battery),
		"raw":     decodeJSON(raw),
	}, nil
}

func scanLock(rows *sql.Rows) (telemetry.Row, error) {
	var (
		id, source, target, autonomous sql.NullInt64
		ts                             string
		end, extra                     sql.NullString
	)
	if err := rows.Scan(&id, &ts, &source, &target, &autonomous, &end, &extra); err != nil {
		return nil, err
	}
	row := telemetry.Row{
		"id":          nullInt(id),
		"ts_utc":      ts,
		"source_team": nullInt(source),
		"target_team": nullInt(target),
		"autonomous":  nullInt(autonomous),
		"end_gps":     decodeJSON(end),
	}
	ex, _ := decodeJSON(extra).(map[string]any)
	for _, k := range telemetry.TargetFields {
		row[k] = ex[k]
	}
	return row, nil
}

func scanKamikaze(rows *sql.Rows) (telemetry.Row, error) {
	var (
		id, source            sql.NullInt64
		ts                    string
		qr, start, end, extra sql.NullString
	)
	if err := rows.Scan(&id, &ts, &source, &qr, &start, &end, &extra); err != nil {
		return nil, err
	}
	return telemetry.Row{
		"id":          nullInt(id),
		"ts_utc":      ts,
		"source_team": nullInt(source),
		"qr_text":     qr.String,
		"start_gps":   decodeJSON(start),
		"end_gps":     decodeJSON(end),
	}, nil
}
