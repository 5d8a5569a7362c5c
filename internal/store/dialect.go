package store

import (
	"fmt"
	"strconv"
	"strings"
)

type dialect struct {
	name     string
	idColumn func(table string) string
	real     string
	// preamble runs before each table's CREATE statement.
	preamble func(table string) string
	dollar   bool
}

var dialects = map[string]dialect{
	"sqlite": {
		name:     "sqlite",
		idColumn: func(string) string { return "id INTEGER PRIMARY KEY AUTOINCREMENT" },
		real:     "REAL",
	},
	"pgx": {
		name:     "pgx",
		idColumn: func(string) string { return "id BIGSERIAL PRIMARY KEY" },
		real:     "DOUBLE PRECISION",
		dollar:   true,
	},
	"duckdb": {
		name: "duckdb",
		idColumn: func(table string) string {
			return fmt.Sprintf("id BIGINT PRIMARY KEY DEFAULT nextval('seq_%s')", table)
		},
		real: "DOUBLE",
		preamble: func(table string) string {
			return fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS seq_%s START 1", table)
		},
	},
}

func lookupDialect(driver string) (dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database type: %s", driver)
	}
	return d, nil
}

// rebind rewrites ? placeholders to $n where the driver needs it.
func (d dialect) rebind(q string) string {
	if !d.dollar {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	tables := []struct{ name, cols string }{
		{"telemetry", `ts_utc TEXT NOT NULL,
			team INTEGER NOT NULL,
			lat REAL_T, lon REAL_T, alt REAL_T, speed REAL_T,
			battery INTEGER,
			raw_json TEXT`},
		{"locks", `ts_utc TEXT NOT NULL,
			source_team INTEGER NOT NULL,
			target_team INTEGER NOT NULL,
			autonomous INTEGER NOT NULL,
			end_gps TEXT,
			extra_json TEXT`},
		{"kamikaze", `ts_utc TEXT NOT NULL,
			source_team INTEGER,
			qr_text TEXT,
			start_gps TEXT,
			end_gps TEXT,
			extra_json TEXT`},
		{"fences", `name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'polygon',
			geojson TEXT NOT NULL,
			color TEXT,
			updated_at TEXT NOT NULL`},
		{"safe_zones", `name TEXT NOT NULL,
			lat REAL_T NOT NULL,
			lon REAL_T NOT NULL,
			radius REAL_T NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL`},
	}
	var stmts []string
	for _, t := range tables {
		if d.preamble != nil {
			stmts = append(stmts, d.preamble(t.name))
		}
		cols := strings.ReplaceAll(t.cols, "REAL_T", d.real)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t\t%s,\n\t\t\t%s\n\t\t)", t.name, d.idColumn(t.name), cols))
	}
	stmts = append(stmts,
		"CREATE INDEX IF NOT EXISTS idx_telemetry_team_ts ON telemetry(team, ts_utc)",
		"CREATE INDEX IF NOT EXISTS idx_locks_source_ts ON locks(source_team, ts_utc)",
		"CREATE INDEX IF NOT EXISTS idx_kamikaze_ts ON kamikaze(ts_utc)",
	)
	return stmts
}
