package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skyarena/internal/auth"
	"skyarena/internal/config"
	"skyarena/internal/persist"
	"skyarena/internal/store"
	"skyarena/internal/telemetry"
)

type memStore struct{ recs []telemetry.Record }

func (m *memStore) Append(_ context.Context, rec telemetry.Record) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) Query(context.Context, telemetry.Stream, store.Filter) ([]telemetry.Row, error) {
	return nil, nil
}

func TestWritersStoreOnly(t *testing.T) {
	db := &memStore{}
	w, cleanup, err := writers(config.Default(), db, nil)
	if err != nil {
		t.Fatalf("writers returned error: %v", err)
	}
	cleanup()
	if w != persist.Writer(db) {
		t.Fatalf("expected the store itself, got %T", w)
	}
}

func TestWritersLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "telemetry.log")
	db := &memStore{}
	w, cleanup, err := writers(cfg, db, nil)
	if err != nil {
		t.Fatalf("writers returned error: %v", err)
	}
	if _, ok := w.(*persist.MultiWriter); !ok {
		t.Fatalf("expected *persist.MultiWriter, got %T", w)
	}
	rec := telemetry.TelemetryRecord{Received: time.Now(), Team: 7, Raw: map[string]any{"takim_numarasi": 7}}
	if err := w.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cleanup()
	if len(db.recs) != 1 {
		t.Fatalf("store got %d records", len(db.recs))
	}
	data, err := os.ReadFile(cfg.LogFile)
	if err != nil || len(data) == 0 {
		t.Fatalf("log file empty: %v", err)
	}
}

func TestTeamTokens(t *testing.T) {
	cfg := config.Default()
	if toks, err := teamTokens(cfg, []int{1}); err != nil || toks != nil {
		t.Fatalf("no secret: %v, %v", toks, err)
	}
	cfg.Auth.Secret = "s3cret"
	toks, err := teamTokens(cfg, []int{1, 2})
	if err != nil || len(toks) != 2 {
		t.Fatalf("teamTokens = %v, %v", toks, err)
	}
	a, _ := auth.New("s3cret")
	c, err := a.Verify(toks[2])
	if err != nil || c.Team != 2 || c.Role != auth.RoleTeam {
		t.Fatalf("claims = %+v, %v", c, err)
	}
}

func TestPersisterOutlivesServeContext(t *testing.T) {
	db := &memStore{}
	p := persist.NewPersister(db, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopPersist := startPersister(ctx, p)
	cancel()

	// A handler finishing during shutdown enqueues after ctx is done.
	p.AppendLock(telemetry.LockEvent{Source: 7, Target: 9}, time.Now())
	stopPersist()
	stopPersist()

	if len(db.recs) != 1 || db.recs[0].Stream() != telemetry.StreamLocks {
		t.Fatalf("persisted %d records, want the late lock event", len(db.recs))
	}
}
