package livestate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"skyarena/internal/telemetry"
)

func report(team int, raw map[string]any) telemetry.Report {
	if raw == nil {
		raw = map[string]any{"takim_numarasi": team, "iha_enlem": 41.0, "iha_boylam": 36.0}
	}
	return telemetry.Report{Team: team, Raw: raw}
}

func teams(peers []telemetry.PeerReport) []int {
	var out []int
	for _, p := range peers {
		out = append(out, p[telemetry.FieldTeam].(int))
	}
	return out
}

func TestSnapshotScenario(t *testing.T) {
	const home = 25
	s := New(10)
	t0 := time.Unix(5000, 0)
	stale := 5 * time.Second

	s.Update(7, report(7, nil), t0)
	s.Update(9, report(9, nil), t0.Add(300*time.Millisecond))
	s.Update(home, report(home, nil), t0.Add(300*time.Millisecond))

	got := teams(s.Snapshot(home, stale, t0.Add(400*time.Millisecond)))
	if fmt.Sprint(got) != "[7 9]" {
		t.Fatalf("snapshot at 0.4s = %v, want [7 9]", got)
	}
	got = teams(s.Snapshot(home, stale, t0.Add(6*time.Second)))
	if len(got) != 0 {
		t.Fatalf("snapshot at 6s = %v, want none", got)
	}
}

func TestSnapshotNeverReturnsStale(t *testing.T) {
	s := New(10)
	t0 := time.Unix(0, 0)
	stale := time.Second
	for i := 0; i < 20; i++ {
		s.Update(i, report(i, nil), t0.Add(time.Duration(i)*100*time.Millisecond))
	}
	now := t0.Add(2 * time.Second)
	for _, p := range s.Snapshot(-1, stale, now) {
		if age := p[telemetry.FieldAge].(int64); age > stale.Milliseconds() {
			t.Fatalf("team %v age %dms exceeds threshold", p[telemetry.FieldTeam], age)
		}
	}
	// exactly at the threshold is still fresh
	got := teams(s.Snapshot(-1, stale, t0.Add(2*time.Second)))
	if len(got) == 0 || got[0] != 10 {
		t.Fatalf("snapshot = %v, want first team 10", got)
	}
}

func TestSnapshotPrunes(t *testing.T) {
	s := New(10)
	t0 := time.Unix(0, 0)
	s.Update(1, report(1, nil), t0)
	s.Update(2, report(2, nil), t0.Add(40*time.Second))

	s.Snapshot(0, 5*time.Second, t0.Add(45*time.Second))
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2 before cutoff", s.Len())
	}
	s.Snapshot(0, 5*time.Second, t0.Add(50*time.Second+time.Millisecond))
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after cutoff", s.Len())
	}
	if _, ok := s.Get(1); ok {
		t.Fatalf("team 1 survived pruning")
	}
}

func TestSnapshotAliases(t *testing.T) {
	s := New(10)
	now := time.Unix(0, 0)
	s.Update(3, report(3, map[string]any{
		"lat":       1.5,
		"longitude": 2.5,
		"iha_hizi":  30.0,
		"speed":     99.0,
		"hx":        10,
		"gps_time":  map[string]any{"saat": 1},
	}), now)

	peers := s.Snapshot(25, time.Second, now)
	if len(peers) != 1 {
		t.Fatalf("expected one peer, got %d", len(peers))
	}
	p := peers[0]
	checks := map[string]any{
		"iha_enlem":      1.5,
		"iha_boylam":     2.5,
		"iha_hiz":        30.0,
		"hedef_merkez_X": 10,
		"iha_irtifa":     nil,
		"iha_batarya":    nil,
	}
	for k, want := range checks {
		v, ok := p[k]
		if !ok {
			t.Fatalf("key %s missing", k)
		}
		if v != want {
			t.Fatalf("%s = %v, want %v", k, v, want)
		}
	}
	if _, ok := p["gps_saati"].(map[string]any); !ok {
		t.Fatalf("gps_saati not resolved from gps_time")
	}
}

func TestStateMachine(t *testing.T) {
	s := New(10)
	t0 := time.Unix(0, 0)
	stale := 5 * time.Second
	if st := s.State(4, stale, t0); st != NoData {
		t.Fatalf("state = %v, want no_data", st)
	}
	s.Update(4, report(4, nil), t0)
	if st := s.State(4, stale, t0.Add(time.Second)); st != Fresh {
		t.Fatalf("state = %v, want fresh", st)
	}
	if st := s.State(4, stale, t0.Add(6*time.Second)); st != Stale {
		t.Fatalf("state = %v, want stale", st)
	}
	s.Update(4, report(4, nil), t0.Add(7*time.Second))
	if st := s.State(4, stale, t0.Add(8*time.Second)); st != Fresh {
		t.Fatalf("state = %v, want fresh", st)
	}
}

func TestUpdateKeepsLaterReceipt(t *testing.T) {
	s := New(10)
	t0 := time.Unix(100, 0)
	newer := report(4, map[string]any{"takim_numarasi": 4, "iha_enlem": 41.2})
	older := report(4, map[string]any{"takim_numarasi": 4, "iha_enlem": 41.1})

	if !s.Update(4, newer, t0.Add(2*time.Second)) {
		t.Fatalf("first update refused")
	}
	if s.Update(4, older, t0) {
		t.Fatalf("older report replaced a newer one")
	}
	e, _ := s.Get(4)
	if e.Report.Raw["iha_enlem"] != 41.2 || !e.Received.Equal(t0.Add(2*time.Second)) {
		t.Fatalf("entry = %+v", e)
	}
	if !s.Update(4, older, t0.Add(2*time.Second)) {
		t.Fatalf("equal receipt time should replace")
	}
}

func TestConcurrentUpdateSnapshot(t *testing.T) {
	s := New(10)
	now := time.Unix(0, 0)
	var wg sync.WaitGroup
	for team := 0; team < 50; team++ {
		wg.Add(2)
		go func(team int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Update(team, report(team, nil), now)
			}
		}(team)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				s.Snapshot(25, time.Second, now)
			}
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("Len = %d, want 50", s.Len())
	}
}
