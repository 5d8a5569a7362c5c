package simulate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"skyarena/internal/validate"
)

func TestGeneratedPacketsValidate(t *testing.T) {
	g := NewGenerator(42)
	d := g.NewDrone(7, "medium-uav", Position{Lat: 41.5, Lon: 36.1, Alt: 100}, 500)
	for i := 0; i < 200; i++ {
		g.Step(d, time.Second)
		target := 0
		if i%3 == 0 {
			target = 9
		}
		rep, err := validate.Telemetry(g.Packet(d, target))
		if err != nil {
			t.Fatalf("tick %d: packet rejected: %v", i, err)
		}
		if rep.Team != 7 || (target != 0) != rep.IsLocked() {
			t.Fatalf("tick %d: unexpected report %+v", i, rep)
		}
		if target != 0 {
			ev, err := validate.Lock(g.Lock(d, target))
			if err != nil || ev.Target != 9 || ev.TargetRect == nil {
				t.Fatalf("tick %d: lock = %+v, %v", i, ev, err)
			}
		}
	}
	if math.Abs(d.Battery-40) > 1e-6 {
		t.Fatalf("battery = %v", d.Battery)
	}
}

func TestBatteryFloorsAtZero(t *testing.T) {
	g := NewGenerator(1)
	d := &Drone{Team: 1, Battery: 1}
	g.Step(d, 10*time.Second)
	if d.Battery != 0 {
		t.Fatalf("battery = %v", d.Battery)
	}
}

func TestRunnerCountsResponses(t *testing.T) {
	var (
		mu    sync.Mutex
		calls = map[string]int{}
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls[r.URL.Path]++
		n := calls[r.URL.Path]
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		switch {
		case r.URL.Path == "/api/kilitlenme_bilgisi":
			w.Write([]byte("OK"))
		case n == 2:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("3"))
		default:
			w.Write([]byte("{}"))
		}
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewRunner(Options{BaseURL: srv.URL + "/", Teams: []int{7}, Tokens: map[int]string{7: "k7"}}, srv.Client(), log)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	ctx := context.Background()
	g := NewGenerator(3)
	d := g.NewDrone(7, "", Position{Lat: 41, Lon: 36}, 10)
	r.Tick(ctx, 7, g.Packet(d, 0), nil)
	r.Tick(ctx, 7, g.Packet(d, 9), g.Lock(d, 9))

	if r.Stats.Accepted.Load() != 1 || r.Stats.RateLimited.Load() != 1 || r.Stats.Events.Load() != 1 {
		t.Fatalf("stats = %s", r.Stats.String())
	}
	for _, a := range auths {
		if a != "Bearer k7" {
			t.Fatalf("authorization = %q", a)
		}
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, _ := NewRunner(Options{BaseURL: srv.URL, Teams: []int{1, 2}, Tick: 10 * time.Millisecond, LockChance: 0.5}, srv.Client(), log)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Stats.Accepted.Load() == 0 {
		t.Fatalf("no telemetry accepted: %s", r.Stats.String())
	}
	if r.Stats.Failed.Load() != 0 {
		t.Fatalf("unexpected failures: %s", r.Stats.String())
	}
}

func TestNewRunnerValidates(t *testing.T) {
	if _, err := NewRunner(Options{Teams: []int{1}}, nil, nil); err == nil {
		t.Fatalf("missing url accepted")
	}
	r, _ := NewRunner(Options{BaseURL: "http://x"}, nil, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("missing teams accepted")
	}
}

func TestReplayPostsRecordedPackets(t *testing.T) {
	var (
		mu    sync.Mutex
		teams []float64
		at    []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		teams = append(teams, body["takim_numarasi"].(float64))
		at = append(at, time.Now())
		mu.Unlock()
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, _ := NewRunner(Options{BaseURL: srv.URL}, srv.Client(), log)
	in := strings.NewReader(
		`{"ts_utc":"2025-08-20T10:00:00Z","team":7,"raw":{"takim_numarasi":7}}` + "\n" +
			"\n" +
			`{"ts_utc":"2025-08-20T10:00:01Z","team":9,"raw":{"takim_numarasi":9}}` + "\n")
	if err := r.Replay(context.Background(), in, 10); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(teams) != 2 || teams[0] != 7 || teams[1] != 9 {
		t.Fatalf("posted teams = %v", teams)
	}
	if gap := at[1].Sub(at[0]); gap < 80*time.Millisecond {
		t.Fatalf("speed 10 should keep a ~100ms gap, got %v", gap)
	}
	if r.Stats.Accepted.Load() != 2 {
		t.Fatalf("stats = %s", r.Stats.String())
	}
}

func TestReplayBadLine(t *testing.T) {
	r, _ := NewRunner(Options{BaseURL: "http://127.0.0.1:1"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := r.Replay(context.Background(), strings.NewReader("{oops\n"), 0); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("Replay = %v", err)
	}
}
