package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures a simulation run.
type Options struct {
	BaseURL string
	Teams   []int
	Center  Position
	Radius  float64 // meters
	Tick    time.Duration
	// LockChance is the per-tick probability that a team locks onto a peer.
	LockChance float64
	Seed       int64
	// Tokens holds per-team bearer keys for servers with auth enabled.
	Tokens map[int]string
	// Token is used for teams without an entry in Tokens.
	Token string
}

// Stats counts server answers.
type Stats struct {
	Accepted    atomic.Uint64
	RateLimited atomic.Uint64
	Rejected    atomic.Uint64
	Events      atomic.Uint64
	Failed      atomic.Uint64
}

func (s *Stats) String() string {
	return fmt.Sprintf("accepted=%d rate_limited=%d rejected=%d events=%d failed=%d",
		s.Accepted.Load(), s.RateLimited.Load(), s.Rejected.Load(), s.Events.Load(), s.Failed.Load())
}

// Runner posts telemetry for each team on every tick.
type Runner struct {
	opts  Options
	gen   *Generator
	mu    sync.Mutex // guards gen
	http  *http.Client
	log   *slog.Logger
	Stats Stats
}

// NewRunner validates opts and prepares the drones' generator.
func NewRunner(opts Options, client *http.Client, log *slog.Logger) (*Runner, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Radius <= 0 {
		opts.Radius = 500
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Runner{opts: opts, gen: NewGenerator(opts.Seed), http: client, log: log}, nil
}

var models = []string{"small-fpv", "medium-uav", "large-uav"}

// Run flies every team until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.opts.Teams) == 0 {
		return fmt.Errorf("at least one team required")
	}
	var wg sync.WaitGroup
	for i, team := range r.opts.Teams {
		r.mu.Lock()
		d := r.gen.NewDrone(team, models[i%len(models)], r.opts.Center, r.opts.Radius)
		r.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.fly(ctx, d)
		}()
	}
	wg.Wait()
	r.log.Info("simulation stopped", "stats", r.Stats.String())
	return nil
}

func (r *Runner) fly(ctx context.Context, d *Drone) {
	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.mu.Lock()
		r.gen.Step(d, r.opts.Tick)
		target := r.pickTarget(d.Team)
		pkt := r.gen.Packet(d, target)
		var lock map[string]any
		if target != 0 {
			lock = r.gen.Lock(d, target)
		}
		r.mu.Unlock()

		r.Tick(ctx, d.Team, pkt, lock)
	}
}

// pickTarget returns a random peer with probability LockChance, or 0.
func (r *Runner) pickTarget(team int) int {
	if len(r.opts.Teams) < 2 || r.gen.rng.Float64() >= r.opts.LockChance {
		return 0
	}
	for {
		t := r.opts.Teams[r.gen.rng.Intn(len(r.opts.Teams))]
		if t != team {
			return t
		}
	}
}

// Tick submits one telemetry packet and, when set, a lock event.
func (r *Runner) Tick(ctx context.Context, team int, pkt, lock map[string]any) {
	status, body, err := r.post(ctx, team, "/api/telemetri_gonder", pkt)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			r.Stats.Failed.Add(1)
			r.log.Warn("telemetry post failed", "team", team, "err", err)
		}
		return
	case status == http.StatusOK:
		r.Stats.Accepted.Add(1)
	case status == http.StatusBadRequest && body == "3":
		r.Stats.RateLimited.Add(1)
	case status == http.StatusNoContent:
		r.Stats.Rejected.Add(1)
		r.log.Warn("telemetry rejected", "team", team)
	default:
		r.Stats.Failed.Add(1)
		r.log.Warn("unexpected telemetry response", "team", team, "status", status, "body", body)
	}
	if lock == nil {
		return
	}
	status, _, err = r.post(ctx, team, "/api/kilitlenme_bilgisi", lock)
	if err == nil && status == http.StatusOK {
		r.Stats.Events.Add(1)
		return
	}
	if ctx.Err() == nil {
		r.Stats.Failed.Add(1)
		r.log.Warn("lock post failed", "team", team, "status", status, "err", err)
	}
}

func (r *Runner) post(ctx context.Context, team int, path string, v any) (int, string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	tok := r.opts.Tokens[team]
	if tok == "" {
		tok = r.opts.Token
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}
