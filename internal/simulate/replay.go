package simulate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"skyarena/internal/telemetry"
)

// Replay posts the packets of a telemetry JSONL log, as written by the
// server's file mirror, preserving the recorded spacing divided by speed.
// A speed <= 0 posts without delay.
func (r *Runner) Replay(ctx context.Context, in io.Reader, speed float64) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	var prev time.Time
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec telemetry.TelemetryRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Raw == nil {
			r.log.Warn("replay line without packet", "line", line)
			continue
		}
		if !prev.IsZero() && speed > 0 {
			diff := rec.Received.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(diff):
				}
			}
		}
		r.Tick(ctx, rec.Team, rec.Raw, nil)
		if err := ctx.Err(); err != nil {
			return err
		}
		prev = rec.Received
	}
	if err := sc.Err(); err != nil {
		return err
	}
	r.log.Info("replay finished", "lines", line, "stats", r.Stats.String())
	return nil
}

// ReplayFile opens path and replays it.
func (r *Runner) ReplayFile(ctx context.Context, path string, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.Replay(ctx, f, speed)
}
