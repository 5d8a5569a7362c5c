// Package history answers filtered, time-ranged queries over the persisted
// streams.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"skyarena/internal/store"
	"skyarena/internal/telemetry"
)

var errBadRequest = errors.New("bad request")

// Request is a history query as submitted by a client. Team and Target
// accept integers or numeric strings; "", "null" and "None" mean no filter.
type Request struct {
	Stream string `json:"stream"`
	Team   any    `json:"team,omitempty"`
	Target any    `json:"target,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Limit  any    `json:"limit,omitempty"`
}

// Response is {ok, rows, count} on success and {ok:false, error} on failure.
type Response struct {
	OK    bool
	Rows  []telemetry.Row
	Error string
}

// MarshalJSON emits exactly one of the two response shapes.
func (r Response) MarshalJSON() ([]byte, error) {
	if !r.OK {
		return json.Marshal(struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}{false, r.Error})
	}
	rows := r.Rows
	if rows == nil {
		rows = []telemetry.Row{}
	}
	return json.Marshal(struct {
		OK    bool            `json:"ok"`
		Rows  []telemetry.Row `json:"rows"`
		Count int             `json:"count"`
	}{true, rows, len(rows)})
}

// Service runs history queries against a store. It holds no state of its
// own, so it never contends with ingestion.
type Service struct {
	store store.Store
	log   *slog.Logger
}

// NewService creates a Service over s.
func NewService(s store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, log: log}
}

// Query validates req and returns matching rows newest first.
func (s *Service) Query(ctx context.Context, req Request) Response {
	stream, f, err := req.Filter()
	if err != nil {
		return Response{Error: err.Error()}
	}
	rows, err := s.store.Query(ctx, stream, f)
	if err != nil {
		s.log.Error("history query failed", "stream", stream, "err", err)
		return Response{Error: err.Error()}
	}
	return Response{OK: true, Rows: rows}
}

// Filter converts the request into a stream and store filter.
func (r Request) Filter() (telemetry.Stream, store.Filter, error) {
	var f store.Filter
	name := r.Stream
	if name == "" {
		name = string(telemetry.StreamTelemetry)
	}
	stream, err := telemetry.ParseStream(name)
	if err != nil {
		return "", f, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if f.Team, err = optionalInt("team", r.Team); err != nil {
		return "", f, err
	}
	if f.Target, err = optionalInt("target", r.Target); err != nil {
		return "", f, err
	}
	if f.Start, err = parseBound("start", r.Start, false); err != nil {
		return "", f, err
	}
	if f.End, err = parseBound("end", r.End, true); err != nil {
		return "", f, err
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return "", f, fmt.Errorf("%w: end before start", errBadRequest)
	}
	limit, err := optionalInt("limit", r.Limit)
	if err != nil {
		return "", f, err
	}
	switch {
	case limit == nil:
		f.Limit = store.DefaultLimit
	case *limit < 0:
		return "", f, fmt.Errorf("%w: negative limit", errBadRequest)
	case *limit > store.MaxLimit:
		f.Limit = store.MaxLimit
	default:
		f.Limit = *limit
	}
	return stream, f, nil
}

func absent(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "None":
		return true
	}
	return false
}

func optionalInt(field string, v any) (*int, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int:
		return &x, nil
	case int64:
		n := int(x)
		return &n, nil
	case float64:
		f = x
	case json.Number:
		if absent(x.String()) {
			return nil, nil
		}
		p, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a number", errBadRequest, field, x)
		}
		f = p
	case string:
		if absent(x) {
			return nil, nil
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a number", errBadRequest, field, x)
		}
		f = p
	default:
		return nil, fmt.Errorf("%w: %s has type %T", errBadRequest, field, v)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %s %v is not an integer", errBadRequest, field, f)
	}
	n := int(f)
	return &n, nil
}

// timeLayouts are tried in order. span is the precision of the layout, used
// to make an end bound inclusive of the whole unit it names.
var timeLayouts = []struct {
	layout string
	span   time.Duration
}{
	{"2006-01-02T15:04:05Z07:00", time.Second},
	{"2006-01-02T15:04:05", time.Second},
	{"2006-01-02 15:04:05", time.Second},
	{"2006-01-02T15:04Z07:00", time.Minute},
	{"2006-01-02T15:04", time.Minute},
	{"2006-01-02 15:04", time.Minute},
	{"2006-01-02", 24 * time.Hour},
}

// parseBound parses a UTC timestamp. Bounds without a zone are UTC. An end
// bound given without fractional seconds covers its whole last unit, so
// "10:00:05" includes 10:00:05.999.
func parseBound(field, s string, end bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if absent(s) {
		return nil, nil
	}
	// Layouts with seconds also accept a fractional part.
	fractional := strings.Contains(s, ".")
	for _, l := range timeLayouts {
		t, err := time.ParseInLocation(l.layout, s, time.UTC)
		if err != nil {
			continue
		}
		t = t.UTC()
		if end && !fractional {
			t = t.Add(l.span - time.Millisecond)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("%w: %s %q is not a UTC timestamp", errBadRequest, field, s)
}
