package telemetry

import (
	"fmt"
	"time"
)

// Stream names one append-only history.
type Stream string

const (
	StreamTelemetry Stream = "telemetry"
	StreamLocks     Stream = "locks"
	StreamKamikaze  Stream = "kamikaze"
)

// Streams lists every history stream.
var Streams = []Stream{StreamTelemetry, StreamLocks, StreamKamikaze}

// ParseStream validates a stream name.
func ParseStream(s string) (Stream, error) {
	for _, st := range Streams {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stream %q", s)
}

// TimestampLayout is the fixed-width UTC layout used for receipt stamps.
// Lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t as a UTC receipt stamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record is one persisted history entry.
type Record interface {
	Stream() Stream
	ReceivedAt() time.Time
}

// TelemetryRecord is the persisted form of an accepted report.
type TelemetryRecord struct {
	Received time.Time      `json:"ts_utc"`
	Team     int            `json:"team"`
	Lat      float64        `json:"lat"`
	Lon      float64        `json:"lon"`
	Alt      float64        `json:"alt"`
	Speed    float64        `json:"speed"`
	Battery  int            `json:"battery"`
	Raw      map[string]any `json:"raw"`
}

func (TelemetryRecord) Stream() Stream { return StreamTelemetry }
func (r TelemetryRecord) ReceivedAt() time.Time { return r.Received }

// NewTelemetryRecord builds the persisted form of r.
func NewTelemetryRecord(r Report, received time.Time) TelemetryRecord {
	return TelemetryRecord{
		Received: received.UTC(),
		Team:     r.Team,
		Lat:      r.Lat,
		Lon:      r.Lon,
		Alt:      r.Alt,
		Speed:    r.Speed,
		Battery:  r.Battery,
		Raw:      r.Raw,
	}
}

// LockRecord is the persisted form of a lock event.
type LockRecord struct {
	Received time.Time `json:"ts_utc"`
	LockEvent
}

func (LockRecord) Stream() Stream { return StreamLocks }
func (r LockRecord) ReceivedAt() time.Time { return r.Received }

// KamikazeRecord is the persisted form of a kamikaze event.
type KamikazeRecord struct {
	Received time.Time `json:"ts_utc"`
	KamikazeEvent
}

func (KamikazeRecord) Stream() Stream { return StreamKamikaze }
func (r KamikazeRecord) ReceivedAt() time.Time { return r.Received }

// Row is one history entry as returned by queries.
type Row map[string]any
