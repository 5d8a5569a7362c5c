// Package store persists the history streams and reads the fence and
// safe-zone registries through database/sql.
package store

import (
	"context"
	"time"

	"skyarena/internal/telemetry"
)

// DefaultLimit and MaxLimit bound history query sizes.
const (
	DefaultLimit = 1000
	MaxLimit     = 10000
)

// Filter narrows a history query. Nil fields do not filter.
// Team matches the reporting team for telemetry and the source team for
// locks and kamikaze events. Target only applies to locks.
type Filter struct {
	Team   *int
	Target *int
	Start  *time.Time
	End    *time.Time // inclusive
	Limit  int
}

// Store is the persistence surface the pipeline depends on.
type Store interface {
	Append(ctx context.Context, rec telemetry.Record) error
	Query(ctx context.Context, stream telemetry.Stream, f Filter) ([]telemetry.Row, error)
}

// Registry reads and seeds fences and safe zones.
type Registry interface {
	ListFences(ctx context.Context) ([]telemetry.Fence, error)
	ListSafeZones(ctx context.Context, activeOnly bool) ([]telemetry.SafeZone, error)
	UpsertFence(ctx context.Context, f telemetry.Fence) (int64, error)
	UpsertSafeZone(ctx context.Context, z telemetry.SafeZone) (int64, error)
	Fingerprint(ctx context.Context) (fences, zones string, err error)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
