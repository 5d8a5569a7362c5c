package persist

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"skyarena/internal/telemetry"
)

const (
	DefaultQueueSize = 4096
	maxBatch         = 256
	drainTimeout     = 5 * time.Second
)

// Persister queues accepted records and writes them from a single goroutine.
// Enqueueing never blocks: when the queue is full the record is dropped and
// counted. Write failures are logged and never reach the submitter.
type Persister struct {
	w       Writer
	queue   chan telemetry.Record
	log     *slog.Logger
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewPersister creates a Persister over w with a bounded queue.
func NewPersister(w Writer, queueSize int, log *slog.Logger) *Persister {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Persister{w: w, queue: make(chan telemetry.Record, queueSize), log: log}
}

// AppendTelemetry queues an accepted report received at at.
func (p *Persister) AppendTelemetry(r telemetry.Report, at time.Time) {
	p.enqueue(telemetry.NewTelemetryRecord(r, at))
}

// AppendLock queues a lock event received at at.
func (p *Persister) AppendLock(ev telemetry.LockEvent, at time.Time) {
	p.enqueue(telemetry.LockRecord{Received: at.UTC(), LockEvent: ev})
}

// AppendKamikaze queues a kamikaze event received at at.
func (p *Persister) AppendKamikaze(ev telemetry.KamikazeEvent, at time.Time) {
	p.enqueue(telemetry.KamikazeRecord{Received: at.UTC(), KamikazeEvent: ev})
}

func (p *Persister) enqueue(rec telemetry.Record) bool {
	select {
	case p.queue <- rec:
		return true
	default:
		n := p.dropped.Add(1)
		p.log.Warn("persist queue full, record dropped", "stream", rec.Stream(), "dropped", n)
		return false
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (p *Persister) Dropped() uint64 { return p.dropped.Load() }

// Failed reports how many batches the writer rejected.
func (p *Persister) Failed() uint64 { return p.failed.Load() }

// Pending reports the number of queued records.
func (p *Persister) Pending() int { return len(p.queue) }

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (p *Persister) Run(ctx context.Context) {
	batch := make([]telemetry.Record, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return
		case rec := <-p.queue:
			batch = append(batch[:0], rec)
			batch = p.fill(batch)
			p.write(ctx, batch)
		}
	}
}

// fill appends queued records without blocking, up to maxBatch.
func (p *Persister) fill(batch []telemetry.Record) []telemetry.Record {
	for len(batch) < maxBatch {
		select {
		case rec := <-p.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

func (p *Persister) drain(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), drainTimeout)
	defer cancel()
	batch := make([]telemetry.Record, 0, maxBatch)
	for {
		batch = p.fill(batch[:0])
		if len(batch) == 0 {
			return
		}
		p.write(ctx, batch)
		if ctx.Err() != nil {
			p.log.Warn("persist drain timed out", "pending", len(p.queue))
			return
		}
	}
}

func (p *Persister) write(ctx context.Context, batch []telemetry.Record) {
	if err := writeBatch(ctx, p.w, batch); err != nil {
		n := failedRecords(err, len(batch))
		p.failed.Add(uint64(n))
		p.log.Error("persist write failed", "records", len(batch), "failed", n, "err", err)
	}
}
