package persist

import (
	"context"
	"errors"
	"fmt"

	"skyarena/internal/telemetry"
)

// MultiWriter fans records out to several writers. A failing writer does not
// stop the others; their errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter, skipping nil writers.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Append sends a record to every writer.
func (mw *MultiWriter) Append(ctx context.Context, rec telemetry.Record) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Append(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", w, err))
		}
	}
	return errors.Join(errs...)
}

// AppendBatch sends records to every writer, batched where supported. The
// failed count is the largest any single writer reported.
func (mw *MultiWriter) AppendBatch(ctx context.Context, recs []telemetry.Record) error {
	var errs []error
	failed := 0
	for _, w := range mw.writers {
		if err := writeBatch(ctx, w, recs); err != nil {
			failed = max(failed, failedRecords(err, len(recs)))
			errs = append(errs, fmt.Errorf("%T: %w", w, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &BatchError{Failed: failed, Err: errors.Join(errs...)}
}
