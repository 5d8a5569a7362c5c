// Record writers for the history streams
package persist

import (
	"context"
	"errors"
	"fmt"

	"skyarena/internal/telemetry"
)

// Writer is any sink for history records.
type Writer interface {
	Append(ctx context.Context, rec telemetry.Record) error
}

// Optional: writers may support batch mode.
type batchWriter interface {
	AppendBatch(ctx context.Context, recs []telemetry.Record) error
}

// BatchError reports how many records of a batch a writer rejected.
type BatchError struct {
	Failed int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d records failed: %v", e.Failed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// failedRecords returns the number of records err accounts for. Errors that
// carry no count fail the whole batch.
func failedRecords(err error, batch int) int {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Failed
	}
	return batch
}

// writeBatch sends recs to w, batched when supported. Without batch support
// every record is attempted; failures are joined into a BatchError.
func writeBatch(ctx context.Context, w Writer, recs []telemetry.Record) error {
	if bw, ok := w.(batchWriter); ok {
		err := bw.AppendBatch(ctx, recs)
		if err == nil {
			return nil
		}
		return &BatchError{Failed: failedRecords(err, len(recs)), Err: err}
	}
	var errs []error
	for _, r := range recs {
		if err := w.Append(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Stream(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &BatchError{Failed: len(errs), Err: errors.Join(errs...)}
}
