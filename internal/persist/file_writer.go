package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"skyarena/internal/telemetry"
)

// FileWriter mirrors each stream to its own JSONL file.
type FileWriter struct {
	mu    sync.Mutex
	files map[telemetry.Stream]*os.File
	encs  map[telemetry.Stream]*json.Encoder
}

// FilePaths derives the per-stream paths for a telemetry log path.
func FilePaths(telemetryPath string) map[telemetry.Stream]string {
	return map[telemetry.Stream]string{
		telemetry.StreamTelemetry: telemetryPath,
		telemetry.StreamLocks:     telemetryPath + ".locks",
		telemetry.StreamKamikaze:  telemetryPath + ".kamikaze",
	}
}

// NewFileWriter opens (appending) one file per stream. Streams missing from
// paths are not mirrored.
func NewFileWriter(paths map[telemetry.Stream]string) (*FileWriter, error) {
	fw := &FileWriter{
		files: make(map[telemetry.Stream]*os.File),
		encs:  make(map[telemetry.Stream]*json.Encoder),
	}
	for stream, path := range paths {
		if path == "" {
			continue
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("open %s log: %w", stream, err)
		}
		fw.files[stream] = f
		fw.encs[stream] = json.NewEncoder(f)
	}
	return fw, nil
}

// Append writes one record as a JSON line, if its stream is enabled.
func (f *FileWriter) Append(_ context.Context, rec telemetry.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	enc, ok := f.encs[rec.Stream()]
	if !ok {
		return nil
	}
	return enc.Encode(rec)
}

// Close closes every file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, file := range f.files {
		errs = append(errs, file.Close())
	}
	return errors.Join(errs...)
}
