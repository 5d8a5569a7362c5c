package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"skyarena/internal/telemetry"
)

// JSONStdoutWriter prints records as tagged JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Append outputs a record in JSON format prefixed by its stream.
func (w *JSONStdoutWriter) Append(_ context.Context, rec telemetry.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintf(w.out, "%s %s\n", rec.Stream(), data)
	return err
}
