package watch

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"skyarena/internal/hub"
)

// PlainWriter prints one line per event. It is used when stdout is not a
// terminal.
type PlainWriter struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	now   func() time.Time
}

// NewPlainWriter writes to out, keeping ANSI colors only when color is set.
func NewPlainWriter(out io.Writer, color bool) *PlainWriter {
	return &PlainWriter{out: out, color: color, now: time.Now}
}

// Handle implements Sink.
func (w *PlainWriter) Handle(m hub.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rows, ok := Peers(m); ok {
		parts := make([]string, 0, len(rows))
		for _, r := range rows {
			mark := ""
			if r.Home {
				mark = "*"
			}
			parts = append(parts, fmt.Sprintf("%s%s@%s,%s age=%s", r.Team, mark, r.Lat, r.Lon, r.Age))
		}
		_, err := fmt.Fprintf(w.out, "[%s] PEERS %s\n", w.now().UTC().Format("15:04:05.000"), strings.Join(parts, " "))
		return err
	}
	line, ok := Line(m, w.now())
	if !ok {
		return nil
	}
	if !w.color {
		line = stripANSI(line)
	}
	_, err := fmt.Fprintln(w.out, line)
	return err
}

// Status implements Sink.
func (w *PlainWriter) Status(connected bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case connected:
		fmt.Fprintln(w.out, "# connected")
	case err != nil:
		fmt.Fprintf(w.out, "# disconnected: %v\n", err)
	}
}

// Close implements Sink.
func (w *PlainWriter) Close() error { return nil }

func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
