package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/term"

	"skyarena/internal/hub"
)

// Sink consumes stream events.
type Sink interface {
	Handle(hub.Message) error
	Status(connected bool, err error)
	Close() error
}

// NewSink picks the TUI on an interactive terminal and plain lines otherwise.
func NewSink(source string, forcePlain bool) Sink {
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	if tty && !forcePlain {
		return NewTUI(source)
	}
	return NewPlainWriter(os.Stdout, tty)
}

// Client follows a server's event stream.
type Client struct {
	URL   string
	Token string
	// Retry is the delay before reconnecting; zero disables reconnects.
	Retry time.Duration

	HTTP *http.Client
	Log  *slog.Logger
}

// Run streams events into sink until ctx is cancelled. It reconnects after
// Retry when the stream ends.
func (c *Client) Run(ctx context.Context, sink Sink) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	for {
		err := c.stream(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		sink.Status(false, err)
		if c.Retry <= 0 {
			return err
		}
		log.Debug("event stream ended, reconnecting", "err", err, "retry", c.Retry)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.Retry):
		}
	}
}

func (c *Client) stream(ctx context.Context, sink Sink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect %s: %s", c.URL, resp.Status)
	}
	sink.Status(true, nil)
	err = hub.ReadEvents(resp.Body, sink.Handle)
	if err == nil {
		err = errors.New("stream closed by server")
	}
	return err
}
