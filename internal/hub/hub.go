// Package hub fans broadcast messages out to live subscribers.
package hub

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBuffer    = 64
	DefaultHeartbeat = 15 * time.Second
)

// Message is one broadcast, with its payload already encoded.
type Message struct {
	Kind string
	Data json.RawMessage
}

// Subscriber receives messages published after it subscribed. Its queue is
// bounded; when full the oldest message is discarded.
type Subscriber struct {
	ID      string
	mu      sync.Mutex
	ch      chan Message
	closed  bool
	dropped atomic.Uint64
}

// C returns the delivery channel. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Dropped reports how many messages were discarded for this subscriber.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscriber) offer(m Message) (evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- m:
			return evicted
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub tracks subscribers and delivers every published message to each of
// them. There is no replay.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	buffer    int
	heartbeat time.Duration
	log       *slog.Logger
	published atomic.Uint64
}

// New creates a Hub with a per-subscriber queue of buffer messages.
func New(buffer int, heartbeat time.Duration, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[string]*Subscriber), buffer: buffer, heartbeat: heartbeat, log: log}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ID: uuid.NewString(), ch: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.subs[s.ID] = s
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debug("subscriber joined", "id", s.ID, "subscribers", n)
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	delete(h.subs, s.ID)
	n := len(h.subs)
	h.mu.Unlock()
	s.close()
	if ok {
		h.log.Debug("subscriber left", "id", s.ID, "subscribers", n, "dropped", s.Dropped())
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Published returns the number of messages published so far.
func (h *Hub) Published() uint64 { return h.published.Load() }

// Publish encodes data once and offers it to every current subscriber.
// It never blocks on a slow subscriber.
func (h *Hub) Publish(kind string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("broadcast encode failed", "kind", kind, "err", err)
		return
	}
	m := Message{Kind: kind, Data: raw}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.offer(m) {
			h.log.Debug("subscriber lagging, oldest message dropped", "id", s.ID, "kind", kind)
		}
	}
}

// ServeHTTP streams messages to one client as Server-Sent Events until the
// request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s := h.Subscribe()
	defer h.Unsubscribe(s)

	if _, err := fmt.Fprintf(w, ": connected %s\n\n", s.ID); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case m, ok := <-s.C():
			if !ok {
				return
			}
			if err := WriteEvent(w, m); err != nil {
				h.log.Debug("subscriber write failed", "id", s.ID, "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

// WriteEvent writes m in SSE framing.
func WriteEvent(w io.Writer, m Message) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", m.Kind); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", m.Data)
	return err
}
