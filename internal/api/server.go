// Package api serves the competition HTTP endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"skyarena/internal/auth"
	"skyarena/internal/history"
	"skyarena/internal/ingest"
	"skyarena/internal/telemetry"
	"skyarena/internal/validate"
)

const (
	maxBodyBytes    = 64 << 10
	maxQRTextBytes  = 512
	defaultQRSize   = 256
	shutdownTimeout = 5 * time.Second
)

// Ingestor runs submissions through the pipeline.
type Ingestor interface {
	SubmitTelemetry(ctx context.Context, raw map[string]any) (*ingest.StateUpdate, error)
	SubmitLock(ctx context.Context, raw map[string]any) error
	SubmitKamikaze(ctx context.Context, raw map[string]any) error
}

// Historian answers history queries.
type Historian interface {
	Query(ctx context.Context, req history.Request) history.Response
}

// RegistryView exposes the cached registries.
type RegistryView interface {
	Fences() []telemetry.Fence
	SafeZones() []telemetry.SafeZone
	ActiveSafeZones() []telemetry.SafeZone
}

// QRTarget is the kamikaze QR code position.
type QRTarget struct {
	Lat float64 `json:"qrEnlem"`
	Lon float64 `json:"qrBoylam"`
}

// Server wires the HTTP routes to the pipeline services.
type Server struct {
	Ingest   Ingestor
	History  Historian
	Events   http.Handler
	Registry RegistryView
	// Auth guards the submission routes when set.
	Auth *auth.Authenticator
	QR   QRTarget

	log *slog.Logger
	now func() time.Time
	mux *http.ServeMux
}

// NewServer builds the route table.
func NewServer(s Server, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	srv := &s
	srv.log = log
	srv.now = time.Now
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux = http.NewServeMux()
	s.mux.Handle("POST /api/telemetri_gonder", s.guard(s.handleTelemetry))
	s.mux.Handle("POST /api/kilitlenme_bilgisi", s.guard(s.handleLock))
	s.mux.Handle("POST /api/kamikaze_bilgisi", s.guard(s.handleKamikaze))
	s.mux.HandleFunc("POST /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/sunucusaati", s.handleServerTime)
	s.mux.HandleFunc("GET /api/hss_koordinatlari", s.handleCompetitionZones)
	s.mux.HandleFunc("GET /api/fences", s.handleFences)
	s.mux.HandleFunc("GET /api/hss", s.handleSafeZones)
	s.mux.HandleFunc("GET /api/qr_koordinati", s.handleQRTarget)
	s.mux.HandleFunc("GET /api/qr.png", s.handleQRImage)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.Events != nil {
		s.mux.Handle("GET /api/events", s.Events)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// Event streams end when ctx does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", "err", err)
		return srv.Close()
	}
	return nil
}

func (s *Server) guard(h http.HandlerFunc) http.Handler {
	if s.Auth == nil {
		return h
	}
	return s.Auth.Middleware(h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodePacket reads a JSON object, keeping numbers exact. Anything else
// yields an empty packet, which validation rejects.
func decodePacket(w http.ResponseWriter, r *http.Request) map[string]any {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return map[string]any{}
	}
	return raw
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	up, err := s.Ingest.SubmitTelemetry(r.Context(), decodePacket(w, r))
	switch {
	case errors.Is(err, validate.ErrRejected):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ingest.ErrForbidden):
		http.Error(w, "403", http.StatusForbidden)
	case errors.Is(err, ingest.ErrRateLimited):
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("3"))
	case err != nil:
		s.log.Error("telemetry submit failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, up)
	}
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request, submit func(context.Context, map[string]any) error) {
	err := submit(r.Context(), decodePacket(w, r))
	switch {
	case errors.Is(err, validate.ErrRejected):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ingest.ErrForbidden):
		http.Error(w, "403", http.StatusForbidden)
	case err != nil:
		s.log.Error("event submit failed", "path", r.URL.Path, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, s.Ingest.SubmitLock)
}

func (s *Server) handleKamikaze(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, s.Ingest.SubmitKamikaze)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var req history.Request
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, history.Response{Error: "invalid request: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.History.Query(r.Context(), req))
}

func (s *Server) handleServerTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, telemetry.NewServerTime(s.now()))
}

func (s *Server) handleCompetitionZones(w http.ResponseWriter, r *http.Request) {
	zones := telemetry.Competition(s.Registry.ActiveSafeZones())
	status := "bos"
	if len(zones) > 0 {
		status = "aktif"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sunucusaati":             telemetry.NewServerTime(s.now()),
		"hss_koordinat_bilgileri": zones,
		"durum":                   status,
	})
}

func (s *Server) handleFences(w http.ResponseWriter, r *http.Request) {
	items := s.Registry.Fences()
	if items == nil {
		items = []telemetry.Fence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (s *Server) handleSafeZones(w http.ResponseWriter, r *http.Request) {
	items := s.Registry.SafeZones()
	if items == nil {
		items = []telemetry.SafeZone{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (s *Server) handleQRTarget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.QR)
}

func (s *Server) handleQRImage(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" || len(text) > maxQRTextBytes {
		http.Error(w, "text must be 1-512 bytes", http.StatusBadRequest)
		return
	}
	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 1024 {
			http.Error(w, "size must be 64-1024", http.StatusBadRequest)
			return
		}
		size = n
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		s.log.Error("qr encode failed", "err", err)
		http.Error(w, "qr encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, "qr.png", time.Time{}, bytes.NewReader(png))
}
