// Package ingest runs the telemetry pipeline: validation, admission, live
// state, geofence check, persistence and broadcast.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"skyarena/internal/livestate"
	"skyarena/internal/ratelimit"
	"skyarena/internal/telemetry"
	"skyarena/internal/validate"
)

// ErrRateLimited is returned when a team submits faster than the admission
// period allows.
var ErrRateLimited = errors.New("rate limited")

// ErrForbidden is returned when the caller may not submit for the packet's
// team.
var ErrForbidden = errors.New("forbidden")

// NoTeam is passed to Authorize for events that name no source team.
const NoTeam = -1

// Config holds the pipeline tunables.
type Config struct {
	HomeTeam    int
	RatePeriod  time.Duration
	Staleness   time.Duration
	PruneFactor int
}

// Publisher receives broadcast messages.
type Publisher interface {
	Publish(kind string, data any)
}

// Recorder accepts records for asynchronous persistence.
type Recorder interface {
	AppendTelemetry(r telemetry.Report, at time.Time)
	AppendLock(ev telemetry.LockEvent, at time.Time)
	AppendKamikaze(ev telemetry.KamikazeEvent, at time.Time)
}

// Fences answers permitted-airspace containment.
type Fences interface {
	Contains(lat, lon float64) bool
}

// SafeZones lists the currently active safe zones.
type SafeZones interface {
	ActiveSafeZones() []telemetry.SafeZone
}

// Deps are the collaborators a Service drives. Nil Fences or SafeZones
// disable the geofence check and the safe-zone list. A nil Authorize allows
// every caller.
type Deps struct {
	Recorder  Recorder
	Publisher Publisher
	Fences    Fences
	SafeZones SafeZones
	// Authorize is checked against the validated team before admission.
	Authorize func(ctx context.Context, team int) bool
}

// StateUpdate is the accepted-telemetry reply.
type StateUpdate struct {
	ServerTime telemetry.ServerTime        `json:"sunucusaati"`
	Team       int                         `json:"takim"`
	Telemetry  map[string]any              `json:"telemetri"`
	Peers      []telemetry.PeerReport      `json:"konumBilgileri"`
	SafeZones  []telemetry.CompetitionZone `json:"hss_koordinat_bilgileri"`
}

// StateBroadcast is the telemetry_update message. Telemetry always carries
// the home team's latest report, whichever team submitted.
type StateBroadcast struct {
	Team       int                    `json:"takim"`
	Telemetry  map[string]any         `json:"telemetry"`
	ServerTime telemetry.ServerTime   `json:"sunucusaati"`
	Enemies    []telemetry.PeerReport `json:"enemies"`
}

// Violation is the geofence_violation message.
type Violation struct {
	Team int     `json:"takim"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	UTC  string  `json:"utc"`
}

// Service is safe for concurrent use.
type Service struct {
	cfg     Config
	limiter *ratelimit.Limiter
	live    *livestate.Store
	deps    Deps
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Service.
func New(cfg Config, deps Deps, log *slog.Logger) *Service {
	if cfg.PruneFactor <= 0 {
		cfg.PruneFactor = livestate.DefaultPruneFactor
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RatePeriod),
		live:    livestate.New(cfg.PruneFactor),
		deps:    deps,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) authorize(ctx context.Context, team int) error {
	if s.deps.Authorize != nil && !s.deps.Authorize(ctx, team) {
		return ErrForbidden
	}
	return nil
}

// HomeTeam returns the configured home team.
func (s *Service) HomeTeam() int { return s.cfg.HomeTeam }

// Live exposes the live-state store for read-only observers.
func (s *Service) Live() *livestate.Store { return s.live }

// SubmitTelemetry runs one report through the pipeline. It returns an error
// wrapping validate.ErrRejected for malformed packets, ErrForbidden when the
// caller may not submit for the team and ErrRateLimited for packets inside
// the team's admission period. None of them has side effects.
func (s *Service) SubmitTelemetry(ctx context.Context, raw map[string]any) (*StateUpdate, error) {
	report, err := validate.Telemetry(raw)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, report.Team); err != nil {
		return nil, err
	}
	now := s.now()
	if !s.limiter.Admit(report.Team, now) {
		return nil, ErrRateLimited
	}
	if !s.live.Update(report.Team, report, now) {
		s.log.Debug("newer report already held", "team", report.Team)
	}

	home := s.cfg.HomeTeam
	if report.Team == home && s.deps.Fences != nil && !s.deps.Fences.Contains(report.Lat, report.Lon) {
		s.log.Warn("home team outside permitted airspace", "team", home, "lat", report.Lat, "lon", report.Lon)
		s.publish(telemetry.KindGeofenceViolation, Violation{
			Team: home,
			Lat:  report.Lat,
			Lon:  report.Lon,
			UTC:  telemetry.FormatTimestamp(now),
		})
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.AppendTelemetry(report, now)
	}

	peers := s.live.Snapshot(home, s.cfg.Staleness, now)
	var homePkt map[string]any
	if e, ok := s.live.Get(home); ok {
		homePkt = e.Report.Raw
	}
	clock := telemetry.NewServerTime(now)
	s.publish(telemetry.KindTelemetryUpdate, StateBroadcast{
		Team:       home,
		Telemetry:  homePkt,
		ServerTime: clock,
		Enemies:    peers,
	})

	var zones []telemetry.SafeZone
	if s.deps.SafeZones != nil {
		zones = s.deps.SafeZones.ActiveSafeZones()
	}
	return &StateUpdate{
		ServerTime: clock,
		Team:       home,
		Telemetry:  homePkt,
		Peers:      peers,
		SafeZones:  telemetry.Competition(zones),
	}, nil
}

// LockBroadcast is the lock_event message.
type LockBroadcast struct {
	Source     int                  `json:"kaynak_takim"`
	Target     int                  `json:"kilitlenen_takim"`
	Autonomous int                  `json:"otonom_kilitlenme"`
	End        telemetry.GPSTime    `json:"kilit_bitis_gps"`
	ServerTime telemetry.ServerTime `json:"sunucusaati"`
	CenterX    *float64             `json:"hedef_merkez_X"`
	CenterY    *float64             `json:"hedef_merkez_Y"`
	Width      *float64             `json:"hedef_genislik"`
	Height     *float64             `json:"hedef_yukseklik"`
}

// SubmitLock validates, persists and broadcasts a lock event.
func (s *Service) SubmitLock(ctx context.Context, raw map[string]any) error {
	ev, err := validate.Lock(raw)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, ev.Source); err != nil {
		return err
	}
	now := s.now()
	if s.deps.Recorder != nil {
		s.deps.Recorder.AppendLock(ev, now)
	}
	msg := LockBroadcast{
		Source:     ev.Source,
		Target:     ev.Target,
		Autonomous: ev.Autonomous,
		End:        ev.End,
		ServerTime: telemetry.NewServerTime(now),
	}
	if r := ev.TargetRect; r != nil {
		msg.CenterX, msg.CenterY, msg.Width, msg.Height = &r.CenterX, &r.CenterY, &r.Width, &r.Height
	}
	s.publish(telemetry.KindLockEvent, msg)
	return nil
}

// KamikazeBroadcast is the kamikaze_event message.
type KamikazeBroadcast struct {
	Source     *int                 `json:"kaynak_takim"`
	QR         string               `json:"qrMetni"`
	Start      telemetry.GPSTime    `json:"kamikazeBaslangicZamani"`
	End        telemetry.GPSTime    `json:"kamikazeBitisZamani"`
	ServerTime telemetry.ServerTime `json:"sunucusaati"`
}

// SubmitKamikaze validates, persists and broadcasts a kamikaze event.
func (s *Service) SubmitKamikaze(ctx context.Context, raw map[string]any) error {
	ev, err := validate.Kamikaze(raw)
	if err != nil {
		return err
	}
	source := NoTeam
	if ev.Source != nil {
		source = *ev.Source
	}
	if err := s.authorize(ctx, source); err != nil {
		return err
	}
	now := s.now()
	if s.deps.Recorder != nil {
		s.deps.Recorder.AppendKamikaze(ev, now)
	}
	s.publish(telemetry.KindKamikazeEvent, KamikazeBroadcast{
		Source:     ev.Source,
		QR:         ev.QR,
		Start:      ev.Start,
		End:        ev.End,
		ServerTime: telemetry.NewServerTime(now),
	})
	return nil
}

func (s *Service) publish(kind string, data any) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(kind, data)
	}
}

// Run prunes idle rate-limiter entries until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.Staleness
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Prune(s.now()); n > 0 {
				s.log.Debug("pruned rate limiter", "teams", n)
			}
		}
	}
}
