package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"skyarena/internal/telemetry"
	"skyarena/internal/validate"
)

type published struct {
	kind string
	data any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(kind string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{kind, data})
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		out = append(out, m.kind)
	}
	return out
}

func (f *fakePublisher) last(kind string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].kind == kind {
			return f.msgs[i].data
		}
	}
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	telemetry []telemetry.Report
	locks     []telemetry.LockEvent
	kamikaze  []telemetry.KamikazeEvent
}

func (f *fakeRecorder) AppendTelemetry(r telemetry.Report, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telemetry = append(f.telemetry, r)
}

func (f *fakeRecorder) AppendLock(ev telemetry.LockEvent, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, ev)
}

func (f *fakeRecorder) AppendKamikaze(ev telemetry.KamikazeEvent, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kamikaze = append(f.kamikaze, ev)
}

type boxFence struct{ minLat, maxLat, minLon, maxLon float64 }

func (b boxFence) Contains(lat, lon float64) bool {
	return lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon
}

type staticZones []telemetry.SafeZone

func (z staticZones) ActiveSafeZones() []telemetry.SafeZone { return z }

func packet(team int, lat, lon float64) map[string]any {
	return map[string]any{
		"takim_numarasi": float64(team),
		"iha_enlem":      lat,
		"iha_boylam":     lon,
		"iha_irtifa":     100.0,
		"iha_dikilme":    5.0,
		"iha_yonelme":    90.0,
		"iha_yatis":      0.0,
		"iha_hiz":        30.0,
		"iha_batarya":    80.0,
		"iha_otonom":     1.0,
		"iha_kilitlenme": 0.0,
		"gps_saati": map[string]any{
			"saat": 10.0, "dakika": 0.0, "saniye": 0.0, "milisaniye": 0.0,
		},
	}
}

type harness struct {
	svc   *Service
	pub   *fakePublisher
	rec   *fakeRecorder
	clock time.Time
}

func newHarness() *harness {
	h := &harness{pub: &fakePublisher{}, rec: &fakeRecorder{}, clock: time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)}
	h.svc = New(Config{HomeTeam: 25, RatePeriod: 500 * time.Millisecond, Staleness: 5 * time.Second}, Deps{
		Recorder:  h.rec,
		Publisher: h.pub,
		Fences:    boxFence{41, 42, 36, 37},
		SafeZones: staticZones{{ID: 1, Lat: 41.5, Lon: 36.1, Radius: 50, Active: true}},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.svc.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) at(d time.Duration) { h.clock = time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC).Add(d) }

func peerTeams(peers []telemetry.PeerReport) []int {
	var out []int
	for _, p := range peers {
		out = append(out, p[telemetry.FieldTeam].(int))
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTeamScenario(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.svc.SubmitTelemetry(ctx, packet(7, 41.5, 36.1)); err != nil {
		t.Fatalf("team 7 at 0s: %v", err)
	}
	h.at(200 * time.Millisecond)
	if _, err := h.svc.SubmitTelemetry(ctx, packet(7, 41.5, 36.1)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("team 7 at 0.2s: err = %v, want rate limited", err)
	}
	h.at(300 * time.Millisecond)
	if _, err := h.svc.SubmitTelemetry(ctx, packet(9, 41.6, 36.2)); err != nil {
		t.Fatalf("team 9 at 0.3s: %v", err)
	}
	h.at(400 * time.Millisecond)
	up, err := h.svc.SubmitTelemetry(ctx, packet(25, 41.4, 36.0))
	if err != nil {
		t.Fatalf("home at 0.4s: %v", err)
	}
	if got := peerTeams(up.Peers); !equalInts(got, []int{7, 9}) {
		t.Fatalf("peers at 0.4s = %v, want [7 9]", got)
	}
	if up.Peers[0][telemetry.FieldAge] != int64(400) {
		t.Fatalf("team 7 age = %v, want 400", up.Peers[0][telemetry.FieldAge])
	}
	if up.Team != 25 || up.Telemetry["iha_enlem"] != 41.4 {
		t.Fatalf("home echo = %d %v", up.Team, up.Telemetry)
	}
	if len(up.SafeZones) != 1 || up.SafeZones[0].Radius != 50 {
		t.Fatalf("safe zones = %+v", up.SafeZones)
	}

	h.at(500 * time.Millisecond)
	if _, err := h.svc.SubmitTelemetry(ctx, packet(7, 41.5, 36.1)); err != nil {
		t.Fatalf("team 7 at 0.5s: %v", err)
	}

	h.at(6 * time.Second)
	up, err = h.svc.SubmitTelemetry(ctx, packet(25, 41.4, 36.0))
	if err != nil {
		t.Fatalf("home at 6s: %v", err)
	}
	if len(up.Peers) != 0 {
		t.Fatalf("peers at 6s = %v, want none", peerTeams(up.Peers))
	}
	if len(h.rec.telemetry) != 5 {
		t.Fatalf("persisted %d reports, want 5", len(h.rec.telemetry))
	}
}

func TestBroadcastAlwaysCarriesHomeReport(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.svc.SubmitTelemetry(ctx, packet(7, 41.5, 36.1)); err != nil {
		t.Fatal(err)
	}
	msg := h.pub.last(telemetry.KindTelemetryUpdate).(StateBroadcast)
	if msg.Team != 25 || msg.Telemetry != nil {
		t.Fatalf("before home reports: %+v", msg)
	}

	h.at(time.Second)
	if _, err := h.svc.SubmitTelemetry(ctx, packet(25, 41.4, 36.0)); err != nil {
		t.Fatal(err)
	}
	h.at(2 * time.Second)
	if _, err := h.svc.SubmitTelemetry(ctx, packet(9, 41.6, 36.2)); err != nil {
		t.Fatal(err)
	}
	msg = h.pub.last(telemetry.KindTelemetryUpdate).(StateBroadcast)
	if msg.Telemetry["takim_numarasi"] != 25.0 {
		t.Fatalf("broadcast telemetry from team %v, want 25", msg.Telemetry["takim_numarasi"])
	}
	if got := peerTeams(msg.Enemies); !equalInts(got, []int{7, 9}) {
		t.Fatalf("enemies = %v", got)
	}
}

func TestRejectedPacketHasNoSideEffects(t *testing.T) {
	h := newHarness()
	p := packet(7, 41.5, 36.1)
	p["iha_batarya"] = 101.0
	if _, err := h.svc.SubmitTelemetry(context.Background(), p); !errors.Is(err, validate.ErrRejected) {
		t.Fatalf("err = %v, want rejected", err)
	}
	if len(h.pub.kinds()) != 0 || len(h.rec.telemetry) != 0 || h.svc.Live().Len() != 0 {
		t.Fatalf("side effects after reject: %v %d %d", h.pub.kinds(), len(h.rec.telemetry), h.svc.Live().Len())
	}
	p["iha_batarya"] = 100.0
	if _, err := h.svc.SubmitTelemetry(context.Background(), p); err != nil {
		t.Fatalf("rejected packet consumed the admission window: %v", err)
	}
}

func TestForbiddenPacketHasNoSideEffects(t *testing.T) {
	h := newHarness()
	var asked []int
	h.svc.deps.Authorize = func(_ context.Context, team int) bool {
		asked = append(asked, team)
		return team == 5
	}
	ctx := context.Background()

	p := packet(5, 41.5, 36.1)
	p["takim_numarasi"] = " 9"
	if _, err := h.svc.SubmitTelemetry(ctx, p); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	p["takim_numarasi"] = true
	if _, err := h.svc.SubmitTelemetry(ctx, p); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if !equalInts(asked, []int{9, 1}) {
		t.Fatalf("authorized teams = %v, want the validated [9 1]", asked)
	}
	if len(h.pub.kinds()) != 0 || len(h.rec.telemetry) != 0 || h.svc.Live().Len() != 0 {
		t.Fatalf("side effects after forbidden packet")
	}
	if _, err := h.svc.SubmitTelemetry(ctx, packet(9, 41.5, 36.1)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if _, err := h.svc.SubmitTelemetry(ctx, packet(5, 41.5, 36.1)); err != nil {
		t.Fatalf("own team: %v", err)
	}

	gps := map[string]any{"saat": 10.0, "dakika": 0.0, "saniye": 0.0, "milisaniye": 0.0}
	strike := map[string]any{"qrMetni": "x", "kamikazeBaslangicZamani": gps, "kamikazeBitisZamani": gps}
	if err := h.svc.SubmitKamikaze(ctx, strike); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unattributed kamikaze: %v", err)
	}
	if asked[len(asked)-1] != NoTeam || len(h.rec.kamikaze) != 0 {
		t.Fatalf("kamikaze authorized as %d, recorded %d", asked[len(asked)-1], len(h.rec.kamikaze))
	}
}

func TestGeofenceViolationOnlyForHome(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.svc.SubmitTelemetry(ctx, packet(7, 10, 10)); err != nil {
		t.Fatal(err)
	}
	if v := h.pub.last(telemetry.KindGeofenceViolation); v != nil {
		t.Fatalf("violation for peer: %+v", v)
	}
	if _, err := h.svc.SubmitTelemetry(ctx, packet(25, 41.5, 36.5)); err != nil {
		t.Fatal(err)
	}
	if v := h.pub.last(telemetry.KindGeofenceViolation); v != nil {
		t.Fatalf("violation inside fence: %+v", v)
	}
	h.at(time.Second)
	if _, err := h.svc.SubmitTelemetry(ctx, packet(25, 43, 36.5)); err != nil {
		t.Fatal(err)
	}
	v, ok := h.pub.last(telemetry.KindGeofenceViolation).(Violation)
	if !ok || v.Team != 25 || v.Lat != 43 || v.UTC != "2025-08-20T10:00:01.000Z" {
		t.Fatalf("violation = %+v", v)
	}
}

func TestSubmitEvents(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	gps := map[string]any{"saat": 10.0, "dakika": 1.0, "saniye": 2.0, "milisaniye": 3.0}

	if err := h.svc.SubmitLock(ctx, map[string]any{"kaynak_takim": 7.0, "otonom_kilitlenme": 1.0}); !errors.Is(err, validate.ErrRejected) {
		t.Fatalf("lock without end time: %v", err)
	}
	lock := map[string]any{
		"kaynak_takim": 7.0, "kilitlenen_takim": 9.0, "otonom_kilitlenme": 0.0, "kilitlenmeBitisZamani": gps,
		"hedef_merkez_X": 300.0, "hedef_merkez_Y": 200.0, "hedef_genislik": 20.0, "hedef_yukseklik": 30.0,
	}
	if err := h.svc.SubmitLock(ctx, lock); err != nil {
		t.Fatalf("SubmitLock: %v", err)
	}
	lb := h.pub.last(telemetry.KindLockEvent).(LockBroadcast)
	if lb.Source != 7 || lb.Target != 9 || lb.CenterX == nil || *lb.CenterX != 300 || lb.End.Millisecond != 3 {
		t.Fatalf("lock broadcast = %+v", lb)
	}

	strike := map[string]any{"qrMetni": "teknofest", "kamikazeBaslangicZamani": gps, "kamikazeBitisZamani": gps}
	if err := h.svc.SubmitKamikaze(ctx, strike); err != nil {
		t.Fatalf("SubmitKamikaze: %v", err)
	}
	kb := h.pub.last(telemetry.KindKamikazeEvent).(KamikazeBroadcast)
	if kb.QR != "teknofest" || kb.Source != nil {
		t.Fatalf("kamikaze broadcast = %+v", kb)
	}
	if len(h.rec.locks) != 1 || len(h.rec.kamikaze) != 1 {
		t.Fatalf("persisted locks=%d kamikaze=%d", len(h.rec.locks), len(h.rec.kamikaze))
	}
}

func TestConcurrentTeamsAdmitOncePerWindow(t *testing.T) {
	h := newHarness()
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := map[int]int{}
	for team := 1; team <= 8; team++ {
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(team int) {
				defer wg.Done()
				if _, err := h.svc.SubmitTelemetry(context.Background(), packet(team, 41.5, 36.1)); err == nil {
					mu.Lock()
					admitted[team]++
					mu.Unlock()
				}
			}(team)
		}
	}
	wg.Wait()
	for team := 1; team <= 8; team++ {
		if admitted[team] != 1 {
			t.Fatalf("team %d admitted %d times, want 1", team, admitted[team])
		}
	}
}
