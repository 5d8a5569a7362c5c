package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"skyarena/internal/telemetry"
)

func validPacket() map[string]any {
	return map[string]any{
		"takim_numarasi": 7,
		"iha_enlem":      41.5,
		"iha_boylam":     36.1,
		"iha_irtifa":     120.0,
		"iha_dikilme":    5.0,
		"iha_yonelme":    270.0,
		"iha_yatis":      -3.0,
		"iha_hiz":        42.0,
		"iha_batarya":    88,
		"iha_otonom":     1,
		"iha_kilitlenme": 0,
		"gps_saati": map[string]any{
			"saat": 11, "dakika": 38, "saniye": 37, "milisaniye": 654,
		},
	}
}

func TestTelemetryAcceptsValidPacket(t *testing.T) {
	r, err := Telemetry(validPacket())
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if r.Team != 7 || r.Battery != 88 || r.Autonomous != 1 || r.GPS.Millisecond != 654 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.TargetRect != nil {
		t.Fatalf("unexpected target rect")
	}
}

func TestTelemetryMissingField(t *testing.T) {
	for _, f := range telemetry.RequiredFields {
		t.Run(f, func(t *testing.T) {
			p := validPacket()
			delete(p, f)
			if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
				t.Fatalf("missing %s: err = %v, want ErrRejected", f, err)
			}
		})
	}
}

func TestTelemetryBoundaries(t *testing.T) {
	cases := []struct {
		field   string
		atEdge  any
		outside any
	}{
		{"iha_enlem", -90.0, -90.0001},
		{"iha_enlem", 90.0, 90.0001},
		{"iha_boylam", -180.0, -180.5},
		{"iha_boylam", 180.0, 181.0},
		{"iha_irtifa", 0.0, -1.0},
		{"iha_irtifa", 10000.0, 10001.0},
		{"iha_dikilme", 90.0, 91.0},
		{"iha_yonelme", 0.0, -1.0},
		{"iha_yonelme", 360.0, 361.0},
		{"iha_yatis", -90.0, -91.0},
		{"iha_hiz", 0.0, -1.0},
		{"iha_hiz", 200.0, 201.0},
		{"iha_batarya", 0, -1},
		{"iha_batarya", 100, 101},
		{"iha_otonom", 1, 2},
		{"iha_kilitlenme", 0, -1},
	}
	for _, tc := range cases {
		p := validPacket()
		p[tc.field] = tc.atEdge
		if _, err := Telemetry(p); err != nil {
			t.Fatalf("%s=%v rejected: %v", tc.field, tc.atEdge, err)
		}
		p[tc.field] = tc.outside
		if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
			t.Fatalf("%s=%v accepted", tc.field, tc.outside)
		}
	}
}

func TestTelemetryGPSBoundaries(t *testing.T) {
	cases := []struct {
		key  string
		edge int
		out  int
	}{
		{"saat", 23, 24},
		{"dakika", 59, 60},
		{"saniye", 59, 60},
		{"milisaniye", 999, 1000},
		{"saat", 0, -1},
	}
	for _, tc := range cases {
		p := validPacket()
		gps := p["gps_saati"].(map[string]any)
		gps[tc.key] = tc.edge
		if _, err := Telemetry(p); err != nil {
			t.Fatalf("gps %s=%d rejected", tc.key, tc.edge)
		}
		gps[tc.key] = tc.out
		if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
			t.Fatalf("gps %s=%d accepted", tc.key, tc.out)
		}
	}

	p := validPacket()
	delete(p["gps_saati"].(map[string]any), "milisaniye")
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("incomplete gps accepted")
	}
	p = validPacket()
	p["gps_saati"] = "11:38:37"
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("string gps accepted")
	}
}

func TestTelemetryLockRequiresTarget(t *testing.T) {
	p := validPacket()
	p["iha_kilitlenme"] = 1
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("locked packet without target accepted")
	}
	p["hedef_merkez_X"] = 300
	p["hedef_merkez_Y"] = 230
	p["hedef_genislik"] = 30
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("locked packet with partial target accepted")
	}
	p["hedef_yukseklik"] = 43
	r, err := Telemetry(p)
	if err != nil {
		t.Fatalf("locked packet rejected: %v", err)
	}
	if !r.IsLocked() || r.TargetRect == nil || r.Height != 43 {
		t.Fatalf("unexpected report: %+v", r)
	}
	p["hedef_yukseklik"] = "tall"
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("non-numeric target accepted")
	}
}

func TestTelemetryCoercion(t *testing.T) {
	raw := []byte(`{"takim_numarasi":"7","iha_enlem":"41.5","iha_boylam":36.1,"iha_irtifa":1e2,
		"iha_dikilme":0,"iha_yonelme":10,"iha_yatis":0,"iha_hiz":1,"iha_batarya":50.0,
		"iha_otonom":true,"iha_kilitlenme":false,
		"gps_saati":{"saat":1,"dakika":2,"saniye":3,"milisaniye":4}}`)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p map[string]any
	if err := dec.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, err := Telemetry(p)
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if r.Team != 7 || r.Lat != 41.5 || r.Alt != 100 || r.Battery != 50 || r.Autonomous != 1 {
		t.Fatalf("unexpected coercion: %+v", r)
	}

	p["iha_batarya"] = json.Number("50.5")
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("fractional battery accepted")
	}
	p["iha_batarya"] = 50
	p["iha_enlem"] = "north"
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("non-numeric latitude accepted")
	}
	p["iha_enlem"] = nil
	if _, err := Telemetry(p); !errors.Is(err, ErrRejected) {
		t.Fatalf("null latitude accepted")
	}
}

func lockPacket() map[string]any {
	return map[string]any{
		"kilitlenmeBitisZamani": map[string]any{"saat": 6, "dakika": 2, "saniye": 30, "milisaniye": 120},
		"otonom_kilitlenme":     0,
		"kaynak_takim":          7,
		"kilitlenen_takim":      9,
	}
}

func TestLock(t *testing.T) {
	ev, err := Lock(lockPacket())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if ev.Source != 7 || ev.Target != 9 || ev.End.Second != 30 || ev.TargetRect != nil {
		t.Fatalf("unexpected event: %+v", ev)
	}

	p := lockPacket()
	p["hedef_merkez_X"] = 1
	p["hedef_merkez_Y"] = 2
	p["hedef_genislik"] = 3
	p["hedef_yukseklik"] = 4
	ev, err = Lock(p)
	if err != nil || ev.TargetRect == nil || ev.Width != 3 {
		t.Fatalf("Lock with rect: %+v, %v", ev, err)
	}

	bad := []func(map[string]any){
		func(p map[string]any) { delete(p, "kilitlenmeBitisZamani") },
		func(p map[string]any) { delete(p["kilitlenmeBitisZamani"].(map[string]any), "saniye") },
		func(p map[string]any) { p["otonom_kilitlenme"] = 2 },
		func(p map[string]any) { delete(p, "otonom_kilitlenme") },
		func(p map[string]any) { delete(p, "kaynak_takim") },
		func(p map[string]any) { p["kilitlenen_takim"] = "nine" },
		func(p map[string]any) { p["hedef_merkez_X"] = "x" },
	}
	for i, mutate := range bad {
		p := lockPacket()
		mutate(p)
		if _, err := Lock(p); !errors.Is(err, ErrRejected) {
			t.Fatalf("case %d accepted", i)
		}
	}
}

func kamikazePacket() map[string]any {
	return map[string]any{
		"qrMetni":                 "teknofest2025",
		"kamikazeBaslangicZamani": map[string]any{"saat": 6, "dakika": 2, "saniye": 30, "milisaniye": 0},
		"kamikazeBitisZamani":     map[string]any{"saat": 6, "dakika": 2, "saniye": 41, "milisaniye": 500},
	}
}

func TestKamikaze(t *testing.T) {
	ev, err := Kamikaze(kamikazePacket())
	if err != nil {
		t.Fatalf("Kamikaze: %v", err)
	}
	if ev.Source != nil || ev.QR != "teknofest2025" || ev.End.Millisecond != 500 {
		t.Fatalf("unexpected event: %+v", ev)
	}

	p := kamikazePacket()
	p["kaynak_takim"] = 12
	ev, err = Kamikaze(p)
	if err != nil || ev.Source == nil || *ev.Source != 12 {
		t.Fatalf("Kamikaze with source: %+v, %v", ev, err)
	}

	bad := []func(map[string]any){
		func(p map[string]any) { delete(p, "qrMetni") },
		func(p map[string]any) { p["qrMetni"] = 5 },
		func(p map[string]any) { delete(p, "kamikazeBaslangicZamani") },
		func(p map[string]any) { delete(p["kamikazeBitisZamani"].(map[string]any), "saat") },
		func(p map[string]any) { p["kaynak_takim"] = "x" },
	}
	for i, mutate := range bad {
		p := kamikazePacket()
		mutate(p)
		if _, err := Kamikaze(p); !errors.Is(err, ErrRejected) {
			t.Fatalf("case %d accepted", i)
		}
	}
}
