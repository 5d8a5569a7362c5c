package telemetry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAliasResolveOrder(t *testing.T) {
	a := Alias{FieldLat, []string{"enlem", "lat", "latitude"}}
	cases := []struct {
		name   string
		packet map[string]any
		want   any
	}{
		{"canonical wins", map[string]any{"iha_enlem": 1.0, "lat": 2.0}, 1.0},
		{"first synonym", map[string]any{"lat": 2.0, "latitude": 3.0}, 2.0},
		{"last synonym", map[string]any{"latitude": 3.0}, 3.0},
		{"missing", map[string]any{"lon": 4.0}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Resolve(tc.packet); got != tc.want {
				t.Fatalf("Resolve = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewServerTime(t *testing.T) {
	ts := time.Date(2024, 6, 9, 13, 4, 5, 678_900_000, time.FixedZone("x", 3*3600))
	got := NewServerTime(ts)
	want := ServerTime{Day: 9, Hour: 10, Minute: 4, Second: 5, Millisecond: 678}
	if got != want {
		t.Fatalf("NewServerTime = %+v, want %+v", got, want)
	}
}

func TestParseStream(t *testing.T) {
	for _, s := range []string{"telemetry", "locks", "kamikaze"} {
		if _, err := ParseStream(s); err != nil {
			t.Fatalf("ParseStream(%q): %v", s, err)
		}
	}
	if _, err := ParseStream("fences"); err == nil {
		t.Fatalf("expected error for unknown stream")
	}
}

func TestReportJSONOmitsMissingRect(t *testing.T) {
	r := Report{Team: 7, GPS: GPSTime{Hour: 1}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), FieldTargetX) {
		t.Fatalf("unexpected target fields in %s", b)
	}
	r.TargetRect = &TargetRect{CenterX: 1, CenterY: 2, Width: 3, Height: 4}
	b, _ = json.Marshal(r)
	if !strings.Contains(string(b), `"hedef_genislik":3`) {
		t.Fatalf("missing target fields in %s", b)
	}
}

func TestTimestampOrdering(t *testing.T) {
	a := FormatTimestamp(time.Date(2024, 1, 1, 9, 59, 59, 999_000_000, time.UTC))
	b := FormatTimestamp(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if b != "2024-01-01T10:00:00.000Z" {
		t.Fatalf("FormatTimestamp = %s", b)
	}
}
