// Package watch renders the live event stream of a running server.
package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"skyarena/internal/hub"
	"skyarena/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// PeerRow is one line of the peers table.
type PeerRow struct {
	Team    string
	Lat     string
	Lon     string
	Alt     string
	Speed   string
	Battery string
	Age     string
	Home    bool
}

type stateMessage struct {
	Team      int              `json:"takim"`
	Telemetry map[string]any   `json:"telemetry"`
	Enemies   []map[string]any `json:"enemies"`
}

// Peers extracts the table rows from a telemetry_update. The home team, when
// it has reported, comes first; peers follow in team order.
func Peers(m hub.Message) ([]PeerRow, bool) {
	if m.Kind != telemetry.KindTelemetryUpdate {
		return nil, false
	}
	var st stateMessage
	if err := json.Unmarshal(m.Data, &st); err != nil {
		return nil, false
	}
	rows := make([]PeerRow, 0, len(st.Enemies)+1)
	if st.Telemetry != nil {
		r := peerRow(st.Telemetry)
		r.Home = true
		r.Age = "0"
		rows = append(rows, r)
	}
	peers := make([]PeerRow, 0, len(st.Enemies))
	for _, e := range st.Enemies {
		peers = append(peers, peerRow(e))
	}
	sort.SliceStable(peers, func(i, j int) bool {
		a, _ := strconv.Atoi(peers[i].Team)
		b, _ := strconv.Atoi(peers[j].Team)
		return a < b
	})
	return append(rows, peers...), true
}

func peerRow(p map[string]any) PeerRow {
	return PeerRow{
		Team:    num(p[telemetry.FieldTeam], 0),
		Lat:     num(p[telemetry.FieldLat], 6),
		Lon:     num(p[telemetry.FieldLon], 6),
		Alt:     num(p[telemetry.FieldAlt], 1),
		Speed:   num(p[telemetry.FieldSpeed], 1),
		Battery: num(p[telemetry.FieldBattery], 0),
		Age:     num(p[telemetry.FieldAge], 0),
	}
}

// num formats a JSON number with prec decimals, or "-" when absent.
func num(v any, prec int) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', prec, 64)
	case string:
		return x
	case nil:
		return "-"
	default:
		return fmt.Sprint(x)
	}
}

// Line renders one event as a colored log line. Telemetry updates are shown
// in the peers table and yield no line.
func Line(m hub.Message, at time.Time) (string, bool) {
	stamp := fmt.Sprintf("%s[%s]%s ", colorGray, at.UTC().Format("15:04:05.000"), colorReset)
	var v map[string]any
	if err := json.Unmarshal(m.Data, &v); err != nil {
		return stamp + fmt.Sprintf("%s%s%s %s", colorRed, m.Kind, colorReset, m.Data), true
	}
	switch m.Kind {
	case telemetry.KindTelemetryUpdate:
		return "", false
	case telemetry.KindLockEvent:
		line := fmt.Sprintf("%sLOCK%s %ssource=%s%s %starget=%s%s auto=%s",
			colorMagenta, colorReset,
			colorBlue, num(v[telemetry.FieldSource], 0), colorReset,
			colorYellow, num(v[telemetry.FieldTarget], 0), colorReset,
			num(v[telemetry.FieldLockAutonomous], 0))
		if v[telemetry.FieldTargetX] != nil {
			line += fmt.Sprintf(" rect=(%s,%s %sx%s)",
				num(v[telemetry.FieldTargetX], 0), num(v[telemetry.FieldTargetY], 0),
				num(v[telemetry.FieldTargetW], 0), num(v[telemetry.FieldTargetH], 0))
		}
		return stamp + line, true
	case telemetry.KindKamikazeEvent:
		return stamp + fmt.Sprintf("%sKAMIKAZE%s %ssource=%s%s qr=%q",
			colorCyan, colorReset,
			colorBlue, num(v[telemetry.FieldSource], 0), colorReset,
			v[telemetry.FieldQR]), true
	case telemetry.KindGeofenceViolation:
		return stamp + fmt.Sprintf("%sGEOFENCE%s team=%s lat=%s lon=%s",
			colorRed, colorReset, num(v["takim"], 0), num(v["lat"], 6), num(v["lon"], 6)), true
	case telemetry.KindFencesUpdate, telemetry.KindSafeZonesUpdate:
		items, _ := v["items"].([]any)
		return stamp + fmt.Sprintf("%sREGISTRY%s %s items=%d", colorGreen, colorReset, m.Kind, len(items)), true
	default:
		return stamp + fmt.Sprintf("%s %s", m.Kind, m.Data), true
	}
}
