// Competition telemetry, event and registry types
package telemetry

import (
	"encoding/json"
	"time"
)

// GPSTime is the client-supplied GPS clock attached to reports and events.
type GPSTime struct {
	Hour        int `json:"saat"`
	Minute      int `json:"dakika"`
	Second      int `json:"saniye"`
	Millisecond int `json:"milisaniye"`
}

// TargetRect is the on-camera target box reported while locked.
type TargetRect struct {
	CenterX float64 `json:"hedef_merkez_X"`
	CenterY float64 `json:"hedef_merkez_Y"`
	Width   float64 `json:"hedef_genislik"`
	Height  float64 `json:"hedef_yukseklik"`
}

// Report is one validated telemetry packet from a team.
type Report struct {
	Team       int     `json:"takim_numarasi"`
	Lat        float64 `json:"iha_enlem"`
	Lon        float64 `json:"iha_boylam"`
	Alt        float64 `json:"iha_irtifa"`
	Pitch      float64 `json:"iha_dikilme"`
	Yaw        float64 `json:"iha_yonelme"`
	Roll       float64 `json:"iha_yatis"`
	Speed      float64 `json:"iha_hiz"`
	Battery    int     `json:"iha_batarya"`
	Autonomous int     `json:"iha_otonom"`
	Locked     int     `json:"iha_kilitlenme"`
	GPS        GPSTime `json:"gps_saati"`
	*TargetRect

	// Raw is the packet as submitted. Snapshot reads resolve aliases against it.
	Raw map[string]any `json:"-"`
}

// IsLocked reports whether the lock flag is set.
func (r Report) IsLocked() bool { return r.Locked == 1 }

// LockEvent records that one team locked onto another.
type LockEvent struct {
	Source     int     `json:"kaynak_takim"`
	Target     int     `json:"kilitlenen_takim"`
	Autonomous int     `json:"otonom_kilitlenme"`
	End        GPSTime `json:"kilitlenmeBitisZamani"`
	*TargetRect

	Raw map[string]any `json:"-"`
}

// KamikazeEvent records a terminal-strike maneuver. Source is optional.
type KamikazeEvent struct {
	Source *int    `json:"kaynak_takim,omitempty"`
	QR     string  `json:"qrMetni"`
	Start  GPSTime `json:"kamikazeBaslangicZamani"`
	End    GPSTime `json:"kamikazeBitisZamani"`

	Raw map[string]any `json:"-"`
}

// Fence is a named permitted-flight polygon stored as GeoJSON.
type Fence struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	GeoJSON   json.RawMessage `json:"geojson"`
	Color     string          `json:"color"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Fence defaults.
const (
	FenceKindPolygon  = "polygon"
	DefaultFenceColor = "#ef4444"
)

// SafeZone is a circular reference area broadcast to teams.
type SafeZone struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Radius    float64   `json:"radius"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompetitionZone is the safe-zone shape returned to submitting teams.
type CompetitionZone struct {
	ID     int64   `json:"id"`
	Lat    float64 `json:"hssEnlem"`
	Lon    float64 `json:"hssBoylam"`
	Radius float64 `json:"hssYaricap"`
}

// Competition converts zones to the wire format teams consume.
func Competition(zones []SafeZone) []CompetitionZone {
	out := make([]CompetitionZone, 0, len(zones))
	for _, z := range zones {
		out = append(out, CompetitionZone{ID: z.ID, Lat: z.Lat, Lon: z.Lon, Radius: z.Radius})
	}
	return out
}

// ServerTime is the UTC clock shape used in every competition response.
type ServerTime struct {
	Day         int `json:"gun"`
	Hour        int `json:"saat"`
	Minute      int `json:"dakika"`
	Second      int `json:"saniye"`
	Millisecond int `json:"milisaniye"`
}

// NewServerTime converts t to UTC competition time.
func NewServerTime(t time.Time) ServerTime {
	t = t.UTC()
	return ServerTime{
		Day:         t.Day(),
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
	}
}

// PeerReport is a normalized peer entry. Unresolved fields hold nil.
type PeerReport map[string]any
