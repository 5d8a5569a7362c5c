package telemetry

// Canonical report keys.
const (
	FieldTeam       = "takim_numarasi"
	FieldLat        = "iha_enlem"
	FieldLon        = "iha_boylam"
	FieldAlt        = "iha_irtifa"
	FieldPitch      = "iha_dikilme"
	FieldYaw        = "iha_yonelme"
	FieldRoll       = "iha_yatis"
	FieldSpeed      = "iha_hiz"
	FieldBattery    = "iha_batarya"
	FieldAutonomous = "iha_otonom"
	FieldLocked     = "iha_kilitlenme"
	FieldGPSTime    = "gps_saati"

	FieldTargetX = "hedef_merkez_X"
	FieldTargetY = "hedef_merkez_Y"
	FieldTargetW = "hedef_genislik"
	FieldTargetH = "hedef_yukseklik"

	FieldAge = "zaman_farki"
)

// GPS time sub-keys.
const (
	GPSHour        = "saat"
	GPSMinute      = "dakika"
	GPSSecond      = "saniye"
	GPSMillisecond = "milisaniye"
)

// Discrete event keys.
const (
	FieldSource         = "kaynak_takim"
	FieldTarget         = "kilitlenen_takim"
	FieldLockAutonomous = "otonom_kilitlenme"
	FieldLockEnd        = "kilitlenmeBitisZamani"
	FieldQR             = "qrMetni"
	FieldStrikeStart    = "kamikazeBaslangicZamani"
	FieldStrikeEnd      = "kamikazeBitisZamani"
)

// RequiredFields lists every key a telemetry packet must carry.
var RequiredFields = []string{
	FieldTeam, FieldLat, FieldLon, FieldAlt,
	FieldPitch, FieldYaw, FieldRoll, FieldSpeed,
	FieldBattery, FieldAutonomous, FieldLocked, FieldGPSTime,
}

// TargetFields are required while the lock flag is set.
var TargetFields = []string{FieldTargetX, FieldTargetY, FieldTargetW, FieldTargetH}

// GPSFields are the four sub-keys of every GPS time object.
var GPSFields = []string{GPSHour, GPSMinute, GPSSecond, GPSMillisecond}

// Alias maps one canonical peer field to its accepted synonyms.
type Alias struct {
	Canonical string
	Synonyms  []string
}

// PeerAliases is the alias table applied to snapshot reads, in output order.
var PeerAliases = []Alias{
	{FieldLat, []string{"enlem", "lat", "latitude"}},
	{FieldLon, []string{"boylam", "lon", "longitude"}},
	{FieldAlt, []string{"irtifa", "alt", "altitude"}},
	{FieldPitch, []string{"dikilme", "pitch"}},
	{FieldYaw, []string{"yonelme", "yaw", "heading"}},
	{FieldRoll, []string{"yatis", "roll"}},
	{FieldSpeed, []string{"iha_hizi", "hiz", "speed"}},
	{FieldBattery, []string{"batarya"}},
	{FieldAutonomous, []string{"otonom"}},
	{FieldLocked, []string{"kilitlenme"}},
	{FieldTargetX, []string{"target_center_x", "hx"}},
	{FieldTargetY, []string{"target_center_y", "hy"}},
	{FieldTargetW, []string{"target_w", "hw"}},
	{FieldTargetH, []string{"target_h", "hh"}},
	{FieldGPSTime, []string{"gps_time", "time"}},
}

// Resolve returns the first value found under the canonical key or one of
// its synonyms, or nil.
func (a Alias) Resolve(packet map[string]any) any {
	if v, ok := packet[a.Canonical]; ok {
		return v
	}
	for _, s := range a.Synonyms {
		if v, ok := packet[s]; ok {
			return v
		}
	}
	return nil
}

// Broadcast message kinds.
const (
	KindTelemetryUpdate   = "telemetry_update"
	KindLockEvent         = "lock_event"
	KindKamikazeEvent     = "kamikaze_event"
	KindGeofenceViolation = "geofence_violation"
	KindFencesUpdate      = "fences_update"
	KindSafeZonesUpdate   = "hss_update"
)
