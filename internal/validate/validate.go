// Package validate checks inbound competition packets.
//
// Every failure maps to ErrRejected; callers never learn which check failed.
package validate

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"skyarena/internal/telemetry"
)

// ErrRejected is returned for any malformed or out-of-range packet.
var ErrRejected = errors.New("packet rejected")

type bounds struct {
	field    string
	min, max float64
}

var reportRanges = []bounds{
	{telemetry.FieldLat, -90, 90},
	{telemetry.FieldLon, -180, 180},
	{telemetry.FieldAlt, 0, 10000},
	{telemetry.FieldPitch, -90, 90},
	{telemetry.FieldYaw, 0, 360},
	{telemetry.FieldRoll, -90, 90},
	{telemetry.FieldSpeed, 0, 200},
}

// Telemetry validates a decoded telemetry packet.
func Telemetry(raw map[string]any) (telemetry.Report, error) {
	var r telemetry.Report
	for _, f := range telemetry.RequiredFields {
		if _, ok := raw[f]; !ok {
			return r, ErrRejected
		}
	}
	if truthy(raw[telemetry.FieldLocked]) {
		for _, f := range telemetry.TargetFields {
			if _, ok := raw[f]; !ok {
				return r, ErrRejected
			}
		}
	}

	vals := make(map[string]float64, len(reportRanges))
	for _, b := range reportRanges {
		v, ok := number(raw[b.field])
		if !ok || v < b.min || v > b.max {
			return r, ErrRejected
		}
		vals[b.field] = v
	}
	battery, ok := integer(raw[telemetry.FieldBattery])
	if !ok || battery < 0 || battery > 100 {
		return r, ErrRejected
	}
	autonomous, ok := flag(raw[telemetry.FieldAutonomous])
	if !ok {
		return r, ErrRejected
	}
	locked, ok := flag(raw[telemetry.FieldLocked])
	if !ok {
		return r, ErrRejected
	}
	team, ok := integer(raw[telemetry.FieldTeam])
	if !ok {
		return r, ErrRejected
	}
	gps, ok := gpsTime(raw[telemetry.FieldGPSTime])
	if !ok {
		return r, ErrRejected
	}

	r = telemetry.Report{
		Team:       team,
		Lat:        vals[telemetry.FieldLat],
		Lon:        vals[telemetry.FieldLon],
		Alt:        vals[telemetry.FieldAlt],
		Pitch:      vals[telemetry.FieldPitch],
		Yaw:        vals[telemetry.FieldYaw],
		Roll:       vals[telemetry.FieldRoll],
		Speed:      vals[telemetry.FieldSpeed],
		Battery:    battery,
		Autonomous: autonomous,
		Locked:     locked,
		GPS:        gps,
		Raw:        raw,
	}
	rect, complete := targetRect(raw)
	if locked == 1 && !complete {
		return telemetry.Report{}, ErrRejected
	}
	if complete {
		r.TargetRect = rect
	}
	return r, nil
}

// Lock validates a lock-event packet.
func Lock(raw map[string]any) (telemetry.LockEvent, error) {
	var ev telemetry.LockEvent
	end, ok := gpsTime(raw[telemetry.FieldLockEnd])
	if !ok {
		return ev, ErrRejected
	}
	autonomous, ok := flag(raw[telemetry.FieldLockAutonomous])
	if !ok {
		return ev, ErrRejected
	}
	source, ok := integer(raw[telemetry.FieldSource])
	if !ok {
		return ev, ErrRejected
	}
	target, ok := integer(raw[telemetry.FieldTarget])
	if !ok {
		return ev, ErrRejected
	}
	ev = telemetry.LockEvent{
		Source:     source,
		Target:     target,
		Autonomous: autonomous,
		End:        end,
		Raw:        raw,
	}
	if rect, complete := targetRect(raw); complete {
		ev.TargetRect = rect
	} else if anyPresent(raw, telemetry.TargetFields) && rect == nil {
		return telemetry.LockEvent{}, ErrRejected
	}
	return ev, nil
}

// Kamikaze validates a kamikaze-event packet.
func Kamikaze(raw map[string]any) (telemetry.KamikazeEvent, error) {
	var ev telemetry.KamikazeEvent
	qr, ok := raw[telemetry.FieldQR].(string)
	if !ok {
		return ev, ErrRejected
	}
	start, ok := gpsTime(raw[telemetry.FieldStrikeStart])
	if !ok {
		return ev, ErrRejected
	}
	end, ok := gpsTime(raw[telemetry.FieldStrikeEnd])
	if !ok {
		return ev, ErrRejected
	}
	ev = telemetry.KamikazeEvent{QR: qr, Start: start, End: end, Raw: raw}
	if v, present := raw[telemetry.FieldSource]; present && v != nil {
		source, ok := integer(v)
		if !ok {
			return telemetry.KamikazeEvent{}, ErrRejected
		}
		ev.Source = &source
	}
	return ev, nil
}

// targetRect parses the four rectangle fields. A nil rect with complete=false
// means at least one present field was not numeric.
func targetRect(raw map[string]any) (rect *telemetry.TargetRect, complete bool) {
	var v [4]float64
	seen := 0
	for i, f := range telemetry.TargetFields {
		x, present := raw[f]
		if !present {
			continue
		}
		n, ok := number(x)
		if !ok {
			return nil, false
		}
		v[i] = n
		seen++
	}
	rect = &telemetry.TargetRect{CenterX: v[0], CenterY: v[1], Width: v[2], Height: v[3]}
	return rect, seen == len(telemetry.TargetFields)
}

func anyPresent(raw map[string]any, fields []string) bool {
	for _, f := range fields {
		if _, ok := raw[f]; ok {
			return true
		}
	}
	return false
}

func gpsTime(v any) (telemetry.GPSTime, bool) {
	var g telemetry.GPSTime
	m, ok := v.(map[string]any)
	if !ok {
		return g, false
	}
	limits := [...]int{24, 60, 60, 1000}
	var parts [4]int
	for i, k := range telemetry.GPSFields {
		n, ok := integer(m[k])
		if !ok || n < 0 || n >= limits[i] {
			return g, false
		}
		parts[i] = n
	}
	return telemetry.GPSTime{Hour: parts[0], Minute: parts[1], Second: parts[2], Millisecond: parts[3]}, true
}

func truthy(v any) bool {
	n, ok := number(v)
	return ok && n != 0
}

func flag(v any) (int, bool) {
	n, ok := integer(v)
	if !ok || (n != 0 && n != 1) {
		return 0, false
	}
	return n, true
}

func integer(v any) (int, bool) {
	f, ok := number(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// number accepts JSON numbers, numeric strings and booleans.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
