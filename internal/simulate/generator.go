// Package simulate drives synthetic teams against a running server.
package simulate

import (
	"math"
	"math/rand"
	"time"

	"skyarena/internal/telemetry"
)

// Position is a point in WGS84 degrees with altitude in meters.
type Position struct {
	Lat float64
	Lon float64
	Alt float64
}

// Drone is the simulated state of one team's aircraft.
type Drone struct {
	Team     int
	Model    string
	Position Position
	Heading  float64 // degrees
	Speed    float64 // m/s
	Battery  float64 // percent
}

// Generator advances drones and renders their competition packets.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator seeds a generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

// NewDrone places a drone for team within radius meters of center.
func (g *Generator) NewDrone(team int, model string, center Position, radius float64) *Drone {
	bearing := g.rng.Float64() * 2 * math.Pi
	dist := g.rng.Float64() * radius
	return &Drone{
		Team:  team,
		Model: model,
		Position: Position{
			Lat: center.Lat + dist*math.Cos(bearing)/111000,
			Lon: center.Lon + dist*math.Sin(bearing)/(111000*math.Cos(center.Lat*math.Pi/180)),
			Alt: center.Alt + g.rng.Float64()*50,
		},
		Battery: 100,
	}
}

// Step moves the drone for one tick of dt and drains its battery.
func (g *Generator) Step(d *Drone, dt time.Duration) {
	d.Position, d.Heading, d.Speed = g.randomWalk(d.Position, d.Model, dt)
	d.Battery -= batteryDrain(d.Model) * dt.Seconds()
	if d.Battery < 0 {
		d.Battery = 0
	}
}

// randomWalk moves pos in a random direction at a model-dependent speed.
func (g *Generator) randomWalk(pos Position, model string, dt time.Duration) (Position, float64, float64) {
	var speedMin, speedMax float64
	switch model {
	case "small-fpv":
		speedMin, speedMax = 15, 30
	case "medium-uav":
		speedMin, speedMax = 25, 50
	case "large-uav":
		speedMin, speedMax = 20, 40
	default:
		speedMin, speedMax = 15, 25
	}

	heading := g.rng.Float64() * 2 * math.Pi
	speed := g.rng.Float64()*(speedMax-speedMin) + speedMin
	dist := speed * dt.Seconds()

	deltaLat := (dist * math.Cos(heading)) / 111000
	deltaLon := (dist * math.Sin(heading)) / (111000 * math.Cos(pos.Lat*math.Pi/180))
	altDelta := g.rng.Float64()*2 - 1

	return Position{
		Lat: pos.Lat + deltaLat,
		Lon: pos.Lon + deltaLon,
		Alt: math.Max(0, pos.Alt+altDelta),
	}, heading * 180 / math.Pi, speed
}

// batteryDrain returns battery consumption per second based on model.
func batteryDrain(model string) float64 {
	switch model {
	case "small-fpv":
		return 0.5
	case "medium-uav":
		return 0.3
	case "large-uav":
		return 0.2
	default:
		return 0.4
	}
}

func gpsTime(t time.Time) map[string]any {
	t = t.UTC()
	return map[string]any{
		telemetry.GPSHour:        t.Hour(),
		telemetry.GPSMinute:      t.Minute(),
		telemetry.GPSSecond:      t.Second(),
		telemetry.GPSMillisecond: t.Nanosecond() / int(time.Millisecond),
	}
}

// Packet renders the drone as a telemetry packet. When target is non-zero
// the packet carries a lock on that team with a target rectangle.
func (g *Generator) Packet(d *Drone, target int) map[string]any {
	p := map[string]any{
		telemetry.FieldTeam:       d.Team,
		telemetry.FieldLat:        d.Position.Lat,
		telemetry.FieldLon:        d.Position.Lon,
		telemetry.FieldAlt:        math.Min(d.Position.Alt, 10000),
		telemetry.FieldPitch:      g.rng.Float64()*20 - 10,
		telemetry.FieldYaw:        math.Mod(d.Heading, 360),
		telemetry.FieldRoll:       g.rng.Float64()*30 - 15,
		telemetry.FieldSpeed:      math.Min(d.Speed, 200),
		telemetry.FieldBattery:    int(math.Round(d.Battery)),
		telemetry.FieldAutonomous: 1,
		telemetry.FieldLocked:     0,
		telemetry.FieldGPSTime:    gpsTime(g.now()),
	}
	if target != 0 {
		p[telemetry.FieldLocked] = 1
		for k, v := range g.rect() {
			p[k] = v
		}
	}
	return p
}

func (g *Generator) rect() map[string]any {
	return map[string]any{
		telemetry.FieldTargetX: 200 + g.rng.Intn(240),
		telemetry.FieldTargetY: 150 + g.rng.Intn(180),
		telemetry.FieldTargetW: 10 + g.rng.Intn(40),
		telemetry.FieldTargetH: 10 + g.rng.Intn(40),
	}
}

// Lock renders a lock event from d onto target.
func (g *Generator) Lock(d *Drone, target int) map[string]any {
	p := map[string]any{
		telemetry.FieldSource:         d.Team,
		telemetry.FieldTarget:         target,
		telemetry.FieldLockAutonomous: 1,
		telemetry.FieldLockEnd:        gpsTime(g.now()),
	}
	for k, v := range g.rect() {
		p[k] = v
	}
	return p
}
