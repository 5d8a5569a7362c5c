// Package registry keeps the fence and safe-zone registries in memory and
// announces changes to observers.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skyarena/internal/store"
	"skyarena/internal/telemetry"
)

const DefaultInterval = 2 * time.Second

// FenceIndex receives the fence set whenever it changes.
type FenceIndex interface {
	Replace(fences []telemetry.Fence) []error
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(kind string, data any)
}

// Items is the payload of fences_update and hss_update messages.
type Items[T any] struct {
	Items []T `json:"items"`
}

// Poller reloads the registries when their fingerprint changes.
type Poller struct {
	src      store.Registry
	index    FenceIndex
	pub      Publisher
	interval time.Duration
	log      *slog.Logger

	mu          sync.RWMutex
	fences      []telemetry.Fence
	zones       []telemetry.SafeZone
	active      []telemetry.SafeZone
	fencePrint  string
	zonePrint   string
	initialized bool
}

// NewPoller creates a Poller. index and pub may be nil.
func NewPoller(src store.Registry, index FenceIndex, pub Publisher, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{src: src, index: index, pub: pub, interval: interval, log: log}
}

// Refresh checks the fingerprint and reloads whatever changed. The first
// call loads both registries without publishing.
func (p *Poller) Refresh(ctx context.Context) error {
	fp, zp, err := p.src.Fingerprint(ctx)
	if err != nil {
		return err
	}
	p.mu.RLock()
	first := !p.initialized
	fencesChanged := first || fp != p.fencePrint
	zonesChanged := first || zp != p.zonePrint
	p.mu.RUnlock()

	if fencesChanged {
		fences, err := p.src.ListFences(ctx)
		if err != nil {
			return err
		}
		if p.index != nil {
			p.index.Replace(fences)
		}
		p.mu.Lock()
		p.fences, p.fencePrint = fences, fp
		p.mu.Unlock()
		p.log.Info("fences loaded", "count", len(fences))
		if !first && p.pub != nil {
			p.pub.Publish(telemetry.KindFencesUpdate, Items[telemetry.Fence]{fences})
		}
	}
	if zonesChanged {
		zones, err := p.src.ListSafeZones(ctx, false)
		if err != nil {
			return err
		}
		active := make([]telemetry.SafeZone, 0, len(zones))
		for _, z := range zones {
			if z.Active {
				active = append(active, z)
			}
		}
		p.mu.Lock()
		p.zones, p.active, p.zonePrint = zones, active, zp
		p.mu.Unlock()
		p.log.Info("safe zones loaded", "count", len(zones), "active", len(active))
		if !first && p.pub != nil {
			p.pub.Publish(telemetry.KindSafeZonesUpdate, Items[telemetry.SafeZone]{zones})
		}
	}
	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	return nil
}

// Run refreshes on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.log.Error("registry refresh failed", "err", err)
			}
		}
	}
}

// Fences returns the cached fence list.
func (p *Poller) Fences() []telemetry.Fence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fences
}

// SafeZones returns every cached safe zone.
func (p *Poller) SafeZones() []telemetry.SafeZone {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.zones
}

// ActiveSafeZones returns the cached active safe zones.
func (p *Poller) ActiveSafeZones() []telemetry.SafeZone {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}
