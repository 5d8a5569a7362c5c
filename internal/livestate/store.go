// Package livestate keeps the freshest accepted report per team.
package livestate

import (
	"sort"
	"sync"
	"time"

	"skyarena/internal/telemetry"
)

const shardCount = 32

// DefaultPruneFactor is the staleness multiple after which entries are dropped.
const DefaultPruneFactor = 10

// State is a team's freshness state.
type State int

const (
	NoData State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "no_data"
	}
}

// Entry is one team's latest report and its receipt time.
type Entry struct {
	Report   telemetry.Report
	Received time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[int]Entry
}

// Store is a sharded team → Entry map.
type Store struct {
	pruneFactor int
	shards      [shardCount]shard
}

// New returns an empty Store. A pruneFactor below 1 uses DefaultPruneFactor.
func New(pruneFactor int) *Store {
	if pruneFactor < 1 {
		pruneFactor = DefaultPruneFactor
	}
	s := &Store{pruneFactor: pruneFactor}
	for i := range s.shards {
		s.shards[i].entries = make(map[int]Entry)
	}
	return s
}

func (s *Store) shardFor(team int) *shard {
	return &s.shards[uint(team)%shardCount]
}

// Update replaces the team's entry unless the held one was received later.
// It reports whether the entry changed.
func (s *Store) Update(team int, r telemetry.Report, now time.Time) bool {
	sh := s.shardFor(team)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.entries[team]; ok && cur.Received.After(now) {
		return false
	}
	sh.entries[team] = Entry{Report: r, Received: now}
	return true
}

// Get returns the team's entry regardless of age.
func (s *Store) Get(team int) (Entry, bool) {
	sh := s.shardFor(team)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[team]
	return e, ok
}

// State reports the team's freshness at now.
func (s *Store) State(team int, staleness time.Duration, now time.Time) State {
	e, ok := s.Get(team)
	if !ok {
		return NoData
	}
	if now.Sub(e.Received) <= staleness {
		return Fresh
	}
	return Stale
}

// Len returns the number of tracked teams.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns every entry no older than staleness, excluding the given
// team, ordered by team. Entries older than pruneFactor × staleness are removed.
func (s *Store) Snapshot(exclude int, staleness time.Duration, now time.Time) []telemetry.PeerReport {
	type fresh struct {
		team int
		e    Entry
	}
	var found []fresh
	cutoff := staleness * time.Duration(s.pruneFactor)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for team, e := range sh.entries {
			age := now.Sub(e.Received)
			if age > cutoff {
				delete(sh.entries, team)
				continue
			}
			if team == exclude || age > staleness {
				continue
			}
			found = append(found, fresh{team, e})
		}
		sh.mu.Unlock()
	}
	sort.Slice(found, func(i, j int) bool { return found[i].team < found[j].team })

	out := make([]telemetry.PeerReport, 0, len(found))
	for _, f := range found {
		out = append(out, Normalize(f.team, f.e.Report.Raw, now.Sub(f.e.Received)))
	}
	return out
}

// Normalize resolves a raw packet through the alias table.
func Normalize(team int, packet map[string]any, age time.Duration) telemetry.PeerReport {
	p := make(telemetry.PeerReport, len(telemetry.PeerAliases)+2)
	p[telemetry.FieldTeam] = team
	for _, a := range telemetry.PeerAliases {
		p[a.Canonical] = a.Resolve(packet)
	}
	p[telemetry.FieldAge] = age.Milliseconds()
	return p
}
