// Package ratelimit enforces a minimum interval between admitted reports per team.
package ratelimit

import (
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu   sync.Mutex
	last map[int]time.Time
}

// Limiter admits at most one report per team per period.
type Limiter struct {
	period time.Duration
	shards [shardCount]shard
}

// New returns a Limiter with the given minimum inter-arrival period.
func New(period time.Duration) *Limiter {
	l := &Limiter{period: period}
	for i := range l.shards {
		l.shards[i].last = make(map[int]time.Time)
	}
	return l
}

// Period returns the configured minimum interval.
func (l *Limiter) Period() time.Duration { return l.period }

func (l *Limiter) shardFor(team int) *shard {
	h := uint(team) % shardCount
	return &l.shards[h]
}

// Admit reports whether team may submit at now. On admission now is recorded
// as the team's last admitted time.
func (l *Limiter) Admit(team int, now time.Time) bool {
	s := l.shardFor(team)
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last[team]; ok && now.Sub(last) < l.period {
		return false
	}
	s.last[team] = now
	return true
}

// Prune forgets teams whose last admission is at least one period old.
// A forgotten team is admitted on its next attempt, exactly as it would be
// had it been kept.
func (l *Limiter) Prune(now time.Time) int {
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for team, last := range s.last {
			if now.Sub(last) >= l.period {
				delete(s.last, team)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of teams currently tracked.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.last)
		s.mu.Unlock()
	}
	return n
}
