// Package ratelimit tracks per-sender activity over a sliding window and
// escalates from a warning to silent drops to a temporary ban.
package ratelimit

import (
	"sync"
	"time"
)

type Tier int

const (
	Allowed Tier = iota
	// Slowdown: over the limit, the sender gets a "slow down" notice.
	Slowdown
	// Cooldown: over twice the limit, messages are dropped silently.
	Cooldown
	// Banned: over three times the limit, or still serving a ban.
	Banned
)

func (t Tier) String() string {
	switch t {
	case Allowed:
		return "allowed"
	case Slowdown:
		return "slowdown"
	case Cooldown:
		return "cooldown"
	case Banned:
		return "banned"
	default:
		return "unknown"
	}
}

// Verdict is the result of one Check.
type Verdict struct {
	Tier  Tier
	Count int
	// Remaining is the time left on a ban. Zero for other tiers.
	Remaining time.Duration
}

func (v Verdict) Limited() bool { return v.Tier != Allowed }

type Config struct {
	MaxPerWindow int
	Window       time.Duration
	BanDuration  time.Duration
}

const (
	DefaultMaxPerWindow = 5
	DefaultWindow       = 60 * time.Second
	DefaultBanDuration  = 300 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = DefaultMaxPerWindow
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.BanDuration <= 0 {
		c.BanDuration = DefaultBanDuration
	}
	return c
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter is safe for concurrent use. One mutex guards both maps, so a
// check for one sender serializes with checks for every other sender; the
// critical section is a slice prune and is never held across I/O.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	window map[string][]time.Time
	bans   map[string]time.Time
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		window: map[string][]time.Time{},
		bans:   map[string]time.Time{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Apply swaps thresholds. Existing windows are kept.
func (l *Limiter) Apply(cfg Config) {
	l.mu.Lock()
	l.cfg = cfg.withDefaults()
	l.mu.Unlock()
}

func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Check records one message from sender and classifies it.
func (l *Limiter) Check(sender string) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.bans[sender]; ok {
		if now.Before(until) {
			return Verdict{Tier: Banned, Remaining: until.Sub(now)}
		}
		// Ban served: start over with an empty window.
		delete(l.bans, sender)
		delete(l.window, sender)
	}

	recent := append(prune(l.window[sender], now, l.cfg.Window), now)
	l.window[sender] = recent
	n := len(recent)
	limit := l.cfg.MaxPerWindow

	switch {
	case n > 3*limit:
		l.bans[sender] = now.Add(l.cfg.BanDuration)
		return Verdict{Tier: Banned, Count: n, Remaining: l.cfg.BanDuration}
	case n > 2*limit:
		return Verdict{Tier: Cooldown, Count: n}
	case n > limit:
		return Verdict{Tier: Slowdown, Count: n}
	default:
		return Verdict{Tier: Allowed, Count: n}
	}
}

// Status reports the sender's current standing without recording a message.
func (l *Limiter) Status(sender string) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.bans[sender]; ok && now.Before(until) {
		return Verdict{Tier: Banned, Remaining: until.Sub(now)}
	}
	n := len(prune(l.window[sender], now, l.cfg.Window))
	limit := l.cfg.MaxPerWindow
	v := Verdict{Count: n}
	switch {
	case n > 2*limit:
		v.Tier = Cooldown
	case n > limit:
		v.Tier = Slowdown
	}
	return v
}

// Sweep forgets senders with no recent activity and no active ban.
// It returns how many senders were dropped.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for sender, until := range l.bans {
		if !now.Before(until) {
			delete(l.bans, sender)
		}
	}
	for sender, ts := range l.window {
		if _, banned := l.bans[sender]; banned {
			continue
		}
		ts = prune(ts, now, l.cfg.Window)
		if len(ts) == 0 {
			delete(l.window, sender)
			removed++
			continue
		}
		l.window[sender] = ts
	}
	return removed
}

// Len reports how many senders are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.window)
}

// prune drops timestamps older than window. The slice is ordered, so it
// reslices instead of copying.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
