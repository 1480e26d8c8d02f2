// Package pinlimit implements the pairing-PIN brute-force limiter: a
// per-IP sliding-window failure counter with block escalation.
package pinlimit

import (
	"math"
	"sort"
	"sync"
	"time"
)

type state struct {
	windowStart time.Time
	fails       int
	blockedUntil time.Time
	lastTouch   time.Time
}

// Limiter is a thread-safe per-IP PIN attempt limiter.
type Limiter struct {
	mu   sync.Mutex
	byIP map[string]*state

	windowS  int
	maxFails int
	blockS   int
	staleS   int
	maxIPs   int
}

// Config bundles the limiter's tunables, mirroring C2's §4.1 knobs.
type Config struct {
	WindowS  int
	MaxFails int
	BlockS   int
	StaleS   int
	MaxIPs   int
}

// New builds a Limiter from cfg, raising any field below its floor to
// that floor (10 for StaleS, 1 for the others).
func New(cfg Config) *Limiter {
	l := &Limiter{
		byIP:     make(map[string]*state),
		windowS:  atLeast(cfg.WindowS, 1),
		maxFails: atLeast(cfg.MaxFails, 1),
		blockS:   atLeast(cfg.BlockS, 1),
		staleS:   atLeast(cfg.StaleS, 10),
		maxIPs:   atLeast(cfg.MaxIPs, 1),
	}
	return l
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

// Check reports whether a request from ip is currently allowed, and if
// not, how many seconds the caller should wait before retrying.
func (l *Limiter) Check(ip string, now time.Time) (allowed bool, retryAfterS int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup(now, false)
	st := l.stateFor(ip, now)

	if !st.blockedUntil.IsZero() && now.Before(st.blockedUntil) {
		return false, int(math.Max(1, math.Ceil(st.blockedUntil.Sub(now).Seconds())))
	}
	if now.Sub(st.windowStart) > time.Duration(l.windowS)*time.Second {
		st.windowStart = now
		st.fails = 0
		st.blockedUntil = time.Time{}
		st.lastTouch = now
	}
	if st.fails >= l.maxFails {
		st.blockedUntil = now.Add(time.Duration(l.blockS) * time.Second)
		st.lastTouch = now
		return false, l.blockS
	}
	return true, 0
}

// RecordFailure registers a failed PIN attempt from ip.
func (l *Limiter) RecordFailure(ip string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup(now, false)
	st := l.stateFor(ip, now)
	if now.Sub(st.windowStart) > time.Duration(l.windowS)*time.Second {
		st.windowStart = now
		st.fails = 0
		st.blockedUntil = time.Time{}
	}
	st.fails++
	if st.fails >= l.maxFails {
		st.blockedUntil = now.Add(time.Duration(l.blockS) * time.Second)
	}
	st.lastTouch = now
	l.cleanup(now, true)
}

// RecordSuccess clears the counter for ip entirely.
func (l *Limiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byIP, ip)
}

// Reset clears all per-IP state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byIP = make(map[string]*state)
}

func (l *Limiter) stateFor(ip string, now time.Time) *state {
	st, ok := l.byIP[ip]
	if !ok {
		st = &state{windowStart: now, lastTouch: now}
		l.byIP[ip] = st
	} else {
		st.lastTouch = now
	}
	return st
}

// cleanup evicts stale, unblocked entries and enforces the IP cap via
// LRU-by-last_touch compaction. Must be called with l.mu held.
func (l *Limiter) cleanup(now time.Time, forceCompact bool) {
	staleCutoff := time.Duration(l.staleS) * time.Second
	for ip, st := range l.byIP {
		touch := st.lastTouch
		if touch.IsZero() {
			touch = st.windowStart
		}
		if now.Sub(touch) > staleCutoff && !now.Before(st.blockedUntil) {
			delete(l.byIP, ip)
		}
	}
	if len(l.byIP) <= l.maxIPs && !forceCompact {
		return
	}
	if len(l.byIP) <= l.maxIPs {
		return
	}
	ips := make([]string, 0, len(l.byIP))
	for ip := range l.byIP {
		ips = append(ips, ip)
	}
	sort.Slice(ips, func(i, j int) bool {
		a, b := l.byIP[ips[i]], l.byIP[ips[j]]
		return a.lastTouch.Before(b.lastTouch)
	})
	evict := len(ips) - l.maxIPs
	for i := 0; i < evict; i++ {
		delete(l.byIP, ips[i])
	}
}
