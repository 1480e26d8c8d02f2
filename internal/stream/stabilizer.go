// Package stream implements the adaptive video streaming pipeline: the
// width stabilizer (C8), the backend negotiator, and the MJPEG streamer
// (C9) that serves multipart/x-mixed-replace responses.
package stream

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ParseWidthLadder normalizes a comma-separated width list into a
// deduplicated, descending-order ladder, falling back to def when raw is
// empty or yields nothing usable.
func ParseWidthLadder(raw string, def []int) []int {
	var out []int
	seen := map[int]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil || v <= 0 || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		out = append(out, def...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

type widthState struct {
	width int
	at    time.Time
}

// WidthStabilizer snaps a raw measured width to the nearest ladder step
// and suppresses oscillation with hysteresis and a cooldown window,
// allowing only major jumps to bypass the cooldown.
type WidthStabilizer struct {
	ladder           []int
	minSwitch        time.Duration
	hysteresisRatio  float64
	minFloor         int
	enabled          bool

	mu    sync.Mutex
	state map[string]widthState
}

// NewWidthStabilizer builds a stabilizer over ladder, snapping micro
// jitter within hysteresisRatio and honoring a minSwitch cooldown between
// non-major width changes per token.
func NewWidthStabilizer(ladder []int, minSwitch time.Duration, hysteresisRatio float64, minFloor int, enabled bool) *WidthStabilizer {
	sorted := append([]int(nil), ladder...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	if len(sorted) == 0 {
		sorted = []int{1280, 960, 768, 640}
	}
	if hysteresisRatio < 0 {
		hysteresisRatio = 0
	}
	if hysteresisRatio > 0.9 {
		hysteresisRatio = 0.9
	}
	if minFloor < 0 {
		minFloor = 0
	}
	return &WidthStabilizer{
		ladder:          sorted,
		minSwitch:       minSwitch,
		hysteresisRatio: hysteresisRatio,
		minFloor:        minFloor,
		enabled:         enabled,
		state:           make(map[string]widthState),
	}
}

// snap rounds requested down to the nearest ladder step at or below it,
// falling back to the smallest step, then applies the floor.
func (s *WidthStabilizer) snap(requested int) int {
	if requested < 1 {
		requested = 1
	}
	chosen := s.ladder[len(s.ladder)-1]
	for _, v := range s.ladder {
		if requested >= v {
			chosen = v
			break
		}
	}
	if s.minFloor > 0 && chosen < s.minFloor {
		chosen = s.minFloor
	}
	return chosen
}

// Decide returns the next width to use for the stream identified by
// token, given a freshly requested/measured width.
func (s *WidthStabilizer) Decide(token string, requested int, now time.Time) int {
	snapped := s.snap(requested)
	if !s.enabled || token == "" {
		return snapped
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.state[token]
	if !ok {
		s.state[token] = widthState{width: snapped, at: now}
		return snapped
	}
	if snapped == prev.width {
		s.state[token] = widthState{width: prev.width, at: now}
		return prev.width
	}

	hysteresisPx := int(float64(prev.width)*s.hysteresisRatio + 0.5)
	if hysteresisPx < 1 {
		hysteresisPx = 1
	}
	if abs(snapped-prev.width) <= hysteresisPx {
		return prev.width
	}

	dt := now.Sub(prev.at)
	if dt < s.minSwitch {
		majorDrop := float64(snapped) < float64(prev.width)*(1.0-s.hysteresisRatio*1.8)
		majorRise := float64(snapped) > float64(prev.width)*(1.0+s.hysteresisRatio*1.8)
		if !majorDrop && !majorRise {
			return prev.width
		}
	}

	s.state[token] = widthState{width: snapped, at: now}
	return snapped
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
