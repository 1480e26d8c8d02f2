package main

import (
	"testing"

	"github.com/overl1te/cyberdeck/internal/config"
)

func TestAddrFromConfigUsesConfiguredPort(t *testing.T) {
	cfg := &config.Config{Port: 9001}
	if got := addrFromConfig(cfg); got != ":9001" {
		t.Fatalf("got %q want :9001", got)
	}
}

func TestAddrFromConfigFallsBackWhenPortUnset(t *testing.T) {
	cfg := &config.Config{Port: 0}
	if got := addrFromConfig(cfg); got != ":8765" {
		t.Fatalf("got %q want :8765", got)
	}
}

func TestIsWaylandSessionReflectsEnv(t *testing.T) {
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("XDG_SESSION_TYPE", "x11")
	if isWaylandSession() {
		t.Fatalf("expected false for x11 session")
	}

	t.Setenv("XDG_SESSION_TYPE", "wayland")
	if !isWaylandSession() {
		t.Fatalf("expected true for wayland session type")
	}
}
