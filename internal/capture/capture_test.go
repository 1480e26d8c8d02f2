package capture

import (
	"strings"
	"testing"
	"time"
)

func TestCachedProbeMemoizes(t *testing.T) {
	calls := 0
	p := newCachedProbe(50*time.Millisecond, func() bool {
		calls++
		return true
	})
	p.Get()
	p.Get()
	if calls != 1 {
		t.Fatalf("expected probe fn called once before ttl, got %d", calls)
	}
	time.Sleep(60 * time.Millisecond)
	p.Get()
	if calls != 2 {
		t.Fatalf("expected probe fn re-run after ttl, got %d", calls)
	}
}

func TestFFmpegArgsIncludesScaleWhenWidthSet(t *testing.T) {
	b := NewFFmpegBackend(":1", 1280, 15)
	args := b.Args()
	found := false
	for _, a := range args {
		if strings.Contains(a, "scale=1280") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected scale filter in args, got %v", args)
	}
}

func TestFFmpegArgsOmitsScaleWhenWidthZero(t *testing.T) {
	b := NewFFmpegBackend(":1", 0, 15)
	args := b.Args()
	for _, a := range args {
		if strings.Contains(a, "scale=") {
			t.Fatalf("did not expect scale filter, got %v", args)
		}
	}
}

func TestGstreamerArgsIncludesFramerate(t *testing.T) {
	b := NewGstreamerBackend(960, 12)
	args := b.Args()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "framerate=12/1") {
		t.Fatalf("expected framerate in pipeline, got %q", joined)
	}
}

func TestAliasesCoverKnownHints(t *testing.T) {
	for alias, want := range map[string]string{
		"mss":  BackendNative,
		"gst":  BackendGstreamer,
		"grim": BackendScreenshot,
	} {
		if got := Aliases[alias]; got != want {
			t.Fatalf("alias %q: got %q, want %q", alias, got, want)
		}
	}
}
