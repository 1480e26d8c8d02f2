package config

import "testing"

func TestNormalizeExtensionsPrefixesDotAndLowercases(t *testing.T) {
	got := normalizeExtensions("TXT, .png,, jpg")
	want := map[string]bool{".txt": true, ".png": true, ".jpg": true}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("missing extension %q in %v", k, got)
		}
	}
}

func TestParseWidthLadderDedupsAndSortsDescending(t *testing.T) {
	got := parseWidthLadder("640,1280,640,960")
	want := []int{1280, 960, 640}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestParseWidthLadderFallsBackToDefaultWhenEmpty(t *testing.T) {
	got := parseWidthLadder("")
	if len(got) == 0 {
		t.Fatalf("expected a default width ladder, got empty")
	}
}

func TestNewStoreLoadsDefaults(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := store.Get()
	if cfg.PairingCode == "" {
		t.Fatalf("expected a non-empty default pairing code")
	}
	if len(cfg.WidthLadder) == 0 {
		t.Fatalf("expected Normalize to populate WidthLadder")
	}
}

func TestStoreMutateSwapsInNewConfig(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	updated := store.Mutate(func(c *Config) {
		c.PairingCode = "999999"
	})
	if updated.PairingCode != "999999" {
		t.Fatalf("expected mutated config returned, got %q", updated.PairingCode)
	}
	if store.Get().PairingCode != "999999" {
		t.Fatalf("expected mutation to be visible via Get, got %q", store.Get().PairingCode)
	}
}
