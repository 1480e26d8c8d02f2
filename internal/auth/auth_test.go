package auth

import (
	"net/http"
	"net/url"
	"testing"
)

func TestResolveTokenPrefersHeaderOverQuery(t *testing.T) {
	r := &http.Request{Header: http.Header{"Authorization": []string{"Bearer abc"}}, URL: &url.URL{RawQuery: "token=xyz"}}
	if got := ResolveToken(r, true); got != "abc" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestResolveTokenFallsBackToQueryOnlyWhenAllowed(t *testing.T) {
	r := &http.Request{Header: http.Header{}, URL: &url.URL{RawQuery: "token=xyz"}}
	if got := ResolveToken(r, false); got != "" {
		t.Fatalf("expected empty token when query disallowed, got %q", got)
	}
	if got := ResolveToken(r, true); got != "xyz" {
		t.Fatalf("expected query token, got %q", got)
	}
}

func TestCoerceBoolHandlesStrings(t *testing.T) {
	if !CoerceBool("true", false) {
		t.Fatalf("expected true")
	}
	if CoerceBool("off", true) {
		t.Fatalf("expected false")
	}
	if !CoerceBool(nil, true) {
		t.Fatalf("expected default true for nil")
	}
}

func TestResolvePermsAppliesOverrides(t *testing.T) {
	perms := Resolve(map[string]any{"perm_power": true, "perm_upload": "false"})
	if !perms.Allows("perm_power") {
		t.Fatalf("expected perm_power granted")
	}
	if perms.Allows("perm_upload") {
		t.Fatalf("expected perm_upload denied")
	}
	if !perms.Allows("perm_mouse") {
		t.Fatalf("expected default perm_mouse granted")
	}
}
