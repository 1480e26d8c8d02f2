// Package auth resolves bearer tokens from incoming requests and checks
// per-session permission grants.
package auth

import (
	"net/http"
	"strings"
)

// DefaultPerms mirrors the permission set every newly-authorized session
// starts with (§3).
var DefaultPerms = map[string]bool{
	"perm_mouse":      true,
	"perm_keyboard":   true,
	"perm_upload":     true,
	"perm_file_send":  true,
	"perm_stream":     true,
	"perm_power":      false,
}

// Truthy/falsy string sets used to coerce a settings value that may have
// arrived as a JSON bool, a string, or a number.
var truthyStrings = map[string]bool{"1": true, "true": true, "yes": true, "on": true}
var falsyStrings = map[string]bool{"0": true, "false": true, "no": true, "off": true, "": true}

// CoerceBool converts a loosely-typed settings value into a bool,
// defaulting to def when the value is nil or unrecognized.
func CoerceBool(v any, def bool) bool {
	switch x := v.(type) {
	case nil:
		return def
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if truthyStrings[s] {
			return true
		}
		if falsyStrings[s] {
			return false
		}
		return def
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return def
	}
}

// ResolveToken extracts the bearer token from r, checking the
// Authorization header first, and falling back to the ?token= query
// parameter only when allowQueryToken is true. This is the opposite
// priority of naive query-first resolution, deliberately: header
// credentials are never weaker than a URL that can end up in logs or
// browser history.
func ResolveToken(r *http.Request, allowQueryToken bool) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(strings.TrimPrefix(h, "Bearer "), "bearer ")
	}
	if allowQueryToken {
		return r.URL.Query().Get("token")
	}
	return ""
}

// PermissionSet is a session's effective permission grants, seeded from
// DefaultPerms and overridden by its settings map.
type PermissionSet map[string]bool

// Resolve builds a PermissionSet from a session's settings, applying
// DefaultPerms as the baseline.
func Resolve(settings map[string]any) PermissionSet {
	perms := make(PermissionSet, len(DefaultPerms))
	for k, v := range DefaultPerms {
		perms[k] = v
	}
	for k := range DefaultPerms {
		if v, ok := settings[k]; ok {
			perms[k] = CoerceBool(v, perms[k])
		}
	}
	return perms
}

// Allows reports whether perm is granted; unknown permission keys are
// always denied.
func (p PermissionSet) Allows(perm string) bool {
	return p[perm]
}
