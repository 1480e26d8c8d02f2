// Package pairing owns the pairing code lifecycle and the QR one-shot
// token store.
package pairing

import (
	"sync"
	"time"

	"github.com/overl1te/cyberdeck/internal/config"
)

// Meta is the pairing metadata payload embedded in handshake/status
// responses.
type Meta struct {
	PairingCode       string   `json:"pairing_code"`
	PairingExpiresAt  *float64 `json:"pairing_expires_at"`
	PairingExpiresInS *int     `json:"pairing_expires_in_s"`
	PairingTTLS       int      `json:"pairing_ttl_s"`
	PairingSingleUse  bool     `json:"pairing_single_use"`
}

// Build builds the pairing metadata payload from the current config
// snapshot.
func Build(cfg *config.Config, now time.Time) Meta {
	m := Meta{
		PairingCode:      cfg.PairingCode,
		PairingTTLS:      cfg.PairingTTLS,
		PairingSingleUse: cfg.PairingSingleUse,
	}
	if cfg.PairingExpiresAt != nil {
		unix := float64(cfg.PairingExpiresAt.Unix())
		m.PairingExpiresAt = &unix
		remaining := int(cfg.PairingExpiresAt.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		m.PairingExpiresInS = &remaining
	}
	return m
}

// Expired reports whether the pairing TTL has elapsed.
func Expired(cfg *config.Config, now time.Time) bool {
	return cfg.PairingExpiresAt != nil && now.After(*cfg.PairingExpiresAt)
}

// Rotate generates a new pairing code and refreshes the expiry against the
// configured TTL, storing the result back into the config store.
func Rotate(store *config.Store, now time.Time) string {
	code := config.NewPairingCode()
	cfg := store.Mutate(func(c *config.Config) {
		c.PairingCode = code
		if c.PairingTTLS > 0 {
			exp := now.Add(time.Duration(c.PairingTTLS) * time.Second)
			c.PairingExpiresAt = &exp
		} else {
			c.PairingExpiresAt = nil
		}
	})
	return cfg.PairingCode
}

// qrEntry records the expiry of one issued QR token, a 128-bit one-shot
// token that substitutes for the pairing code when a client scans a QR
// payload.
type qrEntry struct {
	expiresAt time.Time
}

// QRStore issues and consumes one-shot QR tokens.
type QRStore struct {
	mu      sync.Mutex
	tokens  map[string]qrEntry
	ttl     time.Duration
}

// NewQRStore builds a QRStore with the given token TTL.
func NewQRStore(ttl time.Duration) *QRStore {
	return &QRStore{tokens: make(map[string]qrEntry), ttl: ttl}
}

// Issue creates a new QR token and returns it.
func (q *QRStore) Issue(now time.Time) string {
	tok := config.NewToken()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeLocked(now)
	q.tokens[tok] = qrEntry{expiresAt: now.Add(q.ttl)}
	return tok
}

// Consume returns true exactly once for a live, unexpired token, deleting
// it atomically under the store's lock so concurrent consumers of the
// same token never both win.
func (q *QRStore) Consume(token string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeLocked(now)
	entry, ok := q.tokens[token]
	if !ok {
		return false
	}
	delete(q.tokens, token)
	return now.Before(entry.expiresAt)
}

func (q *QRStore) purgeLocked(now time.Time) {
	for tok, e := range q.tokens {
		if !now.Before(e.expiresAt) {
			delete(q.tokens, tok)
		}
	}
}
