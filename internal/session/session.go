// Package session is the Session Store (C3): the authoritative map of
// tokens to sessions, with persistence, TTL/idle/max-sessions eviction,
// and an approval queue for devices awaiting operator sign-off.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/overl1te/cyberdeck/internal/config"
)

// Socket is the capability a bound input/event connection exposes to the
// session store so it can be torn down, or pushed a server-initiated
// message (a file-transfer offer, a lock notice), without the store
// reaching back into transport internals.
type Socket interface {
	Close(code int, reason string)
	SendJSON(v any) error
}

// Settings is the free-form per-session settings bag: permissions,
// transfer profile, display metadata.
type Settings map[string]any

// DefaultPerms mirrors §3's default permission table.
var DefaultPerms = map[string]bool{
	"perm_mouse":     true,
	"perm_keyboard":  true,
	"perm_upload":    true,
	"perm_file_send": true,
	"perm_stream":    true,
	"perm_power":     false,
}

// Session is the central long-lived per-device entity.
type Session struct {
	mu sync.Mutex

	Token      string
	DeviceID   string
	DeviceName string
	IP         string

	CreatedTs  time.Time
	LastSeenTs time.Time
	ExpiresAt  *time.Time

	Approved bool
	Settings Settings

	socket Socket
}

// Touch refreshes LastSeenTs; called on every valid frame from the bound
// input socket.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastSeenTs = now
}

func (s *Session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.Settings = cloneSettings(s.Settings)
	return cp
}

func cloneSettings(in Settings) Settings {
	out := make(Settings, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// persistedSession is the on-disk shape of one session record.
type persistedSession struct {
	Token      string   `json:"token"`
	DeviceID   string   `json:"device_id"`
	DeviceName string   `json:"device_name"`
	IP         string   `json:"ip"`
	CreatedTs  int64    `json:"created_ts"`
	LastSeenTs int64    `json:"last_seen_ts"`
	Settings   Settings `json:"settings"`
}

type persistedFile struct {
	Tokens  map[string]persistedSession `json:"tokens"`
	Version int                         `json:"version"`
}

// Store is the Session Store. All mutation goes through its methods,
// which hold an internal lock; persistence I/O happens outside the lock
// after preparing a snapshot.
type Store struct {
	mu       sync.Mutex
	approved map[string]*Session
	pending  map[string]*Session
	byDevice map[string]string // device_id -> token, across both sets

	cfg  *config.Store
	path string
}

// New builds an empty Store. Call Load to restore persisted sessions.
func New(cfg *config.Store) *Store {
	return &Store{
		approved: make(map[string]*Session),
		pending:  make(map[string]*Session),
		byDevice: make(map[string]string),
		cfg:      cfg,
		path:     cfg.Get().SessionFile,
	}
}

// Load restores approved sessions from SESSION_FILE, discarding anything
// already past SESSION_TTL_S or SESSION_IDLE_TTL_S.
func (st *Store) Load() error {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse session file: %w", err)
	}

	cfg := st.cfg.Get()
	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, rec := range pf.Tokens {
		created := time.Unix(rec.CreatedTs, 0)
		lastSeen := time.Unix(rec.LastSeenTs, 0)
		if cfg.SessionTTLS > 0 && now.Sub(created) > time.Duration(cfg.SessionTTLS)*time.Second {
			continue
		}
		if cfg.SessionIdleTTLS > 0 && now.Sub(lastSeen) > time.Duration(cfg.SessionIdleTTLS)*time.Second {
			continue
		}
		sess := &Session{
			Token:      rec.Token,
			DeviceID:   rec.DeviceID,
			DeviceName: rec.DeviceName,
			IP:         rec.IP,
			CreatedTs:  created,
			LastSeenTs: lastSeen,
			Approved:   true,
			Settings:   rec.Settings,
		}
		if sess.Settings == nil {
			sess.Settings = Settings{}
		}
		st.approved[sess.Token] = sess
		st.byDevice[sess.DeviceID] = sess.Token
	}
	return nil
}

// Authorize generates a new token, upserting a session for device_id. If
// device_id already has a session (approved or pending), its identity is
// reused and a fresh token is issued in its place (session-coalescing,
// per SPEC_FULL.md §9 decision 1); the old token mapping is dropped and
// any bound socket on it is closed.
func (st *Store) Authorize(deviceID, deviceName, ip string, approved bool) string {
	now := time.Now()
	token := config.NewToken()

	st.mu.Lock()
	var existing *Session
	if oldToken, ok := st.byDevice[deviceID]; ok {
		if s, ok := st.approved[oldToken]; ok {
			existing = s
			delete(st.approved, oldToken)
		} else if s, ok := st.pending[oldToken]; ok {
			existing = s
			delete(st.pending, oldToken)
		}
	}

	sess := &Session{
		Token:      token,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		IP:         ip,
		CreatedTs:  now,
		LastSeenTs: now,
		Approved:   approved,
		Settings:   Settings{},
	}
	if existing != nil {
		sess.CreatedTs = existing.CreatedTs
		sess.Settings = cloneSettings(existing.Settings)
	}

	if approved {
		st.approved[token] = sess
	} else {
		st.pending[token] = sess
	}
	st.byDevice[deviceID] = token
	st.evictOverCapLocked()
	var toClose Socket
	if existing != nil {
		toClose = existing.socket
	}
	st.mu.Unlock()

	if toClose != nil {
		toClose.Close(1000, "session_revoked")
	}
	st.persistAsync()
	return token
}

// evictOverCapLocked drops the oldest-idle approved session when
// MAX_SESSIONS would be exceeded. Must be called with st.mu held.
func (st *Store) evictOverCapLocked() {
	limit := st.cfg.Get().MaxSessions
	if limit <= 0 || len(st.approved) <= limit {
		return
	}
	for len(st.approved) > limit {
		var oldestToken string
		var oldestSeen time.Time
		first := true
		for tok, s := range st.approved {
			if first || s.LastSeenTs.Before(oldestSeen) {
				oldestToken = tok
				oldestSeen = s.LastSeenTs
				first = false
			}
		}
		if oldestToken == "" {
			return
		}
		s := st.approved[oldestToken]
		delete(st.approved, oldestToken)
		delete(st.byDevice, s.DeviceID)
		if s.socket != nil {
			go s.socket.Close(1000, "session_revoked")
		}
	}
}

// GetSession looks up a session by token. If includePending is false,
// only the approved set is consulted.
func (st *Store) GetSession(token string, includePending bool) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.approved[token]; ok {
		return s.snapshot(), true
	}
	if includePending {
		if s, ok := st.pending[token]; ok {
			return s.snapshot(), true
		}
	}
	return Session{}, false
}

// Touch updates a session's last-seen timestamp, keeping it alive against
// idle eviction. Reports whether a matching session (approved or
// pending) was found.
func (st *Store) Touch(token string, now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.approved[token]; ok {
		s.Touch(now)
		return true
	}
	if s, ok := st.pending[token]; ok {
		s.Touch(now)
		return true
	}
	return false
}

// GetAllDevices returns snapshots of every approved session.
func (st *Store) GetAllDevices() []Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Session, 0, len(st.approved))
	for _, s := range st.approved {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTs.Before(out[j].CreatedTs) })
	return out
}

// GetPendingDevices returns snapshots of every session awaiting approval.
func (st *Store) GetPendingDevices() []Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Session, 0, len(st.pending))
	for _, s := range st.pending {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTs.Before(out[j].CreatedTs) })
	return out
}

// ListTokens returns every active token, optionally including pending ones.
func (st *Store) ListTokens(includePending bool) []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]string, 0, len(st.approved)+len(st.pending))
	for tok := range st.approved {
		out = append(out, tok)
	}
	if includePending {
		for tok := range st.pending {
			out = append(out, tok)
		}
	}
	return out
}

// FindTokenByDeviceID resolves a device_id to its current token, if any.
func (st *Store) FindTokenByDeviceID(deviceID string, includePending bool) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	tok, ok := st.byDevice[deviceID]
	if !ok {
		return "", false
	}
	if _, ok := st.approved[tok]; ok {
		return tok, true
	}
	if includePending {
		if _, ok := st.pending[tok]; ok {
			return tok, true
		}
	}
	return "", false
}

// UpdateSettings shallow-merges patch into the session's settings. A nil
// value for a key deletes that key. Returns false if the session doesn't
// exist.
func (st *Store) UpdateSettings(token string, patch map[string]any) bool {
	st.mu.Lock()
	s, ok := st.approved[token]
	if !ok {
		s, ok = st.pending[token]
	}
	if !ok {
		st.mu.Unlock()
		return false
	}
	s.mu.Lock()
	if s.Settings == nil {
		s.Settings = Settings{}
	}
	for k, v := range patch {
		if v == nil {
			delete(s.Settings, k)
		} else {
			s.Settings[k] = v
		}
	}
	s.mu.Unlock()
	st.mu.Unlock()
	st.persistAsync()
	return true
}

// SetApproved moves a session between the pending and approved sets. The
// caller is responsible for emitting any event; this method emits none.
func (st *Store) SetApproved(token string, flag bool) bool {
	st.mu.Lock()
	var ok bool
	if flag {
		var s *Session
		s, ok = st.pending[token]
		if ok {
			delete(st.pending, token)
			s.Approved = true
			st.approved[token] = s
		}
	} else {
		var s *Session
		s, ok = st.approved[token]
		if ok {
			delete(st.approved, token)
			s.Approved = false
			st.pending[token] = s
		}
	}
	st.mu.Unlock()
	if ok {
		st.persistAsync()
	}
	return ok
}

// DeleteSession removes a session from both sets and closes any bound
// socket. Returns false if the token was unknown.
func (st *Store) DeleteSession(token string) bool {
	st.mu.Lock()
	var s *Session
	var ok bool
	if s, ok = st.approved[token]; ok {
		delete(st.approved, token)
	} else if s, ok = st.pending[token]; ok {
		delete(st.pending, token)
	}
	var sock Socket
	if ok {
		if st.byDevice[s.DeviceID] == token {
			delete(st.byDevice, s.DeviceID)
		}
		sock = s.socket
	}
	st.mu.Unlock()

	if !ok {
		return false
	}
	if sock != nil {
		sock.Close(1000, "session_revoked")
	}
	st.persistAsync()
	return true
}

// RegisterSocket attaches a live input-socket reference to token's
// session. Any previous socket on the same token is closed. Rejects
// unknown tokens.
func (st *Store) RegisterSocket(token string, sock Socket) bool {
	st.mu.Lock()
	s, ok := st.approved[token]
	if !ok {
		s, ok = st.pending[token]
	}
	if !ok {
		st.mu.Unlock()
		return false
	}
	s.mu.Lock()
	old := s.socket
	s.socket = sock
	s.mu.Unlock()
	st.mu.Unlock()

	if old != nil && old != sock {
		old.Close(1000, "replaced")
	}
	return true
}

// UnregisterSocket detaches the socket reference if it matches sock.
// Idempotent.
func (st *Store) UnregisterSocket(token string, sock Socket) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.approved[token]
	if !ok {
		s, ok = st.pending[token]
	}
	if !ok {
		return
	}
	s.mu.Lock()
	if s.socket == sock {
		s.socket = nil
	}
	s.mu.Unlock()
}

// Socket returns the live socket bound to token, if any device is
// currently connected with it.
func (st *Store) Socket(token string) (Socket, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.approved[token]
	if !ok {
		s, ok = st.pending[token]
	}
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket == nil {
		return nil, false
	}
	return s.socket, true
}

// RevokeAll deletes every session except keepToken (if non-empty),
// closing bound sockets, and returns how many were revoked.
func (st *Store) RevokeAll(keepToken string) int {
	st.mu.Lock()
	var toClose []Socket
	revoked := 0
	for tok, s := range st.approved {
		if tok == keepToken {
			continue
		}
		delete(st.approved, tok)
		delete(st.byDevice, s.DeviceID)
		if s.socket != nil {
			toClose = append(toClose, s.socket)
		}
		revoked++
	}
	for tok, s := range st.pending {
		if tok == keepToken {
			continue
		}
		delete(st.pending, tok)
		delete(st.byDevice, s.DeviceID)
		if s.socket != nil {
			toClose = append(toClose, s.socket)
		}
		revoked++
	}
	st.mu.Unlock()

	for _, sock := range toClose {
		sock.Close(1000, "session_revoked")
	}
	st.persistAsync()
	return revoked
}

// SweepExpired evicts approved sessions past SESSION_TTL_S or
// SESSION_IDLE_TTL_S. It runs on a periodic timer via RunEvictionLoop;
// mutations do not trigger a sweep.
func (st *Store) SweepExpired(now time.Time) {
	cfg := st.cfg.Get()
	if cfg.SessionTTLS <= 0 && cfg.SessionIdleTTLS <= 0 {
		return
	}
	st.mu.Lock()
	var toClose []Socket
	for tok, s := range st.approved {
		expired := (cfg.SessionTTLS > 0 && now.Sub(s.CreatedTs) > time.Duration(cfg.SessionTTLS)*time.Second) ||
			(cfg.SessionIdleTTLS > 0 && now.Sub(s.LastSeenTs) > time.Duration(cfg.SessionIdleTTLS)*time.Second)
		if expired {
			delete(st.approved, tok)
			delete(st.byDevice, s.DeviceID)
			if s.socket != nil {
				toClose = append(toClose, s.socket)
			}
		}
	}
	st.mu.Unlock()
	for _, sock := range toClose {
		sock.Close(1000, "session_expired")
	}
	if len(toClose) > 0 {
		st.persistAsync()
	}
}

// RunEvictionLoop runs SweepExpired on the given interval until stop is
// closed.
func (st *Store) RunEvictionLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st.SweepExpired(time.Now())
		}
	}
}

// persistAsync snapshots the approved set and writes it out without
// holding the store's lock.
func (st *Store) persistAsync() {
	st.mu.Lock()
	pf := persistedFile{Tokens: make(map[string]persistedSession, len(st.approved)), Version: 1}
	for tok, s := range st.approved {
		snap := s.snapshot()
		pf.Tokens[tok] = persistedSession{
			Token:      snap.Token,
			DeviceID:   snap.DeviceID,
			DeviceName: snap.DeviceName,
			IP:         snap.IP,
			CreatedTs:  snap.CreatedTs.Unix(),
			LastSeenTs: snap.LastSeenTs.Unix(),
			Settings:   snap.Settings,
		}
	}
	path := st.path
	st.mu.Unlock()

	if err := writeAtomic(path, pf); err != nil {
		// A persistence failure is ignored here: it is neither logged nor
		// reported, and it never fails the request path that triggered
		// the mutation.
		_ = err
	}
}

func writeAtomic(path string, pf persistedFile) error {
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir session dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}
