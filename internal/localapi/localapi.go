// Package localapi implements the loopback-only management API (C15):
// operator-facing endpoints for device approval, session control,
// pairing/QR regeneration, input lock, panic mode, and diagnostics.
// Every handler except QRLogin (the mobile client's QR pairing call)
// rejects non-loopback callers before doing any work.
package localapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/hoststats"
	"github.com/overl1te/cyberdeck/internal/inputguard"
	"github.com/overl1te/cyberdeck/internal/pairing"
	"github.com/overl1te/cyberdeck/internal/pinlimit"
	"github.com/overl1te/cyberdeck/internal/session"
)

// API bundles the collaborators the local management handlers need.
type API struct {
	Config     *config.Store
	Sessions   *session.Store
	Events     *eventbus.Bus
	Guard      *inputguard.Guard
	PinLimiter *pinlimit.Limiter
	QR         *pairing.QRStore
	LocalIP    func() string
	StartedAt  time.Time
	Origins    *Origins
}

// NewOrigins builds the tracker for in-flight file-transfer origins
// started by TriggerFile.
func NewOrigins() *Origins {
	return &Origins{}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// requireLocalhost rejects any request whose remote address isn't
// loopback, matching the Python original's _require_localhost check.
func requireLocalhost(w http.ResponseWriter, r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		writeError(w, http.StatusForbidden, "localhost_required")
		return false
	}
	return true
}

func safePort(value int, scheme string) int {
	def := 80
	if strings.EqualFold(scheme, "https") {
		def = 443
	}
	if value < 1 || value > 65535 {
		return def
	}
	return value
}

// Info implements GET /api/local/info.
func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	cfg := a.Config.Get()
	now := time.Now()
	resp := map[string]any{
		"server_id":           cfg.ServerID,
		"ip":                  a.localIP(),
		"port":                safePort(cfg.Port, cfg.Scheme),
		"scheme":              cfg.Scheme,
		"tls":                 cfg.TLSEnabled,
		"hostname":            cfg.Hostname,
		"approval_required":   cfg.DeviceApprovalRequired,
		"security":            a.Guard.Snapshot(),
		"devices":             a.Sessions.GetAllDevices(),
		"pending_devices":     a.Sessions.GetPendingDevices(),
	}
	mergeInto(resp, pairing.Build(cfg, now))
	mergeInto(resp, cfg.Protocol())
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) localIP() string {
	if a.LocalIP != nil {
		if ip := a.LocalIP(); ip != "" {
			return ip
		}
	}
	return "127.0.0.1"
}

// ListEvents implements GET /api/local/events.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	sinceID := queryUint(r, "since_id", 0)
	limit := queryInt(r, "limit", 100)
	events, latest := a.Events.ListAfter(sinceID, limit)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "latest_id": latest})
}

// PendingDevices implements GET /api/local/pending_devices.
func (a *API) PendingDevices(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_devices": a.Sessions.GetPendingDevices()})
}

// TrustedDevices implements GET /api/local/trusted_devices.
func (a *API) TrustedDevices(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	now := time.Now()
	all := a.Sessions.GetAllDevices()
	rows := make([]map[string]any, 0, len(all))
	for _, s := range all {
		if !s.Approved {
			continue
		}
		rows = append(rows, trustedRow(s, now))
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["last_seen_ts"].(int64) > rows[j]["last_seen_ts"].(int64)
	})
	writeJSON(w, http.StatusOK, map[string]any{"trusted_devices": rows, "total": len(rows)})
}

func trustedRow(s session.Session, now time.Time) map[string]any {
	alias, _ := s.Settings["alias"].(string)
	note, _ := s.Settings["note"].(string)
	row := map[string]any{
		"token":        s.Token,
		"device_id":    s.DeviceID,
		"device_name":  s.DeviceName,
		"ip":           s.IP,
		"created_ts":   s.CreatedTs.Unix(),
		"last_seen_ts": s.LastSeenTs.Unix(),
		"alias":        alias,
		"note":         note,
	}
	if !s.LastSeenTs.IsZero() {
		row["last_seen_ago_s"] = int(now.Sub(s.LastSeenTs).Seconds())
	}
	if !s.CreatedTs.IsZero() {
		row["created_ago_s"] = int(now.Sub(s.CreatedTs).Seconds())
	}
	return row
}

// SecurityState implements GET /api/local/security_state.
func (a *API) SecurityState(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	resp := map[string]any{"security": a.Guard.Snapshot()}
	mergeInto(resp, pairing.Build(a.Config.Get(), time.Now()))
	writeJSON(w, http.StatusOK, resp)
}

type approveRequest struct {
	Token string `json:"token"`
	Allow *bool  `json:"allow"`
}

// DeviceApprove implements POST /api/local/device_approve.
func (a *API) DeviceApprove(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token_required")
		return
	}
	allow := true
	if req.Allow != nil {
		allow = *req.Allow
	}
	sess, ok := a.Sessions.GetSession(req.Token, true)
	if !ok {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	if allow {
		if !a.Sessions.SetApproved(req.Token, true) {
			writeError(w, http.StatusInternalServerError, "approve_failed")
			return
		}
		a.Events.Emit("device_approved", "CyberDeck", "Device approved: "+sess.DeviceName,
			map[string]any{"token": req.Token, "device_id": sess.DeviceID, "name": sess.DeviceName})
		a.Events.Emit("device_connected", "CyberDeck", "Device connected: "+sess.DeviceName,
			map[string]any{"token": req.Token, "device_id": sess.DeviceID, "name": sess.DeviceName, "ip": sess.IP})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "approved": true})
		return
	}
	if !a.Sessions.DeleteSession(req.Token) {
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	a.Events.Emit("device_denied", "CyberDeck", "Device denied: "+sess.DeviceName,
		map[string]any{"token": req.Token, "device_id": sess.DeviceID, "name": sess.DeviceName})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "approved": false})
}

// QRPayload implements GET /api/local/qr_payload.
func (a *API) QRPayload(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	cfg := a.Config.Get()
	now := time.Now()
	token := a.QR.Issue(now)
	meta := pairing.Build(cfg, now)
	port := safePort(cfg.Port, cfg.Scheme)
	ip := a.localIP()

	payload := map[string]any{
		"type":                "cyberdeck_qr_v1",
		"server_id":           cfg.ServerID,
		"hostname":            cfg.Hostname,
		"ip":                  ip,
		"port":                port,
		"scheme":              cfg.Scheme,
		"pairing_code":        meta.PairingCode,
		"pairing_expires_at":  meta.PairingExpiresAt,
		"pairing_expires_in_s": meta.PairingExpiresInS,
		"pairing_ttl_s":       meta.PairingTTLS,
		"pairing_single_use":  meta.PairingSingleUse,
		"ts":                  now.Unix(),
		"nonce":               token,
		"qr_token":            token,
	}

	qs := url.Values{}
	qs.Set("type", "cyberdeck_qr_v1")
	qs.Set("server_id", cfg.ServerID)
	qs.Set("hostname", cfg.Hostname)
	qs.Set("ip", ip)
	qs.Set("port", strconv.Itoa(port))
	qs.Set("code", meta.PairingCode)
	qs.Set("ts", strconv.FormatInt(now.Unix(), 10))
	qs.Set("nonce", token)
	qs.Set("qr_token", token)
	downloadURL := cfg.Scheme + "://" + ip + ":" + strconv.Itoa(port) + "/?" + qs.Encode()

	writeJSON(w, http.StatusOK, map[string]any{"payload": payload, "url": downloadURL})
}

type qrLoginRequest struct {
	Nonce      string `json:"nonce"`
	QRToken    string `json:"qr_token"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// QRLogin implements POST /api/qr/login.
func (a *API) QRLogin(w http.ResponseWriter, r *http.Request) {
	var req qrLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	token := strings.TrimSpace(req.QRToken)
	if token == "" {
		token = strings.TrimSpace(req.Nonce)
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "qr_token_required")
		return
	}
	now := time.Now()
	if !a.QR.Consume(token, now) {
		writeError(w, http.StatusForbidden, "invalid_or_expired_qr_token")
		return
	}
	cfg := a.Config.Get()
	if pairing.Expired(cfg, now) {
		writeError(w, http.StatusForbidden, "pairing_expired")
		return
	}

	ip := clientIP(r)
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = "qr-" + config.NewToken()[:12]
	}
	deviceName := strings.TrimSpace(req.DeviceName)
	if deviceName == "" {
		deviceName = "CyberDeck Mobile"
	}

	approved := !cfg.DeviceApprovalRequired
	sessToken := a.Sessions.Authorize(deviceID, deviceName, ip, approved)
	if approved {
		a.Events.Emit("device_connected", "CyberDeck", "Device connected: "+deviceName,
			map[string]any{"token": sessToken, "device_id": deviceID, "name": deviceName, "ip": ip})
	} else {
		a.Events.Emit("device_pending", "CyberDeck", "Device approval required: "+deviceName,
			map[string]any{"token": sessToken, "device_id": deviceID, "name": deviceName, "ip": ip})
	}

	rotated := false
	if cfg.PairingSingleUse {
		pairing.Rotate(a.Config, now)
		a.PinLimiter.Reset()
		rotated = true
		a.Events.Emit("pairing_rotated", "CyberDeck", "Pairing code rotated after successful QR login",
			map[string]any{"source": "qr_login", "device_id": deviceID, "name": deviceName})
	}

	cfg = a.Config.Get()
	resp := map[string]any{
		"status":           "ok",
		"approved":         approved,
		"approval_pending": !approved,
		"token":            sessToken,
		"server_name":      cfg.Hostname,
		"pairing_rotated":  rotated,
	}
	mergeInto(resp, pairing.Build(cfg, now))
	mergeInto(resp, cfg.Protocol())
	writeJSON(w, http.StatusOK, resp)
}

// Stats implements GET /api/local/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	snap := hoststats.Read()
	writeJSON(w, http.StatusOK, map[string]any{
		"cpu":        snap.CPU,
		"ram":        snap.RAM,
		"uptime_s":   int(time.Since(a.StartedAt).Seconds()),
	})
}

type renameRequest struct {
	Token string `json:"token"`
	Alias string `json:"alias"`
	Note  string `json:"note"`
}

// DeviceRename implements POST /api/local/device_rename.
func (a *API) DeviceRename(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token_required")
		return
	}
	if _, ok := a.Sessions.GetSession(req.Token, true); !ok {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	patch := map[string]any{}
	if req.Alias != "" {
		patch["alias"] = req.Alias
	} else {
		patch["alias"] = nil
	}
	if req.Note != "" {
		patch["note"] = req.Note
	} else {
		patch["note"] = nil
	}
	if !a.Sessions.UpdateSettings(req.Token, patch) {
		writeError(w, http.StatusInternalServerError, "rename_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": req.Token, "alias": req.Alias, "note": req.Note})
}

// GetDeviceSettings implements GET /api/local/device_settings.
func (a *API) GetDeviceSettings(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	token := r.URL.Query().Get("token")
	sess, ok := a.Sessions.GetSession(token, true)
	if !ok {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "settings": sess.Settings})
}

type settingsRequest struct {
	Token    string         `json:"token"`
	Settings map[string]any `json:"settings"`
}

// SetDeviceSettings implements POST /api/local/device_settings.
func (a *API) SetDeviceSettings(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if !a.Sessions.UpdateSettings(req.Token, req.Settings) {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// DeviceDisconnect implements POST /api/local/device_disconnect.
func (a *API) DeviceDisconnect(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	sess, ok := a.Sessions.GetSession(req.Token, true)
	if !ok {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	if sock, ok := a.Sessions.Socket(req.Token); ok {
		a.Sessions.UnregisterSocket(req.Token, sock)
		sock.Close(1000, "disconnected")
	}
	a.Events.Emit("device_disconnected", "CyberDeck", "Device disconnected: "+sess.DeviceName,
		map[string]any{"token": req.Token, "device_id": sess.DeviceID, "name": sess.DeviceName})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DeviceDelete implements POST /api/local/device_delete.
func (a *API) DeviceDelete(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	sess, ok := a.Sessions.GetSession(req.Token, true)
	if !ok {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	if !a.Sessions.DeleteSession(req.Token) {
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	a.Events.Emit("device_deleted", "CyberDeck", "Device removed: "+sess.DeviceName,
		map[string]any{"token": req.Token, "device_id": sess.DeviceID, "name": sess.DeviceName})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type deviceIDRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceDeleteByID implements POST /api/local/device_delete_by_id.
func (a *API) DeviceDeleteByID(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req deviceIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id_required")
		return
	}
	token, ok := a.Sessions.FindTokenByDeviceID(req.DeviceID, true)
	if !ok {
		writeError(w, http.StatusNotFound, "device_not_found")
		return
	}
	sess, _ := a.Sessions.GetSession(token, true)
	if !a.Sessions.DeleteSession(token) {
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	a.Events.Emit("device_deleted", "CyberDeck", "Device removed: "+sess.DeviceName,
		map[string]any{"token": token, "device_id": req.DeviceID, "name": sess.DeviceName})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token, "device_id": req.DeviceID})
}

type revokeAllRequest struct {
	KeepToken string `json:"keep_token"`
}

// RevokeAll implements POST /api/local/revoke_all.
func (a *API) RevokeAll(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req revokeAllRequest
	json.NewDecoder(r.Body).Decode(&req)
	revoked := a.Sessions.RevokeAll(req.KeepToken)
	if revoked > 0 {
		a.Events.Emit("sessions_revoked", "CyberDeck", "Revoked session(s)",
			map[string]any{"revoked": revoked, "kept": req.KeepToken})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "revoked": revoked, "kept": req.KeepToken})
}

type inputLockRequest struct {
	Locked bool   `json:"locked"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// InputLock implements POST /api/local/input_lock.
func (a *API) InputLock(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	req := inputLockRequest{Locked: true, Actor: "local_api"}
	json.NewDecoder(r.Body).Decode(&req)
	snap := a.Guard.SetLocked(req.Locked, req.Reason, req.Actor)
	msg := "Remote input unlocked"
	if snap.Locked {
		msg = "Remote input locked"
	}
	a.Events.Emit("input_lock_changed", "CyberDeck", msg, map[string]any{"security": snap})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "security": snap})
}

type panicRequest struct {
	KeepToken string `json:"keep_token"`
	LockInput bool   `json:"lock_input"`
	Reason    string `json:"reason"`
}

// PanicMode implements POST /api/local/panic_mode.
func (a *API) PanicMode(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	req := panicRequest{LockInput: true}
	json.NewDecoder(r.Body).Decode(&req)
	revoked := a.Sessions.RevokeAll(req.KeepToken)
	var security inputguard.Snapshot
	if req.LockInput {
		reason := req.Reason
		if reason == "" {
			reason = "panic_mode"
		}
		security = a.Guard.SetLocked(true, reason, "panic_mode")
	} else {
		security = a.Guard.Snapshot()
	}
	a.Events.Emit("panic_mode", "CyberDeck", "Panic mode executed", map[string]any{
		"revoked": revoked, "kept": req.KeepToken, "security": security,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "revoked": revoked, "kept": req.KeepToken, "security": security})
}

// DiagBundle implements GET /api/local/diag_bundle.
func (a *API) DiagBundle(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	cfg := a.Config.Get()
	now := time.Now()
	snap := hoststats.Read()
	resp := map[string]any{
		"collected_at":       now.Unix(),
		"server_id":          cfg.ServerID,
		"hostname":           cfg.Hostname,
		"scheme":             cfg.Scheme,
		"port":               safePort(cfg.Port, cfg.Scheme),
		"tls_enabled":        cfg.TLSEnabled,
		"approval_required": cfg.DeviceApprovalRequired,
		"cpu":                snap.CPU,
		"ram":                snap.RAM,
		"uptime_s":           int(now.Sub(a.StartedAt).Seconds()),
		"pairing":            pairing.Build(cfg, now),
		"security":           a.Guard.Snapshot(),
		"devices":            a.Sessions.GetAllDevices(),
		"pending_devices":    a.Sessions.GetPendingDevices(),
		"protocol":           cfg.Protocol(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegenerateCode implements POST /api/local/regenerate_code.
func (a *API) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	now := time.Now()
	newCode := pairing.Rotate(a.Config, now)
	a.PinLimiter.Reset()
	resp := map[string]any{"new_code": newCode}
	mergeInto(resp, pairing.Build(a.Config.Get(), now))
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryUint(r *http.Request, key string, def uint64) uint64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func mergeInto(dst map[string]any, src any) {
	b, err := json.Marshal(src)
	if err != nil {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return
	}
	for k, v := range m {
		dst[k] = v
	}
}
