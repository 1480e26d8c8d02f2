// Package api implements the public API surface (C14): handshake,
// pairing status, protocol metadata, stats/diagnostics, file upload,
// stream negotiation, the three video feed endpoints, and the
// system/volume action endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/overl1te/cyberdeck/internal/auth"
	"github.com/overl1te/cyberdeck/internal/capture"
	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/hoststats"
	"github.com/overl1te/cyberdeck/internal/pairing"
	"github.com/overl1te/cyberdeck/internal/pinlimit"
	"github.com/overl1te/cyberdeck/internal/power"
	"github.com/overl1te/cyberdeck/internal/session"
	"github.com/overl1te/cyberdeck/internal/stream"
	"github.com/overl1te/cyberdeck/internal/supervisor"
	"github.com/overl1te/cyberdeck/internal/transfer"
)

// InputPresser is the subset of the input backend the volume endpoints
// need.
type InputPresser interface {
	Press(name string) bool
}

// API bundles every collaborator the public handlers need.
type API struct {
	Config     *config.Store
	Sessions   *session.Store
	PinLimiter *pinlimit.Limiter
	Events     *eventbus.Bus
	Captures   *capture.Manager
	Negotiator *stream.Negotiator
	Stabilizer *stream.WidthStabilizer
	Supervisor *supervisor.Supervisor
	Power      *power.Runner
	Input      InputPresser
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := splitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func splitHostPort(addr string) (string, string, error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return addr, "", fmt.Errorf("no port")
}

// HandshakeRequest is the POST /api/handshake body.
type HandshakeRequest struct {
	Code             string         `json:"code"`
	DeviceID         string         `json:"device_id"`
	DeviceName       string         `json:"device_name"`
	ProtocolVersion  *int           `json:"protocol_version,omitempty"`
	Capabilities     map[string]any `json:"capabilities,omitempty"`
}

// Handshake implements POST /api/handshake.
func (a *API) Handshake(w http.ResponseWriter, r *http.Request) {
	var req HandshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	ip := clientIP(r)
	now := time.Now()
	cfg := a.Config.Get()

	if pairing.Expired(cfg, now) {
		writeError(w, http.StatusForbidden, "pairing_expired")
		return
	}

	allowed, retryAfter := a.PinLimiter.Check(ip, now)
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "pin_rate_limited")
		return
	}

	if req.Code != cfg.PairingCode {
		a.PinLimiter.RecordFailure(ip, now)
		writeError(w, http.StatusForbidden, "invalid_code")
		return
	}
	a.PinLimiter.RecordSuccess(ip)

	approved := !cfg.DeviceApprovalRequired
	token := a.Sessions.Authorize(req.DeviceID, req.DeviceName, ip, approved)

	if approved {
		a.Events.Emit("device_connected", "CyberDeck", fmt.Sprintf("Device connected: %s", req.DeviceName),
			map[string]any{"token": token, "device_id": req.DeviceID, "name": req.DeviceName, "ip": ip})
	} else {
		a.Events.Emit("device_pending", "CyberDeck", fmt.Sprintf("Device approval required: %s", req.DeviceName),
			map[string]any{"token": token, "device_id": req.DeviceID, "name": req.DeviceName, "ip": ip})
	}

	rotated := false
	if cfg.PairingSingleUse {
		pairing.Rotate(a.Config, now)
		a.PinLimiter.Reset()
		rotated = true
		a.Events.Emit("pairing_rotated", "CyberDeck", "Pairing code rotated after successful authorization",
			map[string]any{"source": "handshake", "device_id": req.DeviceID, "name": req.DeviceName})
	}

	cfg = a.Config.Get()
	resp := map[string]any{
		"status":           "ok",
		"approved":         approved,
		"approval_pending": !approved,
		"token":            token,
		"server_name":      cfg.Hostname,
		"pairing_rotated":  rotated,
	}
	mergeInto(resp, pairing.Build(cfg, now))
	mergeInto(resp, cfg.Protocol())
	writeJSON(w, http.StatusOK, resp)
}

// PairingStatus implements GET /api/pairing_status.
func (a *API) PairingStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token_required")
		return
	}
	sess, ok := a.Sessions.GetSession(token, true)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	cfg := a.Config.Get()
	resp := map[string]any{
		"status":           "ok",
		"token":            token,
		"approved":         sess.Approved,
		"approval_pending": !sess.Approved,
		"device_id":        sess.DeviceID,
		"device_name":      sess.DeviceName,
		"server_name":      cfg.Hostname,
	}
	mergeInto(resp, cfg.Protocol())
	writeJSON(w, http.StatusOK, resp)
}

// Protocol implements GET /api/protocol.
func (a *API) Protocol(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Config.Get().Protocol())
}

func (a *API) authenticate(r *http.Request) (session.Session, bool) {
	cfg := a.Config.Get()
	token := auth.ResolveToken(r, cfg.AllowQueryToken)
	if token == "" {
		return session.Session{}, false
	}
	return a.Sessions.GetSession(token, false)
}

func (a *API) requirePerm(w http.ResponseWriter, r *http.Request, perm string) (session.Session, bool) {
	sess, ok := a.authenticate(r)
	if !ok {
		writeError(w, http.StatusForbidden, "unauthorized")
		return session.Session{}, false
	}
	if perm != "" {
		perms := auth.Resolve(sess.Settings)
		if !perms.Allows(perm) {
			writeError(w, http.StatusForbidden, "permission_denied:"+perm)
			return session.Session{}, false
		}
	}
	return sess, true
}

// Stats implements GET /api/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePerm(w, r, ""); !ok {
		return
	}
	snap := hoststats.Read()
	resp := map[string]any{"cpu": snap.CPU, "ram": snap.RAM}
	mergeInto(resp, a.Config.Get().Protocol())
	writeJSON(w, http.StatusOK, resp)
}

// Diag implements GET /api/diag.
func (a *API) Diag(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePerm(w, r, "perm_stream"); !ok {
		return
	}
	snap := hoststats.Read()
	cfg := a.Config.Get()
	resp := map[string]any{
		"cpu":      snap.CPU,
		"ram":      snap.RAM,
		"hostname": cfg.Hostname,
	}
	mergeInto(resp, cfg.Protocol())
	if a.Supervisor != nil {
		resp["stream"] = a.Supervisor.Diagnostics()
	}
	if a.Captures != nil {
		resp["backends"] = a.Captures.Availability()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload implements POST /api/file/upload.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePerm(w, r, "perm_upload"); !ok {
		return
	}
	cfg := a.Config.Get()
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	expected := r.Header.Get("X-File-Sha256")
	res, err := transfer.Upload(cfg.FilesDir, header.Filename, file, cfg.UploadAllowedExtSet, cfg.UploadMaxBytes, expected)
	if err != nil {
		status := http.StatusInternalServerError
		code := "upload_failed"
		if uerr, ok := err.(*transfer.UploadError); ok {
			code = uerr.Code
			switch code {
			case "upload_too_large":
				status = http.StatusRequestEntityTooLarge
			case "upload_checksum_mismatch":
				status = http.StatusBadRequest
			case "upload_extension_not_allowed":
				status = http.StatusUnsupportedMediaType
			}
		}
		writeError(w, status, code)
		return
	}

	a.Events.Emit("file_received", "CyberDeck", fmt.Sprintf("File received: %s", res.Filename),
		map[string]any{"filename": res.Filename, "size": res.Size, "sha256": res.SHA256})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "filename": res.Filename, "size": res.Size, "sha256": res.SHA256})
}

// mergeInto flattens src (a struct or map) into dst by round-tripping
// through JSON, matching the teacher-absent-but-spec-required "spread
// a payload into the response" shape used throughout the public API.
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
