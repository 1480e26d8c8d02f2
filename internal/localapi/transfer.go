package localapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/overl1te/cyberdeck/internal/auth"
	"github.com/overl1te/cyberdeck/internal/transfer"
)

// Origins tracks transfer.Origin instances spawned by TriggerFile so
// Shutdown can close any still-running one-shot listeners.
type Origins struct {
	mu    sync.Mutex
	items []*transfer.Origin
}

func (o *Origins) add(origin *transfer.Origin) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, origin)
}

// Shutdown stops every tracked file-transfer origin. Safe to call more
// than once.
func (o *Origins) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, origin := range o.items {
		origin.Stop()
	}
	o.items = nil
}

type triggerFileRequest struct {
	Token    string `json:"token"`
	FilePath string `json:"file_path"`
}

// TriggerFile implements POST /api/local/trigger_file: it spins up a
// one-shot transfer origin pinned to the target device's IP and pushes
// the download offer down the device's socket.
func (a *API) TriggerFile(w http.ResponseWriter, r *http.Request) {
	if !requireLocalhost(w, r) {
		return
	}
	var req triggerFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "token_and_file_path_required")
		return
	}
	sess, ok := a.Sessions.GetSession(req.Token, false)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "msg": "device_not_found"})
		return
	}
	if !auth.Resolve(sess.Settings).Allows("perm_file_send") {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "msg": "permission_denied:perm_file_send"})
		return
	}
	socket, ok := a.Sessions.Socket(req.Token)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "msg": "offline"})
		return
	}

	cfg := a.Config.Get()
	preset := transfer.PickPreset(sess.Settings)
	origin, offer, err := transfer.Serve(req.FilePath, sess.IP, cfg.Scheme, a.localIP(), preset)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "msg": err.Error()})
		return
	}
	a.Origins.add(origin)

	if err := socket.SendJSON(map[string]any{
		"type":     "file_transfer",
		"filename": offer.Filename,
		"url":      offer.URL,
		"size":     offer.Size,
		"sha256":   offer.SHA256,
	}); err != nil {
		origin.Stop()
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "msg": "send_failed"})
		return
	}

	a.Events.Emit("file_offered", "CyberDeck", "File transfer offered: "+offer.Filename,
		map[string]any{"token": req.Token, "device_id": sess.DeviceID, "filename": offer.Filename, "size": offer.Size})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "sent", "filename": offer.Filename})
}
