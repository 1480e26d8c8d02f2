package api

import (
	"net/http"
	"strings"
)

var validPowerActions = map[string]bool{
	"shutdown": true, "restart": true, "logoff": true,
	"lock": true, "sleep": true, "hibernate": true,
}

// System implements POST /api/system/{action}.
func (a *API) System(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePerm(w, r, "perm_power"); !ok {
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/system/")
	if !validPowerActions[action] {
		writeError(w, http.StatusNotFound, "unknown_action")
		return
	}
	if err := a.Power.Action(action); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.Events.Emit("system_action", "CyberDeck", "System action executed: "+action, map[string]any{"action": action})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "action": action})
}

var validVolumeActions = map[string]string{
	"up":   "volumeup",
	"down": "volumedown",
	"mute": "volumemute",
}

// Volume implements POST /api/volume/{action}.
func (a *API) Volume(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePerm(w, r, "perm_keyboard"); !ok {
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/volume/")
	key, ok := validVolumeActions[action]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_action")
		return
	}
	if a.Input == nil || !a.Input.Press(key) {
		writeError(w, http.StatusInternalServerError, "volume_action_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "action": action})
}
