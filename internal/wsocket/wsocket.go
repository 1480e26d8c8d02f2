// Package wsocket implements the per-session persistent input/event
// socket (C12): a gorilla/websocket connection carrying JSON text
// frames in both directions, gated by permissions and the global input
// lock.
package wsocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overl1te/cyberdeck/internal/auth"
	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/inputguard"
	"github.com/overl1te/cyberdeck/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps a gorilla websocket connection behind the session.Socket
// interface so the Session Store can hold it without depending on this
// package.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// SendJSON writes v as a single JSON text frame.
func (c *Conn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Close sends a best-effort close control frame with code/reason, then
// tears down the underlying connection.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(2 * time.Second)
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.ws.Close()
}

// InputSink receives gated pointer/keyboard/text events dispatched from
// a socket connection, implemented by the platform input backend.
type InputSink interface {
	MouseMove(dx, dy float64)
	MouseClick(button string, double bool)
	MouseDown(button string)
	MouseUp(button string)
	Scroll(dy float64)
	KeyPress(key string)
	Hotkey(keys []string)
	TypeText(text string)
}

// Deps bundles the collaborators a socket connection needs: the session
// store for registration/lookup, the input guard for lock checks, the
// event bus for diagnostics, the input sink for dispatching gestures,
// and the live config for feature/heartbeat values.
type Deps struct {
	Sessions *session.Store
	Guard    *inputguard.Guard
	Events   *eventbus.Bus
	Input    InputSink
	Config   *config.Store
}

const (
	defaultHeartbeatIntervalMs = 15000
	defaultHeartbeatTimeoutMs  = 45000
)

// Serve upgrades r to a websocket, resolves and validates its bearer
// token, registers the connection with the session store (closing any
// prior socket for that token), sends the hello event, and runs the
// receive loop until disconnect or heartbeat timeout.
func Serve(w http.ResponseWriter, r *http.Request, deps Deps) {
	cfg := deps.Config.Get()
	token := auth.ResolveToken(r, cfg.AllowQueryToken)
	if token == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
		return
	}
	sess, ok := deps.Sessions.GetSession(token, false)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &Conn{ws: ws}
	deps.Sessions.RegisterSocket(token, conn)
	defer deps.Sessions.UnregisterSocket(token, conn)

	heartbeatTimeout := time.Duration(defaultHeartbeatTimeoutMs) * time.Millisecond
	ws.SetReadDeadline(time.Now().Add(heartbeatTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		return nil
	})

	conn.SendJSON(map[string]any{
		"type":                  "hello",
		"protocol_version":      cfg.ProtocolVersion,
		"features":              config.Features,
		"heartbeat_interval_ms": defaultHeartbeatIntervalMs,
		"heartbeat_timeout_ms":  defaultHeartbeatTimeoutMs,
	})

	d := &dispatcher{deps: deps, conn: conn, token: token, perms: auth.Resolve(sess.Settings)}
	d.run()
}

type dispatcher struct {
	deps  Deps
	conn  *Conn
	token string
	perms auth.PermissionSet
}

func (d *dispatcher) run() {
	for {
		_, data, err := d.conn.ws.ReadMessage()
		if err != nil {
			return
		}
		d.conn.ws.SetReadDeadline(time.Now().Add(time.Duration(defaultHeartbeatTimeoutMs) * time.Millisecond))
		d.deps.Sessions.Touch(d.token, time.Now())
		d.handle(data)
	}
}

func (d *dispatcher) handle(data []byte) {
	msg, err := parseEvent(data)
	if err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		d.conn.SendJSON(map[string]any{"type": "pong", "ts": time.Now().Unix()})
	case "stats":
		// telemetry only, no response required.
	case "mouse_move":
		if d.gated("perm_mouse") {
			d.deps.Input.MouseMove(msg.payloadFloat("dx"), msg.payloadFloat("dy"))
		}
	case "mouse_click":
		if d.gated("perm_mouse") {
			d.deps.Input.MouseClick(msg.payloadString("button"), msg.payloadBool("double"))
		}
	case "mouse_down":
		if d.gated("perm_mouse") {
			d.deps.Input.MouseDown(msg.payloadString("button"))
		}
	case "mouse_up":
		if d.gated("perm_mouse") {
			d.deps.Input.MouseUp(msg.payloadString("button"))
		}
	case "scroll":
		if d.gated("perm_mouse") {
			d.deps.Input.Scroll(msg.payloadFloat("dy"))
		}
	case "key_press":
		if d.gated("perm_keyboard") {
			d.deps.Input.KeyPress(msg.payloadString("key"))
		}
	case "hotkey":
		if d.gated("perm_keyboard") {
			d.deps.Input.Hotkey(msg.payloadStrings("keys"))
		}
	case "text", "input_text", "insert_text", "keyboard_text":
		if !d.gated("perm_keyboard") {
			return
		}
		for _, key := range []string{"text", "value", "message", "payload", "data"} {
			if s := msg.payloadString(key); s != "" {
				d.deps.Input.TypeText(s)
				return
			}
		}
	}
}

// gated reports whether perm is granted and the global input lock is
// not engaged.
func (d *dispatcher) gated(perm string) bool {
	if d.deps.Input == nil {
		return false
	}
	if d.deps.Guard != nil && d.deps.Guard.IsLocked() {
		return false
	}
	return d.perms.Allows(perm)
}
