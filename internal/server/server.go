// Package server wires every CyberDeck collaborator into an
// http.ServeMux and owns the listener lifecycle.
package server

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"time"

	"github.com/overl1te/cyberdeck/internal/api"
	"github.com/overl1te/cyberdeck/internal/capture"
	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/inputguard"
	"github.com/overl1te/cyberdeck/internal/localapi"
	"github.com/overl1te/cyberdeck/internal/pairing"
	"github.com/overl1te/cyberdeck/internal/pinlimit"
	"github.com/overl1te/cyberdeck/internal/power"
	"github.com/overl1te/cyberdeck/internal/session"
	"github.com/overl1te/cyberdeck/internal/stream"
	"github.com/overl1te/cyberdeck/internal/supervisor"
	"github.com/overl1te/cyberdeck/internal/wsocket"
)

// InputBackend is the union of capabilities the public volume endpoint
// and the persistent input socket both need from the platform input
// backend.
type InputBackend interface {
	wsocket.InputSink
	Press(name string) bool
}

// Config bundles every collaborator the server needs to route a request.
// TLS is optional; when nil the server listens plain HTTP.
type Config struct {
	Addr string
	TLS  *tls.Config

	Config     *config.Store
	Sessions   *session.Store
	PinLimiter *pinlimit.Limiter
	Events     *eventbus.Bus
	Guard      *inputguard.Guard
	QR         *pairing.QRStore
	Captures   *capture.Manager
	Negotiator *stream.Negotiator
	Stabilizer *stream.WidthStabilizer
	Supervisor *supervisor.Supervisor
	Power      *power.Runner
	Input      InputBackend
	LocalIP    func() string
	StartedAt  time.Time
}

// Server owns the HTTP listener and every collaborator behind it.
type Server struct {
	cfg     Config
	http    *http.Server
	origins *localapi.Origins
}

// New builds a Server from cfg, wiring the public and local API handler
// groups and the persistent input/event socket.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, origins: localapi.NewOrigins()}
}

func (s *Server) buildMux() http.Handler {
	publicAPI := &api.API{
		Config:     s.cfg.Config,
		Sessions:   s.cfg.Sessions,
		PinLimiter: s.cfg.PinLimiter,
		Events:     s.cfg.Events,
		Captures:   s.cfg.Captures,
		Negotiator: s.cfg.Negotiator,
		Stabilizer: s.cfg.Stabilizer,
		Supervisor: s.cfg.Supervisor,
		Power:      s.cfg.Power,
		Input:      s.cfg.Input,
	}

	localAPI := &localapi.API{
		Config:     s.cfg.Config,
		Sessions:   s.cfg.Sessions,
		Events:     s.cfg.Events,
		Guard:      s.cfg.Guard,
		PinLimiter: s.cfg.PinLimiter,
		QR:         s.cfg.QR,
		LocalIP:    s.cfg.LocalIP,
		StartedAt:  s.cfg.StartedAt,
		Origins:    s.origins,
	}

	wsDeps := wsocket.Deps{
		Sessions: s.cfg.Sessions,
		Guard:    s.cfg.Guard,
		Events:   s.cfg.Events,
		Input:    s.cfg.Input,
		Config:   s.cfg.Config,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/handshake", publicAPI.Handshake)
	mux.HandleFunc("GET /api/pairing_status", publicAPI.PairingStatus)
	mux.HandleFunc("GET /api/protocol", publicAPI.Protocol)
	mux.HandleFunc("GET /api/stats", publicAPI.Stats)
	mux.HandleFunc("GET /api/diag", publicAPI.Diag)
	mux.HandleFunc("POST /api/file/upload", publicAPI.Upload)
	mux.HandleFunc("GET /api/stream/offer", publicAPI.StreamOffer)
	mux.HandleFunc("GET /api/video/mjpeg", publicAPI.VideoMJPEG)
	mux.HandleFunc("GET /api/video/h264", publicAPI.VideoH264)
	mux.HandleFunc("GET /api/video/h265", publicAPI.VideoH265)
	mux.HandleFunc("POST /api/system/{action}", publicAPI.System)
	mux.HandleFunc("POST /api/volume/{action}", publicAPI.Volume)
	mux.HandleFunc("POST /api/qr/login", localAPI.QRLogin)

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		wsocket.Serve(w, r, wsDeps)
	})

	mux.HandleFunc("GET /api/local/info", localAPI.Info)
	mux.HandleFunc("GET /api/local/events", localAPI.ListEvents)
	mux.HandleFunc("GET /api/local/pending_devices", localAPI.PendingDevices)
	mux.HandleFunc("GET /api/local/trusted_devices", localAPI.TrustedDevices)
	mux.HandleFunc("GET /api/local/security_state", localAPI.SecurityState)
	mux.HandleFunc("POST /api/local/device_approve", localAPI.DeviceApprove)
	mux.HandleFunc("GET /api/local/qr_payload", localAPI.QRPayload)
	mux.HandleFunc("GET /api/local/stats", localAPI.Stats)
	mux.HandleFunc("POST /api/local/device_rename", localAPI.DeviceRename)
	mux.HandleFunc("GET /api/local/device_settings", localAPI.GetDeviceSettings)
	mux.HandleFunc("POST /api/local/device_settings", localAPI.SetDeviceSettings)
	mux.HandleFunc("POST /api/local/device_disconnect", localAPI.DeviceDisconnect)
	mux.HandleFunc("POST /api/local/device_delete", localAPI.DeviceDelete)
	mux.HandleFunc("POST /api/local/device_delete_by_id", localAPI.DeviceDeleteByID)
	mux.HandleFunc("POST /api/local/revoke_all", localAPI.RevokeAll)
	mux.HandleFunc("POST /api/local/input_lock", localAPI.InputLock)
	mux.HandleFunc("POST /api/local/panic_mode", localAPI.PanicMode)
	mux.HandleFunc("GET /api/local/diag_bundle", localAPI.DiagBundle)
	mux.HandleFunc("POST /api/local/regenerate_code", localAPI.RegenerateCode)
	mux.HandleFunc("POST /api/local/trigger_file", localAPI.TriggerFile)

	return mux
}

// ListenAndServe starts the HTTP(S) listener and blocks until it exits
// with an error (http.ErrServerClosed on a clean Teardown).
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.buildMux(), TLSConfig: s.cfg.TLS}

	stop := make(chan struct{})
	go s.cfg.Sessions.RunEvictionLoop(30*time.Second, stop)
	defer close(stop)

	log.Printf("cyberdeckd listening on %s (tls=%v)", s.cfg.Addr, s.cfg.TLS != nil)
	if s.cfg.TLS != nil {
		ln, err := tls.Listen("tcp", s.cfg.Addr, s.cfg.TLS)
		if err != nil {
			return err
		}
		return s.http.Serve(ln)
	}
	return s.http.ListenAndServe()
}

// Teardown stops the HTTP listener and any in-flight file-transfer
// origins.
func (s *Server) Teardown() {
	s.origins.Shutdown()
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(ctx)
	}
}
