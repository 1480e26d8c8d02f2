package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/inputguard"
	"github.com/overl1te/cyberdeck/internal/pairing"
	"github.com/overl1te/cyberdeck/internal/pinlimit"
	"github.com/overl1te/cyberdeck/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfgStore, err := config.NewStore()
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	return New(Config{
		Addr:       ":0",
		Config:     cfgStore,
		Sessions:   session.New(cfgStore),
		PinLimiter: pinlimit.New(pinlimit.Config{WindowS: 60, MaxFails: 8, BlockS: 300, StaleS: 7200, MaxIPs: 4096}),
		Events:     eventbus.New(),
		Guard:      inputguard.New(),
		QR:         pairing.NewQRStore(2 * time.Minute),
		LocalIP:    func() string { return "127.0.0.1" },
		StartedAt:  time.Now(),
	})
}

func TestBuildMuxRoutesProtocolEndpoint(t *testing.T) {
	s := newTestServer(t)
	mux := s.buildMux()

	req := httptest.NewRequest(http.MethodGet, "/api/protocol", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBuildMuxRoutesLocalInfoRejectsRemote(t *testing.T) {
	s := newTestServer(t)
	mux := s.buildMux()

	req := httptest.NewRequest(http.MethodGet, "/api/local/info", nil)
	req.RemoteAddr = "203.0.113.5:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-loopback local API call, got %d", rec.Code)
	}
}

func TestBuildMuxUnknownRouteReturns404(t *testing.T) {
	s := newTestServer(t)
	mux := s.buildMux()

	req := httptest.NewRequest(http.MethodGet, "/api/does/not/exist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTeardownIsIdempotentWithoutListener(t *testing.T) {
	s := newTestServer(t)
	s.Teardown()
	s.Teardown()
}
