package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/pinlimit"
	"github.com/overl1te/cyberdeck/internal/session"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	cfgStore, err := config.NewStore()
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	return &API{
		Config:     cfgStore,
		Sessions:   session.New(cfgStore),
		PinLimiter: pinlimit.New(pinlimit.Config{WindowS: 60, MaxFails: 8, BlockS: 300, StaleS: 7200, MaxIPs: 4096}),
		Events:     eventbus.New(),
	}
}

func TestHandshakeRejectsWrongCode(t *testing.T) {
	a := newTestAPI(t)
	body := strings.NewReader(`{"code":"wrong","device_id":"d1","device_name":"phone"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/handshake", body)
	rec := httptest.NewRecorder()

	a.Handshake(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandshakeAcceptsCorrectCodeAndReturnsToken(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.Config.Get()
	body := strings.NewReader(`{"code":"` + cfg.PairingCode + `","device_id":"d1","device_name":"phone"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/handshake", body)
	req.RemoteAddr = "192.0.2.1:5555"
	rec := httptest.NewRecorder()

	a.Handshake(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("expected a non-empty token in response: %v", resp)
	}
	if _, ok := a.Sessions.GetSession(token, true); !ok {
		t.Fatalf("expected session store to hold the issued token")
	}
}

func TestPairingStatusRequiresToken(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/pairing_status", nil)
	rec := httptest.NewRecorder()

	a.PairingStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPairingStatusUnknownToken(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/pairing_status?token=nope", nil)
	rec := httptest.NewRecorder()

	a.PairingStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProtocolReturnsConfigProtocol(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/protocol", nil)
	rec := httptest.NewRecorder()

	a.Protocol(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["protocol_version"]; !ok {
		t.Fatalf("expected protocol_version field, got %v", resp)
	}
}
