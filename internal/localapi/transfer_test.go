package localapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTriggerFileUnknownDevice(t *testing.T) {
	a := newTestAPI(t)
	body := strings.NewReader(`{"token":"nope","file_path":"/tmp/x.txt"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/local/trigger_file", body)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()

	a.TriggerFile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 (soft failure), got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false for unknown device, got %v", resp)
	}
	if resp["msg"] != "device_not_found" {
		t.Fatalf("expected device_not_found, got %v", resp["msg"])
	}
}

func TestTriggerFileOfflineWhenNoSocketRegistered(t *testing.T) {
	a := newTestAPI(t)
	token := a.Sessions.Authorize("dev1", "phone", "10.0.0.5", true)

	body := strings.NewReader(`{"token":"` + token + `","file_path":"/tmp/x.txt"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/local/trigger_file", body)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()

	a.TriggerFile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["msg"] != "offline" {
		t.Fatalf("expected offline, got %v", resp["msg"])
	}
}

func TestTriggerFileMissingFields(t *testing.T) {
	a := newTestAPI(t)
	body := strings.NewReader(`{"token":"","file_path":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/local/trigger_file", body)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()

	a.TriggerFile(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOriginsShutdownIsIdempotentWhenEmpty(t *testing.T) {
	o := NewOrigins()
	o.Shutdown()
	o.Shutdown()
}
