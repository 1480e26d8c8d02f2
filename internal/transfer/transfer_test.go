package transfer

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNormalizeFilenameStripsDirectories(t *testing.T) {
	if got := NormalizeFilename("../../etc/passwd"); got != "passwd" {
		t.Fatalf("expected passwd, got %q", got)
	}
}

func TestNormalizeFilenameReplacesReservedNames(t *testing.T) {
	got := NormalizeFilename("con.txt")
	if !strings.HasPrefix(got, "_") {
		t.Fatalf("expected reserved name to be prefixed, got %q", got)
	}
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	_, err := Upload(dir, "a.exe", strings.NewReader("x"), map[string]bool{".txt": true}, 0, "")
	var uerr *UploadError
	if err == nil {
		t.Fatalf("expected error")
	}
	if !asUploadError(err, &uerr) || uerr.Code != "upload_extension_not_allowed" {
		t.Fatalf("expected upload_extension_not_allowed, got %v", err)
	}
}

func TestUploadEnforcesMaxBytes(t *testing.T) {
	dir := t.TempDir()
	body := bytes.Repeat([]byte("a"), 100)
	_, err := Upload(dir, "a.txt", bytes.NewReader(body), nil, 10, "")
	var uerr *UploadError
	if !asUploadError(err, &uerr) || uerr.Code != "upload_too_large" {
		t.Fatalf("expected upload_too_large, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, got %v", entries)
	}
}

func TestUploadChecksumMismatchLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Upload(dir, "a.txt", strings.NewReader("hello"), nil, 0, "deadbeef")
	var uerr *UploadError
	if !asUploadError(err, &uerr) || uerr.Code != "upload_checksum_mismatch" {
		t.Fatalf("expected upload_checksum_mismatch, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, got %v", entries)
	}
}

func TestUploadCollisionRenames(t *testing.T) {
	dir := t.TempDir()
	if _, err := Upload(dir, "a.txt", strings.NewReader("first"), nil, 0, ""); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	res, err := Upload(dir, "a.txt", strings.NewReader("second"), nil, 0, "")
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if res.Filename != "a_1.txt" {
		t.Fatalf("expected a_1.txt, got %q", res.Filename)
	}
}

func asUploadError(err error, target **UploadError) bool {
	if e, ok := err.(*UploadError); ok {
		*target = e
		return true
	}
	return false
}

func TestServeRejectsWrongToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("payload"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	origin, offer, err := Serve(path, "", "http", "127.0.0.1", Presets["fast"])
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	defer origin.Stop()

	badURL := strings.Replace(offer.URL, offer.URL[strings.LastIndex(offer.URL, "t=")+2:], "wrong", 1)
	resp, err := http.Get(badURL)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestServeSuccessfulDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	payload := []byte("payload-data")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	origin, offer, err := Serve(path, "", "http", "127.0.0.1", Presets["fast"])
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	defer origin.Stop()

	resp, err := http.Get(offer.URL)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, payload) {
		t.Fatalf("body mismatch: got %q want %q", got, payload)
	}
	time.Sleep(20 * time.Millisecond)
}
