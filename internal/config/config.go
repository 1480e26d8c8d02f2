// Package config loads the CyberDeck server's runtime configuration from
// the process environment and keeps it reloadable without a restart.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-driven knob the server core reads.
// Loaded with envconfig.Process; see Normalize for derived fields
// envconfig can't express directly.
type Config struct {
	PairingCode       string `envconfig:"PAIRING_CODE" default:"1234"`
	PairingTTLS       int    `envconfig:"PAIRING_TTL_S" default:"0"`
	PairingSingleUse  bool   `envconfig:"PAIRING_SINGLE_USE" default:"false"`

	SessionTTLS     int    `envconfig:"SESSION_TTL_S" default:"0"`
	SessionIdleTTLS int    `envconfig:"SESSION_IDLE_TTL_S" default:"0"`
	MaxSessions     int    `envconfig:"MAX_SESSIONS" default:"0"`
	SessionFile     string `envconfig:"SESSION_FILE" default:"cyberdeck_sessions.json"`

	PinWindowS     int `envconfig:"PIN_WINDOW_S" default:"60"`
	PinMaxFails    int `envconfig:"PIN_MAX_FAILS" default:"8"`
	PinBlockS      int `envconfig:"PIN_BLOCK_S" default:"300"`
	PinStateStaleS int `envconfig:"PIN_STATE_STALE_S" default:"7200"`
	PinStateMaxIPs int `envconfig:"PIN_STATE_MAX_IPS" default:"4096"`

	Port     int    `envconfig:"PORT" default:"8765"`
	PortAuto bool   `envconfig:"PORT_AUTO" default:"false"`
	Scheme   string `envconfig:"SCHEME" default:"http"`
	TLSEnabled bool `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert  string `envconfig:"TLS_CERT" default:""`
	TLSKey   string `envconfig:"TLS_KEY" default:""`

	AllowQueryToken bool `envconfig:"ALLOW_QUERY_TOKEN" default:"false"`

	UploadMaxBytes   int64  `envconfig:"UPLOAD_MAX_BYTES" default:"0"`
	UploadAllowedExt string `envconfig:"UPLOAD_ALLOWED_EXT" default:""`
	FilesDir         string `envconfig:"FILES_DIR" default:"cyberdeck_files"`

	DeviceApprovalRequired bool `envconfig:"DEVICE_APPROVAL_REQUIRED" default:"false"`

	ProtocolVersion            int `envconfig:"PROTOCOL_VERSION" default:"3"`
	MinSupportedProtocolVersion int `envconfig:"MIN_SUPPORTED_PROTOCOL_VERSION" default:"1"`
	ServerVersion              string `envconfig:"SERVER_VERSION" default:"dev"`

	MJPEGWidthLadder      string  `envconfig:"MJPEG_WIDTH_LADDER" default:"1920,1600,1280,960,768,640"`
	MJPEGMinSwitchS        float64 `envconfig:"MJPEG_MIN_SWITCH_S" default:"2.5"`
	MJPEGHysteresisRatio   float64 `envconfig:"MJPEG_HYSTERESIS_RATIO" default:"0.12"`
	MJPEGMinWidthFloor     int     `envconfig:"MJPEG_MIN_WIDTH_FLOOR" default:"320"`
	MJPEGStaleKeepaliveS   float64 `envconfig:"MJPEG_STALE_KEEPALIVE_S" default:"1.0"`

	StreamFirstChunkTimeoutS float64 `envconfig:"STREAM_FIRST_CHUNK_TIMEOUT_S" default:"2.5"`
	StreamStdoutQueueSize    int     `envconfig:"STREAM_STDOUT_QUEUE_SIZE" default:"1"`
	MJPEGBackendOrder        string  `envconfig:"CYBERDECK_MJPEG_BACKEND_ORDER" default:""`

	SystemCmdTimeoutS float64 `envconfig:"CYBERDECK_SYSTEM_CMD_TIMEOUT_S" default:"3.0"`

	QRTokenTTLS int `envconfig:"QR_TOKEN_TTL_S" default:"120"`

	Hostname string `envconfig:"HOSTNAME" default:""`
	ServerID string `envconfig:"SERVER_ID" default:""`

	// Derived fields, filled in by Normalize.
	UploadAllowedExtSet map[string]bool  `ignored:"true"`
	WidthLadder         []int            `ignored:"true"`
	PairingExpiresAt    *time.Time       `ignored:"true"`
}

// Features is the capability map embedded in the protocol payload.
var Features = map[string]bool{
	"fileTransferSha256": true,
	"inputLock":          true,
	"qrPairing":          true,
	"adaptiveStream":     true,
	"systemPower":        true,
}

// ProtocolPayload is the JSON-shaped struct returned by GET /api/protocol
// and embedded into most other responses.
type ProtocolPayload struct {
	ProtocolVersion             int             `json:"protocol_version"`
	MinSupportedProtocolVersion int             `json:"min_supported_protocol_version"`
	ServerVersion               string          `json:"server_version"`
	Features                    map[string]bool `json:"features"`
}

// Normalize fills in derived fields after envconfig.Process has run.
func (c *Config) Normalize() {
	if c.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Hostname = h
		} else {
			c.Hostname = "cyberdeck"
		}
	}
	if c.ServerID == "" {
		c.ServerID = uuid.NewString()
	}

	c.UploadAllowedExtSet = normalizeExtensions(c.UploadAllowedExt)
	c.WidthLadder = parseWidthLadder(c.MJPEGWidthLadder)

	if c.PairingTTLS > 0 {
		exp := time.Now().Add(time.Duration(c.PairingTTLS) * time.Second)
		c.PairingExpiresAt = &exp
	} else {
		c.PairingExpiresAt = nil
	}
}

// Protocol returns the protocol payload for the current config snapshot.
func (c *Config) Protocol() ProtocolPayload {
	return ProtocolPayload{
		ProtocolVersion:             c.ProtocolVersion,
		MinSupportedProtocolVersion: c.MinSupportedProtocolVersion,
		ServerVersion:               c.ServerVersion,
		Features:                    Features,
	}
}

func normalizeExtensions(raw string) map[string]bool {
	out := map[string]bool{}
	for _, item := range strings.Split(raw, ",") {
		v := strings.ToLower(strings.TrimSpace(item))
		if v == "" {
			continue
		}
		if !strings.HasPrefix(v, ".") {
			v = "." + v
		}
		out[v] = true
	}
	return out
}

func parseWidthLadder(raw string) []int {
	seen := map[int]bool{}
	var out []int
	for _, item := range strings.Split(raw, ",") {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	if len(out) == 0 {
		out = []int{1920, 1600, 1280, 960, 768, 640}
	}
	return out
}

// Store holds the live Config behind a RWMutex so handlers can read a
// consistent snapshot while a reload swaps in a fresh one.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore loads the initial config from the environment.
func NewStore() (*Store, error) {
	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg}, nil
}

func loadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Get returns the current config snapshot. Callers must not mutate it.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ReloadFromEnv rebuilds the config from the environment and atomically
// swaps it in. Fields that represent rotating runtime state (the current
// pairing code) are preserved from the previous snapshot rather than reset,
// since "reload" means "re-read tunables", not "forget pairing state".
func (s *Store) ReloadFromEnv() (*Config, error) {
	next, err := loadFromEnv()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	prev := s.cfg
	next.PairingCode = prev.PairingCode
	next.PairingExpiresAt = prev.PairingExpiresAt
	next.ServerID = prev.ServerID
	s.cfg = next
	s.mu.Unlock()
	return next, nil
}

// Mutate applies fn to a copy of the current config and swaps it in. Used
// by the pairing module to rotate the code/expiry in place.
func (s *Store) Mutate(fn func(*Config)) *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.cfg
	fn(&cp)
	s.cfg = &cp
	return s.cfg
}
