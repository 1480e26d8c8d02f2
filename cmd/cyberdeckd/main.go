package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/overl1te/cyberdeck/internal/capture"
	"github.com/overl1te/cyberdeck/internal/config"
	"github.com/overl1te/cyberdeck/internal/eventbus"
	"github.com/overl1te/cyberdeck/internal/inputbackend"
	"github.com/overl1te/cyberdeck/internal/inputguard"
	"github.com/overl1te/cyberdeck/internal/netutil"
	"github.com/overl1te/cyberdeck/internal/pairing"
	"github.com/overl1te/cyberdeck/internal/pinlimit"
	"github.com/overl1te/cyberdeck/internal/power"
	"github.com/overl1te/cyberdeck/internal/server"
	"github.com/overl1te/cyberdeck/internal/session"
	"github.com/overl1te/cyberdeck/internal/stream"
	"github.com/overl1te/cyberdeck/internal/supervisor"
	"github.com/overl1te/cyberdeck/internal/tlsutil"
)

var flagDisplay = flag.String("display", "", "X11 display to capture (defaults to $DISPLAY)")

func isWaylandSession() bool {
	return os.Getenv("WAYLAND_DISPLAY") != "" || os.Getenv("XDG_SESSION_TYPE") == "wayland"
}

func main() {
	flag.Parse()

	cfgStore, err := config.NewStore()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := cfgStore.Get()

	sessions := session.New(cfgStore)
	if err := sessions.Load(); err != nil {
		log.Printf("session store: %v", err)
	}

	pinLimiter := pinlimit.New(pinlimit.Config{
		WindowS:  cfg.PinWindowS,
		MaxFails: cfg.PinMaxFails,
		BlockS:   cfg.PinBlockS,
		StaleS:   cfg.PinStateStaleS,
		MaxIPs:   cfg.PinStateMaxIPs,
	})

	events := eventbus.New()
	guard := inputguard.New()
	qr := pairing.NewQRStore(time.Duration(cfg.QRTokenTTLS) * time.Second)

	captures := capture.NewManager()
	display := *flagDisplay
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	native := capture.NewNativeBackend(display, true)
	if err := native.Start(); err != nil {
		log.Printf("native capture unavailable: %v", err)
	}
	captures.SetNative(native)

	var envOrder []string
	if cfg.MJPEGBackendOrder != "" {
		for _, part := range strings.Split(cfg.MJPEGBackendOrder, ",") {
			if v := strings.TrimSpace(part); v != "" {
				envOrder = append(envOrder, v)
			}
		}
	}
	negotiator := stream.NewNegotiator(envOrder, isWaylandSession)
	stabilizer := stream.NewWidthStabilizer(cfg.WidthLadder,
		time.Duration(cfg.MJPEGMinSwitchS*float64(time.Second)),
		cfg.MJPEGHysteresisRatio, cfg.MJPEGMinWidthFloor, true)

	sv := supervisor.New(supervisor.Config{
		SettleDelay:       150 * time.Millisecond,
		FirstChunkTimeout: time.Duration(cfg.StreamFirstChunkTimeoutS * float64(time.Second)),
		QueueSize:         cfg.StreamStdoutQueueSize,
	})

	powerRunner := power.New(power.Config{
		CommandTimeout: time.Duration(cfg.SystemCmdTimeoutS * float64(time.Second)),
	})

	input, err := inputbackend.New(display)
	if err != nil {
		log.Printf("input backend unavailable: %v", err)
		input = nil
	}

	srvCfg := server.Config{
		Addr:       addrFromConfig(cfg),
		Config:     cfgStore,
		Sessions:   sessions,
		PinLimiter: pinLimiter,
		Events:     events,
		Guard:      guard,
		QR:         qr,
		Captures:   captures,
		Negotiator: negotiator,
		Stabilizer: stabilizer,
		Supervisor: sv,
		Power:      powerRunner,
		LocalIP:    netutil.LocalIP,
		StartedAt:  time.Now(),
	}
	if input != nil {
		srvCfg.Input = input
	}
	if cfg.TLSEnabled {
		tc, err := tlsutil.Load(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			log.Fatalf("tls setup: %v", err)
		}
		srvCfg.TLS = tc
	}

	srv := server.New(srvCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down...", sig)
		srv.Teardown()
		native.Stop()
		if input != nil {
			input.Close()
		}
		os.Exit(0)
	}()

	log.Printf("cyberdeckd starting (display=%q, scheme=%s)", display, cfg.Scheme)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func addrFromConfig(cfg *config.Config) string {
	port := cfg.Port
	if port <= 0 {
		port = 8765
	}
	return ":" + strconv.Itoa(port)
}
