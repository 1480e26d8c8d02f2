package netutil

import (
	"net"
	"testing"
)

func TestLocalIPReturnsParsableAddress(t *testing.T) {
	ip := LocalIP()
	if net.ParseIP(ip) == nil {
		t.Fatalf("expected a parsable IP, got %q", ip)
	}
}
