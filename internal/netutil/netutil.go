// Package netutil has small best-effort host-network helpers used by the
// local API and pairing payloads.
package netutil

import "net"

// LocalIP returns the host's outbound LAN IPv4 address, discovered by
// opening a UDP socket toward a non-routed address and reading back the
// kernel-chosen source address (no packets are actually sent). Falls
// back to loopback if no route is available.
func LocalIP() string {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
