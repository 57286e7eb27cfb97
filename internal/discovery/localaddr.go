package discovery

import (
	"net"
)

// localAddress resolves this host's outbound-facing IP by opening an
// unconnected UDP socket toward an unroutable destination and reading back
// the kernel-chosen source address. No packet is ever actually sent (UDP
// "connect" only binds a local address/route, per spec.md §4.2 and the
// original src/core/peer_discovery.py get_local_ip trick). Falls back to
// loopback if the dial itself fails (e.g. no network interfaces at all).
func localAddress() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
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
