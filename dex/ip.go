// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"net"
	"strings"
)

// HostIP parses the host of an address that may have a port and, for IPv6,
// brackets. It returns nil if the host is not an IP address. Names are not
// resolved.
func HostIP(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		addr = host
	} else {
		// If SplitHostPort failed, IPv6 addresses may still have brackets.
		addr = strings.Trim(addr, "[]")
	}
	// Drop an IPv6 zone.
	if i := strings.IndexByte(addr, '%'); i >= 0 {
		addr = addr[:i]
	}
	return net.ParseIP(addr)
}

// IsLoopback reports whether the address is a loopback IP, e.g. an
// http.Request's RemoteAddr. "localhost" is a name, and is false.
func IsLoopback(addr string) bool {
	ip := HostIP(addr)
	return ip != nil && ip.IsLoopback()
}
