package controlplane

import (
	"fmt"
	"net"
	"strings"
)

// AddrToURL turns a listen address into the base url clients dial.
// An empty host means all interfaces.
func AddrToURL(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.Contains(addr, "://") {
		return "", fmt.Errorf("address %q must not contain a scheme", addr)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("address %q has no port", addr)
	}
	if host == "" {
		host = "0.0.0.0"
	}

	return "http://" + net.JoinHostPort(host, port), nil
}
