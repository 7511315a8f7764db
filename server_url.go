package main

import (
	"fmt"
	"net"
	"strings"
)

// listenerURL returns the address a browser should open for the viewer.
// 1.- Normalise the configured address so the message always shows a reachable host:port pair.
// 2.- Wildcard hosts are advertised as localhost.
func listenerURL(address string) string {
	return fmt.Sprintf("http://%s/", normaliseHostPort(address))
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
