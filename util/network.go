package util

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeURL turns user input into a websocket URL.  An empty string
// yields fallback; a bare "host:port" gets the ws:// scheme; http and
// https are mapped to ws and wss.  Any other scheme is rejected.
func NormalizeURL(raw, fallback string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return "", fmt.Errorf("websocket URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid websocket URL %q: host is required", raw)
	}
	return u.String(), nil
}

// HostPort returns the host:port a websocket URL dials, filling in the
// scheme's default port.
func HostPort(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL %q: %w", wsURL, err)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "wss" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
