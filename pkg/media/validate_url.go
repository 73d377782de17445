package media

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// validateDownloadURL restricts media downloads to hosts we actually talk
// to: the WhatsApp gateway, loopback, and single-label container hosts.
func (h *handler) validateDownloadURL(rawURL string) error {
	if h.gatewayBaseURL == "" {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	gateway, err := url.Parse(h.gatewayBaseURL)
	if err != nil {
		return fmt.Errorf("invalid gateway base URL: %w", err)
	}

	if strings.EqualFold(u.Hostname(), gateway.Hostname()) && u.Port() == gateway.Port() {
		return nil
	}

	if ip := net.ParseIP(u.Hostname()); ip != nil && ip.IsLoopback() {
		return nil
	}
	if u.Hostname() == "localhost" {
		return nil
	}

	if isContainerHost(u.Hostname()) && u.Port() == gateway.Port() {
		return nil
	}

	return fmt.Errorf("download host not allowed: %s", u.Hostname())
}

// isContainerHost reports whether hostname looks like a bare container name
// on a private network rather than a public DNS name.
func isContainerHost(hostname string) bool {
	if net.ParseIP(hostname) != nil {
		return false
	}
	if strings.Contains(hostname, ".") {
		return false
	}
	if hostname == "localhost" {
		return false
	}
	return len(hostname) > 0
}
