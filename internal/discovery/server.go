package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Server is a telemetry server found on the local network.
type Server struct {
	// Instance is the advertised mDNS instance name (e.g., "bench-stub")
	Instance string

	// Hostname is the mDNS hostname (e.g., "labhost.local.")
	Hostname string

	// IP prefers IPv4 when both families are advertised
	IP string

	Port int

	// Path is the API prefix from the "path" TXT record, "" for the root
	Path string

	// Metadata holds every TXT record; keys without a value map to ""
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the server
func (s *Server) String() string {
	return fmt.Sprintf("%s (%s) at %s", s.Instance, s.Hostname, s.BaseURL())
}

// BaseURL returns a value usable as url_base. The "scheme" TXT record
// selects https; anything else means http.
func (s *Server) BaseURL() string {
	scheme := "http"
	if strings.EqualFold(s.Metadata["scheme"], "https") {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(s.IP, strconv.Itoa(s.Port)) + s.Path
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (s *Server) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

// normalizePath turns a TXT path value into a URL path without trailing slash.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
