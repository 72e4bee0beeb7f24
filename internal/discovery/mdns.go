package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type advertised by telemetry servers
	ServiceType = "_sensorlink._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for server discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is assumed when an entry advertises port 0
	DefaultPort = 80
)

// Scanner handles mDNS server discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for the whole timeout and returns every server that
// answered, one entry per instance name.
func (s *Scanner) Scan(ctx context.Context) ([]*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		servers []*Server
		seen    = map[string]bool{}
	)

	err := s.browse(ctx, func(srv *Server) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[srv.Instance] {
			seen[srv.Instance] = true
			servers = append(servers, srv)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Server(nil), servers...), nil
}

// First returns the first server that answers, or an error when none does
// within the timeout.
func (s *Scanner) First(ctx context.Context) (*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Server, 1)
	err := s.browse(ctx, func(srv *Server) bool {
		select {
		case found <- srv:
		default:
		}
		cancel()
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case srv := <-found:
		return srv, nil
	case <-ctx.Done():
		// cancel() from the callback races with the send above
		select {
		case srv := <-found:
			return srv, nil
		default:
		}
		return nil, fmt.Errorf("no %s server found within %s", ServiceType, s.Timeout)
	}
}

// browse starts the resolver and feeds parsed entries to fn until fn
// returns false or the entries channel closes.
func (s *Scanner) browse(ctx context.Context, fn func(*Server) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			srv := parseServiceEntry(entry)
			if srv == nil {
				continue
			}
			if !fn(srv) {
				// keep draining so the resolver never blocks
				for range entries {
				}
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Server.
// Returns nil for entries without a usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Server {
	if entry == nil {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Server{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Path:         normalizePath(metadata["path"]),
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertise registers a telemetry server under ServiceType until ctx is
// done. path is published as the "path" TXT record.
func Advertise(ctx context.Context, instance string, port int, path string, extra ...string) error {
	txt := append([]string{"path=" + path}, extra...)
	srv, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	defer srv.Shutdown()

	<-ctx.Done()
	return nil
}
