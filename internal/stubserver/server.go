package stubserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/sensorlink/internal/discovery"
	"github.com/muurk/sensorlink/internal/logging"
)

// Config holds the server configuration
type Config struct {
	Addr        string   // listen address, e.g. ":8080"
	CertPath    string   // TLS certificate (optional)
	KeyPath     string   // TLS private key (optional)
	ParamsPath  string   // YAML parameters served to every device (optional)
	Tokens      []string // accepted provisioning tokens; empty accepts any
	CapturePath string   // JSON lines file of every event (optional)

	// Advertise registers the server over mDNS under Instance.
	Advertise bool
	Instance  string
}

// Server is a bench implementation of the sensorlink telemetry server.
type Server struct {
	config    Config
	registry  *Registry
	hub       *Hub
	params    *paramsFile
	router    chi.Router
	tlsConfig *tls.Config
}

// New creates a new Server instance
func New(config Config) (*Server, error) {
	hub, err := NewHub(config.CapturePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		registry: NewRegistry(config.Tokens),
		hub:      hub,
		params:   &paramsFile{path: config.ParamsPath},
		router:   chi.NewRouter(),
	}

	if config.CertPath != "" || config.KeyPath != "" {
		s.tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			_ = hub.Close()
			return nil, err
		}
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the device registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("Stub server listening",
			zap.String("addr", ln.Addr().String()),
			zap.Bool("tls", s.tlsConfig != nil),
			zap.Int("accepted_tokens", len(s.config.Tokens)),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logging.Info("Shutting down stub server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Feed connections are hijacked; closing the hub ends them.
		_ = s.hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if s.config.Advertise {
		g.Go(func() error {
			_, portStr, _ := net.SplitHostPort(ln.Addr().String())
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("cannot advertise listener %s: %w", ln.Addr(), err)
			}
			extra := []string{}
			if s.tlsConfig != nil {
				extra = append(extra, "scheme=https")
			}
			return discovery.Advertise(ctx, s.instance(), port, "/", extra...)
		})
	}

	err := g.Wait()
	logging.Sync()
	return err
}

func (s *Server) instance() string {
	if s.config.Instance != "" {
		return s.config.Instance
	}
	return "sensorlink-stub"
}
