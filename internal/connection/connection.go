package connection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
)

// Connection is the device's link to the telemetry server. It owns the
// credential, the network identity and the stats counters.
//
// A Connection is safe for concurrent use. Counters are atomic and the
// credential is only ever replaced as a whole.
type Connection struct {
	cfg         Config
	client      *http.Client
	store       *CredentialStore
	provisioner Provisioner
	identity    NetworkIdentity
	stats       Stats
	startedAt   time.Time
	now         func() time.Time

	mu        sync.RWMutex
	cred      Credential
	paramsURL string
}

// Option customizes a Connection at construction.
type Option func(*Connection)

// WithHTTPClient sets the client used for every request. Per-operation
// timeouts are applied through the request context, so the client itself
// does not need a Timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		if client != nil {
			c.client = client
		}
	}
}

// WithProvisioner replaces the default RegistrationClient.
func WithProvisioner(p Provisioner) Option {
	return func(c *Connection) {
		if p != nil {
			c.provisioner = p
		}
	}
}

// WithClock sets the time source used for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Connection) {
		if now != nil {
			c.now = now
		}
	}
}

// New validates cfg, resolves the network identity and loads the
// credential, provisioning the device if needed. Configuration problems
// are reported before any network I/O.
func New(ctx context.Context, cfg Config, opts ...Option) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Connection{
		cfg:       cfg,
		client:    &http.Client{},
		store:     NewCredentialStore(cfg.CredentialsPath),
		startedAt: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provisioner == nil {
		c.provisioner = NewRegistrationClient(cfg, c.client)
	}

	c.identity = ResolveNetworkIdentity(ctx, c.client, cfg.IPLookupURL, cfg.IPLookupTimeout)
	logging.Info("Resolved network identity",
		zap.String("ip", c.identity.IP),
		zap.String("hostname", c.identity.Hostname),
	)

	cred, provisioned, err := c.store.LoadOrProvision(ctx, c.provisioner)
	if err != nil {
		return nil, err
	}
	if provisioned {
		c.consumeProvisioningToken()
	}
	c.setCredential(cred)

	logging.Info("Connection ready",
		zap.String("node_name", cred.NodeName),
		zap.String("post_url", cfg.PostURL),
		zap.String("ping_url", cfg.PingURL),
		zap.Bool("provisioned", provisioned),
	)
	return c, nil
}

// Reprovision registers the device again and replaces the stored
// credential. The previous credential stays active if provisioning fails.
func (c *Connection) Reprovision(ctx context.Context) error {
	cred, err := c.store.Replace(ctx, c.provisioner)
	if err != nil {
		return err
	}
	c.consumeProvisioningToken()
	c.setCredential(cred)
	return nil
}

// Credential returns a copy of the active credential.
func (c *Connection) Credential() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// Identity returns the network identity resolved at construction.
func (c *Connection) Identity() NetworkIdentity {
	return c.identity
}

// Config returns the effective configuration, defaults included.
func (c *Connection) Config() Config {
	cfg := c.cfg
	cfg.ParamsURL = c.currentParamsURL()
	return cfg
}

// Stats returns a snapshot of the telemetry counters.
func (c *Connection) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// Uptime is the host uptime reported in telemetry payloads.
func (c *Connection) Uptime() time.Duration {
	return hostUptime(c.startedAt)
}

func (c *Connection) setCredential(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	c.paramsURL = c.cfg.paramsURLFor(cred.NodeName)
}

func (c *Connection) currentParamsURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paramsURL
}

func (c *Connection) consumeProvisioningToken() {
	if !c.cfg.ConsumeProvisioningToken {
		return
	}
	consumer, ok := c.provisioner.(interface{ ConsumeToken() error })
	if !ok {
		return
	}
	if err := consumer.ConsumeToken(); err != nil {
		logging.Warn("Provisioning token left in place", zap.Error(err))
	}
}
