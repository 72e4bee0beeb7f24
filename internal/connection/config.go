package connection

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultDeviceType is the source tag sent with telemetry when no device type is configured
	DefaultDeviceType = "sensor"

	// DefaultIPLookupURL is the public IP echo service used for the network identity
	DefaultIPLookupURL = "https://ipinfo.io"

	// DefaultPingTimeout bounds a single ping request
	DefaultPingTimeout = 20 * time.Second

	// DefaultParamsTimeout bounds the remote parameter fetch
	DefaultParamsTimeout = 30 * time.Second

	// DefaultPushTimeout bounds a single push request
	DefaultPushTimeout = 60 * time.Second

	// DefaultProvisionTimeout bounds the registration request
	DefaultProvisionTimeout = 30 * time.Second

	// DefaultIPLookupTimeout bounds the public IP lookup at construction
	DefaultIPLookupTimeout = 10 * time.Second
)

// Endpoint suffixes appended to URLBase. The server must agree on them.
const (
	PostSuffix    = "/newdata"
	PingSuffix    = "/stillhere"
	ParamsSuffix  = "/sensorparams/"
	ProvisionPath = "/setup/"
)

// Config is the static configuration of a Connection.
// It is copied at construction and never modified afterwards.
type Config struct {
	CredentialsPath       string `yaml:"credentials_path" mapstructure:"credentials_path"`
	ProvisioningTokenPath string `yaml:"provisioning_token_path" mapstructure:"provisioning_token_path"`
	ParamsPath            string `yaml:"params_path" mapstructure:"params_path"`

	URLBase   string `yaml:"url_base" mapstructure:"url_base"`
	PostURL   string `yaml:"post_url" mapstructure:"post_url"`
	PingURL   string `yaml:"ping_url" mapstructure:"ping_url"`
	ParamsURL string `yaml:"params_url" mapstructure:"params_url"` // derived from the node name when empty

	DeviceSerial string `yaml:"device_serial" mapstructure:"device_serial"`
	DeviceType   string `yaml:"device_type" mapstructure:"device_type"`
	DeviceName   string `yaml:"device_name" mapstructure:"device_name"` // generated at provisioning when empty

	IPLookupURL string `yaml:"ip_lookup_url" mapstructure:"ip_lookup_url"`

	PingTimeout      time.Duration `yaml:"ping_timeout" mapstructure:"ping_timeout"`
	ParamsTimeout    time.Duration `yaml:"params_timeout" mapstructure:"params_timeout"`
	PushTimeout      time.Duration `yaml:"push_timeout" mapstructure:"push_timeout"`
	ProvisionTimeout time.Duration `yaml:"provision_timeout" mapstructure:"provision_timeout"`
	IPLookupTimeout  time.Duration `yaml:"ip_lookup_timeout" mapstructure:"ip_lookup_timeout"`

	// ConsumeProvisioningToken renames the token file to <path>.used once a
	// provisioned credential has been persisted.
	ConsumeProvisioningToken bool `yaml:"consume_provisioning_token" mapstructure:"consume_provisioning_token"`
}

// Validate checks the required fields. All problems are reported in one
// ConfigurationError.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.CredentialsPath) == "" {
		problems = append(problems, "credentials_path not provided")
	}
	if strings.TrimSpace(c.URLBase) == "" {
		problems = append(problems, "url_base not provided")
	} else if u, err := url.Parse(c.URLBase); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("url_base %q is not an absolute http(s) URL", c.URLBase))
	}
	if strings.TrimSpace(c.DeviceSerial) == "" {
		problems = append(problems, "device_serial not provided")
	}

	if len(problems) > 0 {
		return NewConfigurationError(strings.Join(problems, "; "))
	}
	return nil
}

// withDefaults returns a copy of c with every optional field filled in.
// ParamsURL is left alone because it depends on the credential.
func (c Config) withDefaults() Config {
	c.URLBase = strings.TrimRight(c.URLBase, "/")

	if c.PostURL == "" {
		c.PostURL = c.URLBase + PostSuffix
	}
	if c.PingURL == "" {
		c.PingURL = c.URLBase + PingSuffix
	}
	if c.DeviceType == "" {
		c.DeviceType = DefaultDeviceType
	}
	if c.IPLookupURL == "" {
		c.IPLookupURL = DefaultIPLookupURL
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.ParamsTimeout <= 0 {
		c.ParamsTimeout = DefaultParamsTimeout
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = DefaultPushTimeout
	}
	if c.ProvisionTimeout <= 0 {
		c.ProvisionTimeout = DefaultProvisionTimeout
	}
	if c.IPLookupTimeout <= 0 {
		c.IPLookupTimeout = DefaultIPLookupTimeout
	}
	return c
}

// paramsURLFor derives the remote params endpoint for a node.
func (c *Config) paramsURLFor(nodeName string) string {
	if c.ParamsURL != "" {
		return c.ParamsURL
	}
	return c.URLBase + ParamsSuffix + url.PathEscape(nodeName)
}
