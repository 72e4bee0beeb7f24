package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/muurk/sensorlink/internal/connection"
)

// EnvPrefix prefixes every environment variable, e.g. SENSORLINK_URL_BASE.
const EnvPrefix = "SENSORLINK"

// DefaultMonitorInterval is the ping cadence of the monitor command.
const DefaultMonitorInterval = time.Minute

// Settings is everything a sensorlink process reads at startup.
type Settings struct {
	Connection connection.Config `mapstructure:",squash"`

	LogLevel string          `mapstructure:"log_level"`
	Monitor  MonitorSettings `mapstructure:"monitor"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// MonitorSettings configures the monitor command.
type MonitorSettings struct {
	Interval    time.Duration `mapstructure:"interval"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	WatchParams bool          `mapstructure:"watch_params"`
}

// Key describes one configuration key.
type Key struct {
	Name    string
	Default any
	Usage   string
}

// Keys lists every supported key with its default. Viper only resolves
// environment variables for keys it knows about, so each one has a
// default even when it is empty.
var Keys = []Key{
	{"credentials_path", "", "Path of the persisted device credential (required)"},
	{"provisioning_token_path", "", "Path of the one-time provisioning token file"},
	{"params_path", "", "Path of the local parameter override file"},
	{"url_base", "", "Base URL of the telemetry server (required)"},
	{"post_url", "", "Push endpoint (default url_base + /newdata)"},
	{"ping_url", "", "Ping endpoint (default url_base + /stillhere)"},
	{"params_url", "", "Remote parameter endpoint (default url_base + /sensorparams/<node>)"},
	{"device_serial", "", "Opaque device serial number (required)"},
	{"device_type", connection.DefaultDeviceType, "Source tag sent with telemetry"},
	{"device_name", "", "Name used when provisioning (random when empty)"},
	{"ip_lookup_url", connection.DefaultIPLookupURL, "Public IP echo service"},
	{"ping_timeout", connection.DefaultPingTimeout, "Ping request timeout"},
	{"params_timeout", connection.DefaultParamsTimeout, "Remote parameter fetch timeout"},
	{"push_timeout", connection.DefaultPushTimeout, "Push request timeout"},
	{"provision_timeout", connection.DefaultProvisionTimeout, "Registration request timeout"},
	{"ip_lookup_timeout", connection.DefaultIPLookupTimeout, "Public IP lookup timeout"},
	{"consume_provisioning_token", false, "Rename the token file to <path>.used after provisioning"},
	{"log_level", "", "Log level (debug, info, warn, error); silent when empty"},
	{"monitor.interval", DefaultMonitorInterval, "Ping interval of the monitor command"},
	{"monitor.metrics_addr", "", "Listen address for Prometheus metrics (disabled when empty)"},
	{"monitor.watch_params", false, "Re-resolve parameters when the params file changes"},
}

// FlagName returns the command-line flag bound to a key.
func FlagName(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return strings.ReplaceAll(key, "_", "-")
}

// EnvName returns the environment variable bound to a key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load resolves the settings. Precedence, lowest first: defaults, config
// file, environment, flags that were set on the command line.
//
// When path is empty sensorlink.yaml is searched in SearchPaths and a
// missing file is not an error. An explicit path must exist.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	for _, k := range Keys {
		v.SetDefault(k.Name, k.Default)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for _, k := range Keys {
			f := flags.Lookup(FlagName(k.Name))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(k.Name, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	s.File = v.ConfigFileUsed()
	return &s, nil
}

// AddFlags registers one flag per key on fs. Only flags that are set
// explicitly override the file and environment.
func AddFlags(fs *pflag.FlagSet) {
	for _, k := range Keys {
		name := FlagName(k.Name)
		if fs.Lookup(name) != nil {
			continue
		}
		switch d := k.Default.(type) {
		case string:
			fs.String(name, d, k.Usage)
		case bool:
			fs.Bool(name, d, k.Usage)
		case time.Duration:
			fs.Duration(name, d, k.Usage)
		}
	}
}
