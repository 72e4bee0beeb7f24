package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/muurk/sensorlink/internal/connection"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join(xdg, "sensorlink") {
		t.Errorf("GetConfigDir() = %s", dir)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "sensorlink.yaml" {
		t.Errorf("GetConfigPath() = %s, want sensorlink.yaml", path)
	}

	paths := SearchPaths()
	if len(paths) != 3 || paths[0] != dir || paths[2] != SystemConfigDir {
		t.Errorf("SearchPaths() = %v", paths)
	}
}

func TestFlagAndEnvNames(t *testing.T) {
	tests := []struct {
		key, flag, env string
	}{
		{"url_base", "url-base", "SENSORLINK_URL_BASE"},
		{"consume_provisioning_token", "consume-provisioning-token", "SENSORLINK_CONSUME_PROVISIONING_TOKEN"},
		{"monitor.metrics_addr", "metrics-addr", "SENSORLINK_MONITOR_METRICS_ADDR"},
	}
	for _, tt := range tests {
		if got := FlagName(tt.key); got != tt.flag {
			t.Errorf("FlagName(%q) = %q, want %q", tt.key, got, tt.flag)
		}
		if got := EnvName(tt.key); got != tt.env {
			t.Errorf("EnvName(%q) = %q, want %q", tt.key, got, tt.env)
		}
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	s, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.File != "" && !strings.HasPrefix(s.File, SystemConfigDir) {
		t.Errorf("File = %q, want none", s.File)
	}
	if s.Connection.PushTimeout != connection.DefaultPushTimeout {
		t.Errorf("PushTimeout = %v, want %v", s.Connection.PushTimeout, connection.DefaultPushTimeout)
	}
	if s.Connection.DeviceType != connection.DefaultDeviceType {
		t.Errorf("DeviceType = %q", s.Connection.DeviceType)
	}
	if s.Monitor.Interval != DefaultMonitorInterval {
		t.Errorf("Monitor.Interval = %v", s.Monitor.Interval)
	}
	if s.LogLevel != "" {
		t.Errorf("LogLevel = %q", s.LogLevel)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensorlink.yaml")
	content := `
url_base: https://file.example/api
device_serial: from-file
credentials_path: /var/lib/sensorlink/creds.json
ping_timeout: 5s
device_type: from-file
monitor:
  interval: 10s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SENSORLINK_DEVICE_SERIAL", "from-env")
	t.Setenv("SENSORLINK_DEVICE_TYPE", "from-env")
	t.Setenv("SENSORLINK_MONITOR_METRICS_ADDR", ":9100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--device-type=from-flag", "--interval=2s"}); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	c := s.Connection
	if c.URLBase != "https://file.example/api" {
		t.Errorf("URLBase = %q, want file value", c.URLBase)
	}
	if c.DeviceSerial != "from-env" {
		t.Errorf("DeviceSerial = %q, env should override file", c.DeviceSerial)
	}
	if c.DeviceType != "from-flag" {
		t.Errorf("DeviceType = %q, flag should override env", c.DeviceType)
	}
	if c.PingTimeout != 5*time.Second {
		t.Errorf("PingTimeout = %v, want 5s", c.PingTimeout)
	}
	if c.PushTimeout != connection.DefaultPushTimeout {
		t.Errorf("PushTimeout = %v, unset flag must not override default", c.PushTimeout)
	}
	if s.Monitor.Interval != 2*time.Second {
		t.Errorf("Monitor.Interval = %v, want 2s", s.Monitor.Interval)
	}
	if s.Monitor.MetricsAddr != ":9100" {
		t.Errorf("Monitor.MetricsAddr = %q", s.Monitor.MetricsAddr)
	}
	if s.File != path {
		t.Errorf("File = %q, want %q", s.File, path)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("Load() with missing explicit file should fail")
	}
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "sensorlink.yaml")
	if err := WriteExample(path); err != nil {
		t.Fatalf("WriteExample() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# sensorlink configuration.", "url_base:", "push_timeout: 1m0s", "monitor:", "# Ping interval of the monitor command"} {
		if !strings.Contains(text, want) {
			t.Errorf("example config missing %q:\n%s", want, text)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}
	if s.Connection.PushTimeout != connection.DefaultPushTimeout || s.Monitor.Interval != DefaultMonitorInterval {
		t.Errorf("example round trip lost defaults: %+v", s)
	}

	if err := WriteExample(path); err == nil {
		t.Error("WriteExample() should refuse to overwrite")
	}
}
