package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/version"
)

// UnknownIdentity is reported for an IP address or hostname that could not be resolved.
const UnknownIdentity = "unknown"

// NetworkIdentity is the device's public address and local hostname,
// resolved once per process.
type NetworkIdentity struct {
	IP       string `json:"source_ip"`
	Hostname string `json:"hostname"`
}

// ResolveNetworkIdentity looks up the public IP and hostname. It never fails;
// each part degrades to UnknownIdentity on its own.
func ResolveNetworkIdentity(ctx context.Context, client *http.Client, lookupURL string, timeout time.Duration) NetworkIdentity {
	return NetworkIdentity{
		IP:       lookupPublicIP(ctx, client, lookupURL, timeout),
		Hostname: localHostname(),
	}
}

func lookupPublicIP(ctx context.Context, client *http.Client, lookupURL string, timeout time.Duration) string {
	if lookupURL == "" {
		return UnknownIdentity
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		logging.Warn("Invalid IP lookup URL", zap.String("url", lookupURL), zap.Error(err))
		return UnknownIdentity
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		logging.Warn("Public IP lookup failed", zap.Error(err))
		return UnknownIdentity
	}
	defer func() { _ = resp.Body.Close() }()

	if !httpOK(resp.StatusCode) {
		logging.Warn("Public IP lookup rejected", zap.Int("status_code", resp.StatusCode))
		return UnknownIdentity
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil || body.IP == "" {
		logging.Warn("Public IP lookup returned no address", zap.Error(err))
		return UnknownIdentity
	}
	return body.IP
}

func localHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return UnknownIdentity
	}
	return name
}

// hostUptime returns the system uptime from /proc/uptime. On platforms
// without procfs it reports time since fallbackStart.
func hostUptime(fallbackStart time.Time) time.Duration {
	data, err := os.ReadFile("/proc/uptime")
	if err == nil {
		if i := bytes.IndexByte(data, ' '); i > 0 {
			if secs, err := strconv.ParseFloat(string(data[:i]), 64); err == nil {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return time.Since(fallbackStart)
}
