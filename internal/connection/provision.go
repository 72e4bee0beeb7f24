package connection

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/version"
)

const (
	// DeviceNamePrefix starts every generated device name
	DeviceNamePrefix = "d3s_"

	// DeviceNameSuffixLen is the number of random characters after the prefix
	DeviceNameSuffixLen = 10

	deviceNameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// ConsumedTokenSuffix is appended to the token file once it has been used
	ConsumedTokenSuffix = ".used"

	maxResponseBody = 1 << 20
)

// GenerateDeviceName returns DeviceNamePrefix followed by random uppercase
// letters and digits. Names are meant to be told apart by humans; they are
// not guaranteed unique and the server is free to reject a collision.
func GenerateDeviceName() string {
	var b strings.Builder
	b.WriteString(DeviceNamePrefix)
	limit := big.NewInt(int64(len(deviceNameAlphabet)))
	for i := 0; i < DeviceNameSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		b.WriteByte(deviceNameAlphabet[n.Int64()])
	}
	return b.String()
}

// RegistrationClient registers a device with the server using a one-time
// provisioning token.
type RegistrationClient struct {
	URLBase      string
	TokenPath    string
	DeviceSerial string
	DeviceName   string // generated per attempt when empty
	Timeout      time.Duration
	HTTPClient   *http.Client
}

var _ Provisioner = (*RegistrationClient)(nil)

// NewRegistrationClient builds a client from the connection config.
func NewRegistrationClient(cfg Config, client *http.Client) *RegistrationClient {
	cfg = cfg.withDefaults()
	return &RegistrationClient{
		URLBase:      cfg.URLBase,
		TokenPath:    cfg.ProvisioningTokenPath,
		DeviceSerial: cfg.DeviceSerial,
		DeviceName:   cfg.DeviceName,
		Timeout:      cfg.ProvisionTimeout,
		HTTPClient:   client,
	}
}

// ReadProvisioningToken reads the single JSON value stored in the token file.
// Strings are returned unquoted; any other JSON scalar is returned verbatim.
func ReadProvisioningToken(path string) (string, error) {
	if path == "" {
		return "", NewProvisioningError("provisioning_token_path not configured", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewProvisioningError("cannot read provisioning token", err)
	}

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", NewProvisioningError("provisioning token file is not a JSON value", err)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return strings.TrimSpace(string(raw)), nil
}

// Provision performs the registration exchange.
func (r *RegistrationClient) Provision(ctx context.Context) (Credential, error) {
	token, err := ReadProvisioningToken(r.TokenPath)
	if err != nil {
		return Credential{}, err
	}

	name := r.DeviceName
	if name == "" {
		name = GenerateDeviceName()
	}

	form := url.Values{
		"serial_number": {r.DeviceSerial},
		"provtok":       {token},
		"name":          {name},
	}
	endpoint := strings.TrimRight(r.URLBase, "/") + ProvisionPath + url.PathEscape(name)

	logging.Info("Self-provisioning device",
		zap.String("name", name),
		zap.String("serial", r.DeviceSerial),
		zap.String("url", endpoint),
	)

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, NewProvisioningError("failed to create registration request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := r.client().Do(req)
	if err != nil {
		logging.LogHTTPExchange("provision", req.Method, endpoint, 0, time.Since(start), "")
		return Credential{}, NewProvisioningError("registration request failed", ClassifyNetworkError("provision", err))
	}
	defer func() { _ = resp.Body.Close() }()
	logging.LogHTTPExchange("provision", req.Method, endpoint, resp.StatusCode, time.Since(start), "")

	if !httpOK(resp.StatusCode) {
		return Credential{}, NewProvisioningError("server refused registration", NewRemoteRejectionError("provision", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Credential{}, NewProvisioningError("failed to read registration response", err)
	}

	var cred Credential
	if err := json.Unmarshal(body, &cred); err != nil {
		return Credential{}, NewProvisioningError("registration response is not a credential",
			NewParseError("provision", "invalid JSON body", err))
	}
	if !cred.Valid() {
		return Credential{}, NewProvisioningError("registration response carries no token", nil)
	}
	if cred.NodeName == "" {
		cred.NodeName = name
	}
	return cred, nil
}

// ConsumeToken marks the provisioning token as used by renaming the file.
func (r *RegistrationClient) ConsumeToken() error {
	if r.TokenPath == "" {
		return nil
	}
	if err := os.Rename(r.TokenPath, r.TokenPath+ConsumedTokenSuffix); err != nil {
		return fmt.Errorf("failed to mark provisioning token as used: %w", err)
	}
	return nil
}

func (r *RegistrationClient) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func httpOK(status int) bool {
	return status >= 200 && status < 300
}

// statusText is used in log fields and CLI output.
func statusText(status int) string {
	return strconv.Itoa(status) + " " + http.StatusText(status)
}
