package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/version"
)

// Params is a flat mapping of runtime parameters.
type Params map[string]any

// Override source tags.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// protectedKeys belong to the credential and transport subsystems. No
// override source may change them.
var protectedKeys = map[string]struct{}{
	"token":                   {},
	"sensor_name":             {},
	"credentials_path":        {},
	"provisioning_token_path": {},
	"params_path":             {},
	"url_base":                {},
	"post_url":                {},
	"ping_url":                {},
	"params_url":              {},
	"device_serial":           {},
}

// IsProtectedKey reports whether key is reserved.
func IsProtectedKey(key string) bool {
	_, ok := protectedKeys[key]
	return ok
}

// ProtectedKeys returns the reserved key names in sorted order.
func ProtectedKeys() []string {
	keys := make([]string, 0, len(protectedKeys))
	for k := range protectedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SourceResult is the outcome of one override source.
type SourceResult struct {
	Source  string
	Applied []string
	Skipped []string
	Err     error
}

// ParamReport describes a ResolveParams run.
type ParamReport struct {
	Local  SourceResult
	Remote SourceResult
}

// Errors returns the non-nil source errors.
func (r ParamReport) Errors() []error {
	var errs []error
	for _, sr := range []SourceResult{r.Local, r.Remote} {
		if sr.Err != nil {
			errs = append(errs, sr.Err)
		}
	}
	return errs
}

// ErrNoParamsFile is reported when no local params file is configured or present.
var ErrNoParamsFile = errors.New("no local params file")

// ResolveParams applies the local file overrides and then the remote
// overrides to base and returns it. It never fails: every source problem
// is logged and recorded in the report, and the remaining sources still run.
func (c *Connection) ResolveParams(ctx context.Context, base Params) (Params, ParamReport) {
	if base == nil {
		base = Params{}
	}

	report := ParamReport{
		Local:  SourceResult{Source: SourceLocal},
		Remote: SourceResult{Source: SourceRemote},
	}

	if local, err := readParamsFile(c.cfg.ParamsPath); err != nil {
		report.Local.Err = err
		if errors.Is(err, ErrNoParamsFile) {
			logging.Debug("No local parameter overrides", zap.String("path", c.cfg.ParamsPath))
		} else {
			logging.Warn("Local parameter overrides ignored", zap.String("path", c.cfg.ParamsPath), zap.Error(err))
		}
	} else {
		applyOverrides(base, local, &report.Local)
	}

	if remote, err := c.fetchRemoteParams(ctx); err != nil {
		report.Remote.Err = err
		logging.Warn("Remote parameter overrides ignored", zap.Error(err), zap.String("hint", Hint(err)))
	} else {
		applyOverrides(base, remote, &report.Remote)
	}

	return base, report
}

func applyOverrides(dst, src Params, res *SourceResult) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if IsProtectedKey(k) {
			res.Skipped = append(res.Skipped, k)
			logging.Warn("Protected parameter not overridden", zap.String("source", res.Source), zap.String("key", k))
			continue
		}
		dst[k] = src[k]
		res.Applied = append(res.Applied, k)
		logging.LogOverride(res.Source, k, src[k])
	}
}

// readParamsFile parses a flat YAML or JSON mapping.
func readParamsFile(path string) (Params, error) {
	if path == "" {
		return nil, ErrNoParamsFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoParamsFile, path)
		}
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	var params Params
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, NewParseError("local params", "params file is not a key-value mapping", err)
	}
	return params, nil
}

func (c *Connection) fetchRemoteParams(ctx context.Context) (Params, error) {
	endpoint := c.currentParamsURL()
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, NewConfigurationError(fmt.Sprintf("params_url %q is invalid", endpoint))
	}
	q := u.Query()
	q.Set("token", c.Credential().Token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ParamsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, NewParseError("params", "failed to create params request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logging.LogHTTPExchange("params", req.Method, u.String(), 0, time.Since(start), "")
		return nil, ClassifyNetworkError("params", err)
	}
	defer func() { _ = resp.Body.Close() }()
	logging.LogHTTPExchange("params", req.Method, u.String(), resp.StatusCode, time.Since(start), "")

	if !httpOK(resp.StatusCode) {
		return nil, NewRemoteRejectionError("params", resp.StatusCode)
	}

	var params Params
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&params); err != nil {
		return nil, NewParseError("params", "response is not a JSON mapping", err)
	}
	return params, nil
}
