package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/version"
)

// RequestIDHeader carries a per-request identifier for server-side correlation.
const RequestIDHeader = "X-Request-ID"

type requestKind int

const (
	kindPing requestKind = iota
	kindPush
)

func (k requestKind) String() string {
	switch k {
	case kindPing:
		return "ping"
	case kindPush:
		return "push"
	default:
		return "request"
	}
}

// Result describes a completed HTTP exchange.
type Result struct {
	StatusCode int
	Body       []byte
	RequestID  string
	Elapsed    time.Duration
}

// OK reports whether the server answered with a 2xx status.
func (r *Result) OK() bool {
	return r != nil && httpOK(r.StatusCode)
}

// String returns the status line and elapsed time.
func (r *Result) String() string {
	if r == nil {
		return "no response"
	}
	return fmt.Sprintf("%s in %s", statusText(r.StatusCode), r.Elapsed.Round(time.Millisecond))
}

// PushPayload is the JSON body sent by Push.
type PushPayload struct {
	SensorData any           `json:"sensor_data"`
	SensorName string        `json:"sensor_name"`
	Token      string        `json:"token"`
	Source     string        `json:"source"`
	Date       string        `json:"date"`
	SourceIP   string        `json:"source_ip"`
	Hostname   string        `json:"hostname"`
	Uptime     float64       `json:"uptime"`
	Stats      StatsSnapshot `json:"stats"`
}

// Ping posts a form-encoded liveness message.
//
// A transport failure returns a nil Result and a TransportFailure error.
// A non-2xx answer returns the Result together with a RemoteRejection
// error. Attempts are counted in both cases; only rejections count as
// ping failures.
func (c *Connection) Ping(ctx context.Context) (*Result, error) {
	cred := c.Credential()
	snap := c.stats.Snapshot()

	form := url.Values{}
	form.Set("sensor_name", cred.NodeName)
	form.Set("token", cred.Token)
	form.Set("source", c.cfg.DeviceType)
	form.Set("date", c.now().Format(time.RFC3339))
	form.Set("source_ip", c.identity.IP)
	form.Set("hostname", c.identity.Hostname)
	form.Set("uptime", strconv.FormatFloat(c.Uptime().Seconds(), 'f', 0, 64))
	for k, v := range snap.formValues() {
		form.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PingURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewParseError("ping", "failed to create ping request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.send(req, kindPing)
}

// Push posts sensorData, embedded verbatim, as a JSON document.
//
// Failures are reported the same way as for Ping. A sensorData value that
// cannot be marshalled is rejected before any attempt is counted.
func (c *Connection) Push(ctx context.Context, sensorData any) (*Result, error) {
	cred := c.Credential()

	payload := PushPayload{
		SensorData: sensorData,
		SensorName: cred.NodeName,
		Token:      cred.Token,
		Source:     c.cfg.DeviceType,
		Date:       c.now().Format(time.RFC3339),
		SourceIP:   c.identity.IP,
		Hostname:   c.identity.Hostname,
		Uptime:     c.Uptime().Seconds(),
		Stats:      c.stats.Snapshot(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewParseError("push", "sensor data cannot be encoded as JSON", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PostURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewParseError("push", "failed to create push request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(req, kindPush)
}

// send performs one attempt and updates the counters. The request context
// must stay alive until send returns because the body is read here.
func (c *Connection) send(req *http.Request, kind requestKind) (*Result, error) {
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("User-Agent", version.UserAgent())

	c.stats.attempt(kind)
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.stats.unreachable()
		logging.LogHTTPExchange(kind.String(), req.Method, req.URL.String(), 0, time.Since(start), requestID)
		return nil, ClassifyNetworkError(kind.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	result := &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		RequestID:  requestID,
		Elapsed:    time.Since(start),
	}
	logging.LogHTTPExchange(kind.String(), req.Method, req.URL.String(), resp.StatusCode, result.Elapsed, requestID)
	if readErr != nil {
		logging.Debug("Response body truncated", zap.String("op", kind.String()), zap.Error(readErr))
	}

	if !httpOK(resp.StatusCode) {
		c.stats.rejected(kind)
		logging.LogStats("Telemetry counters", c.stats.Snapshot().Map())
		return result, NewRemoteRejectionError(kind.String(), resp.StatusCode)
	}

	c.stats.success()
	return result, nil
}
