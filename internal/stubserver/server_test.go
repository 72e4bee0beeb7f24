package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/sensorlink/internal/connection"
)

func newTestStub(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Hub().Close()
	})
	return s, ts
}

func postForm(t *testing.T, endpoint string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(endpoint, form)
	if err != nil {
		t.Fatalf("POST %s: %v", endpoint, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]string{"tok-a", "tok-b"})

	cred, err := r.Register("d3s_ONE", "serial-1", "tok-a")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if cred.NodeName != "d3s_ONE" || cred.Token == "" {
		t.Fatalf("Register() = %+v", cred)
	}

	if _, err := r.Register("d3s_TWO", "serial-2", "tok-a"); !errors.Is(err, ErrTokenRejected) {
		t.Errorf("reused token: err = %v, want ErrTokenRejected", err)
	}
	if _, err := r.Register("d3s_TWO", "serial-2", "unknown"); !errors.Is(err, ErrTokenRejected) {
		t.Errorf("unknown token: err = %v, want ErrTokenRejected", err)
	}
	if _, err := r.Register("d3s_ONE", "serial-9", "tok-b"); !errors.Is(err, ErrNameTaken) {
		t.Errorf("name collision: err = %v, want ErrNameTaken", err)
	}

	if _, ok := r.Authenticate("d3s_ONE", cred.Token); !ok {
		t.Error("Authenticate() rejected the issued token")
	}
	if _, ok := r.Authenticate("d3s_OTHER", cred.Token); ok {
		t.Error("Authenticate() accepted a token for another name")
	}

	r.Touch(cred.Token, true)
	r.Touch(cred.Token, false)
	r.Touch(cred.Token, false)
	devs := r.Devices()
	if len(devs) != 1 || devs[0].Pushes != 1 || devs[0].Pings != 2 {
		t.Errorf("Devices() = %+v", devs)
	}
}

func TestRegistry_OpenReRegistration(t *testing.T) {
	r := NewRegistry(nil)
	first, err := r.Register("d3s_ONE", "serial-1", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Register("d3s_ONE", "serial-1", "anything")
	if err != nil {
		t.Fatalf("re-registration of the same serial: %v", err)
	}
	if first.Token == second.Token {
		t.Error("re-registration should issue a new token")
	}
	if _, ok := r.Authenticate("", first.Token); ok {
		t.Error("old token still valid after re-registration")
	}
}

func TestHandlers_Rejections(t *testing.T) {
	_, ts := newTestStub(t, Config{Tokens: []string{"good"}})

	tests := []struct {
		name   string
		do     func() *http.Response
		status int
	}{
		{
			name: "setup with wrong token",
			do: func() *http.Response {
				return postForm(t, ts.URL+"/setup/d3s_X", url.Values{"provtok": {"bad"}, "serial_number": {"s"}})
			},
			status: http.StatusForbidden,
		},
		{
			name: "setup with mismatched name",
			do: func() *http.Response {
				return postForm(t, ts.URL+"/setup/d3s_X", url.Values{"provtok": {"good"}, "name": {"d3s_Y"}})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "ping with unknown token",
			do: func() *http.Response {
				return postForm(t, ts.URL+"/stillhere", url.Values{"sensor_name": {"d3s_X"}, "token": {"nope"}})
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "push with invalid body",
			do: func() *http.Response {
				resp, err := http.Post(ts.URL+"/newdata", "application/json", strings.NewReader("{"))
				if err != nil {
					t.Fatal(err)
				}
				t.Cleanup(func() { _ = resp.Body.Close() })
				return resp
			},
			status: http.StatusBadRequest,
		},
		{
			name: "params with unknown token",
			do: func() *http.Response {
				resp, err := http.Get(ts.URL + "/sensorparams/d3s_X?token=nope")
				if err != nil {
					t.Fatal(err)
				}
				t.Cleanup(func() { _ = resp.Body.Close() })
				return resp
			},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := tt.do(); resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestIPEcho(t *testing.T) {
	_, ts := newTestStub(t, Config{})
	resp, err := http.Get(ts.URL + "/ip")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.IP != "127.0.0.1" {
		t.Errorf("ip = %q, want 127.0.0.1", body.IP)
	}
}

// TestRoundTrip drives the stub with a real Connection: provision, push,
// ping and parameter resolution.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	paramsPath := filepath.Join(dir, "server-params.yaml")
	if err := os.WriteFile(paramsPath, []byte("interval: 15\nmode: eco\ntoken: hijack\n"), 0600); err != nil {
		t.Fatal(err)
	}
	capturePath := filepath.Join(dir, "capture.jsonl")

	s, ts := newTestStub(t, Config{Tokens: []string{"bench-token"}, ParamsPath: paramsPath, CapturePath: capturePath})

	tokenPath := filepath.Join(dir, "provtok.json")
	if err := os.WriteFile(tokenPath, []byte(`"bench-token"`), 0600); err != nil {
		t.Fatal(err)
	}

	feed, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/feed", nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer feed.Close()

	ctx := context.Background()
	conn, err := connection.New(ctx, connection.Config{
		CredentialsPath:       filepath.Join(dir, "credentials.json"),
		ProvisioningTokenPath: tokenPath,
		URLBase:               ts.URL,
		DeviceSerial:          "serial-bench",
		DeviceName:            "d3s_BENCH00001",
		IPLookupURL:           ts.URL + "/ip",
	})
	if err != nil {
		t.Fatalf("connection.New() error = %v", err)
	}
	if got := conn.Credential().NodeName; got != "d3s_BENCH00001" {
		t.Errorf("NodeName = %q", got)
	}
	if got := conn.Identity().IP; got != "127.0.0.1" {
		t.Errorf("Identity().IP = %q", got)
	}

	if _, err := conn.Push(ctx, map[string]any{"temp": 21.5}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if _, err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	params, report := conn.ResolveParams(ctx, connection.Params{"interval": 60, "debug": false})
	if errs := report.Errors(); len(errs) != 1 || !errors.Is(errs[0], connection.ErrNoParamsFile) {
		t.Errorf("report errors = %v, want only the missing local file", errs)
	}
	if params["interval"] != float64(15) || params["mode"] != "eco" || params["debug"] != false {
		t.Errorf("params = %v", params)
	}
	if _, ok := params["token"]; ok {
		t.Error("protected key applied from the server")
	}

	devs := s.Registry().Devices()
	if len(devs) != 1 || devs[0].Pushes != 1 || devs[0].Pings != 1 {
		t.Errorf("Devices() = %+v", devs)
	}

	stats := conn.Stats()
	if stats.PushAttempts != 1 || stats.PingAttempts != 1 || stats.PushFailures != 0 || stats.PingFailures != 0 {
		t.Errorf("Stats() = %+v", stats)
	}

	var kinds []string
	_ = feed.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(kinds) < 4 {
		var e Event
		if err := feed.ReadJSON(&e); err != nil {
			t.Fatalf("feed read after %v: %v", kinds, err)
		}
		kinds = append(kinds, e.Kind)
	}
	want := []string{EventProvision, EventPush, EventPing, EventParams}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("feed kinds = %v, want %v", kinds, want)
	}

	data, err := os.ReadFile(capturePath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 4 {
		t.Errorf("capture lines = %d, want 4", lines)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/devices")
	if err != nil {
		t.Fatalf("GET /devices: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestNew_TLSRequiresBothFiles(t *testing.T) {
	if _, err := New(Config{CertPath: "cert.pem"}); err == nil {
		t.Error("New() with a certificate but no key should fail")
	}
}
