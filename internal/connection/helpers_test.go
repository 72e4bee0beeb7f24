package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// testServer fakes the telemetry server and the IP lookup service.
type testServer struct {
	*httptest.Server
	mux *http.ServeMux

	provisions atomic.Int32
	requests   atomic.Int32

	// setup replaces the default registration handler when set.
	setup http.HandlerFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{mux: http.NewServeMux()}
	ts.mux.HandleFunc("GET /ip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7"}`))
	})
	ts.mux.HandleFunc("POST /setup/{name}", func(w http.ResponseWriter, r *http.Request) {
		ts.provisions.Add(1)
		if ts.setup != nil {
			ts.setup(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Credential{NodeName: r.PathValue("name"), Token: "issued-token"})
	})
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		ts.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) config(dir string) Config {
	return Config{
		CredentialsPath:       filepath.Join(dir, "credentials.json"),
		ProvisioningTokenPath: filepath.Join(dir, "provtok.json"),
		URLBase:               ts.URL,
		DeviceSerial:          "serial-0001",
		IPLookupURL:           ts.URL + "/ip",
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeCredential(t *testing.T, path string, cred Credential) {
	t.Helper()
	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, string(data))
}

// newProvisionedConnection returns a Connection that loaded an existing credential.
func newProvisionedConnection(t *testing.T, ts *testServer, mutate func(*Config)) *Connection {
	t.Helper()
	dir := t.TempDir()
	cfg := ts.config(dir)
	if mutate != nil {
		mutate(&cfg)
	}
	writeCredential(t, cfg.CredentialsPath, Credential{NodeName: "d3s_TESTNODE01", Token: "secret-token"})

	conn, err := New(context.Background(), cfg, WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return conn
}

type provisionerFunc func(ctx context.Context) (Credential, error)

func (f provisionerFunc) Provision(ctx context.Context) (Credential, error) { return f(ctx) }
