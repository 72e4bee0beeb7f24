package connection

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"testing"
)

func TestGenerateDeviceName(t *testing.T) {
	pattern := regexp.MustCompile(`^d3s_[A-Z0-9]{10}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name := GenerateDeviceName()
		if !pattern.MatchString(name) {
			t.Fatalf("GenerateDeviceName() = %q, does not match %s", name, pattern)
		}
		seen[name] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct names out of 50", len(seen))
	}
}

func TestReadProvisioningToken(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"string", `"abc123"`, "abc123", false},
		{"string with newline", "\"abc123\"\n", "abc123", false},
		{"number", `424242`, "424242", false},
		{"not json", `abc123`, "", true},
		{"empty", ``, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "provtok.json")
			writeFile(t, path, tt.content)

			got, err := ReadProvisioningToken(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadProvisioningToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !IsProvisioningError(err) {
				t.Errorf("error %v should be a provisioning error", err)
			}
			if got != tt.want {
				t.Errorf("ReadProvisioningToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistrationClient_Provision(t *testing.T) {
	ts := newTestServer(t)
	var gotForm map[string]string
	ts.setup = func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = r.ParseForm()
		gotForm = map[string]string{
			"path":          r.PathValue("name"),
			"serial_number": r.PostForm.Get("serial_number"),
			"provtok":       r.PostForm.Get("provtok"),
			"name":          r.PostForm.Get("name"),
		}
		_, _ = w.Write([]byte(`{"token":"issued"}`))
	}

	tokenPath := filepath.Join(t.TempDir(), "provtok.json")
	writeFile(t, tokenPath, `"one-time"`)

	rc := &RegistrationClient{
		URLBase:      ts.URL + "/",
		TokenPath:    tokenPath,
		DeviceSerial: "serial-9",
		DeviceName:   "bench-unit",
		HTTPClient:   ts.Client(),
	}
	cred, err := rc.Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	want := map[string]string{"path": "bench-unit", "serial_number": "serial-9", "provtok": "one-time", "name": "bench-unit"}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("%s = %q, want %q", k, gotForm[k], v)
		}
	}
	if cred.Token != "issued" || cred.NodeName != "bench-unit" {
		t.Errorf("Provision() = %+v, node name should default to the registered name", cred)
	}
}

func TestRegistrationClient_ProvisionFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(error) bool
	}{
		{"server refuses", http.StatusConflict, `{"error":"duplicate"}`, IsRemoteRejection},
		{"garbage body", http.StatusOK, `<html>`, IsParseError},
		{"no token", http.StatusOK, `{"sensor_name":"x"}`, func(err error) bool { return err == nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.setup = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}
			tokenPath := filepath.Join(t.TempDir(), "provtok.json")
			writeFile(t, tokenPath, `"tok"`)

			rc := &RegistrationClient{URLBase: ts.URL, TokenPath: tokenPath, DeviceSerial: "s", HTTPClient: ts.Client()}
			_, err := rc.Provision(context.Background())
			if !IsProvisioningError(err) {
				t.Fatalf("Provision() error = %v, want provisioning error", err)
			}
			var pe *Error
			if !errors.As(err, &pe) || !tt.checkFn(pe.Err) {
				t.Errorf("cause of %v not classified as expected", err)
			}
		})
	}
}

func TestRegistrationClient_ConsumeToken(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "provtok.json")
	writeFile(t, tokenPath, `"tok"`)

	rc := &RegistrationClient{TokenPath: tokenPath}
	if err := rc.ConsumeToken(); err != nil {
		t.Fatalf("ConsumeToken() error = %v", err)
	}
	if _, err := ReadProvisioningToken(tokenPath); err == nil {
		t.Error("token should no longer be readable at its original path")
	}
	if tok, err := ReadProvisioningToken(tokenPath + ConsumedTokenSuffix); err != nil || tok != "tok" {
		t.Errorf("consumed token = %q, %v", tok, err)
	}
}
