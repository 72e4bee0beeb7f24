package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
)

// Credential is the server-issued device identity.
type Credential struct {
	NodeName string `json:"sensor_name"`
	Token    string `json:"token"`
}

// Valid reports whether the credential can authenticate requests.
func (c Credential) Valid() bool {
	return c.Token != ""
}

// Provisioner obtains a fresh credential from the server.
type Provisioner interface {
	Provision(ctx context.Context) (Credential, error)
}

// CredentialStore persists the credential as a JSON file.
type CredentialStore struct {
	Path string
}

// NewCredentialStore creates a store backed by path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{Path: path}
}

// Load reads and parses the credential file.
func (s *CredentialStore) Load() (Credential, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, NewParseError("load credentials", "credentials file is not valid JSON", err)
	}
	if !cred.Valid() {
		return Credential{}, NewParseError("load credentials", "credentials file has no token", nil)
	}
	return cred, nil
}

// Save writes the credential atomically: a temporary file in the same
// directory is written, synced and renamed over the target.
func (s *CredentialStore) Save(cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary credentials file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temporary credentials file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credentials file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to save credentials file: %w", err)
	}
	return nil
}

// LoadOrProvision returns the persisted credential, or provisions and
// persists a new one when the file is absent or unreadable. The boolean
// result reports whether provisioning happened.
//
// A provisioned credential that cannot be written is not returned: after a
// restart the device would register again and the server would hold two
// records for it.
func (s *CredentialStore) LoadOrProvision(ctx context.Context, p Provisioner) (Credential, bool, error) {
	cred, err := s.Load()
	if err == nil {
		return cred, false, nil
	}

	logging.Warn("Problem loading credentials, provisioning",
		zap.String("path", s.Path),
		zap.Error(err),
	)

	cred, err = s.provisionAndSave(ctx, p)
	if err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}

// Replace provisions a new credential and persists it, regardless of the
// current file content.
func (s *CredentialStore) Replace(ctx context.Context, p Provisioner) (Credential, error) {
	return s.provisionAndSave(ctx, p)
}

func (s *CredentialStore) provisionAndSave(ctx context.Context, p Provisioner) (Credential, error) {
	cred, err := p.Provision(ctx)
	if err != nil {
		return Credential{}, NewIdentityUnavailableError("self-provisioning failed", err)
	}

	if err := s.Save(cred); err != nil {
		return Credential{}, NewIdentityUnavailableError("could not store provisioned credentials", err)
	}

	logging.Info("Stored provisioned credentials",
		zap.String("path", s.Path),
		zap.String("node_name", cred.NodeName),
	)
	return cred, nil
}
