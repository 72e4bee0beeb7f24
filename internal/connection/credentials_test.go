package connection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStore_SaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(filepath.Join(dir, "state", "credentials.json"))

	want := Credential{NodeName: "d3s_ABCDEFGHIJ", Token: "t0k"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "credentials.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only credentials.json", names)
	}

	info, err := os.Stat(store.Path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestCredentialStore_SaveReplacesWholesale(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))
	writeFile(t, store.Path, `{"sensor_name":"old","token":"old","extra":"field"}`)

	if err := store.Save(Credential{NodeName: "new", Token: "new"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(store.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"sensor_name":"new","token":"new"}` {
		t.Errorf("file content = %s", data)
	}
}

func TestCredentialStore_Load(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantParse bool
	}{
		{"invalid json", "{", true},
		{"empty token", `{"sensor_name":"x","token":""}`, true},
		{"missing token", `{"sensor_name":"x"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewCredentialStore(filepath.Join(t.TempDir(), "c.json"))
			writeFile(t, store.Path, tt.content)
			_, err := store.Load()
			if IsParseError(err) != tt.wantParse {
				t.Errorf("Load() error = %v, parse error = %v, want %v", err, IsParseError(err), tt.wantParse)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		store := NewCredentialStore(filepath.Join(t.TempDir(), "none.json"))
		if _, err := store.Load(); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load() error = %v, want not exist", err)
		}
	})
}

func TestCredentialStore_LoadOrProvision(t *testing.T) {
	t.Run("existing file", func(t *testing.T) {
		store := NewCredentialStore(filepath.Join(t.TempDir(), "c.json"))
		writeCredential(t, store.Path, Credential{NodeName: "n", Token: "t"})

		p := provisionerFunc(func(ctx context.Context) (Credential, error) {
			t.Error("provisioner must not be called")
			return Credential{}, nil
		})
		cred, provisioned, err := store.LoadOrProvision(context.Background(), p)
		if err != nil || provisioned || cred.Token != "t" {
			t.Errorf("LoadOrProvision() = %+v, %v, %v", cred, provisioned, err)
		}
	})

	t.Run("provisioned and persisted", func(t *testing.T) {
		store := NewCredentialStore(filepath.Join(t.TempDir(), "c.json"))
		p := provisionerFunc(func(ctx context.Context) (Credential, error) {
			return Credential{NodeName: "d3s_NEW", Token: "fresh"}, nil
		})
		cred, provisioned, err := store.LoadOrProvision(context.Background(), p)
		if err != nil || !provisioned {
			t.Fatalf("LoadOrProvision() = %+v, %v, %v", cred, provisioned, err)
		}
		stored, err := store.Load()
		if err != nil || stored != cred {
			t.Errorf("stored = %+v, %v, want %+v", stored, err, cred)
		}
	})

	t.Run("unwritable location", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		writeFile(t, blocker, "not a directory")
		store := NewCredentialStore(filepath.Join(blocker, "c.json"))

		p := provisionerFunc(func(ctx context.Context) (Credential, error) {
			return Credential{NodeName: "d3s_NEW", Token: "fresh"}, nil
		})
		_, _, err := store.LoadOrProvision(context.Background(), p)
		if !IsIdentityUnavailable(err) {
			t.Errorf("LoadOrProvision() error = %v, want identity unavailable", err)
		}
	})
}
