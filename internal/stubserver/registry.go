package stubserver

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/sensorlink/internal/connection"
)

var (
	// ErrTokenRejected is returned when a provisioning token is unknown or used.
	ErrTokenRejected = errors.New("provisioning token rejected")

	// ErrNameTaken is returned when another serial already owns the name.
	ErrNameTaken = errors.New("device name already registered")
)

// Device is one registered device as seen by the server.
type Device struct {
	Name         string    `json:"sensor_name"`
	Serial       string    `json:"serial_number"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
	Pushes       int       `json:"pushes"`
	Pings        int       `json:"pings"`

	token string
}

// Registry keeps issued credentials in memory.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]*Device
	byToken map[string]*Device
	tokens  map[string]bool // provisioning token -> used
	open    bool
	clock   func() time.Time
}

// NewRegistry creates a registry. With no accepted tokens every
// registration is allowed; otherwise each token works exactly once.
func NewRegistry(acceptedTokens []string) *Registry {
	r := &Registry{
		byName:  make(map[string]*Device),
		byToken: make(map[string]*Device),
		tokens:  make(map[string]bool),
		open:    len(acceptedTokens) == 0,
		clock:   time.Now,
	}
	for _, t := range acceptedTokens {
		r.tokens[t] = false
	}
	return r
}

// Register issues a credential for name. Re-registering the same serial
// under its own name replaces the token.
func (r *Registry) Register(name, serial, provtok string) (connection.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		used, known := r.tokens[provtok]
		if !known || used {
			return connection.Credential{}, ErrTokenRejected
		}
	}

	if existing, ok := r.byName[name]; ok {
		if existing.Serial != serial {
			return connection.Credential{}, ErrNameTaken
		}
		delete(r.byToken, existing.token)
	}

	if !r.open {
		r.tokens[provtok] = true
	}

	d := &Device{
		Name:         name,
		Serial:       serial,
		RegisteredAt: r.clock(),
		token:        uuid.NewString(),
	}
	r.byName[name] = d
	r.byToken[d.token] = d

	return connection.Credential{NodeName: name, Token: d.token}, nil
}

// Authenticate returns the device owning token. When name is not empty
// it must match the device.
func (r *Registry) Authenticate(name, token string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byToken[token]
	if !ok || (name != "" && d.Name != name) {
		return Device{}, false
	}
	return *d, true
}

// Touch records a push or ping from an authenticated device.
func (r *Registry) Touch(token string, push bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byToken[token]
	if !ok {
		return
	}
	d.LastSeen = r.clock()
	if push {
		d.Pushes++
	} else {
		d.Pings++
	}
}

// Devices returns a copy of every registered device sorted by name.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Device, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
