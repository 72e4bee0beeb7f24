package stubserver

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// paramsFile serves a YAML mapping, re-read whenever the file changes.
type paramsFile struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	cached  map[string]any
}

func (p *paramsFile) load() (map[string]any, error) {
	if p.path == "" {
		return map[string]any{}, nil
	}

	info, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat params file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && info.ModTime().Equal(p.modTime) {
		return p.cached, nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}
	params := map[string]any{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse params file: %w", err)
	}

	p.cached = params
	p.modTime = info.ModTime()
	return params, nil
}
