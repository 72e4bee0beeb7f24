package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var fileMutex sync.Mutex

const exampleHeader = `sensorlink configuration.

Every key can also be set through the environment (SENSORLINK_<KEY>,
e.g. SENSORLINK_URL_BASE) or a command-line flag (--url-base).
Precedence: defaults < this file < environment < flags.`

// WriteExample writes a commented configuration skeleton listing every key
// with its default. The file is written to a temporary path and renamed.
// An existing file is never overwritten.
func WriteExample(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := exampleYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func exampleYAML() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, HeadComment: exampleHeader}
	sections := map[string]*yaml.Node{}

	for _, k := range Keys {
		parent := root
		name := k.Name
		if i := strings.IndexByte(name, '.'); i >= 0 {
			section := name[:i]
			name = name[i+1:]
			if sections[section] == nil {
				sections[section] = &yaml.Node{Kind: yaml.MappingNode}
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: section},
					sections[section])
			}
			parent = sections[section]
		}

		parent.Content = append(parent.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name, HeadComment: k.Usage},
			scalarNode(k.Default))
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to render example config: %w", err)
	}
	return out, nil
}

func scalarNode(v any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch d := v.(type) {
	case string:
		n.Tag = "!!str"
		n.Value = d
		if d == "" {
			n.Style = yaml.DoubleQuotedStyle
		}
	case bool:
		n.Tag = "!!bool"
		n.Value = strconv.FormatBool(d)
	case time.Duration:
		n.Tag = "!!str"
		n.Value = d.String()
	default:
		n.Value = fmt.Sprint(d)
	}
	return n
}
