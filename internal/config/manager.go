package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"paperslides/internal/logging"
)

var (
	// ErrConfigDirNotFound is returned when the config directory does not exist.
	ErrConfigDirNotFound = errors.New("config directory not found")
	// ErrConfigNotFound is returned for an unknown config name.
	ErrConfigNotFound = errors.New("config not found")
	// ErrKeyNotFound is returned when a key path does not resolve.
	ErrKeyNotFound = errors.New("config key not found")
	// ErrConfigExists is returned by Save when overwrite is false.
	ErrConfigExists = errors.New("config file already exists")
)

// Manager holds every YAML document of a config directory, keyed by file
// stem (model_config.yaml -> "model_config").
type Manager struct {
	dir     string
	configs map[string]map[string]any
}

// NewManager loads *.yaml and *.yml files from dir. Malformed files are
// logged and skipped.
func NewManager(dir string) (*Manager, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrConfigDirNotFound, dir)
	}

	m := &Manager{dir: dir, configs: make(map[string]map[string]any)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		path := filepath.Join(dir, e.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryBoot).Error("Failed to read config %s: %v", path, err)
			continue
		}
		doc := make(map[string]any)
		if err := yaml.Unmarshal(data, &doc); err != nil {
			logging.Get(logging.CategoryBoot).Error("Failed to parse config %s: %v", path, err)
			continue
		}
		m.configs[name] = doc
		logging.Get(logging.CategoryBoot).Debug("Loaded config %s from %s", name, path)
	}

	return m, nil
}

// Dir returns the managed directory.
func (m *Manager) Dir() string { return m.dir }

// Names returns the loaded config names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a whole config document.
func (m *Manager) Get(name string) (map[string]any, error) {
	doc, ok := m.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	return doc, nil
}

// GetNested walks keys through nested mappings of the named config.
func (m *Manager) GetNested(name string, keys ...string) (any, error) {
	doc, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	var cur any = doc
	for i, key := range keys {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrKeyNotFound, name, strings.Join(keys[:i+1], "."))
		}
		cur, ok = node[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrKeyNotFound, name, strings.Join(keys[:i+1], "."))
		}
	}
	return cur, nil
}

// Update sets a top-level key, creating the config if needed. The change
// is in memory until Save.
func (m *Manager) Update(name, key string, value any) {
	doc, ok := m.configs[name]
	if !ok {
		doc = make(map[string]any)
		m.configs[name] = doc
	}
	doc[key] = value
}

// Save writes the named config to <dir>/<name>.yaml.
func (m *Manager) Save(name string, overwrite bool) error {
	doc, err := m.Get(name)
	if err != nil {
		return err
	}
	path := filepath.Join(m.dir, name+".yaml")
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", name, err)
	}
	logging.Get(logging.CategoryBoot).Info("Saved config %s to %s", name, path)
	return nil
}

// All returns every loaded config.
func (m *Manager) All() map[string]map[string]any {
	out := make(map[string]map[string]any, len(m.configs))
	for k, v := range m.configs {
		out[k] = v
	}
	return out
}

// Merge combines the named configs left to right; later keys win.
func (m *Manager) Merge(names ...string) (map[string]any, error) {
	merged := make(map[string]any)
	for _, name := range names {
		doc, err := m.Get(name)
		if err != nil {
			return nil, err
		}
		for k, v := range doc {
			merged[k] = v
		}
	}
	return merged, nil
}
