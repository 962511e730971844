package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure OverrideStore implements the interface.
var _ driven.OverrideStore = (*OverrideStore)(nil)

// OverrideStore is a TOML-backed implementation of the runtime override
// layer, the highest precedence source in settings resolution. The file
// is read once at startup; edits require a restart.
type OverrideStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]string
}

// NewOverrideStore creates a TOML-based override store.
// If configDir is empty, defaults to ~/.docrelay/config.toml.
func NewOverrideStore(configDir string) (*OverrideStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".docrelay")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &OverrideStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]string),
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// Get retrieves an override value by key.
func (s *OverrideStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// All returns every override key/value pair.
func (s *OverrideStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]string, len(s.data))
	for k, v := range s.data {
		all[k] = v
	}
	return all
}

// Load reads configuration from the TOML file.
func (s *OverrideStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - that's fine, start empty
			s.data = make(map[string]string)
			return nil
		}
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return err
	}

	// Flatten nested tables into dot-notation keys matching the
	// settings registry (e.g. [convert] renderer_url -> convert.renderer_url).
	s.data = make(map[string]string)
	for key, value := range flattenMap(loaded, "") {
		s.data[key] = stringify(value)
	}
	return nil
}

// Path returns the configuration file path.
func (s *OverrideStore) Path() string {
	return s.filePath
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			// Recursively flatten nested maps
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// stringify renders a TOML scalar as the string form the settings
// resolver works with.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
