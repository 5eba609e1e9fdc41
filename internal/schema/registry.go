package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Registry holds the schemas served by a process, keyed by resource name.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*FilterSchema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*FilterSchema)}
}

// Register adds s, replacing any schema already registered for the same resource.
func (r *Registry) Register(s *FilterSchema) error {
	if s == nil || s.Resource == "" {
		return fmt.Errorf("%w: schema has no resource name", ErrInvalidSchema)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Resource]; exists {
		log.Debug().Str("resource", s.Resource).Msg("Replacing registered filter schema")
	}
	r.schemas[s.Resource] = s
	return nil
}

// Get returns the schema for resource.
func (r *Registry) Get(resource string) (*FilterSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[resource]
	return s, ok
}

// List returns all registered schemas sorted by resource name.
func (r *Registry) List() []*FilterSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*FilterSchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}

// LoadDir registers every .json, .yaml and .yml schema document in dir.
// Subdirectories are not searched. Returns the number of schemas loaded.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isSchemaFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		s, err := LoadFile(path)
		if err != nil {
			return loaded, err
		}
		if err := r.Register(s); err != nil {
			return loaded, fmt.Errorf("%s: %w", path, err)
		}

		log.Debug().
			Str("resource", s.Resource).
			Str("file", path).
			Int("fields", len(s.Fields)).
			Msg("Loaded filter schema")
		loaded++
	}

	return loaded, nil
}

// LoadFile loads a single JSON or YAML schema document.
func LoadFile(path string) (*FilterSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, path, err)
	}

	s, err := LoadFilterSchemaDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func isSchemaFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
