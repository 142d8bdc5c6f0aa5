package explorations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source looks up exploration content.
type Source interface {
	// Get returns the latest version of an exploration.
	Get(ctx context.Context, id string) (*Exploration, error)
	// GetVersion returns a specific version of an exploration.
	GetVersion(ctx context.Context, id string, version int) (*Exploration, error)
	// GetMany returns the latest version of each known id. Unknown ids are skipped.
	GetMany(ctx context.Context, ids []string) (map[string]*Exploration, error)
	// IDs returns every known exploration id in sorted order.
	IDs(ctx context.Context) ([]string, error)
}

// Catalog is an in-process Source holding every loaded exploration version.
type Catalog struct {
	mu       sync.RWMutex
	versions map[string]map[int]*Exploration
}

// NewCatalog creates a Catalog holding the given explorations.
func NewCatalog(exps ...*Exploration) (*Catalog, error) {
	c := &Catalog{versions: make(map[string]map[int]*Exploration)}
	for _, e := range exps {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadDir reads every *.yaml and *.yml file in dir into a Catalog.
func LoadDir(dir string) (*Catalog, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", dir, err)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	c, _ := NewCatalog()
	for _, path := range paths {
		e, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := c.Add(e); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return c, nil
}

// LoadFile parses one exploration YAML file.
func LoadFile(path string) (*Exploration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exploration: %w", err)
	}

	e, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

// Parse decodes and validates an exploration YAML document.
func Parse(data []byte) (*Exploration, error) {
	var e Exploration
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse exploration: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Add registers an exploration version, replacing any existing copy of the same version.
func (c *Catalog) Add(e *Exploration) error {
	if e == nil {
		return fmt.Errorf("nil exploration")
	}
	if err := e.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[e.ID] == nil {
		c.versions[e.ID] = make(map[int]*Exploration)
	}
	c.versions[e.ID][e.Version] = e
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*Exploration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var latest *Exploration
	for _, e := range c.versions[id] {
		if latest == nil || e.Version > latest.Version {
			latest = e
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return latest, nil
}

func (c *Catalog) GetVersion(ctx context.Context, id string, version int) (*Exploration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.versions[id][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s version %d", ErrNotFound, id, version)
	}
	return e, nil
}

func (c *Catalog) GetMany(ctx context.Context, ids []string) (map[string]*Exploration, error) {
	result := make(map[string]*Exploration, len(ids))
	for _, id := range ids {
		e, err := c.Get(ctx, id)
		if err != nil {
			continue
		}
		result[id] = e
	}
	return result, nil
}

func (c *Catalog) IDs(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.versions))
	for id := range c.versions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
