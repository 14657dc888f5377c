package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Catalog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Catalog holds every loaded profile, keyed by ID.
//
// Profiles are loaded once at startup and read-only afterwards.
// All methods are safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	logger   Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		profiles: make(map[string]*Profile),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the catalog.
func (c *Catalog) SetLogger(logger Logger) {
	c.logger = logger
}

// LoadDir loads every *.yaml / *.yml document under dir.
func (c *Catalog) LoadDir(dir string) (int, error) {
	return c.LoadFS(os.DirFS(dir), ".")
}

// LoadFS loads every *.yaml / *.yml document under root in fsys.
//
// Invalid documents are skipped; the returned error joins every failure
// while the valid profiles remain loaded.
//
// Returns:
//   - int: number of profiles added
//   - error: joined per-file errors, or nil
func (c *Catalog) LoadFS(fsys fs.FS, root string) (int, error) {
	var (
		loaded int
		errs   []error
	)

	walkErr := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := path.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			return nil
		}

		prof, err := Parse(data, strings.TrimSuffix(path.Base(p), ext))
		if err != nil {
			c.logger.Warn("skipping invalid profile", "file", p, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			return nil
		}

		if err := c.Add(prof); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			return nil
		}
		loaded++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	c.logger.Info("profiles loaded", "count", loaded, "failed", len(errs))
	return loaded, errors.Join(errs...)
}

// Add registers a parsed profile.
func (c *Catalog) Add(p *Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.profiles[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProfile, p.ID)
	}
	c.profiles[p.ID] = p
	return nil
}

// Get returns a profile by ID.
func (c *Catalog) Get(id string) (*Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}

// All returns every profile sorted by ID.
func (c *Catalog) All() []*Profile {
	c.mu.RLock()
	out := make([]*Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of loaded profiles.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}
