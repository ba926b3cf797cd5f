package capability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

const (
	// InitializerStem is the reserved stem of the discovery source's initializer unit
	InitializerStem = "_init"

	// DefaultSuffix is the file suffix of a capability unit
	DefaultSuffix = ".yaml"
)

// Options configures a Registry
type Options struct {
	Dir     string
	Suffix  string
	Exclude []string
	Kinds   map[string]Factory
	Logger  zerolog.Logger
}

// ReloadStats summarizes a rescan of the discovery source
type ReloadStats struct {
	Total   int      `json:"total"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Invalid []string `json:"invalid"`
}

// DescriptorError reports a failure while introspecting a capability's metadata
type DescriptorError struct {
	Name string
	Err  error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("describe %s: %v", e.Name, e.Err)
}

func (e *DescriptorError) Unwrap() error {
	return e.Err
}

type unitEntry struct {
	unit Unit
	err  error
}

// Registry maps capability names to units scanned from the discovery source
// and to capabilities registered in-process. Units take precedence over
// in-process registrations with the same name.
type Registry struct {
	dir     string
	suffix  string
	exclude []string
	kinds   map[string]Factory
	loader  *ManifestLoader
	logger  zerolog.Logger

	reloadMu sync.Mutex

	mu     sync.RWMutex
	units  map[string]unitEntry
	static map[string]Capability
}

// NewRegistry creates a registry. The table is empty until Reload is called.
func NewRegistry(opts Options) *Registry {
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}

	kinds := make(map[string]Factory, len(opts.Kinds))
	for kind, factory := range opts.Kinds {
		kinds[kind] = factory
	}

	return &Registry{
		dir:     opts.Dir,
		suffix:  opts.Suffix,
		exclude: opts.Exclude,
		kinds:   kinds,
		loader:  NewManifestLoader(opts.Logger),
		logger:  opts.Logger.With().Str("component", "registry").Logger(),
		units:   make(map[string]unitEntry),
		static:  make(map[string]Capability),
	}
}

// Dir returns the discovery source directory
func (r *Registry) Dir() string {
	return r.dir
}

// Register adds an in-process capability
func (r *Registry) Register(name string, c Capability) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("capability name %q cannot contain path separators", name)
	}
	if c == nil {
		return fmt.Errorf("capability %s cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.static[name] = c
	r.logger.Info().Str("tool", name).Msg("Capability registered")
	return nil
}

// Unregister removes an in-process capability
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.static, name)
}

// Reload rescans the discovery source and atomically replaces the unit table.
// Concurrent reloads run one at a time.
func (r *Registry) Reload() (ReloadStats, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	units, err := r.scan()
	if err != nil {
		return ReloadStats{}, err
	}

	r.mu.Lock()
	previous := r.units
	r.units = units
	r.mu.Unlock()

	stats := ReloadStats{Total: len(units)}
	for name, entry := range units {
		if _, ok := previous[name]; !ok {
			stats.Added = append(stats.Added, name)
		}
		if entry.err != nil {
			stats.Invalid = append(stats.Invalid, name)
		}
	}
	for name := range previous {
		if _, ok := units[name]; !ok {
			stats.Removed = append(stats.Removed, name)
		}
	}
	sort.Strings(stats.Added)
	sort.Strings(stats.Removed)
	sort.Strings(stats.Invalid)

	r.logger.Info().
		Str("dir", r.dir).
		Int("total", stats.Total).
		Strs("added", stats.Added).
		Strs("removed", stats.Removed).
		Strs("invalid", stats.Invalid).
		Msg("Capability table reloaded")

	return stats, nil
}

// scan reads every unit in the discovery source
func (r *Registry) scan() (map[string]unitEntry, error) {
	units := make(map[string]unitEntry)
	if r.dir == "" {
		return units, nil
	}

	info, err := os.Stat(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug().Str("dir", r.dir).Msg("Discovery directory does not exist, table is empty")
			return units, nil
		}
		return nil, fmt.Errorf("failed to stat discovery directory %s: %w", r.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery directory %s: %w", r.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := r.unitName(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		manifest, err := r.loader.LoadManifest(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("tool", name).Str("path", path).Msg("Invalid capability unit")
			units[name] = unitEntry{unit: Unit{Name: name, Path: path}, err: err}
			continue
		}
		units[name] = unitEntry{unit: manifest.Unit(name, path)}
	}

	return units, nil
}

// unitName returns the capability name for a file, or false when the file
// is not a listable unit
func (r *Registry) unitName(file string) (string, bool) {
	if !strings.HasSuffix(file, r.suffix) {
		return "", false
	}
	stem := strings.TrimSuffix(file, r.suffix)
	if stem == "" || stem == InitializerStem {
		return "", false
	}
	for _, pattern := range r.exclude {
		if matched, err := doublestar.Match(pattern, file); err == nil && matched {
			return "", false
		}
	}
	return stem, true
}

// ListNames returns the names of all capabilities, sorted
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.units)+len(r.static))
	for name := range r.units {
		names = append(names, name)
	}
	for name := range r.static {
		if _, shadowed := r.units[name]; !shadowed {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names
}

// Len returns the number of listed capabilities
func (r *Registry) Len() int {
	return len(r.ListNames())
}

// Resolve builds the capability registered under name. It returns an error
// wrapping ErrNotFound when name is absent.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	entry, isUnit := r.units[name]
	static := r.static[name]
	r.mu.RUnlock()

	if !isUnit {
		if static == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return static, nil
	}

	if entry.err != nil {
		return nil, fmt.Errorf("capability '%s' is invalid: %w", name, entry.err)
	}

	factory, ok := r.kinds[entry.unit.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown capability kind '%s'", entry.unit.Kind)
	}

	c, err := factory(entry.unit)
	if err != nil {
		return nil, fmt.Errorf("failed to build capability '%s': %w", name, err)
	}
	if c == nil {
		return nil, fmt.Errorf("capability kind '%s' produced no implementation", entry.unit.Kind)
	}

	return c, nil
}

// Describe builds the Descriptor for name. Introspection failures never
// propagate: the synthesized default is returned instead. The only error
// is one wrapping ErrNotFound.
func (r *Registry) Describe(name string) (Descriptor, error) {
	desc, err := r.describe(name)
	if err == nil {
		return desc, nil
	}

	var descErr *DescriptorError
	if !errors.As(err, &descErr) {
		return Descriptor{}, err
	}

	r.logger.Debug().Err(err).Str("tool", name).Msg("Using default descriptor")
	return DefaultDescriptor(name), nil
}

func (r *Registry) describe(name string) (desc Descriptor, err error) {
	r.mu.RLock()
	entry, isUnit := r.units[name]
	_, isStatic := r.static[name]
	r.mu.RUnlock()

	if !isUnit && !isStatic {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &DescriptorError{Name: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	c, resolveErr := r.Resolve(name)
	if resolveErr != nil {
		return Descriptor{}, &DescriptorError{Name: name, Err: resolveErr}
	}

	desc = DefaultDescriptor(name)
	if d, ok := c.(Describer); ok {
		if text := d.Description(); text != "" {
			desc.Description = text
		}
		if schema := d.InputSchema(); schema != nil {
			desc.InputSchema = schema
		}
	}
	if isUnit {
		if entry.unit.Description != "" {
			desc.Description = entry.unit.Description
		}
		if entry.unit.Schema != nil {
			desc.InputSchema = entry.unit.Schema
		}
	}

	if _, err := CompileSchema(desc.InputSchema); err != nil {
		return Descriptor{}, &DescriptorError{Name: name, Err: err}
	}

	return desc, nil
}
