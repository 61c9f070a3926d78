package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hamba/avro/v2"

	"github.com/gofhir/fhiravro/cache"
	"github.com/gofhir/fhiravro/schemas"
)

// ErrNotFound is returned when no schema exists for a resource type.
var ErrNotFound = errors.New("schema not found")

// Registry loads schemas by resource type from a file system and keeps the
// parsed schemas in an LRU cache. It is safe for concurrent use.
type Registry struct {
	fsys  fs.FS
	cache *cache.Cache[string, avro.Schema]
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	fsys     fs.FS
	capacity int
}

// WithFS loads schemas from fsys instead of the built-in schemas.
func WithFS(fsys fs.FS) RegistryOption {
	return func(o *registryOptions) { o.fsys = fsys }
}

// WithDir loads schemas from a directory on disk.
func WithDir(dir string) RegistryOption {
	return func(o *registryOptions) { o.fsys = os.DirFS(dir) }
}

// WithCapacity bounds the number of parsed schemas kept in memory.
func WithCapacity(n int) RegistryOption {
	return func(o *registryOptions) { o.capacity = n }
}

// NewRegistry creates a registry. Without options it serves the built-in
// schemas.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{fsys: schemas.FS(), capacity: 64}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		fsys:  o.fsys,
		cache: cache.New[string, avro.Schema](o.capacity),
	}
}

// Get returns the schema for a resource type, reading "<name>.avsc".
func (r *Registry) Get(name string) (avro.Schema, error) {
	return r.cache.GetOrLoad(name, func() (avro.Schema, error) {
		data, err := fs.ReadFile(r.fsys, name+schemas.Ext)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
			}
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		s, err := ParseBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return s, nil
	})
}

// Register adds or replaces the schema for a resource type.
func (r *Registry) Register(name string, s avro.Schema) {
	r.cache.Set(name, s)
}

// Resolve accepts either a resource type or a path to a schema file.
// References ending in .avsc or .json, or containing a path separator, are
// read from disk.
func (r *Registry) Resolve(ref string) (avro.Schema, error) {
	if isFileRef(ref) {
		return ParseFile(ref)
	}
	return r.Get(ref)
}

func isFileRef(ref string) bool {
	ext := strings.ToLower(filepath.Ext(ref))
	return ext == schemas.Ext || ext == ".json" || strings.ContainsRune(ref, os.PathSeparator) || strings.Contains(ref, "/")
}

// Names lists the resource types available in the registry's file system.
func (r *Registry) Names() ([]string, error) {
	matches, err := fs.Glob(r.fsys, "*"+schemas.Ext)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = strings.TrimSuffix(m, schemas.Ext)
	}
	sort.Strings(names)
	return names, nil
}

// Stats returns the schema cache counters.
func (r *Registry) Stats() cache.Stats {
	return r.cache.Stats()
}
