// Package registry keeps the archives opened in a workspace and the
// auxiliary classpath used to resolve references during transformation.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/fentz26/helios/internal/archive"
	"go.uber.org/multierr"
)

var (
	// ErrDuplicateArchive is returned when an archive with the same name is already open.
	ErrDuplicateArchive = errors.New("archive already open")
	// ErrArchiveNotFound is returned when no opened archive has the given name.
	ErrArchiveNotFound = errors.New("archive not found")
)

// Registry holds opened archives in insertion order and the path archives.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	opened map[string]*archive.Archive

	path atomic.Pointer[[]*archive.Archive]
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{opened: make(map[string]*archive.Archive)}
	r.path.Store(&[]*archive.Archive{})
	return r
}

// Add registers an opened archive.
func (r *Registry) Add(a *archive.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.opened[a.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateArchive, a.Name)
	}
	r.opened[a.Name] = a
	r.order = append(r.order, a.Name)
	return nil
}

// Get returns an opened archive by display name.
func (r *Registry) Get(name string) (*archive.Archive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.opened[name]
	return a, ok
}

// Remove closes an opened archive. It reports whether the archive was open.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.opened[name]; !ok {
		return false
	}
	delete(r.opened, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Opened returns the opened archives in the order they were added.
func (r *Registry) Opened() []*archive.Archive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*archive.Archive, len(r.order))
	for i, n := range r.order {
		out[i] = r.opened[n]
	}
	return out
}

// SetPath replaces the path table wholesale.
func (r *Registry) SetPath(archives []*archive.Archive) {
	cp := append([]*archive.Archive(nil), archives...)
	r.path.Store(&cp)
}

// Path returns the current path table.
func (r *Registry) Path() []*archive.Archive {
	return *r.path.Load()
}

// LoadPath opens every file in paths and installs them as the path table.
// Files that fail to open are logged and skipped; their errors are combined
// into the returned error.
func (r *Registry) LoadPath(paths []string) (int, error) {
	var loaded []*archive.Archive
	var errs error
	for _, p := range paths {
		a, err := archive.Open(p)
		if err != nil {
			log.Printf("Skipping classpath entry %s: %v", p, err)
			errs = multierr.Append(errs, err)
			continue
		}
		loaded = append(loaded, a)
	}
	r.SetPath(loaded)
	return len(loaded), errs
}

// Clear drops every opened and path archive.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.opened = make(map[string]*archive.Archive)
	r.order = nil
	r.mu.Unlock()
	r.SetPath(nil)
}

// Lookup finds the bytes of a class by internal name. Opened archives are
// searched first in insertion order, then path archives in configured order.
func (r *Registry) Lookup(internalName string) ([]byte, *archive.Archive, bool) {
	return r.lookup(internalName, "")
}

func (r *Registry) search(primary string) []*archive.Archive {
	opened := r.Opened()
	order := make([]*archive.Archive, 0, len(opened)+len(r.Path()))
	for _, a := range opened {
		if a.Name == primary {
			order = append(order, a)
		}
	}
	for _, a := range opened {
		if a.Name != primary {
			order = append(order, a)
		}
	}
	return append(order, r.Path()...)
}

func (r *Registry) lookup(internalName, primary string) ([]byte, *archive.Archive, bool) {
	for _, a := range r.search(primary) {
		if data, ok := a.ClassData(internalName); ok {
			return data, a, true
		}
	}
	return nil, nil, false
}

// Classpath returns the view transformers use to resolve referenced classes.
// The opened archive named primary, usually the one being transformed, is
// searched before the others.
func (r *Registry) Classpath(primary string) *Classpath {
	return &Classpath{registry: r, primary: primary}
}

// Classpath resolves classes against a registry.
type Classpath struct {
	registry *Registry
	primary  string
}

// Lookup finds the bytes of a class by internal name.
func (c *Classpath) Lookup(internalName string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, _, ok := c.registry.lookup(internalName, c.primary)
	return data, ok
}

// Files lists the on-disk archives of the classpath in lookup order.
func (c *Classpath) Files() []string {
	if c == nil {
		return nil
	}
	var files []string
	for _, a := range c.registry.search(c.primary) {
		if a.Path != "" {
			files = append(files, a.Path)
		}
	}
	return files
}

// Fingerprint identifies the archives the classpath resolves against, in
// lookup order. It changes when an archive is opened, closed, reloaded
// with different bytes or added to the path.
func (c *Classpath) Fingerprint() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	for _, a := range c.registry.search(c.primary) {
		fmt.Fprintf(h, "%s\x00%s\n", a.Name, a.Digest())
	}
	return hex.EncodeToString(h.Sum(nil))
}
