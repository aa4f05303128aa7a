// Package archive loads JAR/ZIP files, or single raw files, into memory and
// parses their class entries on demand.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fentz26/helios/internal/classfile"
	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/tasks"
	"golang.org/x/sync/errgroup"
)

// ClassSuffix is the file extension of class entries.
const ClassSuffix = ".class"

// ErrCorrupt is returned when a ZIP container is recognised but an entry
// cannot be read.
var ErrCorrupt = errors.New("corrupt archive")

// Archive is an opened file held entirely in memory.
type Archive struct {
	// Name is the display name, the file's base name.
	Name string
	// Path is the file the archive was read from. Empty for in-memory archives.
	Path string

	mu      sync.RWMutex
	entries map[string][]byte
	isZip   bool
	size    int64
	digest  string
	cache   *parseCache
}

// Open reads path into memory and decodes it.
func Open(path string) (*Archive, error) {
	a := &Archive{
		Name: filepath.Base(path),
		Path: path,
	}
	if err := a.Reset(); err != nil {
		return nil, err
	}
	return a, nil
}

// FromBytes builds an archive from data already in memory.
func FromBytes(name string, data []byte) (*Archive, error) {
	a := &Archive{Name: name}
	if err := a.load(data); err != nil {
		return nil, err
	}
	return a, nil
}

// decode returns the archive's entries. Data that is not a ZIP container
// becomes a single entry named after the archive.
func decode(name string, data []byte) (map[string][]byte, bool, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return map[string][]byte{name: data}, false, nil
	}

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		content, err := readZipEntry(f)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.Name, err)
		}
		entries[f.Name] = content
	}
	return entries, true, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Archive) load(data []byte) error {
	entries, isZip, err := decode(a.Name, data)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	a.mu.Lock()
	a.entries = entries
	a.isZip = isZip
	a.size = int64(len(data))
	a.digest = digest
	a.cache = newParseCache()
	a.mu.Unlock()
	return nil
}

// Reset re-reads the file from disk and drops every parsed class.
func (a *Archive) Reset() error {
	if a.Path == "" {
		a.mu.Lock()
		a.cache = newParseCache()
		a.mu.Unlock()
		return nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", a.Path, err)
	}
	return a.load(data)
}

// ResetInBackground re-reads the file on the caller and submits a task to
// runner that reparses every class entry.
func (a *Archive) ResetInBackground(runner *tasks.Runner) (*tasks.Handle, error) {
	if err := a.Reset(); err != nil {
		return nil, err
	}

	names := a.ClassNames()
	return runner.Submit(tasks.Task{
		Label:      "Reparsing " + a.Name,
		Cancelable: true,
		Work: func(ctx context.Context) error {
			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(runtime.NumCPU())
			for _, name := range names {
				name := name
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					a.ParsedClass(name)
					return nil
				})
			}
			return g.Wait()
		},
	}), nil
}

// Entries returns a copy of the entry table.
func (a *Archive) Entries() map[string][]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]byte, len(a.entries))
	for k, v := range a.entries {
		out[k] = v
	}
	return out
}

// Entry returns the raw bytes of one entry.
func (a *Archive) Entry(name string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.entries[name]
	return data, ok
}

// Names returns the entry names in sorted order.
func (a *Archive) Names() []string {
	a.mu.RLock()
	names := make([]string, 0, len(a.entries))
	for k := range a.entries {
		names = append(names, k)
	}
	a.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// ClassNames returns the internal names of all class entries, sorted.
func (a *Archive) ClassNames() []string {
	a.mu.RLock()
	var names []string
	for k := range a.entries {
		if strings.HasSuffix(k, ClassSuffix) {
			names = append(names, strings.TrimSuffix(k, ClassSuffix))
		}
	}
	a.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ParsedClass parses the entry internalName+".class" on first use and caches
// the result. Malformed entries report false; the failure is cached as well.
func (a *Archive) ParsedClass(internalName string) (*classfile.Class, bool) {
	a.mu.RLock()
	data, ok := a.entries[internalName+ClassSuffix]
	cache := a.cache
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}

	cls, err := cache.getOrCompute(internalName, func() (*classfile.Class, error) {
		return classfile.Parse(data)
	})
	if err != nil {
		return nil, false
	}
	return cls, true
}

// ParsedClasses returns the classes parsed so far.
func (a *Archive) ParsedClasses() map[string]*classfile.Class {
	a.mu.RLock()
	cache := a.cache
	a.mu.RUnlock()
	return cache.snapshot()
}

// ClassData returns the bytes of a class entry by internal name.
func (a *Archive) ClassData(internalName string) ([]byte, bool) {
	return a.Entry(internalName + ClassSuffix)
}

// Digest is the sha256 of the bytes the archive was last loaded from.
func (a *Archive) Digest() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.digest
}

// Summary describes the archive for listings.
func (a *Archive) Summary() models.ArchiveSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	classes := 0
	for k := range a.entries {
		if strings.HasSuffix(k, ClassSuffix) {
			classes++
		}
	}
	return models.ArchiveSummary{
		Name:    a.Name,
		Path:    a.Path,
		Entries: len(a.entries),
		Classes: classes,
		Size:    a.size,
		IsZip:   a.isZip,
	}
}
