package registry

import (
	"bytes"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fentz26/helios/internal/archive"
	"github.com/fentz26/helios/internal/testutil"
)

func mustArchive(t *testing.T, dir, name string, entries map[string][]byte) *archive.Archive {
	t.Helper()
	a, err := archive.Open(testutil.WriteJar(t, dir, name, entries))
	if err != nil {
		t.Fatalf("Failed to open %s: %v", name, err)
	}
	return a
}

func TestAddGetRemove(t *testing.T) {
	dir := t.TempDir()
	r := New()
	a := mustArchive(t, dir, "a.jar", map[string][]byte{"x.txt": []byte("x")})

	if err := r.Add(a); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Add(a); !errors.Is(err, ErrDuplicateArchive) {
		t.Errorf("Expected ErrDuplicateArchive, got %v", err)
	}
	if got, ok := r.Get("a.jar"); !ok || got != a {
		t.Error("Expected to find a.jar")
	}
	if !r.Remove("a.jar") {
		t.Error("Expected Remove to report true")
	}
	if r.Remove("a.jar") {
		t.Error("Expected second Remove to report false")
	}
	if len(r.Opened()) != 0 {
		t.Errorf("Expected no opened archives, got %d", len(r.Opened()))
	}
}

func TestOpenedOrder(t *testing.T) {
	dir := t.TempDir()
	r := New()
	for _, n := range []string{"c.jar", "a.jar", "b.jar"} {
		if err := r.Add(mustArchive(t, dir, n, nil)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	r.Remove("a.jar")

	opened := r.Opened()
	if len(opened) != 2 || opened[0].Name != "c.jar" || opened[1].Name != "b.jar" {
		t.Errorf("Unexpected order: %v", []string{opened[0].Name, opened[1].Name})
	}
}

func TestLookupOrder(t *testing.T) {
	dir := t.TempDir()
	first := testutil.ClassBytes("dup/Shared")
	second := append(testutil.ClassBytes("dup/Shared"), 0x00)
	lib := testutil.ClassBytes("lib/Only")

	r := New()
	r.Add(mustArchive(t, dir, "one.jar", map[string][]byte{"dup/Shared.class": first}))
	r.Add(mustArchive(t, dir, "two.jar", map[string][]byte{"dup/Shared.class": second}))
	r.SetPath([]*archive.Archive{
		mustArchive(t, dir, "rt.jar", map[string][]byte{
			"dup/Shared.class": []byte("path copy"),
			"lib/Only.class":   lib,
		}),
	})

	data, from, ok := r.Lookup("dup/Shared")
	if !ok || from.Name != "one.jar" || !bytes.Equal(data, first) {
		t.Errorf("Expected first opened archive to win, got %v", from)
	}

	data, from, ok = r.Lookup("lib/Only")
	if !ok || from.Name != "rt.jar" || !bytes.Equal(data, lib) {
		t.Error("Expected path archive to resolve lib/Only")
	}

	if _, _, ok := r.Lookup("missing/Class"); ok {
		t.Error("Expected missing class not to resolve")
	}

	cp := r.Classpath("two.jar")
	data, ok = cp.Lookup("dup/Shared")
	if !ok || !bytes.Equal(data, second) {
		t.Error("Expected primary archive to be searched first")
	}

	files := cp.Files()
	want := []string{
		filepath.Join(dir, "two.jar"),
		filepath.Join(dir, "one.jar"),
		filepath.Join(dir, "rt.jar"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expected files %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("Files[%d]: expected %s, got %s", i, want[i], files[i])
		}
	}
}

func TestLoadPathReplaces(t *testing.T) {
	dir := t.TempDir()
	r := New()
	r.SetPath([]*archive.Archive{mustArchive(t, dir, "old.jar", nil)})

	good := testutil.WriteJar(t, dir, "new.jar", map[string][]byte{"N.class": testutil.ClassBytes("N")})
	n, err := r.LoadPath([]string{good, filepath.Join(dir, "missing.jar")})
	if err == nil {
		t.Error("Expected error for missing classpath entry")
	}
	if n != 1 {
		t.Errorf("Expected 1 loaded archive, got %d", n)
	}

	path := r.Path()
	if len(path) != 1 || path[0].Name != "new.jar" {
		t.Errorf("Expected path table to be replaced, got %d entries", len(path))
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	r := New()
	r.Add(mustArchive(t, dir, "a.jar", nil))
	r.SetPath([]*archive.Archive{mustArchive(t, dir, "p.jar", nil)})

	r.Clear()
	if len(r.Opened()) != 0 || len(r.Path()) != 0 {
		t.Error("Expected both tables to be empty after Clear")
	}
	if err := r.Add(mustArchive(t, dir, "a.jar", nil)); err != nil {
		t.Errorf("Expected to re-add after Clear: %v", err)
	}
}

func TestConcurrentPathSwap(t *testing.T) {
	dir := t.TempDir()
	r := New()
	setA := []*archive.Archive{
		mustArchive(t, dir, "a1.jar", map[string][]byte{"K.class": []byte("a")}),
		mustArchive(t, dir, "a2.jar", nil),
	}
	setB := []*archive.Archive{
		mustArchive(t, dir, "b1.jar", map[string][]byte{"K.class": []byte("b")}),
		mustArchive(t, dir, "b2.jar", nil),
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				r.SetPath(setA)
			} else {
				r.SetPath(setB)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		path := r.Path()
		if len(path) == 0 {
			continue
		}
		// A reader never sees a mix of both tables.
		prefix := path[0].Name[0]
		for _, a := range path {
			if a.Name[0] != prefix {
				t.Fatalf("Observed a partially swapped path table")
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestClasspathFingerprint(t *testing.T) {
	dir := t.TempDir()
	r := New()
	a := mustArchive(t, dir, "a.jar", map[string][]byte{"A.class": testutil.ClassBytes("A")})
	r.Add(a)

	base := r.Classpath("a.jar").Fingerprint()
	if base != r.Classpath("a.jar").Fingerprint() {
		t.Error("Expected fingerprint to be stable")
	}

	r.SetPath([]*archive.Archive{mustArchive(t, dir, "rt.jar", map[string][]byte{"R.class": testutil.ClassBytes("R")})})
	withPath := r.Classpath("a.jar").Fingerprint()
	if withPath == base {
		t.Error("Expected path change to change the fingerprint")
	}

	testutil.WriteJar(t, dir, "a.jar", map[string][]byte{"A.class": testutil.ClassBytes("A"), "B.class": testutil.ClassBytes("B")})
	if err := a.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if r.Classpath("a.jar").Fingerprint() == withPath {
		t.Error("Expected reloaded archive bytes to change the fingerprint")
	}

	var nilPath *Classpath
	if nilPath.Fingerprint() != "" {
		t.Error("Expected empty fingerprint for nil classpath")
	}
}
