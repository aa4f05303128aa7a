// Package backends implements the transformers Helios ships with.
package backends

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fentz26/helios/internal/classfile"
	"github.com/fentz26/helios/internal/process"
	"github.com/fentz26/helios/internal/transformer"
	"go.uber.org/multierr"
)

// Tools locates the external programs used by the external backends.
type Tools struct {
	Java          string `yaml:"java" json:"java"`
	Python        string `yaml:"python" json:"python"`
	CFRJar        string `yaml:"cfr_jar" json:"cfr_jar"`
	ProcyonJar    string `yaml:"procyon_jar" json:"procyon_jar"`
	FernflowerJar string `yaml:"fernflower_jar" json:"fernflower_jar"`
	// KrakatauDir holds decompile.py, disassemble.py and assemble.py.
	KrakatauDir string `yaml:"krakatau_dir" json:"krakatau_dir"`
}

// Launcher runs external commands to completion.
type Launcher interface {
	Run(ctx context.Context, cmd process.Command) (*process.ExecResult, error)
}

// All returns every built-in transformer.
func All(tools Tools, launcher Launcher) []transformer.Transformer {
	return []transformer.Transformer{
		NewHex(),
		NewJavap(),
		NewCFR(tools, launcher),
		NewProcyon(tools, launcher),
		NewFernflower(tools, launcher),
		NewKrakatauDecompiler(tools, launcher),
		NewKrakatauDisassembler(tools, launcher),
		NewKrakatauAssembler(tools, launcher),
	}
}

// isClassEntry is the applicability rule of every class-consuming backend:
// a .class entry, or data carrying the class file magic.
func isClassEntry(name string, data []byte) bool {
	return strings.HasSuffix(name, ".class") || classfile.IsClassData(data)
}

// requireClass is the precheck shared by transformers that consume parsed classes.
func requireClass(req *transformer.Request) string {
	if req.Class == nil {
		return req.Name + " is not a valid class file"
	}
	return ""
}

// requireFile returns a message when a configured tool path is missing.
func requireFile(what, p string) string {
	if p == "" {
		return what + " is not configured"
	}
	if _, err := os.Stat(p); err != nil {
		return what + " not found at " + p
	}
	return ""
}

// workDir is a temporary directory holding one class and its output.
type workDir struct {
	root string
}

func newWorkDir() (*workDir, error) {
	root, err := os.MkdirTemp("", "helios-")
	if err != nil {
		return nil, err
	}
	return &workDir{root: root}, nil
}

// writeClass stores data under its internal name and returns the file path.
func (w *workDir) writeClass(internalName string, data []byte) (string, error) {
	p := filepath.Join(w.root, "in", filepath.FromSlash(internalName)+".class")
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", err
	}
	return p, os.WriteFile(p, data, 0644)
}

func (w *workDir) in() string  { return filepath.Join(w.root, "in") }
func (w *workDir) out() string { return filepath.Join(w.root, "out") }

func (w *workDir) mkOut() error {
	return os.MkdirAll(w.out(), 0755)
}

func (w *workDir) Close() error {
	return os.RemoveAll(w.root)
}

// cleanup closes w and folds the error into *errp.
func cleanup(w *workDir, errp *error) {
	*errp = multierr.Append(*errp, w.Close())
}

// simpleName returns the last component of an internal class name.
func simpleName(internalName string) string {
	return path.Base(internalName)
}
