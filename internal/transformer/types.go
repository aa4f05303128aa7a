// Package transformer defines the byte-to-text and byte-to-byte
// conversions Helios can apply to archive entries, and the registry that
// dispatches to them.
package transformer

import (
	"context"
	"strings"

	"github.com/fentz26/helios/internal/classfile"
)

// Kind is the capability a transformer offers.
type Kind string

const (
	KindDecompiler   Kind = "decompiler"
	KindDisassembler Kind = "disassembler"
	KindAssembler    Kind = "assembler"
	KindViewer       Kind = "viewer"
)

// Execution says where a transformer runs.
type Execution string

const (
	InProcess Execution = "in-process"
	External  Execution = "external"
)

// Descriptor identifies a transformer and its settings.
type Descriptor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Execution Execution `json:"execution"`
	Settings  []Setting `json:"settings,omitempty"`
}

// Classpath resolves classes referenced by the input.
type Classpath interface {
	Lookup(internalName string) ([]byte, bool)
	// Files lists on-disk archives, for tools that read the classpath themselves.
	Files() []string
}

// Request is one transformation of one archive entry.
type Request struct {
	// Name is the entry name inside its archive.
	Name string
	// ClassName is the internal class name; it keys the result outputs.
	ClassName string
	Data      []byte
	// Class is the parsed class, nil when Data is not a valid class.
	Class     *classfile.Class
	Classpath Classpath
	Settings  Values
}

// OutputKey returns the key under which a successful result is stored.
func (r *Request) OutputKey() string {
	if r.ClassName != "" {
		return r.ClassName
	}
	return r.Name
}

// Result carries the transformed outputs and diagnostics. A key present in
// Outputs means that input was transformed successfully.
type Result struct {
	Outputs map[string][]byte `json:"outputs,omitempty"`
	Stdout  string            `json:"stdout,omitempty"`
	Stderr  string            `json:"stderr,omitempty"`
	// Message is a user-facing explanation when the transformer refused to run.
	Message string `json:"message,omitempty"`
}

// Text returns the output for name as text.
func (r *Result) Text(name string) (string, bool) {
	out, ok := r.Outputs[name]
	if !ok {
		return "", false
	}
	return string(out), true
}

// Set stores a successful output.
func (r *Result) Set(name string, out []byte) {
	if r.Outputs == nil {
		r.Outputs = make(map[string][]byte)
	}
	r.Outputs[name] = out
}

// Diagnostics joins the message, stdout and stderr for display.
func (r *Result) Diagnostics() string {
	var parts []string
	for _, s := range []string{r.Message, r.Stdout, r.Stderr} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Transformer converts archive entries.
type Transformer interface {
	Descriptor() Descriptor
	// Applicable reports whether the transformer accepts an entry.
	Applicable(name string, data []byte) bool
	// Precheck returns a message when the request cannot be served, without
	// invoking the backend.
	Precheck(req *Request) string
	// Transform runs the backend. Settings in req are already resolved.
	Transform(ctx context.Context, req *Request) (*Result, error)
}
