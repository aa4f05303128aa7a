package transformer

import (
	"fmt"
	"sort"
)

// Registry holds the available transformers. It is built once and never
// modified afterwards, so it is safe for concurrent use.
type Registry struct {
	byID map[string]Transformer
	ids  []string
}

// NewRegistry registers ts. Transformer ids must be unique.
func NewRegistry(ts ...Transformer) (*Registry, error) {
	r := &Registry{byID: make(map[string]Transformer, len(ts))}
	for _, t := range ts {
		id := t.Descriptor().ID
		if id == "" {
			return nil, fmt.Errorf("%w: empty id", ErrDuplicateID)
		}
		if _, ok := r.byID[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		r.byID[id] = t
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Resolve returns the transformer with the given id.
func (r *Registry) Resolve(id string) (Transformer, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// List returns the descriptors matching pred, sorted by id. A nil pred
// matches everything.
func (r *Registry) List(pred func(Descriptor) bool) []Descriptor {
	var out []Descriptor
	for _, id := range r.ids {
		d := r.byID[id].Descriptor()
		if pred == nil || pred(d) {
			out = append(out, d)
		}
	}
	return out
}

// ForFile returns the transformers applicable to an entry, sorted by id.
func (r *Registry) ForFile(name string, data []byte) []Transformer {
	var out []Transformer
	for _, id := range r.ids {
		if t := r.byID[id]; t.Applicable(name, data) {
			out = append(out, t)
		}
	}
	return out
}

// OfKind is a List predicate selecting one kind.
func OfKind(k Kind) func(Descriptor) bool {
	return func(d Descriptor) bool { return d.Kind == k }
}
