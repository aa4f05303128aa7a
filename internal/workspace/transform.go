package workspace

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fentz26/helios/internal/audit"
	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/tasks"
	"github.com/fentz26/helios/internal/transformer"
)

// TransformRequest selects one entry of an opened archive and a transformer.
type TransformRequest struct {
	Archive     string             `json:"archive"`
	Entry       string             `json:"entry"`
	Transformer string             `json:"transformer"`
	Settings    transformer.Values `json:"settings,omitempty"`
	// NoCache forces the backend to run even when a cached result exists.
	NoCache bool `json:"no_cache,omitempty"`
}

// Transformers lists every registered transformer.
func (w *Workspace) Transformers() []transformer.Descriptor {
	return w.transformers.List(nil)
}

// TransformersFor lists the transformers applicable to one entry.
func (w *Workspace) TransformersFor(archiveName, entry string) ([]transformer.Descriptor, error) {
	_, data, err := w.entry(archiveName, entry)
	if err != nil {
		return nil, err
	}
	ts := w.transformers.ForFile(entry, data)
	out := make([]transformer.Descriptor, len(ts))
	for i, t := range ts {
		out[i] = t.Descriptor()
	}
	return out, nil
}

func (w *Workspace) entry(archiveName, entry string) (string, []byte, error) {
	a, err := w.Archive(archiveName)
	if err != nil {
		return "", nil, err
	}
	data, ok := a.Entry(entry)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s in %s", ErrEntryNotFound, entry, archiveName)
	}
	return a.Name, data, nil
}

// settingsFor overlays request values on the configured ones.
func (w *Workspace) settingsFor(id string, req transformer.Values) transformer.Values {
	out := transformer.Values{}
	for k, v := range w.settings[id] {
		out[k] = v
	}
	for k, v := range req {
		out[k] = v
	}
	return out
}

// Transform runs one transformer over one entry. Unknown archives, entries
// and transformers are errors; everything else, including backend
// failures, is reported in the returned Result. Successful results are
// cached by input, output key, transformer, settings and classpath, and
// every run is recorded.
func (w *Workspace) Transform(ctx context.Context, req TransformRequest) (*transformer.Result, error) {
	archiveName, data, err := w.entry(req.Archive, req.Entry)
	if err != nil {
		return nil, err
	}
	t, err := w.transformers.Resolve(req.Transformer)
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	run := &models.TransformRun{
		Archive:     archiveName,
		Entry:       req.Entry,
		Transformer: req.Transformer,
		InputHash:   audit.HashBytes(data),
		StartedAt:   started,
	}

	name := className(req.Entry)
	classpath := w.registry.Classpath(archiveName)
	r := &transformer.Request{
		Name:      req.Entry,
		ClassName: name,
		Data:      data,
		Classpath: classpath,
	}

	settings, err := t.Descriptor().Resolve(w.settingsFor(req.Transformer, req.Settings))
	if err != nil {
		res := &transformer.Result{Message: err.Error()}
		w.record(run, res, r.OutputKey())
		return res, nil
	}
	r.Settings = settings
	run.SettingsHash = audit.HashInputs(settings)
	key := store.ResultKey{
		InputHash:    run.InputHash,
		OutputKey:    r.OutputKey(),
		Transformer:  run.Transformer,
		SettingsHash: run.SettingsHash,
		ContextHash:  w.contextHash(t.Descriptor(), classpath.Fingerprint()),
	}

	if !req.NoCache {
		cached, err := w.store.GetResult(key)
		if err != nil {
			log.Printf("Result cache lookup failed: %v", err)
		}
		if _, ok := cachedOutput(cached, key.OutputKey); ok {
			res := &transformer.Result{Outputs: cached.Outputs, Stdout: cached.Stdout, Stderr: cached.Stderr}
			w.record(run, res, key.OutputKey)
			return res, nil
		}
	}

	if name != "" {
		if a, err := w.Archive(archiveName); err == nil {
			r.Class, _ = a.ParsedClass(name)
		}
	}

	res := transformer.Apply(ctx, t, r)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if _, ok := res.Outputs[key.OutputKey]; ok {
		err := w.store.PutResult(key, &store.CachedResult{Outputs: res.Outputs, Stdout: res.Stdout, Stderr: res.Stderr})
		if err != nil {
			log.Printf("Failed to cache result: %v", err)
		}
	}
	w.record(run, res, key.OutputKey)
	return res, nil
}

// contextHash covers the inputs beyond the entry and its settings: the
// classpath and, for external tools, the configured tool paths.
func (w *Workspace) contextHash(d transformer.Descriptor, classpath string) string {
	parts := []string{classpath}
	if d.Execution == transformer.External {
		parts = append(parts, w.toolsHash)
	}
	return audit.HashInputs(parts)
}

// cachedOutput reports the output stored under key, if the cached row has one.
func cachedOutput(cached *store.CachedResult, key string) ([]byte, bool) {
	if cached == nil {
		return nil, false
	}
	out, ok := cached.Outputs[key]
	return out, ok
}

func (w *Workspace) record(run *models.TransformRun, res *transformer.Result, outputKey string) {
	run.EndedAt = time.Now().UTC()
	run.Message = res.Message
	run.Stdout = res.Stdout
	run.Stderr = res.Stderr
	run.Outputs = res.Outputs

	_, ok := res.Outputs[outputKey]
	switch {
	case ok:
		run.Outcome = models.RunOutcomeSuccess
	case res.Message != "":
		run.Outcome = models.RunOutcomeRejected
	default:
		run.Outcome = models.RunOutcomeFailed
	}

	if err := w.store.RecordRun(run); err != nil {
		log.Printf("Failed to record run: %v", err)
	}
}

// TransformAsync runs Transform on the task runner. cb is delivered
// through the dispatcher exactly once: with the result, or with
// context.Canceled when the task is cancelled first.
func (w *Workspace) TransformAsync(req TransformRequest, cb func(*transformer.Result, error)) (*tasks.Handle, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	if _, _, err := w.entry(req.Archive, req.Entry); err != nil {
		return nil, err
	}
	t, err := w.transformers.Resolve(req.Transformer)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	deliver := func(res *transformer.Result, err error) {
		once.Do(func() {
			if cb != nil {
				w.dispatch(func() { cb(res, err) })
			}
		})
	}

	return w.runner.Submit(tasks.Task{
		Label:      fmt.Sprintf("%s: %s", t.Descriptor().Name, req.Entry),
		Cancelable: true,
		Work: func(ctx context.Context) error {
			res, err := w.Transform(ctx, req)
			deliver(res, err)
			return err
		},
		OnCancel: func() { deliver(nil, context.Canceled) },
	}), nil
}
