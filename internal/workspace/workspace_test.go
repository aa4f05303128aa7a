package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/helios/internal/archive"
	"github.com/fentz26/helios/internal/audit"
	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/process"
	"github.com/fentz26/helios/internal/registry"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/tasks"
	"github.com/fentz26/helios/internal/testutil"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/transformer/backends"
)

var upperOpts = []transformer.Option[bool]{
	{
		Setting: transformer.Setting{ID: "loud", Description: "Upper-case output", Type: transformer.SettingBool, Default: "false"},
		Apply:   func(o *bool, v string) { *o = v == "true" },
	},
}

// counting echoes its input and counts backend invocations.
type counting struct {
	calls    atomic.Int32
	external bool
	block    bool
	started  chan struct{}
	lookup   string
	found    atomic.Bool
}

func (c *counting) Descriptor() transformer.Descriptor {
	execution := transformer.InProcess
	if c.external {
		execution = transformer.External
	}
	return transformer.Descriptor{
		ID:        "echo",
		Name:      "Echo",
		Kind:      transformer.KindViewer,
		Execution: execution,
		Settings:  transformer.Settings(upperOpts),
	}
}

func (c *counting) Applicable(string, []byte) bool { return true }

func (c *counting) Precheck(*transformer.Request) string { return "" }

func (c *counting) Transform(ctx context.Context, req *transformer.Request) (*transformer.Result, error) {
	c.calls.Add(1)
	if c.lookup != "" && req.Classpath != nil {
		_, ok := req.Classpath.Lookup(c.lookup)
		c.found.Store(ok)
	}
	if c.block {
		close(c.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	var loud bool
	transformer.Bind(upperOpts, req.Settings, &loud)
	out := string(req.Data)
	if loud {
		out = strings.ToUpper(out)
	}
	res := &transformer.Result{}
	res.Set(req.OutputKey(), []byte(out))
	return res, nil
}

type fixture struct {
	ws    *Workspace
	store *store.Store
	echo  *counting
	dir   string
	jar   string
}

func newFixture(t *testing.T, dispatch Dispatcher) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "helios.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	runner := tasks.New(&tasks.Config{Workers: 2})
	procs := process.NewController(runner)
	echo := &counting{started: make(chan struct{})}
	transformers, err := transformer.NewRegistry(backends.NewHex(), backends.NewJavap(), echo)
	if err != nil {
		t.Fatalf("Failed to create transformer registry: %v", err)
	}

	ws := New(Deps{
		Store:        s,
		Runner:       runner,
		Processes:    procs,
		Registry:     registry.New(),
		Transformers: transformers,
		Settings:     map[string]transformer.Values{"javap": {"bytecode": "false"}},
		Dispatch:     dispatch,
	})
	t.Cleanup(func() {
		ws.Shutdown()
		s.Close()
	})

	jar := testutil.WriteJar(t, dir, "app.jar", map[string][]byte{
		"A.class":    testutil.ClassBytes("A"),
		"B.class":    []byte("not a class"),
		"readme.txt": []byte("hello"),
	})
	return &fixture{ws: ws, store: s, echo: echo, dir: dir, jar: jar}
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	if _, err := f.ws.Open(f.jar); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func TestOpenAndClose(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	archives := f.ws.Archives()
	if len(archives) != 1 || archives[0].Name != "app.jar" || archives[0].Entries != 3 {
		t.Fatalf("Unexpected archives: %+v", archives)
	}
	if _, err := f.ws.Open(f.jar); !errors.Is(err, registry.ErrDuplicateArchive) {
		t.Errorf("Expected ErrDuplicateArchive, got %v", err)
	}
	if _, err := f.ws.Open(filepath.Join(f.dir, "missing.jar")); err == nil {
		t.Error("Expected error opening missing file")
	}

	if err := f.ws.Close("app.jar"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.ws.Close("app.jar"); !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("Expected ErrArchiveNotFound, got %v", err)
	}

	entries, err := f.ws.Audit(10)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 audit records, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionClose || entries[3].Outcome != "success" {
		t.Errorf("Unexpected audit records: %+v", entries)
	}
}

func TestOpenAsyncUsesDispatcher(t *testing.T) {
	var dispatched atomic.Int32
	f := newFixture(t, func(fn func()) {
		dispatched.Add(1)
		fn()
	})

	type outcome struct {
		name string
		err  error
	}
	done := make(chan outcome, 1)
	h, err := f.ws.OpenAsync(f.jar, func(a *archive.Archive, err error) {
		o := outcome{err: err}
		if a != nil {
			o.name = a.Name
		}
		done <- o
	})
	if err != nil {
		t.Fatalf("OpenAsync failed: %v", err)
	}

	select {
	case o := <-done:
		if o.err != nil || o.name != "app.jar" {
			t.Errorf("Unexpected callback: %+v", o)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for callback")
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Errorf("Expected task to complete, got %v", err)
	}
	if dispatched.Load() != 1 {
		t.Errorf("Expected one dispatched callback, got %d", dispatched.Load())
	}
}

func TestTransformMixedArchive(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	ctx := context.Background()

	res, err := f.ws.Transform(ctx, TransformRequest{Archive: "app.jar", Entry: "A.class", Transformer: "javap"})
	if err != nil {
		t.Fatalf("Transform A failed: %v", err)
	}
	out, ok := res.Text("A")
	if !ok || !strings.Contains(out, "class A") {
		t.Errorf("Expected javap output for A, got %q (%s)", out, res.Diagnostics())
	}
	if strings.Contains(out, "Code:") {
		t.Error("Expected configured bytecode=false to suppress code listings")
	}

	res, err = f.ws.Transform(ctx, TransformRequest{Archive: "app.jar", Entry: "B.class", Transformer: "javap"})
	if err != nil {
		t.Fatalf("Transform B failed: %v", err)
	}
	if _, ok := res.Outputs["B"]; ok {
		t.Error("Expected no output for malformed B")
	}
	if res.Message != "B.class is not a valid class file" {
		t.Errorf("Unexpected message: %q", res.Message)
	}

	res, err = f.ws.Transform(ctx, TransformRequest{Archive: "app.jar", Entry: "readme.txt", Transformer: "javap"})
	if err != nil {
		t.Fatalf("Transform readme failed: %v", err)
	}
	if res.Message != "Javap cannot be applied to readme.txt" {
		t.Errorf("Unexpected message: %q", res.Message)
	}

	res, err = f.ws.Transform(ctx, TransformRequest{Archive: "app.jar", Entry: "readme.txt", Transformer: "hex"})
	if err != nil {
		t.Fatalf("Transform hex failed: %v", err)
	}
	if _, ok := res.Outputs["readme.txt"]; !ok {
		t.Errorf("Expected hex output, got %s", res.Diagnostics())
	}

	runs, err := f.ws.History(store.RunFilter{Archive: "app.jar"})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("Expected 4 recorded runs, got %d", len(runs))
	}
	counts := map[models.RunOutcome]int{}
	for _, r := range runs {
		counts[r.Outcome]++
	}
	if counts[models.RunOutcomeSuccess] != 2 || counts[models.RunOutcomeRejected] != 2 {
		t.Errorf("Unexpected outcomes: %v", counts)
	}
}

func TestTransformLookupErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	tests := []struct {
		name string
		req  TransformRequest
		want error
	}{
		{"unknown archive", TransformRequest{Archive: "nope.jar", Entry: "A.class", Transformer: "hex"}, ErrArchiveNotFound},
		{"unknown entry", TransformRequest{Archive: "app.jar", Entry: "Z.class", Transformer: "hex"}, ErrEntryNotFound},
		{"unknown transformer", TransformRequest{Archive: "app.jar", Entry: "A.class", Transformer: "nope"}, transformer.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.ws.Transform(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if _, err := f.ws.TransformAsync(tt.req, nil); !errors.Is(err, tt.want) {
				t.Errorf("Expected async %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransformCache(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	ctx := context.Background()
	req := TransformRequest{Archive: "app.jar", Entry: "readme.txt", Transformer: "echo"}

	for i := 0; i < 2; i++ {
		res, err := f.ws.Transform(ctx, req)
		if err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		if out, _ := res.Text("readme.txt"); out != "hello" {
			t.Errorf("Expected hello, got %q", out)
		}
	}
	if f.echo.calls.Load() != 1 {
		t.Errorf("Expected cached second run, got %d backend calls", f.echo.calls.Load())
	}

	loud := req
	loud.Settings = transformer.Values{"loud": "true"}
	res, err := f.ws.Transform(ctx, loud)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if out, _ := res.Text("readme.txt"); out != "HELLO" {
		t.Errorf("Expected HELLO, got %q", out)
	}
	if f.echo.calls.Load() != 2 {
		t.Errorf("Expected different settings to miss the cache, got %d calls", f.echo.calls.Load())
	}

	// Explicit defaults hash the same as no settings.
	explicit := req
	explicit.Settings = transformer.Values{"loud": "false"}
	f.ws.Transform(ctx, explicit)
	if f.echo.calls.Load() != 2 {
		t.Errorf("Expected explicit defaults to hit the cache, got %d calls", f.echo.calls.Load())
	}

	fresh := req
	fresh.NoCache = true
	f.ws.Transform(ctx, fresh)
	if f.echo.calls.Load() != 3 {
		t.Errorf("Expected NoCache to run the backend, got %d calls", f.echo.calls.Load())
	}

	runs, _ := f.ws.History(store.RunFilter{Transformer: "echo"})
	if len(runs) != 5 {
		t.Errorf("Expected every run recorded, got %d", len(runs))
	}

	res, err = f.ws.Transform(ctx, TransformRequest{Archive: "app.jar", Entry: "readme.txt", Transformer: "echo",
		Settings: transformer.Values{"loud": "very"}})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if res.Message == "" || len(res.Outputs) != 0 {
		t.Errorf("Expected invalid setting to be rejected, got %+v", res)
	}
}

func TestTransformIdenticalEntries(t *testing.T) {
	f := newFixture(t, nil)
	jar := testutil.WriteJar(t, f.dir, "dup.jar", map[string][]byte{
		"readme.txt":      []byte("same"),
		"docs/readme.txt": []byte("same"),
		"a.txt":           {},
		"b.txt":           {},
	})
	if _, err := f.ws.Open(jar); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for _, entry := range []string{"readme.txt", "docs/readme.txt", "a.txt", "b.txt"} {
		for _, id := range []string{"hex", "echo"} {
			res, err := f.ws.Transform(context.Background(), TransformRequest{Archive: "dup.jar", Entry: entry, Transformer: id})
			if err != nil {
				t.Fatalf("Transform %s with %s failed: %v", entry, id, err)
			}
			if _, ok := res.Outputs[entry]; !ok {
				t.Errorf("Expected %s output keyed by %s, got %d outputs (%s)", id, entry, len(res.Outputs), res.Diagnostics())
			}
		}
	}
	if f.echo.calls.Load() != 4 {
		t.Errorf("Expected every entry to run the backend once, got %d calls", f.echo.calls.Load())
	}

	runs, err := f.ws.History(store.RunFilter{Archive: "dup.jar"})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	for _, r := range runs {
		if r.Outcome != models.RunOutcomeSuccess {
			t.Errorf("Expected success for %s with %s, got %s", r.Entry, r.Transformer, r.Outcome)
		}
	}
}

func TestTransformCacheFollowsClasspath(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	f.echo.lookup = "java/lang/Object"
	req := TransformRequest{Archive: "app.jar", Entry: "A.class", Transformer: "echo"}

	if _, err := f.ws.Transform(context.Background(), req); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if f.echo.found.Load() {
		t.Fatal("Expected java/lang/Object to be missing before SetPath")
	}

	rt := testutil.WriteJar(t, f.dir, "rt.jar", map[string][]byte{"java/lang/Object.class": testutil.ClassBytes("java/lang/Object")})
	if _, err := f.ws.SetPath([]string{rt}); err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}
	if _, err := f.ws.Transform(context.Background(), req); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if f.echo.calls.Load() != 2 || !f.echo.found.Load() {
		t.Errorf("Expected the new classpath to run the backend, got %d calls, found=%v", f.echo.calls.Load(), f.echo.found.Load())
	}

	// Reloading the same bytes keeps the cache warm.
	if _, err := f.ws.SetPath([]string{rt}); err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}
	f.ws.Transform(context.Background(), req)
	if f.echo.calls.Load() != 2 {
		t.Errorf("Expected an unchanged classpath to hit the cache, got %d calls", f.echo.calls.Load())
	}
}

func TestTransformCacheFollowsTools(t *testing.T) {
	f := newFixture(t, nil)
	f.echo.external = true
	req := TransformRequest{Archive: "app.jar", Entry: "readme.txt", Transformer: "echo"}

	newWorkspace := func(tools backends.Tools) *Workspace {
		runner := tasks.New(&tasks.Config{Workers: 1})
		transformers, err := transformer.NewRegistry(f.echo)
		if err != nil {
			t.Fatalf("Failed to create transformer registry: %v", err)
		}
		ws := New(Deps{
			Store:        f.store,
			Runner:       runner,
			Processes:    process.NewController(runner),
			Registry:     registry.New(),
			Transformers: transformers,
			Tools:        tools,
		})
		t.Cleanup(func() { ws.Shutdown() })
		if _, err := ws.Open(f.jar); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return ws
	}

	tests := []struct {
		name  string
		tools backends.Tools
		calls int32
	}{
		{"first run", backends.Tools{CFRJar: "/opt/cfr-0.150.jar"}, 1},
		{"same tools", backends.Tools{CFRJar: "/opt/cfr-0.150.jar"}, 1},
		{"other jar", backends.Tools{CFRJar: "/opt/cfr-0.152.jar"}, 2},
	}
	for _, tt := range tests {
		ws := newWorkspace(tt.tools)
		if _, err := ws.Transform(context.Background(), req); err != nil {
			t.Fatalf("%s: Transform failed: %v", tt.name, err)
		}
		if got := f.echo.calls.Load(); got != tt.calls {
			t.Errorf("%s: expected %d backend calls, got %d", tt.name, tt.calls, got)
		}
	}
}

func TestTransformSeesClasspath(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	rt := testutil.WriteJar(t, f.dir, "rt.jar", map[string][]byte{"java/lang/Object.class": testutil.ClassBytes("java/lang/Object")})

	n, err := f.ws.SetPath([]string{rt})
	if err != nil || n != 1 {
		t.Fatalf("SetPath failed: %d, %v", n, err)
	}
	if len(f.ws.Path()) != 1 {
		t.Errorf("Expected one path archive, got %d", len(f.ws.Path()))
	}

	f.echo.lookup = "java/lang/Object"
	if _, err := f.ws.Transform(context.Background(), TransformRequest{Archive: "app.jar", Entry: "A.class", Transformer: "echo"}); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if !f.echo.found.Load() {
		t.Error("Expected path archive to be visible through the classpath")
	}
}

func TestTransformAsyncCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	f.echo.block = true

	var mu sync.Mutex
	var calls []error
	got := make(chan struct{}, 2)
	h, err := f.ws.TransformAsync(TransformRequest{Archive: "app.jar", Entry: "readme.txt", Transformer: "echo"},
		func(res *transformer.Result, err error) {
			mu.Lock()
			calls = append(calls, err)
			mu.Unlock()
			got <- struct{}{}
		})
	if err != nil {
		t.Fatalf("TransformAsync failed: %v", err)
	}

	select {
	case <-f.echo.started:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for transformer to start")
	}
	if len(f.ws.Tasks()) != 1 {
		t.Errorf("Expected one active task, got %d", len(f.ws.Tasks()))
	}
	if err := f.ws.CancelTask(h.ID); err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	h.Wait(context.Background())
	<-got

	// Give a duplicate delivery the chance to show up.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 || !errors.Is(calls[0], context.Canceled) {
		t.Errorf("Expected a single cancelled callback, got %v", calls)
	}
	if h.State() != models.TaskStateCancelled {
		t.Errorf("Expected cancelled state, got %s", h.State())
	}
	if err := f.ws.CancelTask(h.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	f.ws.SetPath([]string{f.jar})

	cancelled := make(chan struct{})
	f.ws.Runner().Submit(tasks.Task{
		Label:      "long",
		Cancelable: true,
		Work: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		OnCancel: func() { close(cancelled) },
	})

	if err := f.ws.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected running task to be cancelled")
	}
	if len(f.ws.Archives()) != 0 || len(f.ws.Path()) != 0 {
		t.Error("Expected registry to be empty after reset")
	}
	if f.ws.Processes().Len() != 0 {
		t.Error("Expected no tracked processes after reset")
	}

	entries, _ := f.ws.Audit(1)
	if len(entries) != 1 || entries[0].Action != audit.ActionReset {
		t.Errorf("Expected reset audit record, got %+v", entries)
	}
}

func TestResetArchive(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	h, err := f.ws.ResetArchive("app.jar")
	if err != nil {
		t.Fatalf("ResetArchive failed: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Errorf("Expected reparse to complete, got %v", err)
	}
	a, _ := f.ws.Archive("app.jar")
	if len(a.ParsedClasses()) != 1 {
		t.Errorf("Expected A to be reparsed, got %d classes", len(a.ParsedClasses()))
	}

	if _, err := f.ws.ResetArchive("nope.jar"); !errors.Is(err, ErrArchiveNotFound) {
		t.Errorf("Expected ErrArchiveNotFound, got %v", err)
	}
}

func TestTransformersFor(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	ds, err := f.ws.TransformersFor("app.jar", "readme.txt")
	if err != nil {
		t.Fatalf("TransformersFor failed: %v", err)
	}
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	if strings.Join(ids, ",") != "echo,hex" {
		t.Errorf("Unexpected transformers for readme.txt: %v", ids)
	}
	if len(f.ws.Transformers()) != 3 {
		t.Errorf("Expected 3 transformers, got %d", len(f.ws.Transformers()))
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.ws.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := f.ws.Open(f.jar); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := f.ws.Shutdown(); err != nil {
		t.Errorf("Expected second Shutdown to be a no-op, got %v", err)
	}
}
