package backends

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fentz26/helios/internal/classfile"
	"github.com/fentz26/helios/internal/process"
	"github.com/fentz26/helios/internal/tasks"
	"github.com/fentz26/helios/internal/testutil"
	"github.com/fentz26/helios/internal/transformer"
)

type fakeLauncher struct {
	calls []process.Command
	fn    func(cmd process.Command) *process.ExecResult
}

func (f *fakeLauncher) Run(ctx context.Context, cmd process.Command) (*process.ExecResult, error) {
	f.calls = append(f.calls, cmd)
	res := f.fn(cmd)
	res.Command, res.Args = cmd.Path, cmd.Args
	return res, nil
}

type fakeClasspath []string

func (f fakeClasspath) Lookup(string) ([]byte, bool) { return nil, false }
func (f fakeClasspath) Files() []string              { return f }

// testTools returns tools pointing at files that exist, so prechecks pass.
func testTools(t *testing.T) Tools {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("Failed to locate test binary: %v", err)
	}
	dir := t.TempDir()
	touch := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
		return p
	}
	kdir := filepath.Join(dir, "krakatau")
	if err := os.Mkdir(kdir, 0755); err != nil {
		t.Fatalf("Failed to create krakatau dir: %v", err)
	}
	for _, s := range []string{"decompile.py", "disassemble.py", "assemble.py"} {
		touch(filepath.Join("krakatau", s))
	}
	return Tools{
		Java:          exe,
		Python:        exe,
		CFRJar:        touch("cfr.jar"),
		ProcyonJar:    touch("procyon.jar"),
		FernflowerJar: touch("fernflower.jar"),
		KrakatauDir:   kdir,
	}
}

func classRequest(t *testing.T, name string) *transformer.Request {
	t.Helper()
	data := testutil.ClassBytes(name)
	c, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return &transformer.Request{
		Name:      name + ".class",
		ClassName: name,
		Data:      data,
		Class:     c,
		Classpath: fakeClasspath{"/libs/one.jar", "/libs/rt.jar"},
	}
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestAllHaveUniqueIDs(t *testing.T) {
	r, err := transformer.NewRegistry(All(Tools{}, &fakeLauncher{})...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if got := len(r.List(nil)); got != 8 {
		t.Errorf("Expected 8 transformers, got %d", got)
	}
	if got := len(r.ForFile("notes.txt", []byte("hi"))); got != 1 {
		t.Errorf("Expected only the hex viewer for text files, got %d", got)
	}
}

func TestClassBackendsAgreeOnApplicability(t *testing.T) {
	r, err := transformer.NewRegistry(All(Tools{}, &fakeLauncher{})...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	tests := []struct {
		name  string
		entry string
		data  []byte
		want  int
	}{
		{"class entry", "A.class", testutil.ClassBytes("A"), 7},
		{"class bytes under another name", "A.bin", testutil.ClassBytes("A"), 7},
		{"class name with bad bytes", "B.class", []byte("not a class"), 7},
		{"assembly source", "A.j", []byte(".class public A"), 2},
		{"text", "notes.txt", []byte("hi"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(r.ForFile(tt.entry, tt.data)); got != tt.want {
				t.Errorf("Expected %d applicable transformers, got %d", tt.want, got)
			}
		})
	}
}

func TestHex(t *testing.T) {
	res := transformer.Apply(context.Background(), NewHex(), &transformer.Request{
		Name: "A.class",
		Data: []byte{0xCA, 0xFE, 0xBA, 0xBE},
	})
	out, ok := res.Text("A.class")
	if !ok {
		t.Fatalf("Expected output, got %q", res.Diagnostics())
	}
	if !strings.HasPrefix(out, "00000000  ca fe ba be") {
		t.Errorf("Unexpected dump: %q", out)
	}
}

func TestJavap(t *testing.T) {
	req := classRequest(t, "com/example/Greeter")

	res := transformer.Apply(context.Background(), NewJavap(), req)
	out, ok := res.Text("com/example/Greeter")
	if !ok {
		t.Fatalf("Expected output, got %q", res.Diagnostics())
	}
	for _, want := range []string{
		`Compiled from "Greeter.java"`,
		"public class com.example.Greeter extends java.lang.Object",
		"major version: 52 (Java 8)",
		"private int value;",
		"descriptor: I",
		"aload_0",
		"invokespecial",
		"return",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Constant pool:") {
		t.Error("Expected constant pool to be hidden by default")
	}

	req.Settings = transformer.Values{"constant-pool": "true", "max-instructions": "1"}
	res = transformer.Apply(context.Background(), NewJavap(), req)
	out, _ = res.Text("com/example/Greeter")
	if !strings.Contains(out, "Constant pool:") || !strings.Contains(out, "Utf8") {
		t.Errorf("Expected constant pool listing:\n%s", out)
	}
	if !strings.Contains(out, "... 2 more") {
		t.Errorf("Expected truncated bytecode:\n%s", out)
	}
}

func TestJavapRejectsMalformedClass(t *testing.T) {
	res := transformer.Apply(context.Background(), NewJavap(), &transformer.Request{
		Name:      "B.class",
		ClassName: "B",
		Data:      []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00},
	})
	if _, ok := res.Outputs["B"]; ok {
		t.Fatal("Expected no output for malformed class")
	}
	if res.Message != "B.class is not a valid class file" {
		t.Errorf("Unexpected message: %q", res.Message)
	}
}

func TestExternalPrechecks(t *testing.T) {
	tools := testTools(t)
	req := classRequest(t, "A")

	tests := []struct {
		name string
		tr   transformer.Transformer
		want string
	}{
		{"no java", NewCFR(Tools{}, nil), "Java is not configured"},
		{"missing jar", NewProcyon(Tools{Java: tools.Java, ProcyonJar: "/nope/procyon.jar"}, nil), "Procyon jar not found at /nope/procyon.jar"},
		{"no python", NewKrakatauDecompiler(Tools{KrakatauDir: tools.KrakatauDir}, nil), "Python is not configured"},
		{"no krakatau", NewKrakatauDisassembler(Tools{Python: tools.Python}, nil), "Krakatau directory is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.Precheck(req); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	bad := classRequest(t, "A")
	bad.Class = nil
	if got := NewFernflower(tools, nil).Precheck(bad); got != "A.class is not a valid class file" {
		t.Errorf("Expected class precheck, got %q", got)
	}
}

func TestCFR(t *testing.T) {
	tools := testTools(t)
	var written []byte
	var tmp string
	l := &fakeLauncher{fn: func(cmd process.Command) *process.ExecResult {
		classFile := cmd.Args[2]
		tmp = filepath.Dir(classFile)
		written, _ = os.ReadFile(classFile)
		return &process.ExecResult{Stdout: "public class A {}\n"}
	}}

	req := classRequest(t, "A")
	res := transformer.Apply(context.Background(), NewCFR(tools, l), req)
	out, ok := res.Text("A")
	if !ok || out != "public class A {}\n" {
		t.Fatalf("Expected decompiled output, got %q (%s)", out, res.Diagnostics())
	}

	args := l.calls[0].Args
	if l.calls[0].Path != tools.Java || args[0] != "-jar" || args[1] != tools.CFRJar {
		t.Errorf("Unexpected invocation: %s %v", l.calls[0].Path, args)
	}
	if i := indexOf(args, "--extraclasspath"); i < 0 || args[i+1] != "/libs/one.jar"+string(os.PathListSeparator)+"/libs/rt.jar" {
		t.Errorf("Expected classpath argument, got %v", args)
	}
	if i := indexOf(args, "--decodelambdas"); i < 0 || args[i+1] != "true" {
		t.Errorf("Expected default settings as flags, got %v", args)
	}
	if string(written) != string(req.Data) {
		t.Error("Expected class bytes to be written for the tool")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("Expected temp dir %s to be removed", tmp)
	}
}

func TestCFRFailureKeepsDiagnostics(t *testing.T) {
	l := &fakeLauncher{fn: func(process.Command) *process.ExecResult {
		return &process.ExecResult{ExitCode: 1, Stderr: "Exception in thread main"}
	}}
	res := transformer.Apply(context.Background(), NewCFR(testTools(t), l), classRequest(t, "A"))
	if _, ok := res.Outputs["A"]; ok {
		t.Fatal("Expected no output on failure")
	}
	if res.Stderr != "Exception in thread main" {
		t.Errorf("Expected stderr to be kept, got %q", res.Stderr)
	}
}

func TestFernflowerReadsOutputDir(t *testing.T) {
	l := &fakeLauncher{fn: func(cmd process.Command) *process.ExecResult {
		outDir := cmd.Args[len(cmd.Args)-1]
		os.WriteFile(filepath.Join(outDir, "Greeter.java"), []byte("class Greeter {}"), 0644)
		return &process.ExecResult{}
	}}

	res := transformer.Apply(context.Background(), NewFernflower(testTools(t), l), classRequest(t, "p/Greeter"))
	if out, ok := res.Text("p/Greeter"); !ok || out != "class Greeter {}" {
		t.Fatalf("Expected output from the output dir, got %q (%s)", out, res.Diagnostics())
	}
	args := l.calls[0].Args
	if indexOf(args, "-dgs=1") < 0 || indexOf(args, "-lit=0") < 0 {
		t.Errorf("Expected fernflower flags, got %v", args)
	}
	if indexOf(args, "-e=/libs/rt.jar") < 0 {
		t.Errorf("Expected library arguments, got %v", args)
	}
}

func TestKrakatauTemplate(t *testing.T) {
	tools := testTools(t)
	l := &fakeLauncher{fn: func(cmd process.Command) *process.ExecResult {
		outDir := cmd.Args[indexOf(cmd.Args, "-out")+1]
		p := filepath.Join(outDir, "p", "A.java")
		os.MkdirAll(filepath.Dir(p), 0755)
		os.WriteFile(p, []byte("class A {}"), 0644)
		return &process.ExecResult{Stdout: "Decompiling p/A"}
	}}

	res := transformer.Apply(context.Background(), NewKrakatauDecompiler(tools, l), classRequest(t, "p/A"))
	if out, ok := res.Text("p/A"); !ok || out != "class A {}" {
		t.Fatalf("Expected decompiled output, got %q (%s)", out, res.Diagnostics())
	}

	cmd := l.calls[0]
	if cmd.Path != tools.Python {
		t.Errorf("Expected python interpreter, got %s", cmd.Path)
	}
	want := []string{"-O", filepath.Join(tools.KrakatauDir, "decompile.py"), "-skip", "-nauto", "-path"}
	for i, w := range want {
		if cmd.Args[i] != w {
			t.Errorf("Arg %d: expected %s, got %s", i, w, cmd.Args[i])
		}
	}
	sep := string(os.PathListSeparator)
	if !strings.HasSuffix(cmd.Args[5], sep+"/libs/one.jar"+sep+"/libs/rt.jar") {
		t.Errorf("Expected classpath to end with the library files, got %s", cmd.Args[5])
	}
	if cmd.Args[6] != "-out" || cmd.Args[8] != "p/A" || len(cmd.Args) != 9 {
		t.Errorf("Unexpected tail of arguments: %v", cmd.Args)
	}
}

func TestKrakatauDisassembleRoundtrip(t *testing.T) {
	l := &fakeLauncher{fn: func(cmd process.Command) *process.ExecResult {
		outDir := cmd.Args[indexOf(cmd.Args, "-out")+1]
		os.WriteFile(filepath.Join(outDir, "A.j"), []byte(".class public A"), 0644)
		return &process.ExecResult{}
	}}

	req := classRequest(t, "A")
	req.Settings = transformer.Values{"roundtrip": "true"}
	res := transformer.Apply(context.Background(), NewKrakatauDisassembler(testTools(t), l), req)
	if out, ok := res.Text("A"); !ok || out != ".class public A" {
		t.Fatalf("Expected disassembly, got %q (%s)", out, res.Diagnostics())
	}
	args := l.calls[0].Args
	if indexOf(args, "-roundtrip") < 0 || indexOf(args, "-nauto") >= 0 {
		t.Errorf("Unexpected disassembler arguments: %v", args)
	}
}

func TestKrakatauAssemble(t *testing.T) {
	class := testutil.ClassBytes("A")
	l := &fakeLauncher{fn: func(cmd process.Command) *process.ExecResult {
		outDir := cmd.Args[indexOf(cmd.Args, "-out")+1]
		os.WriteFile(filepath.Join(outDir, "A.class"), class, 0644)
		return &process.ExecResult{}
	}}

	asm := NewKrakatauAssembler(testTools(t), l)
	if asm.Applicable("A.class", class) {
		t.Error("Expected assembler not to apply to class files")
	}
	res := transformer.Apply(context.Background(), asm, &transformer.Request{
		Name: "A.j",
		Data: []byte(".class public A\n.super java/lang/Object\n.end class\n"),
	})
	out, ok := res.Outputs["A.j"]
	if !ok {
		t.Fatalf("Expected assembled class, got %s", res.Diagnostics())
	}
	if !classfile.IsClassData(out) {
		t.Error("Expected class bytes")
	}
}

func TestExternalThroughController(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	tools := testTools(t)
	script := filepath.Join(t.TempDir(), "java")
	body := "#!/bin/sh\necho \"// decompiled $3\"\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	tools.Java = script

	runner := tasks.New(nil)
	defer runner.Stop()
	ctl := process.NewController(runner)

	req := classRequest(t, "A")
	req.Classpath = nil
	res := transformer.Apply(context.Background(), NewCFR(tools, ctl), req)
	out, ok := res.Text("A")
	if !ok {
		t.Fatalf("Expected output, got %s", res.Diagnostics())
	}
	if !strings.HasPrefix(out, "// decompiled ") || !strings.HasSuffix(strings.TrimSpace(out), "A.class") {
		t.Errorf("Unexpected output %q", out)
	}
	if ctl.Len() != 0 {
		t.Errorf("Expected no processes left, got %d", ctl.Len())
	}
}

func TestTypeName(t *testing.T) {
	tests := map[string]string{
		"I":                  "int",
		"[[J":                "long[][]",
		"Ljava/lang/String;": "java.lang.String",
		"[Ljava/util/List;":  "java.util.List[]",
		"Q":                  "Q",
	}
	for in, want := range tests {
		if got := typeName(in); got != want {
			t.Errorf("typeName(%q) = %q, want %q", in, got, want)
		}
	}
}
