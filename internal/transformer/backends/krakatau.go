package backends

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/helios/internal/transformer"
)

type krakatauOptions struct {
	roundtrip bool
}

var krakatauDisassembleSettings = []transformer.Option[krakatauOptions]{
	{
		Setting: transformer.Setting{
			ID:          "roundtrip",
			Description: "Emit output that reassembles to identical bytes",
			Type:        transformer.SettingBool,
			Default:     "false",
		},
		Apply: func(o *krakatauOptions, v string) { o.roundtrip = v == "true" },
	},
}

// krakatauMode selects the Krakatau script.
type krakatauMode int

const (
	krakatauDecompile krakatauMode = iota
	krakatauDisassemble
	krakatauAssemble
)

func (m krakatauMode) script() string {
	switch m {
	case krakatauDecompile:
		return "decompile.py"
	case krakatauDisassemble:
		return "disassemble.py"
	}
	return "assemble.py"
}

// Krakatau runs one of the Krakatau Python tools.
type Krakatau struct {
	external
	mode krakatauMode
}

// NewKrakatauDecompiler creates the Krakatau decompiler.
func NewKrakatauDecompiler(tools Tools, launcher Launcher) *Krakatau {
	return &Krakatau{external{tools, launcher}, krakatauDecompile}
}

// NewKrakatauDisassembler creates the Krakatau disassembler.
func NewKrakatauDisassembler(tools Tools, launcher Launcher) *Krakatau {
	return &Krakatau{external{tools, launcher}, krakatauDisassemble}
}

// NewKrakatauAssembler creates the Krakatau assembler.
func NewKrakatauAssembler(tools Tools, launcher Launcher) *Krakatau {
	return &Krakatau{external{tools, launcher}, krakatauAssemble}
}

func (k *Krakatau) Descriptor() transformer.Descriptor {
	switch k.mode {
	case krakatauDecompile:
		return transformer.Descriptor{
			ID:        "krakatau",
			Name:      "Krakatau",
			Kind:      transformer.KindDecompiler,
			Execution: transformer.External,
		}
	case krakatauDisassemble:
		return transformer.Descriptor{
			ID:        "krakatau-disassemble",
			Name:      "Krakatau Disassembler",
			Kind:      transformer.KindDisassembler,
			Execution: transformer.External,
			Settings:  transformer.Settings(krakatauDisassembleSettings),
		}
	}
	return transformer.Descriptor{
		ID:        "krakatau-assemble",
		Name:      "Krakatau Assembler",
		Kind:      transformer.KindAssembler,
		Execution: transformer.External,
	}
}

func (k *Krakatau) scriptPath() string {
	if k.tools.KrakatauDir == "" {
		return ""
	}
	return filepath.Join(k.tools.KrakatauDir, k.mode.script())
}

func (k *Krakatau) Applicable(name string, data []byte) bool {
	if k.mode == krakatauAssemble {
		return strings.HasSuffix(name, ".j")
	}
	return isClassEntry(name, data)
}

func (k *Krakatau) Precheck(req *transformer.Request) string {
	if msg := requireExecutable("Python", k.tools.Python); msg != "" {
		return msg
	}
	if k.tools.KrakatauDir == "" {
		return "Krakatau directory is not configured"
	}
	if msg := requireFile("Krakatau "+k.mode.script(), k.scriptPath()); msg != "" {
		return msg
	}
	if k.mode == krakatauAssemble {
		return ""
	}
	return requireClass(req)
}

func (k *Krakatau) Transform(ctx context.Context, req *transformer.Request) (res *transformer.Result, err error) {
	w, err := newWorkDir()
	if err != nil {
		return nil, err
	}
	defer cleanup(w, &err)
	if err := w.mkOut(); err != nil {
		return nil, err
	}

	if k.mode == krakatauAssemble {
		return k.assemble(ctx, w, req)
	}

	if _, err := w.writeClass(req.ClassName, req.Data); err != nil {
		return nil, err
	}

	// python -O <script> -skip [-nauto] -path <cp> -out <tmp> <class>
	args := []string{"-O", k.scriptPath(), "-skip"}
	if k.mode == krakatauDecompile {
		args = append(args, "-nauto")
	} else {
		var opts krakatauOptions
		transformer.Bind(krakatauDisassembleSettings, req.Settings, &opts)
		if opts.roundtrip {
			args = append(args, "-roundtrip")
		}
	}
	args = append(args,
		"-path", classpathArg(req, w.in()),
		"-out", w.out(),
		req.ClassName,
	)

	res, out, err := k.run(ctx, "Krakatau "+req.ClassName, k.tools.Python, args)
	if err != nil {
		return res, err
	}
	if out.ExitCode != 0 {
		return res, nil
	}

	ext := ".java"
	if k.mode == krakatauDisassemble {
		ext = ".j"
	}
	if text, ok := findOutput(w.out(), req.ClassName, ext); ok {
		res.Set(req.OutputKey(), text)
	}
	return res, nil
}

func (k *Krakatau) assemble(ctx context.Context, w *workDir, req *transformer.Request) (*transformer.Result, error) {
	src := filepath.Join(w.root, filepath.Base(req.Name))
	if err := os.WriteFile(src, req.Data, 0644); err != nil {
		return nil, err
	}

	args := []string{"-O", k.scriptPath(), "-out", w.out(), src}
	res, out, err := k.run(ctx, "Krakatau assemble "+req.Name, k.tools.Python, args)
	if err != nil {
		return res, err
	}
	if out.ExitCode != 0 {
		return res, nil
	}
	if class, ok := findOutput(w.out(), strings.TrimSuffix(req.Name, ".j"), ".class"); ok {
		res.Set(req.OutputKey(), class)
	}
	return res, nil
}
