package backends

import (
	"context"
	"strings"

	"github.com/fentz26/helios/internal/transformer"
)

// jarOptions collects command line flags for a decompiler jar.
type jarOptions struct {
	flags []string
}

func boolFlag(id, description, def, flag string) transformer.Option[jarOptions] {
	return transformer.Option[jarOptions]{
		Setting: transformer.Setting{ID: id, Description: description, Type: transformer.SettingBool, Default: def},
		Apply: func(o *jarOptions, v string) {
			o.flags = append(o.flags, flag, v)
		},
	}
}

// fernflowerFlag renders booleans the way Fernflower expects: -xyz=1.
func fernflowerFlag(id, description, def, flag string) transformer.Option[jarOptions] {
	return transformer.Option[jarOptions]{
		Setting: transformer.Setting{ID: id, Description: description, Type: transformer.SettingBool, Default: def},
		Apply: func(o *jarOptions, v string) {
			n := "0"
			if v == "true" {
				n = "1"
			}
			o.flags = append(o.flags, "-"+flag+"="+n)
		},
	}
}

// switchFlag adds flag only when the setting is on.
func switchFlag(id, description, def, flag string) transformer.Option[jarOptions] {
	return transformer.Option[jarOptions]{
		Setting: transformer.Setting{ID: id, Description: description, Type: transformer.SettingBool, Default: def},
		Apply: func(o *jarOptions, v string) {
			if v == "true" {
				o.flags = append(o.flags, flag)
			}
		},
	}
}

var cfrSettings = []transformer.Option[jarOptions]{
	boolFlag("decode-lambdas", "Re-sugar lambda expressions", "true", "--decodelambdas"),
	boolFlag("decode-string-switch", "Re-sugar switch on String", "true", "--decodestringswitch"),
	boolFlag("sugar-enums", "Re-sugar enums", "true", "--sugarenums"),
	boolFlag("hide-bridge-methods", "Hide bridge methods", "true", "--hidebridgemethods"),
	boolFlag("comments", "Emit CFR comments", "true", "--comments"),
}

var procyonSettings = []transformer.Option[jarOptions]{
	switchFlag("show-synthetic", "Show synthetic members", "false", "-ss"),
	switchFlag("collapse-imports", "Collapse imports to packages", "false", "-ci"),
	switchFlag("flatten-switch-blocks", "Drop braces around switch cases", "false", "-fsb"),
	switchFlag("exclude-nested", "Leave out nested types", "false", "-ent"),
}

var fernflowerSettings = []transformer.Option[jarOptions]{
	fernflowerFlag("generic-signatures", "Decompile generic signatures", "true", "dgs"),
	fernflowerFlag("remove-synthetic", "Hide synthetic members", "true", "rsy"),
	fernflowerFlag("remove-bridge", "Hide bridge methods", "true", "rbr"),
	fernflowerFlag("literals-as-is", "Output numeric literals as they are", "false", "lit"),
	fernflowerFlag("variable-names", "Recover variable names from debug info", "true", "udv"),
}

// jarKind selects how a decompiler jar is invoked and where its output lands.
type jarKind int

const (
	jarCFR jarKind = iota
	jarProcyon
	jarFernflower
)

// JarDecompiler runs a Java decompiler packaged as an executable jar.
type JarDecompiler struct {
	external
	kind     jarKind
	id, name string
	settings []transformer.Option[jarOptions]
}

// NewCFR creates the CFR decompiler.
func NewCFR(tools Tools, launcher Launcher) *JarDecompiler {
	return &JarDecompiler{external{tools, launcher}, jarCFR, "cfr", "CFR", cfrSettings}
}

// NewProcyon creates the Procyon decompiler.
func NewProcyon(tools Tools, launcher Launcher) *JarDecompiler {
	return &JarDecompiler{external{tools, launcher}, jarProcyon, "procyon", "Procyon", procyonSettings}
}

// NewFernflower creates the Fernflower decompiler.
func NewFernflower(tools Tools, launcher Launcher) *JarDecompiler {
	return &JarDecompiler{external{tools, launcher}, jarFernflower, "fernflower", "Fernflower", fernflowerSettings}
}

func (j *JarDecompiler) Descriptor() transformer.Descriptor {
	return transformer.Descriptor{
		ID:        j.id,
		Name:      j.name,
		Kind:      transformer.KindDecompiler,
		Execution: transformer.External,
		Settings:  transformer.Settings(j.settings),
	}
}

func (j *JarDecompiler) jar() string {
	switch j.kind {
	case jarCFR:
		return j.tools.CFRJar
	case jarProcyon:
		return j.tools.ProcyonJar
	}
	return j.tools.FernflowerJar
}

func (j *JarDecompiler) Applicable(name string, data []byte) bool {
	return isClassEntry(name, data)
}

func (j *JarDecompiler) Precheck(req *transformer.Request) string {
	if msg := requireExecutable("Java", j.tools.Java); msg != "" {
		return msg
	}
	if msg := requireFile(j.name+" jar", j.jar()); msg != "" {
		return msg
	}
	return requireClass(req)
}

func (j *JarDecompiler) Transform(ctx context.Context, req *transformer.Request) (res *transformer.Result, err error) {
	w, err := newWorkDir()
	if err != nil {
		return nil, err
	}
	defer cleanup(w, &err)

	classFile, err := w.writeClass(req.ClassName, req.Data)
	if err != nil {
		return nil, err
	}

	var opts jarOptions
	transformer.Bind(j.settings, req.Settings, &opts)

	args := []string{"-jar", j.jar()}
	switch j.kind {
	case jarCFR:
		args = append(args, classFile)
		args = append(args, opts.flags...)
		if cp := classpathArg(req); cp != "" {
			args = append(args, "--extraclasspath", cp)
		}
	case jarProcyon:
		args = append(args, opts.flags...)
		args = append(args, classFile)
	case jarFernflower:
		if err := w.mkOut(); err != nil {
			return nil, err
		}
		args = append(args, opts.flags...)
		if req.Classpath != nil {
			for _, lib := range req.Classpath.Files() {
				args = append(args, "-e="+lib)
			}
		}
		args = append(args, classFile, w.out())
	}

	res, out, err := j.run(ctx, j.name+" "+req.ClassName, j.tools.Java, args)
	if err != nil {
		return res, err
	}
	if out.ExitCode != 0 {
		return res, nil
	}

	switch j.kind {
	case jarFernflower:
		if src, ok := findOutput(w.out(), req.ClassName, ".java"); ok {
			res.Set(req.OutputKey(), src)
		}
	default:
		if strings.TrimSpace(res.Stdout) != "" {
			res.Set(req.OutputKey(), []byte(res.Stdout))
			res.Stdout = ""
		}
	}
	return res, nil
}
