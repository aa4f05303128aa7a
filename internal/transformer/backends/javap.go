package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/fentz26/helios/internal/classfile"
	"github.com/fentz26/helios/internal/transformer"
)

type javapOptions struct {
	constantPool    bool
	bytecode        bool
	maxInstructions int
}

var javapSettings = []transformer.Option[javapOptions]{
	{
		Setting: transformer.Setting{
			ID:          "constant-pool",
			Description: "Print the constant pool",
			Type:        transformer.SettingBool,
			Default:     "false",
		},
		Apply: func(o *javapOptions, v string) { o.constantPool = v == "true" },
	},
	{
		Setting: transformer.Setting{
			ID:          "bytecode",
			Description: "Print method bytecode",
			Type:        transformer.SettingBool,
			Default:     "true",
		},
		Apply: func(o *javapOptions, v string) { o.bytecode = v == "true" },
	},
	{
		Setting: transformer.Setting{
			ID:          "max-instructions",
			Description: "Truncate each method after this many instructions (0 for no limit)",
			Type:        transformer.SettingInt,
			Default:     "0",
		},
		Apply: func(o *javapOptions, v string) {
			o.maxInstructions = transformer.Values{"v": v}.Int("v")
		},
	},
}

// Javap disassembles classes in process, in the layout of `javap -c -p`.
type Javap struct{}

// NewJavap creates the in-process disassembler.
func NewJavap() *Javap { return &Javap{} }

func (*Javap) Descriptor() transformer.Descriptor {
	return transformer.Descriptor{
		ID:        "javap",
		Name:      "Javap",
		Kind:      transformer.KindDisassembler,
		Execution: transformer.InProcess,
		Settings:  transformer.Settings(javapSettings),
	}
}

func (*Javap) Applicable(name string, data []byte) bool {
	return isClassEntry(name, data)
}

func (*Javap) Precheck(req *transformer.Request) string {
	return requireClass(req)
}

func (*Javap) Transform(_ context.Context, req *transformer.Request) (*transformer.Result, error) {
	var opts javapOptions
	transformer.Bind(javapSettings, req.Settings, &opts)

	var b strings.Builder
	if err := writeJavap(&b, req.Class, opts); err != nil {
		return &transformer.Result{Stdout: b.String()}, err
	}
	res := &transformer.Result{}
	res.Set(req.OutputKey(), []byte(b.String()))
	return res, nil
}

func javaName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

var primitives = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// typeName renders a field descriptor as Java source.
func typeName(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	rest := desc[dims:]
	var name string
	switch {
	case len(rest) == 1 && primitives[rest[0]] != "":
		name = primitives[rest[0]]
	case strings.HasPrefix(rest, "L") && strings.HasSuffix(rest, ";"):
		name = javaName(rest[1 : len(rest)-1])
	default:
		return desc
	}
	return name + strings.Repeat("[]", dims)
}

func writeJavap(b *strings.Builder, c *classfile.Class, opts javapOptions) error {
	if c.SourceFile != "" {
		fmt.Fprintf(b, "Compiled from %q\n", c.SourceFile)
	}

	keyword := "class"
	switch {
	case c.AccessFlags.Has(classfile.AccAnnotation):
		keyword = "@interface"
	case c.AccessFlags.Has(classfile.AccInterface):
		keyword = "interface"
	case c.AccessFlags.Has(classfile.AccEnum):
		keyword = "enum"
	case c.AccessFlags.Has(classfile.AccModule):
		keyword = "module"
	}
	header := strings.TrimSpace(c.AccessFlags.ClassModifiers() + " " + keyword + " " + javaName(c.Name))
	if c.SuperName != "" && keyword == "class" {
		header += " extends " + javaName(c.SuperName)
	}
	if len(c.Interfaces) > 0 {
		names := make([]string, len(c.Interfaces))
		for i, n := range c.Interfaces {
			names[i] = javaName(n)
		}
		verb := " implements "
		if keyword == "interface" {
			verb = " extends "
		}
		header += verb + strings.Join(names, ", ")
	}
	b.WriteString(header + "\n")
	fmt.Fprintf(b, "  minor version: %d\n", c.MinorVersion)
	fmt.Fprintf(b, "  major version: %d (%s)\n", c.MajorVersion, c.JavaVersion())
	fmt.Fprintf(b, "  flags: (0x%04x)\n", uint16(c.AccessFlags))

	if opts.constantPool {
		b.WriteString("Constant pool:\n")
		for i := 1; i < len(c.ConstantPool); i++ {
			e := c.ConstantPool[i]
			if e.Tag == 0 {
				continue
			}
			fmt.Fprintf(b, "  %5s = %-18s %s\n", fmt.Sprintf("#%d", i), e.Tag, c.ConstantPool.Describe(uint16(i)))
		}
	}

	b.WriteString("{\n")
	for _, f := range c.Fields {
		decl := strings.TrimSpace(f.AccessFlags.FieldModifiers() + " " + typeName(f.Descriptor) + " " + f.Name)
		fmt.Fprintf(b, "  %s;\n    descriptor: %s\n\n", decl, f.Descriptor)
	}

	var firstErr error
	for _, m := range c.Methods {
		decl := strings.TrimSpace(m.AccessFlags.MethodModifiers() + " " + m.Name)
		fmt.Fprintf(b, "  %s;\n    descriptor: %s\n", decl, m.Descriptor)
		if opts.bytecode && m.Code != nil {
			if err := writeCode(b, m.Code, c.ConstantPool, opts.maxInstructions); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", m.Name, m.Descriptor, err)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return firstErr
}

func writeCode(b *strings.Builder, code *classfile.Code, cp classfile.ConstantPool, limit int) error {
	fmt.Fprintf(b, "    Code:\n      stack=%d, locals=%d\n", code.MaxStack, code.MaxLocals)
	insns, err := classfile.Disassemble(code.Bytecode, cp)
	for i, in := range insns {
		if limit > 0 && i >= limit {
			fmt.Fprintf(b, "      ... %d more\n", len(insns)-limit)
			break
		}
		fmt.Fprintf(b, "    %s\n", in)
	}
	if err != nil {
		fmt.Fprintf(b, "      // %v\n", err)
		return err
	}
	if len(code.Handlers) > 0 {
		b.WriteString("      Exception table:\n         from    to  target type\n")
		for _, h := range code.Handlers {
			catch := h.CatchType
			if catch == "" {
				catch = "any"
			}
			fmt.Fprintf(b, "         %5d %5d %5d   %s\n", h.StartPC, h.EndPC, h.HandlerPC, catch)
		}
	}
	return nil
}
