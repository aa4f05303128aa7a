package classfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/fentz26/helios/internal/testutil"
)

func TestParse(t *testing.T) {
	data := testutil.ClassBytes("com/example/Greeter")

	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Name != "com/example/Greeter" {
		t.Errorf("Expected name com/example/Greeter, got %s", c.Name)
	}
	if c.SuperName != "java/lang/Object" {
		t.Errorf("Expected super java/lang/Object, got %s", c.SuperName)
	}
	if c.MajorVersion != 52 || c.JavaVersion() != "Java 8" {
		t.Errorf("Expected Java 8 (52), got %s (%d)", c.JavaVersion(), c.MajorVersion)
	}
	if c.SourceFile != "Greeter.java" {
		t.Errorf("Expected source file Greeter.java, got %q", c.SourceFile)
	}
	if len(c.Fields) != 1 || c.Fields[0].Name != "value" || c.Fields[0].Descriptor != "I" {
		t.Errorf("Unexpected fields: %+v", c.Fields)
	}
	if got := c.AccessFlags.ClassModifiers(); got != "public" {
		t.Errorf("Expected class modifiers 'public', got %q", got)
	}

	ctor, ok := c.Method("<init>")
	if !ok {
		t.Fatal("Expected <init> method")
	}
	if ctor.Code == nil {
		t.Fatal("Expected <init> to carry code")
	}
	if len(ctor.Code.Bytecode) != 5 {
		t.Errorf("Expected 5 bytes of code, got %d", len(ctor.Code.Bytecode))
	}
}

func TestParse_Malformed(t *testing.T) {
	valid := testutil.ClassBytes("A")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 52}},
		{"truncated header", valid[:9]},
		{"truncated pool", valid[:40]},
		{"truncated body", valid[:len(valid)-3]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00)},
		{"text", []byte("this is not a class")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParse_BadPoolReference(t *testing.T) {
	data := testutil.ClassBytes("A")
	// Point the Class entry at index 2 (itself) instead of the Utf8 at 1.
	// Layout: magic(4) minor(2) major(2) count(2) utf8 tag(1) len(2) "A"(1) class tag(1) ref(2).
	data[15] = 0
	data[16] = 2

	if _, err := Parse(data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Expected ErrMalformed for bad reference, got %v", err)
	}
}

func TestIsClassData(t *testing.T) {
	if !IsClassData(testutil.ClassBytes("A")) {
		t.Error("Expected class bytes to be detected")
	}
	if IsClassData([]byte("PK\x03\x04")) {
		t.Error("Expected zip header not to be detected as class data")
	}
	if IsClassData([]byte{0xCA, 0xFE}) {
		t.Error("Expected short input not to be detected")
	}
}

func TestDisassemble(t *testing.T) {
	c, err := Parse(testutil.ClassBytes("A"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ctor, _ := c.Method("<init>")

	insns, err := Disassemble(ctor.Code.Bytecode, c.ConstantPool)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	want := []string{"aload_0", "invokespecial", "return"}
	if len(insns) != len(want) {
		t.Fatalf("Expected %d instructions, got %d", len(want), len(insns))
	}
	for i, w := range want {
		if insns[i].Mnemonic != w {
			t.Errorf("Instruction %d: expected %s, got %s", i, w, insns[i].Mnemonic)
		}
	}
	if !strings.Contains(insns[1].Args, "java/lang/Object.<init>:()V") {
		t.Errorf("Expected resolved method reference, got %q", insns[1].Args)
	}
	if insns[2].Offset != 4 {
		t.Errorf("Expected return at offset 4, got %d", insns[2].Offset)
	}
}

func TestDisassemble_Switches(t *testing.T) {
	code := []byte{
		0x1a,             // 0: iload_0
		0xaa, 0x00, 0x00, // 1: tableswitch, padding to 4
		0x00, 0x00, 0x00, 0x1c, // default +28
		0x00, 0x00, 0x00, 0x01, // low 1
		0x00, 0x00, 0x00, 0x02, // high 2
		0x00, 0x00, 0x00, 0x1a, // 1 -> +26
		0x00, 0x00, 0x00, 0x1b, // 2 -> +27
		0xb1, // 24: return
	}
	insns, err := Disassemble(code, nil)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if len(insns) != 3 {
		t.Fatalf("Expected 3 instructions, got %d: %v", len(insns), insns)
	}
	if insns[1].Args != "{ 1: 27, 2: 28, default: 29 }" {
		t.Errorf("Unexpected tableswitch rendering: %q", insns[1].Args)
	}
}

func TestDisassemble_Errors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"undefined opcode", []byte{0xfe}},
		{"truncated operand", []byte{0x11, 0x01}},
		{"wide on non-local", []byte{0xc4, 0x00, 0x00, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Disassemble(tt.code, nil); !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecodeModifiedUTF8(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte{0xC0, 0x80}, "\x00"},
		{[]byte{0xC3, 0xA9}, "é"},
		// U+1F600 as a surrogate pair, each half in three bytes.
		{[]byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}, "\U0001F600"},
	}
	for _, tt := range tests {
		if got := decodeModifiedUTF8(tt.in); got != tt.want {
			t.Errorf("decodeModifiedUTF8(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
