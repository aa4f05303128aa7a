// Package classfile decodes JVM class files into structured metadata.
package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// Magic is the first four bytes of every class file.
const Magic = 0xCAFEBABE

// ErrMalformed is wrapped by every decoding error.
var ErrMalformed = errors.New("malformed class file")

// AccessFlags is the access_flags bit set of a class, field or method.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccSuper        AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
	AccModule       AccessFlags = 0x8000
)

// Has reports whether every bit of flag is set.
func (f AccessFlags) Has(flag AccessFlags) bool {
	return f&flag == flag
}

type flagWord struct {
	flag AccessFlags
	word string
}

var (
	classWords = []flagWord{
		{AccPublic, "public"}, {AccFinal, "final"}, {AccAbstract, "abstract"},
	}
	fieldWords = []flagWord{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccVolatile, "volatile"},
		{AccTransient, "transient"},
	}
	methodWords = []flagWord{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccSynchronized, "synchronized"},
		{AccNative, "native"}, {AccAbstract, "abstract"}, {AccStrict, "strictfp"},
	}
)

func (f AccessFlags) words(table []flagWord) string {
	var out []string
	for _, fw := range table {
		if f.Has(fw.flag) {
			out = append(out, fw.word)
		}
	}
	return strings.Join(out, " ")
}

// ClassModifiers renders class-level flags as Java source modifiers.
func (f AccessFlags) ClassModifiers() string {
	if f.Has(AccInterface) {
		return AccessFlags(f &^ AccAbstract).words(classWords)
	}
	return f.words(classWords)
}

// FieldModifiers renders field flags as Java source modifiers.
func (f AccessFlags) FieldModifiers() string { return f.words(fieldWords) }

// MethodModifiers renders method flags as Java source modifiers.
func (f AccessFlags) MethodModifiers() string { return f.words(methodWords) }

// Attribute is an attribute whose body is kept undecoded.
type Attribute struct {
	Name string
	Data []byte
}

// ExceptionHandler is one row of a Code attribute's exception table.
// CatchType is empty for finally handlers.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType string
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytecode   []byte
	Handlers   []ExceptionHandler
	Attributes []Attribute
}

// Member is a field or a method.
type Member struct {
	AccessFlags AccessFlags
	Name        string
	Descriptor  string
	Attributes  []Attribute
	// Code is set for methods that carry a Code attribute.
	Code *Code
}

// Class is the structured form of a class file.
type Class struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool ConstantPool
	AccessFlags  AccessFlags
	// Name is the internal, slash-separated name of this class.
	Name string
	// SuperName is empty for java/lang/Object and module-info.
	SuperName  string
	Interfaces []string
	Fields     []Member
	Methods    []Member
	Attributes []Attribute
	SourceFile string
}

// JavaVersion maps the major version to the Java release that produced it.
func (c *Class) JavaVersion() string {
	switch {
	case c.MajorVersion >= 49:
		return fmt.Sprintf("Java %d", c.MajorVersion-44)
	case c.MajorVersion >= 45:
		return fmt.Sprintf("Java 1.%d", c.MajorVersion-44)
	}
	return fmt.Sprintf("unknown (%d)", c.MajorVersion)
}

// Method returns the first method with the given name.
func (c *Class) Method(name string) (*Member, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

// IsClassData reports whether data starts with the class file magic.
func IsClassData(data []byte) bool {
	return len(data) >= 4 && data[0] == 0xCA && data[1] == 0xFE && data[2] == 0xBA && data[3] == 0xBE
}

// Parse decodes a complete class file. Errors wrap ErrMalformed.
func Parse(data []byte) (*Class, error) {
	r := &reader{b: data}
	if r.u4() != Magic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}

	c := &Class{}
	c.MinorVersion = r.u2()
	c.MajorVersion = r.u2()
	if r.err != nil {
		return nil, r.err
	}

	cp, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}
	c.ConstantPool = cp

	c.AccessFlags = AccessFlags(r.u2())
	thisIdx, superIdx := r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if c.Name, err = cp.ClassName(thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if superIdx != 0 {
		if c.SuperName, err = cp.ClassName(superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name, err := cp.ClassName(r.u2())
		if r.err != nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		c.Interfaces = append(c.Interfaces, name)
	}
	if r.err != nil {
		return nil, r.err
	}

	if c.Fields, err = readMembers(r, cp); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if c.Methods, err = readMembers(r, cp); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	if c.Attributes, err = readAttributes(r, cp); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.remaining())
	}

	for _, a := range c.Attributes {
		if a.Name == "SourceFile" && len(a.Data) == 2 {
			idx := uint16(a.Data[0])<<8 | uint16(a.Data[1])
			if s, err := cp.UTF8(idx); err == nil {
				c.SourceFile = s
			}
		}
	}
	return c, nil
}

func readMembers(r *reader, cp ConstantPool) ([]Member, error) {
	n := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	members := make([]Member, 0, n)
	for i := 0; i < n; i++ {
		var m Member
		m.AccessFlags = AccessFlags(r.u2())
		nameIdx, descIdx := r.u2(), r.u2()
		if r.err != nil {
			return nil, r.err
		}
		var err error
		if m.Name, err = cp.UTF8(nameIdx); err != nil {
			return nil, err
		}
		if m.Descriptor, err = cp.UTF8(descIdx); err != nil {
			return nil, err
		}
		if m.Attributes, err = readAttributes(r, cp); err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name, err)
		}
		for _, a := range m.Attributes {
			if a.Name == "Code" {
				if m.Code, err = parseCode(a.Data, cp); err != nil {
					return nil, fmt.Errorf("%s: Code: %w", m.Name, err)
				}
			}
		}
		members = append(members, m)
	}
	return members, nil
}

func readAttributes(r *reader, cp ConstantPool) ([]Attribute, error) {
	n := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n; i++ {
		nameIdx := r.u2()
		length := r.u4()
		if r.err != nil {
			return nil, r.err
		}
		if uint64(length) > uint64(r.remaining()) {
			return nil, fmt.Errorf("%w: attribute length %d exceeds remaining %d bytes", ErrMalformed, length, r.remaining())
		}
		name, err := cp.UTF8(nameIdx)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Name: name, Data: r.bytes(int(length))})
	}
	return attrs, r.err
}

func parseCode(data []byte, cp ConstantPool) (*Code, error) {
	r := &reader{b: data}
	code := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	length := r.u4()
	if r.err != nil {
		return nil, r.err
	}
	if uint64(length) > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: code length %d exceeds attribute", ErrMalformed, length)
	}
	code.Bytecode = r.bytes(int(length))

	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		h := ExceptionHandler{StartPC: r.u2(), EndPC: r.u2(), HandlerPC: r.u2()}
		catchIdx := r.u2()
		if r.err != nil {
			break
		}
		if catchIdx != 0 {
			name, err := cp.ClassName(catchIdx)
			if err != nil {
				return nil, err
			}
			h.CatchType = name
		}
		code.Handlers = append(code.Handlers, h)
	}
	if r.err != nil {
		return nil, r.err
	}

	attrs, err := readAttributes(r, cp)
	if err != nil {
		return nil, err
	}
	code.Attributes = attrs
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in Code", ErrMalformed, r.remaining())
	}
	return code, nil
}
