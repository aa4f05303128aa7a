package classfile

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Constant is a single constant pool entry. Which fields are meaningful
// depends on Tag: Text for Utf8, Int/Float/Long/Double for numerics,
// Ref1/Ref2 for entries that point at other entries, Kind for MethodHandle.
// Slots following Long and Double entries are left with a zero Tag.
type Constant struct {
	Tag    Tag
	Text   string
	Int    int32
	Float  float32
	Long   int64
	Double float64
	Ref1   uint16
	Ref2   uint16
	Kind   uint8
}

// ConstantPool is indexed the way the class file indexes it: entry 0 is unused.
type ConstantPool []Constant

func (cp ConstantPool) entry(i uint16, want ...Tag) (*Constant, error) {
	if i == 0 || int(i) >= len(cp) {
		return nil, fmt.Errorf("%w: constant pool index %d out of range", ErrMalformed, i)
	}
	c := &cp[i]
	if len(want) == 0 {
		return c, nil
	}
	for _, t := range want {
		if c.Tag == t {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: constant pool index %d is %s, want %v", ErrMalformed, i, c.Tag, want)
}

// UTF8 returns the text of a Utf8 entry.
func (cp ConstantPool) UTF8(i uint16) (string, error) {
	c, err := cp.entry(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName returns the internal name referenced by a Class entry.
func (cp ConstantPool) ClassName(i uint16) (string, error) {
	c, err := cp.entry(i, TagClass)
	if err != nil {
		return "", err
	}
	return cp.UTF8(c.Ref1)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (cp ConstantPool) NameAndType(i uint16) (string, string, error) {
	c, err := cp.entry(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := cp.UTF8(c.Ref1)
	if err != nil {
		return "", "", err
	}
	desc, err := cp.UTF8(c.Ref2)
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// Describe renders an entry the way a disassembly listing shows operands.
// Invalid indices render as "#<n>" rather than failing.
func (cp ConstantPool) Describe(i uint16) string {
	c, err := cp.entry(i)
	if err != nil {
		return "#" + strconv.Itoa(int(i))
	}
	switch c.Tag {
	case TagUtf8:
		return c.Text
	case TagInteger:
		return strconv.FormatInt(int64(c.Int), 10)
	case TagFloat:
		return strconv.FormatFloat(float64(c.Float), 'g', -1, 32) + "f"
	case TagLong:
		return strconv.FormatInt(c.Long, 10) + "L"
	case TagDouble:
		return strconv.FormatFloat(c.Double, 'g', -1, 64) + "d"
	case TagClass, TagModule, TagPackage:
		return cp.Describe(c.Ref1)
	case TagString:
		return strconv.Quote(cp.Describe(c.Ref1))
	case TagMethodType:
		return cp.Describe(c.Ref1)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		return cp.Describe(c.Ref1) + "." + cp.Describe(c.Ref2)
	case TagNameAndType:
		return cp.Describe(c.Ref1) + ":" + cp.Describe(c.Ref2)
	case TagMethodHandle:
		return fmt.Sprintf("REF_%d:%s", c.Kind, cp.Describe(c.Ref2))
	case TagDynamic, TagInvokeDynamic:
		return fmt.Sprintf("#%d:%s", c.Ref1, cp.Describe(c.Ref2))
	}
	return "#" + strconv.Itoa(int(i))
}

func readConstantPool(r *reader) (ConstantPool, error) {
	count := r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: empty constant pool", ErrMalformed)
	}
	cp := make(ConstantPool, count)
	for i := 1; i < int(count); i++ {
		c := &cp[i]
		c.Tag = Tag(r.u1())
		switch c.Tag {
		case TagUtf8:
			n := int(r.u2())
			c.Text = decodeModifiedUTF8(r.bytes(n))
		case TagInteger:
			c.Int = int32(r.u4())
		case TagFloat:
			c.Float = math.Float32frombits(r.u4())
		case TagLong:
			hi, lo := r.u4(), r.u4()
			c.Long = int64(uint64(hi)<<32 | uint64(lo))
			i++
		case TagDouble:
			hi, lo := r.u4(), r.u4()
			c.Double = math.Float64frombits(uint64(hi)<<32 | uint64(lo))
			i++
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.Ref1 = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.Ref1 = r.u2()
			c.Ref2 = r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.Ref2 = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: unknown constant pool tag %d at index %d", ErrMalformed, c.Tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

// validate checks that every reference points at an entry of the right kind.
func (cp ConstantPool) validate() error {
	for i := 1; i < len(cp); i++ {
		c := cp[i]
		var err error
		switch c.Tag {
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			_, err = cp.entry(c.Ref1, TagUtf8)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			if _, err = cp.entry(c.Ref1, TagClass); err == nil {
				_, err = cp.entry(c.Ref2, TagNameAndType)
			}
		case TagNameAndType:
			if _, err = cp.entry(c.Ref1, TagUtf8); err == nil {
				_, err = cp.entry(c.Ref2, TagUtf8)
			}
		case TagDynamic, TagInvokeDynamic:
			_, err = cp.entry(c.Ref2, TagNameAndType)
		case TagMethodHandle:
			_, err = cp.entry(c.Ref2, TagFieldref, TagMethodref, TagInterfaceMethodref)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8, where NUL is two
// bytes and supplementary characters are stored as surrogate pairs.
func decodeModifiedUTF8(b []byte) string {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}
