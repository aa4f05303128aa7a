package classfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Offset   int
	Opcode   uint8
	Mnemonic string
	// Args is the rendered operand list, resolved against the constant pool.
	Args string
}

func (in Instruction) String() string {
	if in.Args == "" {
		return fmt.Sprintf("%6d: %s", in.Offset, in.Mnemonic)
	}
	return fmt.Sprintf("%6d: %-16s %s", in.Offset, in.Mnemonic, in.Args)
}

// Disassemble decodes a method's bytecode. Undefined opcodes and operands
// running past the end of code are reported as errors wrapping ErrMalformed.
func Disassemble(code []byte, cp ConstantPool) ([]Instruction, error) {
	r := &reader{b: code}
	var out []Instruction
	for r.remaining() > 0 {
		start := r.off
		op := r.u1()
		name := Mnemonic(op)
		if name == "" {
			return out, fmt.Errorf("%w: undefined opcode 0x%02x at %d", ErrMalformed, op, start)
		}
		args := decodeOperands(r, op, start, cp)
		if r.err != nil {
			return out, r.err
		}
		out = append(out, Instruction{Offset: start, Opcode: op, Mnemonic: name, Args: args})
	}
	return out, nil
}

func decodeOperands(r *reader, op uint8, start int, cp ConstantPool) string {
	switch operands[op] {
	case opLocal:
		return strconv.Itoa(int(r.u1()))
	case opByte:
		return strconv.Itoa(int(int8(r.u1())))
	case opShort:
		return strconv.Itoa(int(int16(r.u2())))
	case opConst1:
		idx := uint16(r.u1())
		return fmt.Sprintf("#%d // %s", idx, cp.Describe(idx))
	case opConst2:
		idx := r.u2()
		return fmt.Sprintf("#%d // %s", idx, cp.Describe(idx))
	case opBranch2:
		return strconv.Itoa(start + int(int16(r.u2())))
	case opBranch4:
		return strconv.Itoa(start + int(int32(r.u4())))
	case opIinc:
		idx := r.u1()
		return fmt.Sprintf("%d, %d", idx, int8(r.u1()))
	case opInvokeInterface:
		idx := r.u2()
		count := r.u1()
		r.u1()
		return fmt.Sprintf("#%d, %d // %s", idx, count, cp.Describe(idx))
	case opInvokeDynamic:
		idx := r.u2()
		r.u2()
		return fmt.Sprintf("#%d // %s", idx, cp.Describe(idx))
	case opNewArray:
		t := r.u1()
		if name, ok := arrayTypes[t]; ok {
			return name
		}
		return fmt.Sprintf("type(%d)", t)
	case opMultiANewArray:
		idx := r.u2()
		dims := r.u1()
		return fmt.Sprintf("#%d, %d // %s", idx, dims, cp.Describe(idx))
	case opTableSwitch:
		return decodeTableSwitch(r, start)
	case opLookupSwitch:
		return decodeLookupSwitch(r, start)
	case opWide:
		inner := r.u1()
		name := Mnemonic(inner)
		idx := r.u2()
		if inner == opcodeIinc {
			return fmt.Sprintf("%s %d, %d", name, idx, int16(r.u2()))
		}
		if operands[inner] != opLocal {
			r.err = fmt.Errorf("%w: wide applied to %q at %d", ErrMalformed, name, start)
			return ""
		}
		return fmt.Sprintf("%s %d", name, idx)
	}
	return ""
}

// skipPadding aligns r to a four byte boundary relative to the method start.
func skipPadding(r *reader) {
	for r.off%4 != 0 && r.err == nil {
		r.u1()
	}
}

func decodeTableSwitch(r *reader, start int) string {
	skipPadding(r)
	def := int32(r.u4())
	low := int32(r.u4())
	high := int32(r.u4())
	if r.err != nil {
		return ""
	}
	if high < low || int64(high-low+1)*4 > int64(r.remaining()) {
		r.err = fmt.Errorf("%w: bad tableswitch bounds at %d", ErrMalformed, start)
		return ""
	}
	var b strings.Builder
	b.WriteString("{ ")
	for k := low; ; k++ {
		fmt.Fprintf(&b, "%d: %d, ", k, start+int(int32(r.u4())))
		if k == high {
			break
		}
	}
	fmt.Fprintf(&b, "default: %d }", start+int(def))
	return b.String()
}

func decodeLookupSwitch(r *reader, start int) string {
	skipPadding(r)
	def := int32(r.u4())
	n := int32(r.u4())
	if r.err != nil {
		return ""
	}
	if n < 0 || int64(n)*8 > int64(r.remaining()) {
		r.err = fmt.Errorf("%w: bad lookupswitch count at %d", ErrMalformed, start)
		return ""
	}
	var b strings.Builder
	b.WriteString("{ ")
	for i := int32(0); i < n; i++ {
		key := int32(r.u4())
		fmt.Fprintf(&b, "%d: %d, ", key, start+int(int32(r.u4())))
	}
	fmt.Fprintf(&b, "default: %d }", start+int(def))
	return b.String()
}
