package classfile

// operand describes how an instruction's operand bytes are laid out.
type operand uint8

const (
	opNone operand = iota
	opLocal
	opByte
	opShort
	opConst1
	opConst2
	opBranch2
	opBranch4
	opIinc
	opInvokeInterface
	opInvokeDynamic
	opNewArray
	opMultiANewArray
	opTableSwitch
	opLookupSwitch
	opWide
)

const opcodeIinc = 0x84

var mnemonics = [...]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4",
	"iconst_5", "lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1",
	"bipush", "sipush", "ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload",
	"dload", "aload", "iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1",
	"lload_2", "lload_3", "fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1",
	"dload_2", "dload_3", "aload_0", "aload_1", "aload_2", "aload_3", "iaload", "laload",
	"faload", "daload", "aaload", "baload", "caload", "saload", "istore", "lstore",
	"fstore", "dstore", "astore", "istore_0", "istore_1", "istore_2", "istore_3", "lstore_0",
	"lstore_1", "lstore_2", "lstore_3", "fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0",
	"dstore_1", "dstore_2", "dstore_3", "astore_0", "astore_1", "astore_2", "astore_3", "iastore",
	"lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore", "pop",
	"pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
	"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
	"irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
	"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land",
	"ior", "lor", "ixor", "lxor", "iinc", "i2l", "i2f", "i2d",
	"l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l",
	"d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl",
	"dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq",
	"if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne", "goto",
	"jsr", "ret", "tableswitch", "lookupswitch", "ireturn", "lreturn", "freturn", "dreturn",
	"areturn", "return", "getstatic", "putstatic", "getfield", "putfield", "invokevirtual", "invokespecial",
	"invokestatic", "invokeinterface", "invokedynamic", "new", "newarray", "anewarray", "arraylength", "athrow",
	"checkcast", "instanceof", "monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull",
	"goto_w", "jsr_w",
}

// operands lists every opcode that carries operand bytes.
var operands = map[uint8]operand{
	0x10: opByte, 0x11: opShort,
	0x12: opConst1, 0x13: opConst2, 0x14: opConst2,
	0x15: opLocal, 0x16: opLocal, 0x17: opLocal, 0x18: opLocal, 0x19: opLocal,
	0x36: opLocal, 0x37: opLocal, 0x38: opLocal, 0x39: opLocal, 0x3a: opLocal,
	0x84: opIinc,
	0x99: opBranch2, 0x9a: opBranch2, 0x9b: opBranch2, 0x9c: opBranch2, 0x9d: opBranch2,
	0x9e: opBranch2, 0x9f: opBranch2, 0xa0: opBranch2, 0xa1: opBranch2, 0xa2: opBranch2,
	0xa3: opBranch2, 0xa4: opBranch2, 0xa5: opBranch2, 0xa6: opBranch2, 0xa7: opBranch2,
	0xa8: opBranch2, 0xa9: opLocal,
	0xaa: opTableSwitch, 0xab: opLookupSwitch,
	0xb2: opConst2, 0xb3: opConst2, 0xb4: opConst2, 0xb5: opConst2,
	0xb6: opConst2, 0xb7: opConst2, 0xb8: opConst2,
	0xb9: opInvokeInterface, 0xba: opInvokeDynamic,
	0xbb: opConst2, 0xbc: opNewArray, 0xbd: opConst2,
	0xc0: opConst2, 0xc1: opConst2,
	0xc4: opWide, 0xc5: opMultiANewArray,
	0xc6: opBranch2, 0xc7: opBranch2,
	0xc8: opBranch4, 0xc9: opBranch4,
}

var arrayTypes = map[uint8]string{
	4: "boolean", 5: "char", 6: "float", 7: "double",
	8: "byte", 9: "short", 10: "int", 11: "long",
}

// Mnemonic returns the instruction name for op, or "" for undefined opcodes.
func Mnemonic(op uint8) string {
	if int(op) < len(mnemonics) {
		return mnemonics[op]
	}
	return ""
}
