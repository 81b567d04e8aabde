package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders every instruction in a chunk, one line per
// instruction, in the teacher's "offset  line  OP_NAME  operand" layout
// (the debugger prints a single instruction in the same columns through
// DisassembleInstruction; this walks the whole chunk for the `disassemble`
// and `compile` CLI subcommands).
func Disassemble(c *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		var line string
		offset, line = DisassembleInstruction(c, offset)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// DisassembleInstruction formats the instruction at offset and returns the
// offset of the next instruction plus the formatted line.
func DisassembleInstruction(c *Chunk, offset int) (int, string) {
	lineCol := fmt.Sprintf("%4d", c.Lines[offset])
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		lineCol = "   |"
	}
	prefix := fmt.Sprintf("%04d %s  ", offset, lineCol)

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetProperty,
		OpSetProperty, OpGetSuper, OpClass, OpMethod:
		return constantInstruction(prefix, op, c, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall, OpBuildList:
		return byteInstruction(prefix, op, c, offset)
	case OpInvoke, OpSuperInvoke:
		return invokeInstruction(prefix, op, c, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(prefix, op, c, offset, 1)
	case OpLoop:
		return jumpInstruction(prefix, op, c, offset, -1)
	case OpClosure:
		return closureInstruction(prefix, op, c, offset)
	default:
		return offset + 1, prefix + op.String()
	}
}

func constantInstruction(prefix string, op OpCode, c *Chunk, offset int) (int, string) {
	constant := c.Code[offset+1]
	var val Value
	if int(constant) < len(c.Constants) {
		val = c.Constants[constant]
	}
	return offset + 2, fmt.Sprintf("%s%-16s %4d '%s'", prefix, op, constant, FormatValue(val))
}

func byteInstruction(prefix string, op OpCode, c *Chunk, offset int) (int, string) {
	slot := c.Code[offset+1]
	return offset + 2, fmt.Sprintf("%s%-16s %4d", prefix, op, slot)
}

func invokeInstruction(prefix string, op OpCode, c *Chunk, offset int) (int, string) {
	constant := c.Code[offset+1]
	argCount := c.Code[offset+2]
	var val Value
	if int(constant) < len(c.Constants) {
		val = c.Constants[constant]
	}
	return offset + 3, fmt.Sprintf("%s%-16s (%d args) %4d '%s'", prefix, op, argCount, constant, FormatValue(val))
}

func jumpInstruction(prefix string, op OpCode, c *Chunk, offset int, sign int) (int, string) {
	jump := int(c.ReadUint16(offset + 1))
	target := offset + 3 + sign*jump
	return offset + 3, fmt.Sprintf("%s%-16s %4d -> %d", prefix, op, offset, target)
}

func closureInstruction(prefix string, op OpCode, c *Chunk, offset int) (int, string) {
	constant := c.Code[offset+1]
	var val Value
	if int(constant) < len(c.Constants) {
		val = c.Constants[constant]
	}
	line := fmt.Sprintf("%s%-16s %4d '%s'", prefix, op, constant, FormatValue(val))
	next := offset + 2

	if fn, ok := val.AsObj().(interface{ UpvalueCount() int }); ok && val.IsObj() {
		count := fn.UpvalueCount()
		for i := 0; i < count; i++ {
			isLocal := c.Code[next]
			index := c.Code[next+1]
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			line += fmt.Sprintf("\n%04d      |                     %s %d", next, kind, index)
			next += 2
		}
	}
	return next, line
}
