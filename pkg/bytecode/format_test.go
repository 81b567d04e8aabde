package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleInstructionConstant(t *testing.T) {
	c := &Chunk{}
	idx := c.AddConstant(NumberValue(1))
	c.WriteOp(OpConstant, 3)
	c.WriteByte(byte(idx), 3)

	next, line := DisassembleInstruction(c, 0)
	if next != 2 {
		t.Fatalf("expected next offset 2, got %d", next)
	}
	if line == "" {
		t.Fatalf("expected non-empty disassembly line")
	}
}

func TestDisassembleWholeChunk(t *testing.T) {
	c := &Chunk{}
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpReturn, 1)

	out := Disassemble(c, "test")
	if out == "" {
		t.Fatalf("expected non-empty disassembly")
	}
}

func TestJumpInstructionTargetMath(t *testing.T) {
	c := &Chunk{}
	c.WriteOp(OpJump, 1)
	c.WriteUint16(2, 1)
	c.WriteOp(OpNil, 2)
	c.WriteOp(OpReturn, 2)

	next, line := DisassembleInstruction(c, 0)
	if next != 3 {
		t.Fatalf("expected next offset 3, got %d", next)
	}
	if line == "" {
		t.Fatalf("expected jump disassembly text")
	}
	if !strings.Contains(line, "-> 5") {
		t.Fatalf("expected a jump at 0 over 2 bytes to target 5, got %q", line)
	}
}
