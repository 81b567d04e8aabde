package bytecode

import "testing"

func TestChunkWriteByteTracksLines(t *testing.T) {
	c := &Chunk{}
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpReturn, 1)
	c.WriteOp(OpPop, 2)

	if len(c.Code) != 3 || len(c.Lines) != 3 {
		t.Fatalf("expected 3 code bytes and 3 line entries, got %d/%d", len(c.Code), len(c.Lines))
	}
	if c.Lines[0] != 1 || c.Lines[1] != 1 || c.Lines[2] != 2 {
		t.Fatalf("unexpected line table: %v", c.Lines)
	}
}

func TestChunkAddConstant(t *testing.T) {
	c := &Chunk{}
	idx := c.AddConstant(NumberValue(3.5))
	if idx != 0 {
		t.Fatalf("expected first constant at index 0, got %d", idx)
	}
	idx2 := c.AddConstant(NumberValue(7))
	if idx2 != 1 {
		t.Fatalf("expected second constant at index 1, got %d", idx2)
	}
	if c.Constants[0].AsNumber() != 3.5 {
		t.Fatalf("constant not stored correctly")
	}
}

func TestChunkUint16RoundTrip(t *testing.T) {
	c := &Chunk{}
	c.WriteOp(OpJump, 1)
	c.WriteUint16(0x1234, 1)

	got := c.ReadUint16(1)
	if got != 0x1234 {
		t.Fatalf("expected 0x1234, got 0x%x", got)
	}
}
