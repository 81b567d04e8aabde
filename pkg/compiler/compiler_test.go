package compiler

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/ast"
	"github.com/kristofer/loxvm/pkg/bytecode"
	"github.com/kristofer/loxvm/pkg/parser"
	"github.com/kristofer/loxvm/pkg/vm"
)

func mustCompile(t *testing.T, source string) *bytecode.Chunk {
	t.Helper()
	program, err := parser.New(source).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	fn, err := Compile(program)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return fn.Chunk
}

func hasOp(chunk *bytecode.Chunk, op bytecode.OpCode) bool {
	for i := 0; i < len(chunk.Code); {
		got := bytecode.OpCode(chunk.Code[i])
		if got == op {
			return true
		}
		i, _ = bytecode.DisassembleInstruction(chunk, i)
	}
	return false
}

func TestCompileArithmeticEmitsAddAndConstants(t *testing.T) {
	chunk := mustCompile(t, `var x = 1 + 2;`)
	if !hasOp(chunk, bytecode.OpAdd) {
		t.Error("expected OP_ADD in compiled chunk")
	}
	if len(chunk.Constants) < 2 {
		t.Errorf("expected at least 2 constants, got %d", len(chunk.Constants))
	}
}

func TestCompileIfEmitsJumps(t *testing.T) {
	chunk := mustCompile(t, `if (true) { print 1; } else { print 2; }`)
	if !hasOp(chunk, bytecode.OpJumpIfFalse) || !hasOp(chunk, bytecode.OpJump) {
		t.Error("expected both OP_JUMP_IF_FALSE and OP_JUMP for an if/else")
	}
}

func TestCompileWhileEmitsLoop(t *testing.T) {
	chunk := mustCompile(t, `while (true) { print 1; }`)
	if !hasOp(chunk, bytecode.OpLoop) {
		t.Error("expected OP_LOOP in a compiled while statement")
	}
}

func TestCompileLocalVariableUsesGetSetLocal(t *testing.T) {
	chunk := mustCompile(t, `{ var x = 1; x = x + 1; print x; }`)
	if !hasOp(chunk, bytecode.OpGetLocal) || !hasOp(chunk, bytecode.OpSetLocal) {
		t.Error("expected OP_GET_LOCAL/OP_SET_LOCAL for a block-scoped variable")
	}
	if hasOp(chunk, bytecode.OpDefineGlobal) {
		t.Error("a block-scoped variable should not emit OP_DEFINE_GLOBAL")
	}
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	chunk := mustCompile(t, `
		fun make() {
			var x = 0;
			fun inc() { x = x + 1; return x; }
			return inc;
		}
	`)
	if !hasOp(chunk, bytecode.OpClosure) {
		t.Fatal("expected OP_CLOSURE for the nested function")
	}

	// inc's own chunk (nested inside make's single function constant)
	// should read/write the captured local through an upvalue, not a
	// local slot of its own.
	var inc *bytecode.Chunk
	for _, c := range chunk.Constants {
		if fn, ok := c.AsObj().(*vm.ObjFunction); ok && fn.Name != nil && fn.Name.Chars == "make" {
			for _, inner := range fn.Chunk.Constants {
				if innerFn, ok := inner.AsObj().(*vm.ObjFunction); ok {
					inc = innerFn.Chunk
				}
			}
		}
	}
	if inc == nil {
		t.Fatal("expected to find inc's compiled chunk nested inside make")
	}
	if !hasOp(inc, bytecode.OpGetUpvalue) || !hasOp(inc, bytecode.OpSetUpvalue) {
		t.Error("expected inc() to read/write x through OP_GET_UPVALUE/OP_SET_UPVALUE")
	}
}

func TestCompileClassEmitsClassAndMethod(t *testing.T) {
	chunk := mustCompile(t, `
		class Box {
			init(v) { this.v = v; }
			get() { return this.v; }
		}
	`)
	if !hasOp(chunk, bytecode.OpClass) {
		t.Error("expected OP_CLASS")
	}
	if !hasOp(chunk, bytecode.OpMethod) {
		t.Error("expected OP_METHOD for each method defined")
	}
}

func TestCompileInheritanceEmitsInherit(t *testing.T) {
	chunk := mustCompile(t, `
		class A { f() { return 1; } }
		class B < A { g() { return super.f(); } }
	`)
	if !hasOp(chunk, bytecode.OpInherit) {
		t.Error("expected OP_INHERIT when a class declares a superclass")
	}
	// super.f() sits in method g's body, so it is compiled into g's own
	// chunk, nested as a function constant of the script chunk.
	var g *bytecode.Chunk
	for _, c := range chunk.Constants {
		if fn, ok := c.AsObj().(*vm.ObjFunction); ok && fn.Name != nil && fn.Name.Chars == "g" {
			g = fn.Chunk
		}
	}
	if g == nil {
		t.Fatal("expected to find method g's compiled chunk")
	}
	if !hasOp(g, bytecode.OpSuperInvoke) {
		t.Error("expected OP_SUPER_INVOKE for a super.method() call")
	}
}

func TestCompileReturnOutsideFunctionFails(t *testing.T) {
	program := &ast.Program{Statements: []ast.Statement{
		&ast.ReturnStmt{Line: 1},
	}}
	if _, err := Compile(program); err == nil {
		t.Error("expected an error returning from top-level code")
	}
}

func TestCompileListLiteralEmitsBuildList(t *testing.T) {
	chunk := mustCompile(t, `var xs = [1, 2, 3];`)
	if !hasOp(chunk, bytecode.OpBuildList) {
		t.Error("expected OP_BUILD_LIST for a list literal")
	}
}
