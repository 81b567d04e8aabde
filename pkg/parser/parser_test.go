package parser

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/ast"
)

func mustParse(t *testing.T, source string) *ast.Program {
	t.Helper()
	p := New(source)
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v (%v)", err, p.Errors())
	}
	return program
}

func TestParseVarDeclaration(t *testing.T) {
	program := mustParse(t, `var x = 1 + 2;`)
	if len(program.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(program.Statements))
	}
	v, ok := program.Statements[0].(*ast.VarStmt)
	if !ok {
		t.Fatalf("expected *ast.VarStmt, got %T", program.Statements[0])
	}
	if v.Name != "x" {
		t.Errorf("expected name 'x', got %q", v.Name)
	}
	bin, ok := v.Init.(*ast.Binary)
	if !ok {
		t.Fatalf("expected *ast.Binary initializer, got %T", v.Init)
	}
	if bin.Operator != "+" {
		t.Errorf("expected '+', got %q", bin.Operator)
	}
}

func TestParseBinaryPrecedence(t *testing.T) {
	// 1 + 2 * 3 should parse as 1 + (2 * 3)
	program := mustParse(t, `var x = 1 + 2 * 3;`)
	v := program.Statements[0].(*ast.VarStmt)
	bin := v.Init.(*ast.Binary)
	if bin.Operator != "+" {
		t.Fatalf("expected top-level '+', got %q", bin.Operator)
	}
	right, ok := bin.Right.(*ast.Binary)
	if !ok || right.Operator != "*" {
		t.Fatalf("expected right side to be '*', got %#v", bin.Right)
	}
}

func TestParseFunctionDeclaration(t *testing.T) {
	program := mustParse(t, `
		fun add(a, b) {
			return a + b;
		}
	`)
	fn, ok := program.Statements[0].(*ast.FunStmt)
	if !ok {
		t.Fatalf("expected *ast.FunStmt, got %T", program.Statements[0])
	}
	if fn.Name != "add" {
		t.Errorf("expected name 'add', got %q", fn.Name)
	}
	if len(fn.Params) != 2 || fn.Params[0] != "a" || fn.Params[1] != "b" {
		t.Errorf("expected params [a b], got %v", fn.Params)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected 1 body statement, got %d", len(fn.Body))
	}
	if _, ok := fn.Body[0].(*ast.ReturnStmt); !ok {
		t.Errorf("expected a return statement, got %T", fn.Body[0])
	}
}

func TestParseClassWithSuperclassAndMethods(t *testing.T) {
	program := mustParse(t, `
		class B < A {
			f() { return super.f() + 1; }
		}
	`)
	class, ok := program.Statements[0].(*ast.ClassStmt)
	if !ok {
		t.Fatalf("expected *ast.ClassStmt, got %T", program.Statements[0])
	}
	if class.Name != "B" || class.Superclass != "A" {
		t.Errorf("expected B < A, got %s < %s", class.Name, class.Superclass)
	}
	if len(class.Methods) != 1 || class.Methods[0].Name != "f" {
		t.Fatalf("expected method 'f', got %v", class.Methods)
	}
}

func TestParseForLoopDesugarsToWhile(t *testing.T) {
	program := mustParse(t, `
		for (var i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	block, ok := program.Statements[0].(*ast.Block)
	if !ok {
		t.Fatalf("expected desugared Block, got %T", program.Statements[0])
	}
	if len(block.Statements) != 2 {
		t.Fatalf("expected [initializer, while], got %d statements", len(block.Statements))
	}
	if _, ok := block.Statements[0].(*ast.VarStmt); !ok {
		t.Errorf("expected first statement to be the initializer, got %T", block.Statements[0])
	}
	whileStmt, ok := block.Statements[1].(*ast.While)
	if !ok {
		t.Fatalf("expected second statement to be a While, got %T", block.Statements[1])
	}
	body, ok := whileStmt.Body.(*ast.Block)
	if !ok {
		t.Fatalf("expected while body wrapped with the post-expression, got %T", whileStmt.Body)
	}
	if len(body.Statements) != 2 {
		t.Fatalf("expected [original body, post], got %d", len(body.Statements))
	}
}

func TestParseListLiteralAndIndex(t *testing.T) {
	program := mustParse(t, `
		var xs = [1, 2, 3];
		xs[0] = 9;
	`)
	v := program.Statements[0].(*ast.VarStmt)
	list, ok := v.Init.(*ast.ListLiteral)
	if !ok || len(list.Elements) != 3 {
		t.Fatalf("expected a 3-element list literal, got %#v", v.Init)
	}

	stmt := program.Statements[1].(*ast.ExpressionStmt)
	set, ok := stmt.Expr.(*ast.IndexSet)
	if !ok {
		t.Fatalf("expected *ast.IndexSet, got %T", stmt.Expr)
	}
	if _, ok := set.Object.(*ast.Identifier); !ok {
		t.Errorf("expected identifier object, got %T", set.Object)
	}
}

func TestParseAssignmentTargets(t *testing.T) {
	program := mustParse(t, `
		x = 1;
		obj.field = 2;
	`)
	if _, ok := program.Statements[0].(*ast.ExpressionStmt).Expr.(*ast.Assign); !ok {
		t.Errorf("expected *ast.Assign for plain identifier target")
	}
	if _, ok := program.Statements[1].(*ast.ExpressionStmt).Expr.(*ast.Set); !ok {
		t.Errorf("expected *ast.Set for property target")
	}
}

func TestParseLogicalShortCircuitOperators(t *testing.T) {
	program := mustParse(t, `var x = true and false or true;`)
	v := program.Statements[0].(*ast.VarStmt)
	logical, ok := v.Init.(*ast.Logical)
	if !ok {
		t.Fatalf("expected top-level *ast.Logical, got %#v", v.Init)
	}
	if logical.Operator != "or" {
		t.Errorf("expected 'or' at the top (lowest precedence), got %q", logical.Operator)
	}
}

func TestParseErrorsAccumulate(t *testing.T) {
	p := New(`var = ;`)
	_, err := p.Parse()
	if err == nil {
		t.Fatal("expected a parse error for a missing variable name")
	}
	if len(p.Errors()) == 0 {
		t.Error("expected at least one accumulated error")
	}
}
