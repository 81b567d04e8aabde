// Package test provides package-external integration tests that exercise
// the full pipeline (lexer -> parser -> compiler -> vm) against the
// concrete scenarios named by the language's testable-properties section.
package test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/parser"
	"github.com/kristofer/loxvm/pkg/vm"
)

// run compiles and executes source against a fresh VM, returning stdout.
func run(t *testing.T, source string) string {
	t.Helper()
	program, err := parser.New(source).Parse()
	require.NoError(t, err, "parse error")

	fn, err := compiler.Compile(program)
	require.NoError(t, err, "compile error")

	var out, errOut bytes.Buffer
	machine := vm.New(vm.DefaultConfig())
	machine.Stdout = &out
	machine.Stderr = &errOut

	result := machine.Interpret(fn)
	if result != vm.InterpretOK {
		t.Fatalf("runtime error: %s", errOut.String())
	}
	return out.String()
}

func TestClosureSharedState(t *testing.T) {
	source := `
		fun make() {
			var x = 0;
			fun up() { x = x + 1; }
			fun get() { return x; }
			return [up, get];
		}

		var pair = make();
		var up = pair[0];
		var get = pair[1];
		up();
		up();
		print get();
	`
	out := run(t, source)
	if strings.TrimSpace(out) != "2" {
		t.Errorf("expected shared upvalue state to read 2, got %q", out)
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	source := `
		class A {
			f() { return 1; }
		}
		class B < A {
			f() { return super.f() + 10; }
		}
		print B().f();
	`
	out := run(t, source)
	if strings.TrimSpace(out) != "11" {
		t.Errorf("expected super call to add 10 to the base result, got %q", out)
	}
}

func TestListConcatenationReturnsLeftIdentity(t *testing.T) {
	source := `
		var a = [1, 2];
		var b = [3, 4];
		var c = a + b;
		print c[0];
		print c[1];
		print c[2];
		print c[3];
		print c == a;
	`
	out := run(t, source)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{"1", "2", "3", "4", "true"}, lines)
}

func TestFieldShadowsMethodAtPropertyGet(t *testing.T) {
	source := `
		class Box {
			value() { return "method"; }
		}
		var b = Box();
		b.value = "field";
		print b.value;
	`
	out := run(t, source)
	if strings.TrimSpace(out) != "field" {
		t.Errorf("expected instance field to shadow the method of the same name, got %q", out)
	}
}

func TestStringInterningIdentity(t *testing.T) {
	source := `
		var a = "hello";
		var b = "hel" + "lo";
		print a == b;
	`
	out := run(t, source)
	if strings.TrimSpace(out) != "true" {
		t.Errorf("expected interned strings built from equal content to compare equal, got %q", out)
	}
}

func TestTruthyFalsyAsymmetry(t *testing.T) {
	source := `
		if (0) { print "zero is truthy"; } else { print "zero is falsy"; }
		if ("") { print "empty string is truthy"; } else { print "empty string is falsy"; }
		if (nil) { print "nil is truthy"; } else { print "nil is falsy"; }
		if (false) { print "false is truthy"; } else { print "false is falsy"; }
	`
	out := run(t, source)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{
		"zero is truthy",
		"empty string is truthy",
		"nil is falsy",
		"false is falsy",
	}, lines)
}

func TestClassFieldsAndMethodsAcrossInstances(t *testing.T) {
	source := `
		class Counter {
			init() { this.count = 0; }
			increment() { this.count = this.count + 1; return this.count; }
		}
		var a = Counter();
		var b = Counter();
		a.increment();
		a.increment();
		b.increment();
		print a.count;
		print b.count;
	`
	out := run(t, source)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{"2", "1"}, lines)
}

func TestForLoopDesugaring(t *testing.T) {
	source := `
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) {
			total = total + i;
		}
		print total;
	`
	out := run(t, source)
	if strings.TrimSpace(out) != "10" {
		t.Errorf("expected 0+1+2+3+4=10, got %q", out)
	}
}

func TestNativeListHelpers(t *testing.T) {
	source := `
		var xs = [1, 2, 3];
		append(xs, 4);
		print length(xs);
		print xs[3];
		delete(xs, 0);
		print length(xs);
		print xs[0];
	`
	out := run(t, source)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{"4", "4", "3", "2"}, lines)
}

func TestRuntimeErrorReportsBacktrace(t *testing.T) {
	source := `
		fun inner() {
			return 1 + nil;
		}
		fun outer() {
			return inner();
		}
		outer();
	`
	program, err := parser.New(source).Parse()
	require.NoError(t, err)
	fn, err := compiler.Compile(program)
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	machine := vm.New(vm.DefaultConfig())
	machine.Stdout = &out
	machine.Stderr = &errOut

	result := machine.Interpret(fn)
	require.Equal(t, vm.InterpretRuntimeError, result)

	msg := errOut.String()
	require.Contains(t, msg, "in inner()")
	require.Contains(t, msg, "in outer()")
	require.Contains(t, msg, "in script")
}
