package test

import (
	"bytes"
	"testing"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/parser"
	"github.com/kristofer/loxvm/pkg/vm"
)

// TestGCStressCompletesUnderFrequentCollection allocates many short-lived strings and lists
// in a loop and checks the run completes without the config's StackMax or
// FramesMax bounds getting exercised in a way that panics. A low heap floor
// forces many collection cycles during the loop rather than one at the end.
func TestGCStressCompletesUnderFrequentCollection(t *testing.T) {
	source := `
		var total = 0;
		for (var i = 0; i < 2000; i = i + 1) {
			var s = "garbage" + tostring(i);
			var xs = [s, s, s];
			total = total + length(xs);
		}
		print total;
	`
	program, err := parser.New(source).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	fn, err := compiler.Compile(program)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	cfg := vm.DefaultConfig()
	cfg.GCHeapFloor = 4096 // force frequent collection during the loop

	var out, errOut bytes.Buffer
	machine := vm.New(cfg)
	machine.Stdout = &out
	machine.Stderr = &errOut

	result := machine.Interpret(fn)
	if result != vm.InterpretOK {
		t.Fatalf("runtime error under GC stress: %s", errOut.String())
	}
	if got := out.String(); got != "6000\n" {
		t.Errorf("expected total 6000 (2000 iterations * 3-element list), got %q", got)
	}
}
