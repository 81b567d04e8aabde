package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kristofer/loxvm/pkg/bytecode"
)

// Debugger is an interactive, breakpoint-driven inspector over a running
// VM, adapted from the teacher's pkg/vm/debugger.go to the chunk/frame/
// tagged-Value model built here instead of smog's interface{} stack.
type Debugger struct {
	enabled     bool
	stepMode    bool
	breakpoints map[int]bool
	in          *bufio.Scanner
	out         io.Writer
}

// NewDebugger wires a debugger to the given input/output streams (the CLI
// passes stdin/stdout; tests can pass any io.Reader/io.Writer pair).
func NewDebugger(in io.Reader, out io.Writer) *Debugger {
	return &Debugger{
		breakpoints: make(map[int]bool),
		in:          bufio.NewScanner(in),
		out:         out,
	}
}

func (d *Debugger) Enable()           { d.enabled = true }
func (d *Debugger) Disable()          { d.enabled = false }
func (d *Debugger) SetStepMode(b bool) { d.stepMode = b }

func (d *Debugger) AddBreakpoint(offset int)    { d.breakpoints[offset] = true }
func (d *Debugger) RemoveBreakpoint(offset int) { delete(d.breakpoints, offset) }
func (d *Debugger) ClearBreakpoints()           { d.breakpoints = make(map[int]bool) }

func (d *Debugger) shouldPause(offset int) bool {
	return d.stepMode || d.breakpoints[offset]
}

// beforeInstruction is called by run() ahead of decoding each opcode. When
// step mode is on or a breakpoint is set at the current offset, it shows
// the next instruction and blocks on an interactive prompt; otherwise it
// returns at once.
func (d *Debugger) beforeInstruction(vm *VM, f *CallFrame) error {
	if !d.shouldPause(f.ip) {
		return nil
	}
	_, line := bytecode.DisassembleInstruction(f.closure.Function.Chunk, f.ip)
	fmt.Fprintln(d.out, line)
	return d.prompt(vm, f)
}

func (d *Debugger) prompt(vm *VM, f *CallFrame) error {
	for {
		fmt.Fprint(d.out, "(loxdbg) ")
		if !d.in.Scan() {
			return nil
		}
		fields := strings.Fields(d.in.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help", "h":
			d.printHelp()
		case "continue", "c":
			d.stepMode = false
			return nil
		case "step", "s", "next", "n":
			d.stepMode = true
			return nil
		case "stack":
			d.showStack(vm)
		case "locals":
			d.showLocals(vm, f)
		case "globals":
			d.showGlobals(vm)
		case "break", "b":
			if len(fields) == 2 {
				if n, err := strconv.Atoi(fields[1]); err == nil {
					d.AddBreakpoint(n)
				}
			}
		case "delete":
			if len(fields) == 2 {
				if n, err := strconv.Atoi(fields[1]); err == nil {
					d.RemoveBreakpoint(n)
				}
			}
		case "quit", "q":
			return fmt.Errorf("debugger quit")
		default:
			fmt.Fprintf(d.out, "unknown command %q (try 'help')\n", fields[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.out, "commands: help, continue, step, stack, locals, globals, break N, delete N, quit")
}

func (d *Debugger) showStack(vm *VM) {
	fmt.Fprint(d.out, "stack:")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(d.out, " [%s]", bytecode.FormatValue(vm.stack[i]))
	}
	fmt.Fprintln(d.out)
}

func (d *Debugger) showLocals(vm *VM, f *CallFrame) {
	fmt.Fprint(d.out, "locals:")
	for i := f.slots; i < vm.stackTop; i++ {
		fmt.Fprintf(d.out, " [%d]=%s", i-f.slots, bytecode.FormatValue(vm.stack[i]))
	}
	fmt.Fprintln(d.out)
}

func (d *Debugger) showGlobals(vm *VM) {
	for _, k := range vm.globals.Keys() {
		v, _ := vm.globals.Get(k)
		fmt.Fprintf(d.out, "%s = %s\n", k.Chars, bytecode.FormatValue(v))
	}
}
