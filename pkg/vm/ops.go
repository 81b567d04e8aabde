package vm

import (
	"fmt"

	"github.com/kristofer/loxvm/pkg/bytecode"
)

// binaryNumeric implements SUBTRACT/MULTIPLY/DIVIDE: numeric-only, per
// spec §4.6.
func (vm *VM) binaryNumeric(f *CallFrame, op func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		_, err := vm.runtimeError(f, "Operands must be numbers.")
		return err
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(bytecode.NumberValue(op(a, b)))
	return nil
}

// binaryCompare implements GREATER/LESS: numeric comparisons require
// numbers, per spec §4.6.
func (vm *VM) binaryCompare(f *CallFrame, op func(a, b float64) bool) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		_, err := vm.runtimeError(f, "Operands must be numbers.")
		return err
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(bytecode.BoolValue(op(a, b)))
	return nil
}

// add implements ADD's three-way dispatch: numeric add, string
// concatenation (interned), or list concatenation returning the mutated
// left operand's identity, per spec §4.6/§8 scenario 3. It does not pop
// its operands — the caller does that once it knows there was no error,
// so the operands stay rooted across any allocation triggered here.
func (vm *VM) add(a, b bytecode.Value) (bytecode.Value, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return bytecode.NumberValue(a.AsNumber() + b.AsNumber()), nil

	case isObjString(a) && isObjString(b):
		sa := a.AsObj().(*ObjString)
		sb := b.AsObj().(*ObjString)
		return bytecode.ObjValue(vm.internString(sa.Chars + sb.Chars)), nil

	case isObjList(a) && isObjList(b):
		left := a.AsObj().(*ObjList)
		right := b.AsObj().(*ObjList)
		left.Items = append(left.Items, right.Items...)
		return a, nil

	default:
		return bytecode.Value{}, fmt.Errorf("Operands must be two numbers, two strings, or two lists.")
	}
}

func isObjString(v bytecode.Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := v.AsObj().(*ObjString)
	return ok
}

func isObjList(v bytecode.Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := v.AsObj().(*ObjList)
	return ok
}

// runtimeError builds a RuntimeError with the current backtrace, innermost
// frame first, per spec §6/§7, stashes it on vm.lastError for callers that
// returned a plain bool (callValue/invoke), and returns it as an error.
func (vm *VM) runtimeError(f *CallFrame, format string, args ...interface{}) (InterpretResult, error) {
	msg := fmt.Sprintf(format, args...)
	frames := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := fr.closure.Function
		line := 0
		if fr.ip-1 >= 0 && fr.ip-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[fr.ip-1]
		}
		name := ""
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		frames = append(frames, StackFrame{Name: name, Line: line})
	}
	rerr := newRuntimeError(msg, frames)
	vm.lastError = rerr
	return InterpretRuntimeError, rerr
}

func (vm *VM) runtimeErrorErr(f *CallFrame, cause error) (InterpretResult, error) {
	return vm.runtimeError(f, "%s", cause.Error())
}
