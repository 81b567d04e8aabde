package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/kristofer/loxvm/pkg/bytecode"
)

// CallFrame is one activation record: the closure being executed, the
// instruction pointer into its chunk, and the base slot in the value
// stack where its locals begin (slot 0 is the callee/receiver, per spec
// §4.5).
type CallFrame struct {
	closure *ObjClosure
	ip      int
	slots   int
}

// VM is a single interpreter instance. Spec §5/§9: the design admits
// multiple independent VMs, each owning its own heap; nothing here is
// process-wide singleton state.
type VM struct {
	Config Config

	stack    []bytecode.Value
	stackTop int

	frames     []CallFrame
	frameCount int

	globals *Table
	strings *Table

	openUpvalues *ObjUpvalue

	objects        bytecode.Obj
	bytesAllocated int
	nextGC         int
	grayStack      []bytecode.Obj
	gcPaused       bool

	initString *ObjString
	lastError  error

	Stdout io.Writer
	Stderr io.Writer

	Debugger *Debugger
}

// New constructs a VM with the given configuration, registers the native
// library, and pins the "init" string sentinel (spec §3's lifecycle note:
// "The pinned init string is allocated at VM startup and kept live by a
// root").
func New(cfg Config) *VM {
	vm := &VM{
		Config:  cfg,
		stack:   make([]bytecode.Value, cfg.StackMax),
		frames:  make([]CallFrame, cfg.FramesMax),
		globals: NewTable(),
		strings: NewTable(),
		nextGC:  cfg.GCHeapFloor,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	vm.initString = vm.internString("init")
	registerNatives(vm)
	return vm
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v bytecode.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() bytecode.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// Interpret wraps fn in a closure, pushes it as frame 0, and runs the
// dispatch loop to completion, per spec §6's interpret(source) contract
// (the compile step itself is the external front end's job — this takes
// the already-compiled function).
func (vm *VM) Interpret(fn *ObjFunction) InterpretResult {
	vm.prepareFunction(fn)
	vm.push(bytecode.ObjValue(fn))
	closure := vm.newClosure(fn)
	vm.pop()
	vm.push(bytecode.ObjValue(closure))
	vm.callValue(bytecode.ObjValue(closure), 0)

	result, err := vm.run()
	if err != nil {
		if rerr, ok := err.(*RuntimeError); ok {
			fmt.Fprintln(vm.Stderr, rerr.Error())
		} else {
			fmt.Fprintln(vm.Stderr, err.Error())
		}
		vm.resetStack()
		return InterpretRuntimeError
	}
	return result
}

func (vm *VM) newClosure(fn *ObjFunction) *ObjClosure {
	upvalues := make([]*ObjUpvalue, fn.UpvalueCnt)
	c := &ObjClosure{Function: fn, Upvalues: upvalues}
	vm.registerObject(c)
	return c
}

// frame returns the currently executing call frame.
func (vm *VM) frame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

func (vm *VM) readByte(f *CallFrame) byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readUint16(f *CallFrame) uint16 {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant(f *CallFrame) bytecode.Value {
	return f.closure.Function.Chunk.Constants[vm.readByte(f)]
}

func (vm *VM) readString(f *CallFrame) *ObjString {
	return vm.readConstant(f).AsObj().(*ObjString)
}

// run is the decode-execute loop of spec §4.6. One opcode per iteration;
// reads advance the current frame's instruction pointer.
func (vm *VM) run() (InterpretResult, error) {
	f := vm.frame()

	for {
		if vm.Debugger != nil && vm.Debugger.enabled {
			if err := vm.Debugger.beforeInstruction(vm, f); err != nil {
				return InterpretRuntimeError, err
			}
		}

		op := bytecode.OpCode(vm.readByte(f))
		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(f))

		case bytecode.OpNil:
			vm.push(bytecode.NilValue())

		case bytecode.OpTrue:
			vm.push(bytecode.BoolValue(true))

		case bytecode.OpFalse:
			vm.push(bytecode.BoolValue(false))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := vm.readByte(f)
			vm.push(vm.stack[f.slots+int(slot)])

		case bytecode.OpSetLocal:
			slot := vm.readByte(f)
			vm.stack[f.slots+int(slot)] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readString(f)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError(f, "Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)

		case bytecode.OpDefineGlobal:
			name := vm.readString(f)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case bytecode.OpSetGlobal:
			name := vm.readString(f)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError(f, "Undefined variable '%s'.", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			slot := vm.readByte(f)
			vm.push(*f.closure.Upvalues[slot].Location)

		case bytecode.OpSetUpvalue:
			slot := vm.readByte(f)
			*f.closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			if !vm.peek(0).IsObj() {
				return vm.runtimeError(f, "Only instances have properties.")
			}
			inst, ok := vm.peek(0).AsObj().(*ObjInstance)
			if !ok {
				return vm.runtimeError(f, "Only instances have properties.")
			}
			name := vm.readString(f)
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(inst.Class, name) {
				return vm.runtimeError(f, "Undefined property '%s'.", name.Chars)
			}

		case bytecode.OpSetProperty:
			inst, ok := vm.peek(1).AsObj().(*ObjInstance)
			if !vm.peek(1).IsObj() || !ok {
				return vm.runtimeError(f, "Only instances have fields.")
			}
			name := vm.readString(f)
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case bytecode.OpGetSuper:
			name := vm.readString(f)
			super := vm.pop().AsObj().(*ObjClass)
			if !vm.bindMethod(super, name) {
				return vm.runtimeError(f, "Undefined property '%s'.", name.Chars)
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.BoolValue(bytecode.Equal(a, b)))

		case bytecode.OpGreater:
			if err := vm.binaryCompare(f, func(a, b float64) bool { return a > b }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpLess:
			if err := vm.binaryCompare(f, func(a, b float64) bool { return a < b }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpAdd:
			if res, rerr := vm.add(vm.peek(1), vm.peek(0)); rerr != nil {
				return vm.runtimeErrorErr(f, rerr)
			} else {
				vm.pop()
				vm.pop()
				vm.push(res)
			}

		case bytecode.OpSubtract:
			if err := vm.binaryNumeric(f, func(a, b float64) float64 { return a - b }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpMultiply:
			if err := vm.binaryNumeric(f, func(a, b float64) float64 { return a * b }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpDivide:
			if err := vm.binaryNumeric(f, func(a, b float64) float64 { return a / b }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpNot:
			vm.push(bytecode.BoolValue(bytecode.IsFalsey(vm.pop())))

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError(f, "Operand must be a number.")
			}
			vm.push(bytecode.NumberValue(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, bytecode.FormatValue(vm.pop()))

		case bytecode.OpJump:
			offset := vm.readUint16(f)
			f.ip += int(offset)

		case bytecode.OpJumpIfFalse:
			offset := vm.readUint16(f)
			if bytecode.IsFalsey(vm.peek(0)) {
				f.ip += int(offset)
			}

		case bytecode.OpLoop:
			offset := vm.readUint16(f)
			f.ip -= int(offset)

		case bytecode.OpCall:
			argCount := int(vm.readByte(f))
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError, vm.lastError
			}
			f = vm.frame()

		case bytecode.OpInvoke:
			name := vm.readString(f)
			argCount := int(vm.readByte(f))
			if !vm.invoke(name, argCount) {
				return InterpretRuntimeError, vm.lastError
			}
			f = vm.frame()

		case bytecode.OpSuperInvoke:
			name := vm.readString(f)
			argCount := int(vm.readByte(f))
			super := vm.pop().AsObj().(*ObjClass)
			if !vm.invokeFromClass(super, name, argCount) {
				return InterpretRuntimeError, vm.lastError
			}
			f = vm.frame()

		case bytecode.OpClosure:
			fn := vm.readConstant(f).AsObj().(*ObjFunction)
			closure := vm.newClosure(fn)
			vm.push(bytecode.ObjValue(closure))
			for i := 0; i < fn.UpvalueCnt; i++ {
				isLocal := vm.readByte(f)
				index := vm.readByte(f)
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(f.slots + int(index))
				} else {
					closure.Upvalues[i] = f.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK, nil
			}
			vm.stackTop = f.slots
			vm.push(result)
			f = vm.frame()

		case bytecode.OpClass:
			name := vm.readString(f)
			vm.push(bytecode.ObjValue(vm.newClass(name)))

		case bytecode.OpInherit:
			superVal := vm.peek(1)
			superClass, ok := superVal.AsObj().(*ObjClass)
			if !superVal.IsObj() || !ok {
				return vm.runtimeError(f, "Superclass must be a class.")
			}
			subClass := vm.peek(0).AsObj().(*ObjClass)
			superClass.Methods.AddAll(subClass.Methods)
			vm.pop()

		case bytecode.OpMethod:
			name := vm.readString(f)
			vm.defineMethod(name)

		case bytecode.OpBuildList:
			count := int(vm.readByte(f))
			list := &ObjList{}
			vm.registerObject(list)
			vm.push(bytecode.ObjValue(list)) // root across the allocation below, per spec
			list.Items = make([]bytecode.Value, count)
			copy(list.Items, vm.stack[vm.stackTop-1-count:vm.stackTop-1])
			vm.stack[vm.stackTop-1-count] = bytecode.ObjValue(list)
			vm.stackTop -= count

		case bytecode.OpIndexSubscr:
			index := vm.peek(0)
			listVal := vm.peek(1)
			list, ok := listVal.AsObj().(*ObjList)
			if !listVal.IsObj() || !ok {
				return vm.runtimeError(f, "Can only index lists.")
			}
			if !index.IsNumber() {
				return vm.runtimeError(f, "List index must be a number.")
			}
			i := int(index.AsNumber())
			if i < 0 || i >= len(list.Items) {
				return vm.runtimeError(f, "List index out of range.")
			}
			vm.pop()
			vm.pop()
			vm.push(list.Items[i])

		case bytecode.OpStoreSubscr:
			value := vm.peek(0)
			index := vm.peek(1)
			listVal := vm.peek(2)
			list, ok := listVal.AsObj().(*ObjList)
			if !listVal.IsObj() || !ok {
				return vm.runtimeError(f, "Can only index lists.")
			}
			if !index.IsNumber() {
				return vm.runtimeError(f, "List index must be a number.")
			}
			i := int(index.AsNumber())
			if i < 0 || i >= len(list.Items) {
				return vm.runtimeError(f, "List index out of range.")
			}
			list.Items[i] = value
			vm.pop()
			vm.pop()
			vm.pop()
			vm.push(value)

		default:
			return vm.runtimeError(f, "Unknown opcode %d.", byte(op))
		}
	}
}
