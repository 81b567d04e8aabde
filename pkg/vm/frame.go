package vm

import "github.com/kristofer/loxvm/pkg/bytecode"

// call pushes a new frame for closure, per spec §4.5: arity-check, then
// slots = stackTop - argCount - 1 so slot 0 is the callee/receiver.
func (vm *VM) call(closure *ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeErrorNoFrame("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == len(vm.frames) {
		vm.runtimeErrorNoFrame("Stack overflow.")
		return false
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	return true
}

// callValue dispatches a generic callee at stack[top-argCount-1], per
// spec §4.5: bound method, class (constructor), closure, or native.
func (vm *VM) callValue(callee bytecode.Value, argCount int) bool {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *ObjBoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			return vm.call(obj.Method, argCount)

		case *ObjClass:
			inst := vm.newInstance(obj)
			vm.stack[vm.stackTop-argCount-1] = bytecode.ObjValue(inst)
			if init, ok := obj.Methods.Get(vm.initString); ok {
				return vm.call(init.AsObj().(*ObjClosure), argCount)
			}
			if argCount != 0 {
				vm.runtimeErrorNoFrame("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true

		case *ObjClosure:
			return vm.call(obj, argCount)

		case *ObjNative:
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result := obj.Fn(vm, args)
			if result.IsError() {
				return false
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return true
		}
	}
	vm.runtimeErrorNoFrame("Can only call functions and classes.")
	return false
}

// invoke implements method dispatch, per spec §4.5: fields shadow methods
// (spec §8 scenario 4), otherwise fast-path the method closure.
func (vm *VM) invoke(name *ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if !receiver.IsObj() {
		vm.runtimeErrorNoFrame("Only instances have methods.")
		return false
	}
	inst, ok := receiver.AsObj().(*ObjInstance)
	if !ok {
		vm.runtimeErrorNoFrame("Only instances have methods.")
		return false
	}
	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argCount int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeErrorNoFrame("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.call(method.AsObj().(*ObjClosure), argCount)
}

// bindMethod looks up name in class's method table and, if found, pushes
// a BoundMethod over the receiver currently on top of the stack.
func (vm *VM) bindMethod(class *ObjClass, name *ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		return false
	}
	bound := &ObjBoundMethod{Receiver: vm.peek(0), Method: method.AsObj().(*ObjClosure)}
	vm.registerObject(bound)
	vm.pop()
	vm.push(bytecode.ObjValue(bound))
	return true
}

func (vm *VM) newClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name, Methods: NewTable()}
	vm.registerObject(c)
	return c
}

func (vm *VM) newInstance(class *ObjClass) *ObjInstance {
	inst := &ObjInstance{Class: class, Fields: NewTable()}
	vm.registerObject(inst)
	return inst
}

// defineMethod implements OP_METHOD: [class, closure] -> [class].
func (vm *VM) defineMethod(name *ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*ObjClass)
	class.Methods.Set(name, method)
	vm.pop()
}

// runtimeErrorNoFrame records a failure for call/invoke helpers, which
// return bool rather than error: it builds the full backtrace through
// runtimeError at the point of failure and stashes it on vm.lastError,
// which run() returns as-is once it sees callValue/invoke return false.
func (vm *VM) runtimeErrorNoFrame(format string, args ...interface{}) {
	vm.runtimeError(vm.frame(), format, args...)
}
