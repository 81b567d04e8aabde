package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kristofer/loxvm/pkg/bytecode"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/crypto/blake2b"
)

// defineNative implements spec §4.7's defineNative(name, fn): wrap fn in
// an ObjNative and bind it as a global, the same registration shape the
// teacher's primitives file used (one function per concern, installed at
// startup) generalized to the spec's native calling convention.
func (vm *VM) defineNative(name string, fn NativeFn) {
	native := &ObjNative{Name: name, Fn: fn}
	vm.registerObject(native)
	nameStr := vm.internString(name)
	vm.globals.Set(nameStr, bytecode.ObjValue(native))
}

// nativeError reports a diagnostic through the same backtrace-building
// path as a dispatch-loop runtime error, then returns the error sentinel,
// per spec §4.7: "natives emit their own error messages; they signal
// failure via the error sentinel."
func (vm *VM) nativeError(format string, args ...interface{}) bytecode.Value {
	vm.runtimeErrorNoFrame(format, args...)
	return bytecode.ErrorValue
}

// registerNatives installs the native library: the list/string helpers
// grounded on original_source/src/vm.c's appendNative/deleteNative/
// lengthNative/tostringNative/substringNative, plus the domain-stack
// additions (JSON, uuid, blake2b) named in SPEC_FULL.md's DOMAIN STACK.
func registerNatives(vm *VM) {
	vm.defineNative("length", nativeLength)
	vm.defineNative("append", nativeAppend)
	vm.defineNative("delete", nativeDelete)
	vm.defineNative("substring", nativeSubstring)
	vm.defineNative("tostring", nativeToString)
	vm.defineNative("jsonParse", nativeJSONParse)
	vm.defineNative("jsonEncode", nativeJSONEncode)
	vm.defineNative("uuid", nativeUUID)
	vm.defineNative("blake2b", nativeBlake2b)
}

func nativeLength(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 1 {
		return vm.nativeError("length() takes exactly 1 argument (%d given).", len(args))
	}
	switch {
	case isObjString(args[0]):
		return bytecode.NumberValue(float64(len(args[0].AsObj().(*ObjString).Chars)))
	case isObjList(args[0]):
		return bytecode.NumberValue(float64(len(args[0].AsObj().(*ObjList).Items)))
	default:
		return vm.nativeError("length() requires a string or list argument.")
	}
}

// nativeAppend mutates the list in place and returns it, mirroring
// original_source's appendNative, generalized from a fixed-arity C native
// to the Value/List representation here.
func nativeAppend(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 2 || !isObjList(args[0]) {
		return vm.nativeError("append() takes a list and a value.")
	}
	list := args[0].AsObj().(*ObjList)
	list.Items = append(list.Items, args[1])
	return args[0]
}

// nativeDelete removes the item at an index, per original_source's
// deleteNative.
func nativeDelete(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 2 || !isObjList(args[0]) || !args[1].IsNumber() {
		return vm.nativeError("delete() takes a list and a numeric index.")
	}
	list := args[0].AsObj().(*ObjList)
	i := int(args[1].AsNumber())
	if i < 0 || i >= len(list.Items) {
		return vm.nativeError("delete() index out of range.")
	}
	list.Items = append(list.Items[:i], list.Items[i+1:]...)
	return args[0]
}

func nativeSubstring(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 3 || !isObjString(args[0]) || !args[1].IsNumber() || !args[2].IsNumber() {
		return vm.nativeError("substring() takes a string and two numeric indices.")
	}
	s := args[0].AsObj().(*ObjString).Chars
	start := int(args[1].AsNumber())
	end := int(args[2].AsNumber())
	if start < 0 || end > len(s) || start > end {
		return vm.nativeError("substring() indices out of range.")
	}
	return bytecode.ObjValue(vm.internString(s[start:end]))
}

func nativeToString(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 1 {
		return vm.nativeError("tostring() takes exactly 1 argument.")
	}
	return bytecode.ObjValue(vm.internString(bytecode.FormatValue(args[0])))
}

// nativeJSONParse converts a JSON document into loxvm Values using gjson,
// per SPEC_FULL.md's DOMAIN STACK. JSON objects surface as Lists of
// [key, value] pairs rather than Instances, keeping the result
// representable with only the spec's own Value kinds.
func nativeJSONParse(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 1 || !isObjString(args[0]) {
		return vm.nativeError("jsonParse() takes a JSON string.")
	}
	result := gjson.Parse(args[0].AsObj().(*ObjString).Chars)
	if !result.Exists() && result.Type == gjson.Null {
		return vm.nativeError("jsonParse() failed to parse input.")
	}
	return vm.gjsonToValue(result)
}

func (vm *VM) gjsonToValue(r gjson.Result) bytecode.Value {
	switch r.Type {
	case gjson.Null:
		return bytecode.NilValue()
	case gjson.False:
		return bytecode.BoolValue(false)
	case gjson.True:
		return bytecode.BoolValue(true)
	case gjson.Number:
		return bytecode.NumberValue(r.Num)
	case gjson.String:
		return bytecode.ObjValue(vm.internString(r.Str))
	case gjson.JSON:
		if r.IsArray() {
			list := &ObjList{}
			vm.registerObject(list)
			vm.push(bytecode.ObjValue(list)) // root across allocations triggered below
			r.ForEach(func(_, value gjson.Result) bool {
				list.Items = append(list.Items, vm.gjsonToValue(value))
				return true
			})
			vm.pop()
			return bytecode.ObjValue(list)
		}
		// JSON object: pairs as [key, value] two-element lists inside a
		// list, so the result stays within the spec's own Value kinds.
		outer := &ObjList{}
		vm.registerObject(outer)
		vm.push(bytecode.ObjValue(outer))
		r.ForEach(func(key, value gjson.Result) bool {
			pair := &ObjList{Items: []bytecode.Value{
				bytecode.ObjValue(vm.internString(key.Str)),
				vm.gjsonToValue(value),
			}}
			vm.registerObject(pair)
			outer.Items = append(outer.Items, bytecode.ObjValue(pair))
			return true
		})
		vm.pop()
		return bytecode.ObjValue(outer)
	default:
		return bytecode.NilValue()
	}
}

// nativeJSONEncode serializes a flat set of [key, value] pairs (as
// produced by jsonParse, or built by a script) into a JSON object string
// via sjson.
func nativeJSONEncode(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 1 || !isObjList(args[0]) {
		return vm.nativeError("jsonEncode() takes a list of [key, value] pairs.")
	}
	pairs := args[0].AsObj().(*ObjList)
	json := "{}"
	for _, pairVal := range pairs.Items {
		pair, ok := pairVal.AsObj().(*ObjList)
		if !pairVal.IsObj() || !ok || len(pair.Items) != 2 || !isObjString(pair.Items[0]) {
			return vm.nativeError("jsonEncode() expects [key, value] pairs.")
		}
		key := pair.Items[0].AsObj().(*ObjString).Chars
		var err error
		json, err = setJSONValue(json, key, pair.Items[1])
		if err != nil {
			return vm.nativeError("jsonEncode() failed: %s", err.Error())
		}
	}
	return bytecode.ObjValue(vm.internString(json))
}

func setJSONValue(json, key string, v bytecode.Value) (string, error) {
	switch {
	case v.IsNil():
		return sjson.Set(json, key, nil)
	case v.IsBool():
		return sjson.Set(json, key, v.AsBool())
	case v.IsNumber():
		return sjson.Set(json, key, v.AsNumber())
	case isObjString(v):
		return sjson.Set(json, key, v.AsObj().(*ObjString).Chars)
	default:
		return sjson.Set(json, key, bytecode.FormatValue(v))
	}
}

func nativeUUID(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 0 {
		return vm.nativeError("uuid() takes no arguments.")
	}
	return bytecode.ObjValue(vm.internString(uuid.NewString()))
}

func nativeBlake2b(vm *VM, args []bytecode.Value) bytecode.Value {
	if len(args) != 1 || !isObjString(args[0]) {
		return vm.nativeError("blake2b() takes a string argument.")
	}
	sum := blake2b.Sum256([]byte(args[0].AsObj().(*ObjString).Chars))
	return bytecode.ObjValue(vm.internString(fmt.Sprintf("%x", sum)))
}
