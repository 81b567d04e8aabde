// Package bytecode defines the wire format the front end hands the virtual
// machine: the tagged Value representation, the chunk of compiled code, and
// a disassembler for both.
//
// Value and Chunk live in the same package because a Chunk's constant pool
// is a dense array of Values, and a compiled function (a heap object owned
// by pkg/vm) embeds a Chunk. Keeping the tagged union here, decoupled from
// the concrete heap object types in pkg/vm, avoids an import cycle: pkg/vm
// implements the Obj interface declared below, pkg/bytecode never needs to
// know about strings, closures, or classes as concrete types.
package bytecode

import "strconv"

// ValueKind discriminates the tagged union described in spec §3.
type ValueKind uint8

const (
	ValNil ValueKind = iota
	ValBool
	ValNumber
	ValObj
	// ValError is the reserved sentinel a native returns to signal failure.
	// It is never stored in a table, a list, or a field — only ever passed
	// back across the native calling convention and compared by tag.
	ValError
)

// ObjKind discriminates the heap object kinds described in spec §3.
type ObjKind uint8

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjNativeKind
	ObjClosureKind
	ObjUpvalueKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
	ObjListKind
)

// Obj is the minimal interface a heap object must satisfy to be stored in a
// Value and walked by the garbage collector. Concrete kinds (ObjString,
// ObjFunction, ...) live in pkg/vm; this package only ever sees them through
// this interface.
type Obj interface {
	ObjKind() ObjKind
	String() string

	// GC linkage — the mark bit and allocation-list link described in §3's
	// object header. Exported because pkg/vm's collector lives in a
	// different package from the Value/Obj types it walks.
	Marked() bool
	SetMarked(bool)
	NextObj() Obj
	SetNextObj(Obj)
}

// Value is the tagged discriminated union of spec §3: nil, boolean, number,
// object-reference, or the reserved error sentinel. The zero Value is nil.
type Value struct {
	kind    ValueKind
	boolean bool
	number  float64
	obj     Obj
}

func NilValue() Value             { return Value{kind: ValNil} }
func BoolValue(b bool) Value      { return Value{kind: ValBool, boolean: b} }
func NumberValue(n float64) Value { return Value{kind: ValNumber, number: n} }
func ObjValue(o Obj) Value        { return Value{kind: ValObj, obj: o} }

// ErrorValue is the singleton error sentinel. Every native failure returns
// this exact Value; the dispatcher compares a native's result against it
// by tag (IsError), never by payload, so no legal number, string, or object
// reference can ever collide with it.
var ErrorValue = Value{kind: ValError}

func (v Value) IsNil() bool    { return v.kind == ValNil }
func (v Value) IsBool() bool   { return v.kind == ValBool }
func (v Value) IsNumber() bool { return v.kind == ValNumber }
func (v Value) IsObj() bool    { return v.kind == ValObj }
func (v Value) IsError() bool  { return v.kind == ValError }

func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Obj        { return v.obj }

// ObjKindOf reports the kind of the object a Value holds, or false if the
// Value is not an object reference.
func (v Value) ObjKindOf() (ObjKind, bool) {
	if v.kind != ValObj {
		return 0, false
	}
	return v.obj.ObjKind(), true
}

// IsFalsey implements the truthy/falsy asymmetry of spec §9: only nil and
// false are falsy, zero and empty strings are truthy.
func IsFalsey(v Value) bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// Equal implements the equality rules of spec §3: nil=nil; booleans and
// numbers compare by value; objects (including strings, via interning)
// compare by reference identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case ValNil:
		return true
	case ValBool:
		return a.boolean == b.boolean
	case ValNumber:
		return a.number == b.number
	case ValObj:
		return a.obj == b.obj
	case ValError:
		return true
	default:
		return false
	}
}

// FormatValue renders a Value the way PRINT and the tostring native do.
// Numbers use Go's shortest round-tripping decimal form, the same family
// of formatting as C's "%g" that spec §8's round-trip law requires.
func FormatValue(v Value) string {
	switch v.kind {
	case ValNil:
		return "nil"
	case ValBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case ValNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case ValObj:
		return v.obj.String()
	case ValError:
		return "<error>"
	default:
		return "<invalid>"
	}
}
