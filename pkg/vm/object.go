// Package vm implements the execution engine: the heap object graph, the
// hash table and string interner, the tracing collector, the upvalue
// engine, call-frame machinery, and the bytecode dispatch loop.
package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/bytecode"
)

// ObjHeader is the shared header every heap object embeds: a GC mark bit
// and the intrusive link into the VM's allocation list, per spec §3. It
// implements the GC-linkage half of bytecode.Obj; each concrete type
// implements ObjKind() and String() itself.
type ObjHeader struct {
	marked bool
	next   bytecode.Obj
}

func (h *ObjHeader) Marked() bool          { return h.marked }
func (h *ObjHeader) SetMarked(m bool)      { h.marked = m }
func (h *ObjHeader) NextObj() bytecode.Obj { return h.next }
func (h *ObjHeader) SetNextObj(o bytecode.Obj) { h.next = o }

// ObjString is an interned, immutable string with a cached content hash,
// per spec §3. Two ObjStrings with equal bytes never coexist (§3 invariant
// 2) — see intern.go.
type ObjString struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (s *ObjString) ObjKind() bytecode.ObjKind { return bytecode.ObjStringKind }
func (s *ObjString) String() string            { return s.Chars }

// ObjFunction is a compiled function: arity, upvalue count, an optional
// name, and the chunk produced by the front end, per spec §3.
type ObjFunction struct {
	ObjHeader
	Name         *ObjString
	Arity        int
	UpvalueCnt   int
	Chunk        *bytecode.Chunk
}

func (f *ObjFunction) ObjKind() bytecode.ObjKind { return bytecode.ObjFunctionKind }
func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// UpvalueCount reports how many (isLocal, index) pairs follow a CLOSURE
// instruction referencing this function; used by the disassembler.
func (f *ObjFunction) UpvalueCount() int { return f.UpvalueCnt }

// NativeFn is the native calling convention of spec §4.7: read arguments
// directly, return a Value, or return bytecode.ErrorValue after reporting
// a diagnostic through the VM that invoked it.
type NativeFn func(vm *VM, args []bytecode.Value) bytecode.Value

// ObjNative wraps a host function exposed to scripts via defineNative.
type ObjNative struct {
	ObjHeader
	Name string
	Fn   NativeFn
}

func (n *ObjNative) ObjKind() bytecode.ObjKind { return bytecode.ObjNativeKind }
func (n *ObjNative) String() string            { return fmt.Sprintf("<native fn %s>", n.Name) }

// ObjUpvalue is either open (Location aliases a live stack slot) or closed
// (Location aliases its own Closed field), per spec §3/§4.4. Next threads
// it into the VM's open-upvalue list, sorted by descending stack address.
type ObjUpvalue struct {
	ObjHeader
	Location *bytecode.Value
	Closed   bytecode.Value
	Next     *ObjUpvalue
	// slotIndex is the stack index Location aliases while open; meaningful
	// only until Close retargets Location to the embedded Closed field.
	slotIndex int
}

func (u *ObjUpvalue) ObjKind() bytecode.ObjKind { return bytecode.ObjUpvalueKind }
func (u *ObjUpvalue) String() string            { return "<upvalue>" }

// ObjClosure pairs a Function with its resolved upvalue cells.
type ObjClosure struct {
	ObjHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) ObjKind() bytecode.ObjKind { return bytecode.ObjClosureKind }
func (c *ObjClosure) String() string            { return c.Function.String() }

// ObjClass has a name and a flattened method table (String -> Closure),
// per spec §3/§5 (inheritance is resolved at class-creation time, not by
// a runtime MRO walk).
type ObjClass struct {
	ObjHeader
	Name    *ObjString
	Methods *Table
}

func (c *ObjClass) ObjKind() bytecode.ObjKind { return bytecode.ObjClassKind }
func (c *ObjClass) String() string            { return fmt.Sprintf("<class %s>", c.Name.Chars) }

// ObjInstance has a class reference and an arbitrary-Value fields table.
type ObjInstance struct {
	ObjHeader
	Class  *ObjClass
	Fields *Table
}

func (i *ObjInstance) ObjKind() bytecode.ObjKind { return bytecode.ObjInstanceKind }
func (i *ObjInstance) String() string            { return fmt.Sprintf("<%s instance>", i.Class.Name.Chars) }

// ObjBoundMethod pairs a receiver with the closure bound to it, produced
// by GET_PROPERTY/GET_SUPER when the property names a method.
type ObjBoundMethod struct {
	ObjHeader
	Receiver bytecode.Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) ObjKind() bytecode.ObjKind { return bytecode.ObjBoundMethodKind }
func (b *ObjBoundMethod) String() string            { return b.Method.String() }

// ObjList is a dynamic array of Value, the target of BUILD_LIST,
// INDEX_SUBSCR, STORE_SUBSCR, and ADD's list-concatenation case.
type ObjList struct {
	ObjHeader
	Items []bytecode.Value
}

func (l *ObjList) ObjKind() bytecode.ObjKind { return bytecode.ObjListKind }
func (l *ObjList) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(bytecode.FormatValue(v))
	}
	b.WriteByte(']')
	return b.String()
}
