package vm

import "github.com/kristofer/loxvm/pkg/bytecode"

// internString implements spec §4.2: hash the content with FNV-1a, probe
// the intern set by content via findString, and return the existing
// String if one already has these bytes; otherwise allocate, root it on
// the stack before registerObject (which may run a collection), and
// insert.
func (vm *VM) internString(chars string) *ObjString {
	hash := fnv1a(chars)
	if existing := vm.strings.FindString(chars, hash); existing != nil {
		return existing
	}

	s := &ObjString{Chars: chars, Hash: hash}

	// Root s on the stack before registerObject can trigger a collection,
	// per spec §4.3's allocation-safety rule.
	vm.push(bytecode.ObjValue(s))
	vm.registerObject(s)
	vm.strings.Set(s, bytecode.NilValue())
	vm.pop()

	return s
}

// internChunkStrings walks every constant in fn's chunk, replacing each
// raw ObjString the compiler produced with this VM's canonical interned
// instance, and recurses into nested ObjFunction constants. The compiler
// package builds ObjStrings directly (it has no VM to intern against), so
// this is the bridge that restores spec §3 invariant 2 — "two ObjStrings
// with equal bytes never coexist" — before a compiled function's bytecode
// ever runs.
// prepareFunction is internChunkStrings with GC collection paused for the
// whole walk: none of the freshly compiled function/string objects are
// reachable from any VM root until Interpret pushes the top-level function,
// so a collection triggered mid-walk would sweep them out from under it.
func (vm *VM) prepareFunction(fn *ObjFunction) {
	vm.gcPaused = true
	vm.internChunkStrings(fn)
	vm.gcPaused = false
}

func (vm *VM) internChunkStrings(fn *ObjFunction) {
	vm.registerObject(fn)
	if fn.Name != nil {
		fn.Name = vm.internString(fn.Name.Chars)
	}
	for i, c := range fn.Chunk.Constants {
		switch o := c.AsObj().(type) {
		case *ObjString:
			fn.Chunk.Constants[i] = bytecode.ObjValue(vm.internString(o.Chars))
		case *ObjFunction:
			vm.internChunkStrings(o)
		}
	}
}

func fnv1a(s string) uint32 {
	const (
		offsetBasis = 2166136261
		prime       = 16777619
	)
	hash := uint32(offsetBasis)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime
	}
	return hash
}
