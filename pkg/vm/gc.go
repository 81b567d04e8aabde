package vm

import "github.com/kristofer/loxvm/pkg/bytecode"

// registerObject links a freshly allocated heap object into the VM's
// allocation list and charges its estimated size against the
// byte-allocation counter, triggering a collection if the threshold is
// crossed, per spec §4.3.
func (vm *VM) registerObject(obj bytecode.Obj) {
	obj.SetNextObj(vm.objects)
	vm.objects = obj
	vm.bytesAllocated += objectSize(obj)
	if !vm.gcPaused && vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

func objectSize(obj bytecode.Obj) int {
	switch o := obj.(type) {
	case *ObjString:
		return 16 + len(o.Chars)
	case *ObjFunction:
		return 64
	case *ObjNative:
		return 32
	case *ObjClosure:
		return 32 + 8*len(o.Upvalues)
	case *ObjUpvalue:
		return 32
	case *ObjClass:
		return 48
	case *ObjInstance:
		return 48
	case *ObjBoundMethod:
		return 32
	case *ObjList:
		return 24 + 16*len(o.Items)
	default:
		return 16
	}
}

// collectGarbage runs one tri-color mark-sweep cycle, per spec §4.3: mark
// roots, trace the gray worklist to black, sweep the intern set of
// unmarked strings before the general sweep, then sweep the allocation
// list and recompute the next trigger threshold.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.strings.DeleteUnmarkedStrings()
	vm.sweep()

	vm.nextGC = int(float64(vm.bytesAllocated) * vm.Config.GCGrowthFactor)
	if vm.nextGC < vm.Config.GCHeapFloor {
		vm.nextGC = vm.Config.GCHeapFloor
	}
}

func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		if c := vm.frames[i].closure; c != nil {
			vm.markObject(c)
		}
	}
	for u := vm.openUpvalues; u != nil; u = u.Next {
		vm.markObject(u)
	}
	vm.markTable(vm.globals)
	if vm.initString != nil {
		vm.markObject(vm.initString)
	}
}

func (vm *VM) markValue(v bytecode.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

func (vm *VM) markObject(obj bytecode.Obj) {
	if obj == nil || obj.Marked() {
		return
	}
	obj.SetMarked(true)
	vm.grayStack = append(vm.grayStack, obj)
}

func (vm *VM) markTable(t *Table) {
	for _, k := range t.Keys() {
		vm.markObject(k)
		if v, ok := t.Get(k); ok {
			vm.markValue(v)
		}
	}
}

// traceReferences pops gray objects and blackens them by marking their
// children, per spec §4.3's mark-phase child lists.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		obj := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blacken(obj)
	}
}

func (vm *VM) blacken(obj bytecode.Obj) {
	switch o := obj.(type) {
	case *ObjString:
		// leaf
	case *ObjFunction:
		if o.Name != nil {
			vm.markObject(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			vm.markValue(c)
		}
	case *ObjNative:
		// leaf
	case *ObjClosure:
		vm.markObject(o.Function)
		for _, u := range o.Upvalues {
			vm.markObject(u)
		}
	case *ObjUpvalue:
		vm.markValue(*o.Location)
	case *ObjClass:
		vm.markObject(o.Name)
		vm.markTable(o.Methods)
	case *ObjInstance:
		vm.markObject(o.Class)
		vm.markTable(o.Fields)
	case *ObjBoundMethod:
		vm.markValue(o.Receiver)
		vm.markObject(o.Method)
	case *ObjList:
		for _, v := range o.Items {
			vm.markValue(v)
		}
	}
}

// sweep walks the allocation list, dropping unmarked objects and clearing
// the mark bit on survivors, per spec §4.3.
func (vm *VM) sweep() {
	var prev bytecode.Obj
	obj := vm.objects
	total := 0
	for obj != nil {
		if obj.Marked() {
			obj.SetMarked(false)
			total += objectSize(obj)
			prev = obj
			obj = obj.NextObj()
			continue
		}
		unreached := obj
		obj = obj.NextObj()
		if prev != nil {
			prev.SetNextObj(obj)
		} else {
			vm.objects = obj
		}
		_ = unreached
	}
	vm.bytesAllocated = total
}
