package vm

// captureUpvalue implements spec §4.4: walk the open-upvalue list (sorted
// by descending stack address); reuse an existing upvalue pointing at
// slot, or splice a new one in at the sorted position.
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	upvalue := vm.openUpvalues
	for upvalue != nil && upvalue.slotIndex > slot {
		prev = upvalue
		upvalue = upvalue.Next
	}
	if upvalue != nil && upvalue.slotIndex == slot {
		return upvalue
	}

	created := &ObjUpvalue{Location: &vm.stack[slot], slotIndex: slot}
	vm.registerObject(created)
	created.Next = upvalue
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues implements spec §4.4: while the head of the open list
// points at a slot >= boundary, move its value into its own embedded
// slot, retarget Location to alias that slot, and unlink.
func (vm *VM) closeUpvalues(boundary int) {
	for vm.openUpvalues != nil && vm.openUpvalues.slotIndex >= boundary {
		upvalue := vm.openUpvalues
		upvalue.Closed = *upvalue.Location
		upvalue.Location = &upvalue.Closed
		vm.openUpvalues = upvalue.Next
		upvalue.Next = nil
		upvalue.slotIndex = -1
	}
}
