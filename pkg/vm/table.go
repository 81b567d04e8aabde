package vm

import "github.com/kristofer/loxvm/pkg/bytecode"

const tableMaxLoad = 0.75

type entry struct {
	key   *ObjString
	value bytecode.Value
	// tombstone distinguishes a deleted slot (probe must continue) from a
	// genuinely empty one (probe stops here), per spec §4.1.
	tombstone bool
}

// Table is the open-addressed hash table of spec §4.1: linear probing,
// tombstones so probe chains survive deletion, and a findString probe that
// compares byte content directly rather than materializing an ObjString
// first (the operation interning depends on).
type Table struct {
	count   int
	entries []entry
}

// NewTable returns an empty table. Capacity is allocated lazily on first
// Set, matching the teacher's and original_source's "table starts at
// zero" convention.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) Count() int { return t.count }

// Get returns the value stored under key, or (zero, false) if absent.
func (t *Table) Get(key *ObjString) (bytecode.Value, bool) {
	if len(t.entries) == 0 {
		return bytecode.Value{}, false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return bytecode.Value{}, false
	}
	return e.value, true
}

// Set stores value under key, growing the table if the load factor cap is
// crossed. Returns true if key was not already present (a true insert,
// not an overwrite) — the SET_GLOBAL undefined-variable probe and the
// §4.1 "set" contract both depend on this.
func (t *Table) Set(key *ObjString, value bytecode.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := t.findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && !e.tombstone {
		t.count++
	}
	e.key = key
	e.value = value
	e.tombstone = false
	return isNew
}

// Delete writes a tombstone over key's slot. Returns whether key existed.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = bytecode.Value{}
	e.tombstone = true
	return true
}

// AddAll copies every live entry of t into dst, used for class inheritance
// (INHERIT flattens the superclass's method table into the subclass's).
func (t *Table) AddAll(dst *Table) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by content, bypassing key
// materialization, per spec §4.2's interning contract.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			if !e.tombstone {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// findEntry runs the probe sequence of §4.1: remember the first tombstone
// seen so Set can reuse it, but keep probing past tombstones in search of
// the key itself.
func (t *Table) findEntry(entries []entry, key *ObjString) *entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *entry
	for {
		e := &entries[index]
		switch {
		case e.key == nil:
			if !e.tombstone {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		index = (index + 1) & mask
	}
}

func (t *Table) grow() {
	capacity := 8
	if len(t.entries) > 0 {
		capacity = len(t.entries) * 2
	}
	fresh := make([]entry, capacity)
	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dst := t.findEntry(fresh, e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
	t.entries = fresh
}

// Keys returns every live key, in no particular order. The collector uses
// it to mark globals and method/field tables, and the debugger to list
// globals; the intern set is never walked through it.
func (t *Table) Keys() []*ObjString {
	keys := make([]*ObjString, 0, t.count)
	for i := range t.entries {
		if t.entries[i].key != nil {
			keys = append(keys, t.entries[i].key)
		}
	}
	return keys
}

// DeleteUnmarkedStrings removes any entry whose key ObjString is unmarked,
// the string-table sweep phase of spec §4.3 run before the general sweep.
func (t *Table) DeleteUnmarkedStrings() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Marked() {
			e.key = nil
			e.value = bytecode.Value{}
			e.tombstone = true
		}
	}
}
