package vm

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/bytecode"
)

func newTestString(chars string) *ObjString {
	return &ObjString{Chars: chars, Hash: fnv1a(chars)}
}

func TestTableSetGetRoundTrips(t *testing.T) {
	tbl := NewTable()
	key := newTestString("answer")

	isNew := tbl.Set(key, bytecode.NumberValue(42))
	if !isNew {
		t.Fatal("expected the first Set of a key to report isNew=true")
	}

	got, ok := tbl.Get(key)
	if !ok {
		t.Fatal("expected Get to find the key just set")
	}
	if !bytecode.Equal(got, bytecode.NumberValue(42)) {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestTableSetOverwriteReportsNotNew(t *testing.T) {
	tbl := NewTable()
	key := newTestString("x")
	tbl.Set(key, bytecode.NumberValue(1))

	isNew := tbl.Set(key, bytecode.NumberValue(2))
	if isNew {
		t.Error("expected overwriting an existing key to report isNew=false")
	}
	got, _ := tbl.Get(key)
	if !bytecode.Equal(got, bytecode.NumberValue(2)) {
		t.Errorf("expected overwritten value 2, got %v", got)
	}
}

func TestTableLookupIsPointerIdentityNotContentEquality(t *testing.T) {
	tbl := NewTable()
	a := newTestString("name")
	b := newTestString("name") // same content, distinct pointer, same hash

	tbl.Set(a, bytecode.NumberValue(1))

	if _, ok := tbl.Get(b); ok {
		t.Error("expected Get with a distinct, un-interned pointer of equal content to miss")
	}
	if _, ok := tbl.Get(a); !ok {
		t.Error("expected Get with the original pointer to hit")
	}
}

func TestTableDeleteThenSetReusesTombstone(t *testing.T) {
	tbl := NewTable()
	a := newTestString("a")
	b := newTestString("b")
	tbl.Set(a, bytecode.NumberValue(1))
	tbl.Set(b, bytecode.NumberValue(2))

	if !tbl.Delete(a) {
		t.Fatal("expected Delete to report the key existed")
	}
	if _, ok := tbl.Get(a); ok {
		t.Error("expected Get to miss after Delete")
	}
	if _, ok := tbl.Get(b); !ok {
		t.Error("expected Delete of one key not to disturb another live key's probe chain")
	}

	// Re-inserting should succeed and be visible again.
	tbl.Set(a, bytecode.NumberValue(3))
	got, ok := tbl.Get(a)
	if !ok || !bytecode.Equal(got, bytecode.NumberValue(3)) {
		t.Errorf("expected re-inserted key to read 3, got %v ok=%v", got, ok)
	}
}

func TestTableGrowsAndPreservesAllEntries(t *testing.T) {
	tbl := NewTable()
	keys := make([]*ObjString, 0, 50)
	for i := 0; i < 50; i++ {
		k := newTestString(string(rune('a' + i%26)) + string(rune('0'+i/26)))
		keys = append(keys, k)
		tbl.Set(k, bytecode.NumberValue(float64(i)))
	}
	if tbl.Count() != 50 {
		t.Fatalf("expected 50 live entries after growth, got %d", tbl.Count())
	}
	for i, k := range keys {
		got, ok := tbl.Get(k)
		if !ok || !bytecode.Equal(got, bytecode.NumberValue(float64(i))) {
			t.Errorf("entry %d lost or corrupted across growth: got %v ok=%v", i, got, ok)
		}
	}
}

func TestFindStringMatchesByContentAndHash(t *testing.T) {
	tbl := NewTable()
	s := newTestString("hello")
	tbl.Set(s, bytecode.NilValue())

	found := tbl.FindString("hello", fnv1a("hello"))
	if found != s {
		t.Error("expected FindString to return the exact interned pointer for matching content")
	}

	if tbl.FindString("nope", fnv1a("nope")) != nil {
		t.Error("expected FindString to return nil for content never inserted")
	}
}

func TestDeleteUnmarkedStringsSweepsOnlyUnmarked(t *testing.T) {
	tbl := NewTable()
	keep := newTestString("keep")
	sweep := newTestString("sweep")
	keep.SetMarked(true)

	tbl.Set(keep, bytecode.NilValue())
	tbl.Set(sweep, bytecode.NilValue())

	tbl.DeleteUnmarkedStrings()

	if _, ok := tbl.Get(keep); !ok {
		t.Error("expected marked string to survive the sweep")
	}
	if _, ok := tbl.Get(sweep); ok {
		t.Error("expected unmarked string to be swept")
	}
}
