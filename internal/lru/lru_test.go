package lru

import (
	"reflect"
	"testing"
)

func TestPutUpdateRecomputesBytes(t *testing.T) {
	l := New(-1, -1)
	l.Put("a", 10)
	l.Put("a", 30)
	if l.Bytes() != 30 {
		t.Fatalf("Bytes() = %d, want 30 (update replaces size, not adds)", l.Bytes())
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
}

func TestEntryCountEviction(t *testing.T) {
	l := New(2, -1)
	l.Put("a", 1)
	l.Put("b", 1)
	evicted := l.Put("c", 1)
	if !reflect.DeepEqual(evicted, []string{"a"}) {
		t.Fatalf("evicted = %v, want [a]", evicted)
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
}

func TestByteBudgetEviction(t *testing.T) {
	l := New(-1, 250)
	for i := 0; i < 20; i++ {
		l.Put(string(rune('a'+i%26))+string(rune(i)), 100)
	}
	if l.Bytes() > 250 {
		t.Fatalf("Bytes() = %d, exceeds budget 250", l.Bytes())
	}
}

func TestPathologicalOversizedInsertEvictsItself(t *testing.T) {
	l := New(-1, 10)
	l.Put("a", 5)
	evicted := l.Put("big", 100)
	if l.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 (oversized insert evicts everything including itself)", l.Len())
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted = %v, want 2 keys evicted", evicted)
	}
}

func TestGetPromotesToHead(t *testing.T) {
	l := New(-1, -1)
	l.Put("a", 1)
	l.Put("b", 1)
	l.Put("c", 1)

	if _, ok := l.Get("a"); !ok {
		t.Fatalf("Get(a) missing")
	}
	// a is now MRU; evicting with a 2-entry budget should drop b, not a.
	l2 := New(2, -1)
	l2.Put("a", 1)
	l2.Put("b", 1)
	l2.Get("a")
	evicted := l2.Put("c", 1)
	if !reflect.DeepEqual(evicted, []string{"b"}) {
		t.Fatalf("evicted = %v, want [b] after promoting a", evicted)
	}
}

func TestDeleteUpdatesBytes(t *testing.T) {
	l := New(-1, -1)
	l.Put("a", 42)
	if !l.Delete("a") {
		t.Fatalf("Delete(a) = false, want true")
	}
	if l.Bytes() != 0 || l.Len() != 0 {
		t.Fatalf("after delete: bytes=%d len=%d, want 0,0", l.Bytes(), l.Len())
	}
	if l.Delete("a") {
		t.Fatalf("Delete(a) second time = true, want false (idempotent)")
	}
}

func TestVictimSuffixMatchesAccessOrder(t *testing.T) {
	l := New(-1, -1)
	l.Put("a", 1)
	l.Put("b", 1)
	l.Put("c", 1)
	l.Get("a") // touch a, making it MRU

	got := l.VictimSuffix()
	want := []string{"a", "c", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("VictimSuffix() = %v, want %v", got, want)
	}
}
