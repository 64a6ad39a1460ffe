package ringbuf

import (
	"reflect"
	"testing"
)

func TestPushEvictsOldestFirst(t *testing.T) {
	const capacity = 4
	b := New[int](capacity)
	for i := 1; i <= capacity; i++ {
		if evicted := b.Push(i); evicted {
			t.Fatalf("push %d evicted before the buffer was full", i)
		}
	}
	if evicted := b.Push(capacity + 1); !evicted {
		t.Fatalf("expected eviction on push beyond capacity")
	}
	if b.Len() != capacity {
		t.Fatalf("expected %d entries, got %d", capacity, b.Len())
	}
	want := []int{2, 3, 4, 5}
	if got := b.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValuesAfterWrapAround(t *testing.T) {
	b := New[string](3)
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		b.Push(s)
	}
	want := []string{"e", "f", "g"}
	if got := b.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValuesIsACopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	vals := b.Values()
	vals[0] = 99
	if got := b.Values()[0]; got != 1 {
		t.Fatalf("mutating Values result leaked into buffer: %d", got)
	}
}

func TestResetKeepsCapacity(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)
	b.Reset()
	if b.Len() != 0 || b.Cap() != 3 {
		t.Fatalf("unexpected state after reset: len=%d cap=%d", b.Len(), b.Cap())
	}
	b.Push(7)
	if got := b.Values(); !reflect.DeepEqual(got, []int{7}) {
		t.Fatalf("expected [7] after reset, got %v", got)
	}
}

func TestNewClampsCapacity(t *testing.T) {
	b := New[int](0)
	if b.Cap() != 1 {
		t.Fatalf("expected capacity 1, got %d", b.Cap())
	}
}
