// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package memory

import "testing"

func TestAllocBasic(t *testing.T) {
	a := NewArena(64)
	off, ok := a.Alloc(8, 8)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	if off%8 != 0 {
		t.Fatalf("expected 8-aligned offset, got %d", off)
	}
}

func TestAllocRejectsOveralignment(t *testing.T) {
	a := NewArena(64)
	if _, ok := a.Alloc(8, 16); ok {
		t.Fatalf("expected alignment > MaxSupportedAlign to fail")
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := NewArena(16)
	if _, ok := a.Alloc(16, 1); !ok {
		t.Fatalf("expected exact-fit allocation to succeed")
	}
	if _, ok := a.Alloc(1, 1); ok {
		t.Fatalf("expected allocation from exhausted arena to fail")
	}
}

func TestPoisonFill(t *testing.T) {
	a := NewArena(4)
	for _, b := range a.Bytes(0, 4) {
		if b != 0x77 {
			t.Fatalf("expected poison fill 0x77, got %#x", b)
		}
	}
}

func TestAllocZeroesReturnedBytes(t *testing.T) {
	a := NewArena(16)
	off, ok := a.Alloc(8, 8)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	for i, b := range a.Bytes(off, 8) {
		if b != 0 {
			t.Fatalf("expected allocation to be zeroed, got %#x at offset %d", b, i)
		}
	}
}
