// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package thread

import "testing"

func TestResumeTrapRoundTrip(t *testing.T) {
	var seen uint32
	th := New(1, Cooperative(0), NewStack(256), func(t *Thread) {
		r0 := t.Trap(2, 1, 2, 3, 42)
		seen = r0
	}, 0)

	trap := th.Resume(0)
	if trap.Imm != 2 || trap.R0 != 1 || trap.R1 != 2 || trap.R2 != 3 || trap.R3 != 42 {
		t.Fatalf("unexpected trap %+v", trap)
	}
	trap = th.Resume(0xAA)
	if !trap.Exit {
		t.Fatalf("expected exit after second resume, got %+v", trap)
	}
	if seen != 0xAA {
		t.Fatalf("thread did not observe r0=0xAA, got %#x", seen)
	}
}

func TestStackWriteReadBack(t *testing.T) {
	s := NewStack(64)
	s.PutByte(0, 0xAA)
	if got := s.ByteAt(0); got != 0xAA {
		t.Fatalf("got %#x, want 0xAA", got)
	}
}

func TestRunQueuePriorityOrder(t *testing.T) {
	var q RunQueue
	low := New(1, Cooperative(5), NewStack(32), func(*Thread) {}, 0)
	high := New(2, Preemptive(0), NewStack(32), func(*Thread) {}, 0)
	mid := New(3, Cooperative(1), NewStack(32), func(*Thread) {}, 0)

	q.Insert(low)
	q.Insert(high)
	q.Insert(mid)

	order := []int{}
	for {
		n := q.PopFront()
		if n == nil {
			break
		}
		order = append(order, n.ID)
	}
	want := []int{2, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestWaitQueueFIFO(t *testing.T) {
	var q WaitQueue
	a := New(1, Cooperative(0), NewStack(32), func(*Thread) {}, 0)
	b := New(2, Cooperative(0), NewStack(32), func(*Thread) {}, 0)
	q.PushBack(a)
	q.PushBack(b)
	if q.PopFront() != a {
		t.Fatalf("expected a first")
	}
	if q.PopFront() != b {
		t.Fatalf("expected b second")
	}
	if !q.Empty() {
		t.Fatalf("expected empty")
	}
}

func TestWaitQueueRemoveMiddle(t *testing.T) {
	var q WaitQueue
	a := New(1, Cooperative(0), NewStack(32), func(*Thread) {}, 0)
	b := New(2, Cooperative(0), NewStack(32), func(*Thread) {}, 0)
	c := New(3, Cooperative(0), NewStack(32), func(*Thread) {}, 0)
	q.PushBack(a)
	q.PushBack(b)
	q.PushBack(c)
	if !q.Remove(b) {
		t.Fatalf("expected remove to succeed")
	}
	if q.PopFront() != a || q.PopFront() != c {
		t.Fatalf("expected a then c after removing b")
	}
}
