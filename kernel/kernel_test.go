// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// Unit tests for the supervisor loop and syscall dispatch.

package kernel

import (
	"testing"

	"github.com/gmofishsauce/wut4/rtos/cpu"
	"github.com/gmofishsauce/wut4/rtos/errno"
	"github.com/gmofishsauce/wut4/rtos/syscall"
	"github.com/gmofishsauce/wut4/rtos/thread"
)

func newTestKernel() *Kernel {
	return New(Config{Console: cpu.NewUART(), ObjectTable: 8, ArenaSize: 256})
}

// drain runs Step until nothing is ready, i.e. every spawned thread has
// either finished or blocked (Pending). Each Step only advances a thread
// past a single trap, exactly like one real scheduling quantum, so driving
// a thread through several syscalls in sequence takes several calls.
func drain(k *Kernel, maxSteps int) {
	for i := 0; i < maxSteps && !k.Idle(); i++ {
		k.Step()
	}
}

func yield(t *thread.Thread) uint32 {
	return t.Trap(uint8(syscall.Kernel), 0, 0, 0, uint32(syscall.Yield))
}

func TestYieldPreservesStateAndReschedules(t *testing.T) {
	k := newTestKernel()
	var gotR0 uint32
	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		th.Stack.PutByte(0, 0xAA)
		yield(th)
		gotR0 = uint32(th.Stack.ByteAt(0))
	}, 0)

	drain(k, 10)

	if gotR0 != 0xAA {
		t.Fatalf("expected thread to read back 0xAA from its own stack, got %#x", gotR0)
	}
}

func TestTwoPreemptiveThreadsRunHighestFirst(t *testing.T) {
	k := newTestKernel()
	var order []int
	mk := func(id int) thread.Entry {
		return func(th *thread.Thread) {
			order = append(order, id)
			yield(th)
		}
	}
	k.Spawn(1, thread.Preemptive(5), 256, mk(1), 0)
	k.Spawn(2, thread.Preemptive(0), 256, mk(2), 0)

	k.Step()
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("expected higher-priority thread 2 to run first, got %v", order)
	}
}

func TestSleepThenTickWakesThread(t *testing.T) {
	k := newTestKernel()
	done := false
	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		th.Trap(uint8(syscall.Kernel), 10, 0, 0, uint32(syscall.Sleep))
		done = true
	}, 0)

	drain(k, 10) // thread traps straight into Sleep(10), becomes Pending
	if k.all[0].State.Kind != thread.Pending {
		t.Fatalf("expected thread Pending after Sleep")
	}

	for i := 0; i < 9; i++ {
		k.Tick()
		drain(k, 10)
	}
	if done {
		t.Fatalf("thread woke up too early")
	}

	k.Tick() // 10th tick: deadline reached
	drain(k, 10)
	if !done {
		t.Fatalf("expected thread to wake after sleep deadline")
	}
}

func TestMutexMutualExclusion(t *testing.T) {
	k := newTestKernel()
	var handle uint32
	var aAcquired, bBlocked bool

	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		h := th.Trap(uint8(syscall.Kernel), 0, 0, uint32(syscall.PrimMutex), uint32(syscall.SyncCreate))
		handle = h
		r := th.Trap(uint8(syscall.Kernel), 0, h, uint32(syscall.PrimMutex), uint32(syscall.Pend))
		aAcquired = int32(r) >= 0
		yield(th)
	}, 0)
	drain(k, 10) // A creates the mutex, acquires it, yields, and finishes

	if !aAcquired {
		t.Fatalf("expected A to acquire the mutex")
	}

	k.Spawn(2, thread.Cooperative(0), 256, func(th *thread.Thread) {
		// Zero timeout: a poll, not a wait.
		r := th.Trap(uint8(syscall.Kernel), 0, handle, uint32(syscall.PrimMutex), uint32(syscall.Pend))
		bBlocked = errno.Kerr(int32(r)) == errno.TryAgain
	}, 0)
	drain(k, 10)

	if !bBlocked {
		t.Fatalf("expected B's zero-timeout poll to fail with TryAgain")
	}
}

func TestMutexDoubleReleaseReturnsNotSupported(t *testing.T) {
	k := newTestKernel()
	var firstRelease, secondRelease int32

	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		h := th.Trap(uint8(syscall.Kernel), 0, 0, uint32(syscall.PrimMutex), uint32(syscall.SyncCreate))
		th.Trap(uint8(syscall.Kernel), 0, h, uint32(syscall.PrimMutex), uint32(syscall.Pend))
		firstRelease = int32(th.Trap(uint8(syscall.Kernel), 0, h, uint32(syscall.PrimMutex), uint32(syscall.Sync)))
		secondRelease = int32(th.Trap(uint8(syscall.Kernel), 0, h, uint32(syscall.PrimMutex), uint32(syscall.Sync)))
		yield(th)
	}, 0)
	drain(k, 10)

	if firstRelease != 0 {
		t.Fatalf("expected first release to succeed, got %d", firstRelease)
	}
	if errno.Kerr(secondRelease) != errno.NotSupported {
		t.Fatalf("expected second release of an unowned mutex to return NotSupported, got %d", secondRelease)
	}
}

func TestSignalBroadcastWakesAllWaiters(t *testing.T) {
	k := newTestKernel()
	var handle uint32
	wokenCount := 0

	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		handle = th.Trap(uint8(syscall.Kernel), 0, 0, uint32(syscall.PrimSignal), uint32(syscall.SyncCreate))
		yield(th)
	}, 0)
	drain(k, 10)

	waiter := func(id int) thread.Entry {
		return func(th *thread.Thread) {
			th.Trap(uint8(syscall.Kernel), ^uint32(0), handle, uint32(syscall.PrimSignal), uint32(syscall.Pend))
			wokenCount++
		}
	}
	k.Spawn(2, thread.Cooperative(0), 256, waiter(2), 0)
	k.Spawn(3, thread.Cooperative(0), 256, waiter(3), 0)
	drain(k, 10) // both pend forever on the signal

	if wokenCount != 0 {
		t.Fatalf("waiters must not run before the signal is released")
	}

	k.Spawn(4, thread.Cooperative(0), 256, func(th *thread.Thread) {
		th.Trap(uint8(syscall.Kernel), 7, handle, uint32(syscall.PrimSignal), uint32(syscall.Sync))
	}, 0)
	drain(k, 20) // releaser runs, then both waiters are woken and finish

	if wokenCount != 2 {
		t.Fatalf("expected both waiters woken by the signal, got %d", wokenCount)
	}
}

func TestPendTimeoutReturnsTimedOut(t *testing.T) {
	k := newTestKernel()
	var result uint32

	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		handle := th.Trap(uint8(syscall.Kernel), 0, 0, uint32(syscall.PrimSync), uint32(syscall.SyncCreate))
		result = th.Trap(uint8(syscall.Kernel), 5, handle, uint32(syscall.PrimSync), uint32(syscall.Pend))
	}, 0)

	drain(k, 10) // create, then pend with a 5ms timeout -> Pending
	for i := 0; i < 5; i++ {
		k.Tick()
		drain(k, 10)
	}

	if errno.Kerr(int32(result)) != errno.TimedOut {
		t.Fatalf("expected TimedOut, got %d", int32(result))
	}
}

func TestMemoryAllocAlignmentAndExhaustion(t *testing.T) {
	k := newTestKernel()
	var first, second uint32

	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		first = th.Trap(uint8(syscall.Kernel), 8, 8, 0, uint32(syscall.MemoryAlloc))
		second = th.Trap(uint8(syscall.Kernel), 300, 8, 0, uint32(syscall.MemoryAlloc))
	}, 0)
	drain(k, 10)

	if int32(first) < 0 {
		t.Fatalf("expected first small allocation to succeed")
	}
	if errno.Kerr(int32(second)) != errno.NoMemory {
		t.Fatalf("expected oversized allocation to fail with NoMemory, got %d", int32(second))
	}
}

func TestCancelWakesAllWaitersWithEINTR(t *testing.T) {
	k := newTestKernel()
	var handle uint32
	var result uint32

	k.Spawn(1, thread.Cooperative(0), 256, func(th *thread.Thread) {
		handle = th.Trap(uint8(syscall.Kernel), 0, 0, uint32(syscall.PrimSync), uint32(syscall.SyncCreate))
		yield(th)
	}, 0)
	drain(k, 10)

	k.Spawn(2, thread.Cooperative(0), 256, func(th *thread.Thread) {
		result = th.Trap(uint8(syscall.Kernel), ^uint32(0), handle, uint32(syscall.PrimSync), uint32(syscall.Pend))
	}, 0)
	drain(k, 10) // waiter pends forever

	k.Spawn(3, thread.Cooperative(0), 256, func(th *thread.Thread) {
		th.Trap(uint8(syscall.Kernel), 0, handle, uint32(syscall.PrimSync), uint32(syscall.Cancel))
	}, 0)
	drain(k, 10)

	if errno.Kerr(int32(result)) != errno.EINTR {
		t.Fatalf("expected cancelled waiter to observe EINTR, got %d", int32(result))
	}
}

func TestIdlePanicsOnSyscall(t *testing.T) {
	k := newTestKernel()
	idle := thread.New(-1, thread.Cooperative(127), thread.NewStack(32), func(th *thread.Thread) {
		yield(th)
	}, 0)
	k.idle = idle
	trap := idle.Resume(0)
	k.dispatch(idle, trap)

	if k.Panicked() == nil {
		t.Fatalf("expected supervisor to panic when idle issues a syscall")
	}
}
