// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package kobj wraps a ksync.SyncPrimitive with a waitqueue, turning a bare
// primitive into the thing a Pend/Sync syscall actually operates on: acquire
// either succeeds immediately, fails outright (zero timeout), or parks the
// calling thread; release pops waiters in FIFO order until one is satisfied
// or the primitive is fully released.
package kobj

import (
	"github.com/gmofishsauce/wut4/rtos/errno"
	"github.com/gmofishsauce/wut4/rtos/ksync"
	"github.com/gmofishsauce/wut4/rtos/syscall"
	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/timeout"
)

// AcquireOutcome reports what happened when a thread tried to acquire a
// kernel object.
type AcquireOutcome int

const (
	// Obtained means the calling thread holds the primitive now; Swap
	// carries the syscall-return payload.
	Obtained AcquireOutcome = iota
	// NotObtained means the primitive was unavailable and the timeout was
	// zero (a poll), so the thread was not parked.
	NotObtained
	// Pending means the thread has been parked on the object's waitqueue.
	Pending
)

// Object is a kernel object: a synchronization primitive plus the queue of
// threads waiting on it. The syscall dispatcher drives any primitive kind
// identically through it, looked up in a fixed-size Table keyed by handle.
type Object struct {
	handle    int
	waitqueue thread.WaitQueue
	primitive ksync.SyncPrimitive
}

// New wraps primitive as kernel object handle.
func New(handle int, primitive ksync.SyncPrimitive) *Object {
	return &Object{handle: handle, primitive: primitive}
}

func (o *Object) Handle() int { return o.handle }

// Acquire attempts to obtain the primitive for t. If unavailable, t is
// parked on the waitqueue and marked Pending unless deadline is poll-only.
func (o *Object) Acquire(t *thread.Thread, deadline timeout.Instant) (AcquireOutcome, ksync.SwapData) {
	if swap, ok := o.primitive.Acquire(t.ID); ok {
		return Obtained, swap
	}
	if deadline.IsPollOnly() {
		return NotObtained, ksync.SwapData{}
	}
	o.waitqueue.PushBack(t)
	t.State = thread.PendingState(o.handle, deadline)
	return Pending, ksync.SwapData{}
}

// Release hands swap to the primitive. If the primitive reports Released,
// it is acquired again on behalf of the longest waiter, which is woken with
// that payload. If it reports Notified, waiters are popped in FIFO order and
// each is handed the notified payload until the waitqueue runs dry. ok is
// false if swap was not the kind this primitive's concrete type expects.
// Woken threads are returned rather than resumed
// directly: only the supervisor's scheduling loop ever calls Thread.Resume,
// so a newly-ready thread is handed to the caller to insert into the
// runqueue, and actually runs on its next scheduled turn.
func (o *Object) Release(swap ksync.SwapData) (ok bool, woken []*thread.Thread) {
	outcome, ok := o.primitive.Release(swap)
	if !ok {
		return false, nil
	}
	for {
		if outcome.Released {
			waiter := o.waitqueue.PopFront()
			if waiter == nil {
				return true, woken
			}
			got, acquired := o.primitive.Acquire(waiter.ID)
			if !acquired {
				o.waitqueue.PushBack(waiter)
				return true, woken
			}
			waiter.State = thread.RunningState()
			waiter.PendingResult = got.ToSyscallRet()
			return true, append(woken, waiter)
		}
		waiter := o.waitqueue.PopFront()
		if waiter == nil {
			return true, woken
		}
		waiter.State = thread.RunningState()
		waiter.PendingResult = outcome.Swap.ToSyscallRet()
		woken = append(woken, waiter)
		next, ok := o.primitive.Release(outcome.Swap)
		if !ok {
			return true, woken
		}
		outcome = next
	}
}

// RemoveWaiter removes t from the waitqueue without touching the primitive,
// used by the tick path to pull a timed-out thread off an object it never
// obtained.
func (o *Object) RemoveWaiter(t *thread.Thread) bool {
	return o.waitqueue.Remove(t)
}

// Kind reports which concrete primitive this object wraps, so the dispatcher
// can reject a Pend/Sync/Cancel whose caller-supplied prim argument doesn't
// match the handle's actual kind.
func (o *Object) Kind() syscall.PrimitiveKind {
	switch o.primitive.(type) {
	case *ksync.Sync:
		return syscall.PrimSync
	case *ksync.Signal:
		return syscall.PrimSignal
	case *ksync.Semaphore:
		return syscall.PrimSemaphore
	case *ksync.Mutex:
		return syscall.PrimMutex
	default:
		return syscall.PrimitiveKind(0xFF)
	}
}

// Cancel unconditionally drains the waitqueue: the TODO left in the original
// kobj's KernelObjectTrait ("cancel all threads waiting on the kernel
// object") is implemented here rather than left pending. Every waiter is
// handed back errno.EINTR rather than the primitive's normal payload, and
// returned for the caller to reschedule, exactly like Release's woken list.
func (o *Object) Cancel() []*thread.Thread {
	var woken []*thread.Thread
	for {
		w := o.waitqueue.PopFront()
		if w == nil {
			break
		}
		w.State = thread.RunningState()
		w.PendingResult = errno.EINTR.AsWord()
		woken = append(woken, w)
	}
	return woken
}
