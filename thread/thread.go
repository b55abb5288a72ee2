// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package thread is the kernel's notion of a schedulable thread: its
// register state, stack, scheduling class, and the primitive that hands
// control between supervisor and thread.
//
// A real ARMv7-M kernel context-switches by saving/restoring registers
// around an exception return. Go cannot preempt a goroutine mid-instruction,
// so each Thread owns a goroutine that runs exactly when the supervisor lets
// it and nobody else: Resume and Trap rendezvous on a pair of unbuffered
// channels, so at any instant either the supervisor or exactly one thread's
// goroutine is doing kernel-visible work, never both.
package thread

import "github.com/gmofishsauce/wut4/rtos/cpu"

// Trap is what a thread goroutine hands back to the supervisor, shaped
// exactly like the real trap ABI: Imm is the trap instruction's 8-bit
// immediate (the syscall family), R0-R2 are payload words, and R3 doubles
// as the sub-function selector, matching "the fourth argument register
// holds a sub-function selector". Exit reports the entry function having
// returned on its own rather than via a Stop syscall.
type Trap struct {
	Imm        uint8
	R0, R1, R2 uint32
	R3         uint32
	Exit       bool
}

// Entry is a thread body. It receives its own Thread so it can issue traps
// via Thread.Trap; userspace stub functions take a *Thread for this reason.
type Entry func(t *Thread)

// Stats counts per-thread activity used by debug dumps and tests.
type Stats struct {
	Syscalls uint64
}

// Thread is one schedulable thread of control.
type Thread struct {
	ID       int
	Priority Priority
	State    State

	Frame  cpu.Frame
	Callee cpu.CalleeContext
	Stack  *Stack
	Stats  Stats

	// PendingResult is the r0 value a kernel object has already computed
	// for this thread (e.g. on release-driven wakeup) and which the
	// scheduler must deliver via Resume the next time it runs this thread.
	PendingResult uint32

	// IOBuf is the payload a Print/HexPrint syscall carries. There is no
	// simulated shared address space here for a "ptr" argument to address,
	// so a userspace stub stages the bytes it wants written here before
	// trapping, and the kernel's io syscall handlers read them back out;
	// the ptr word in the trap is kept for ABI shape, and the len word
	// bounds how many bytes of IOBuf are written.
	IOBuf []byte

	rqNext *Thread
	wqNext *Thread

	entry    Entry
	arg      uint32
	started  bool
	exited   bool
	trapCh   chan Trap
	resumeCh chan uint32
}

// New builds a Stopped thread. The caller transitions it to Running (via the
// runqueue) once the kernel is ready to schedule it.
func New(id int, priority Priority, stack *Stack, entry Entry, arg uint32) *Thread {
	return &Thread{
		ID:       id,
		Priority: priority,
		State:    StoppedState(),
		Frame:    cpu.InitFrame(0, arg),
		Stack:    stack,
		entry:    entry,
		arg:      arg,
		trapCh:   make(chan Trap),
		resumeCh: make(chan uint32),
	}
}

// Resume is the supervisor-side half of the switch primitive: it hands r0
// to a previously-trapped thread (or, on the first call, starts the
// thread's goroutine) and blocks until that thread traps again or exits.
// Exactly one of {supervisor in Resume, thread goroutine between Trap calls}
// is ever doing work for this thread.
func (t *Thread) Resume(r0 uint32) Trap {
	if !t.started {
		t.started = true
		go t.run()
	} else {
		t.resumeCh <- r0
	}
	trap := <-t.trapCh
	if trap.Exit {
		t.exited = true
	}
	return trap
}

// Trap is the thread-side half: called from within the thread's own
// goroutine (by a userspace stub), it reports a syscall to the supervisor
// and blocks until Resume delivers the result in r0.
func (t *Thread) Trap(imm uint8, r0, r1, r2, r3 uint32) uint32 {
	t.Stats.Syscalls++
	t.trapCh <- Trap{Imm: imm, R0: r0, R1: r1, R2: r2, R3: r3}
	return <-t.resumeCh
}

func (t *Thread) run() {
	t.entry(t)
	t.trapCh <- Trap{Exit: true}
}

func (t *Thread) Exited() bool { return t.exited }
