// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package userspace is what a thread body actually calls: one function per
// syscall, each packing its arguments into the trap ABI the same way a real
// `svc` instruction would and handing the rest to Thread.Trap. A demo thread
// never constructs a syscall.Syscall itself - it calls Yield, Sleep, and so
// on, exactly like the original kernel's z_call_svc_4 wrappers.
package userspace

import (
	"github.com/gmofishsauce/wut4/rtos/errno"
	"github.com/gmofishsauce/wut4/rtos/loader"
	"github.com/gmofishsauce/wut4/rtos/syscall"
	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/timeout"
)

// PICRegister is this build's compiled-in choice of GOT-base register,
// checked against a loaded image's own declared choice by loader.Load.
const PICRegister = loader.R9

func kernelTrap(t *thread.Thread, r0, r1, r2 uint32, sub syscall.KernelID) int32 {
	return int32(t.Trap(uint8(syscall.Kernel), r0, r1, r2, uint32(sub)))
}

func ioTrap(t *thread.Thread, r0, r1, r2 uint32, sub syscall.IoID) int32 {
	return int32(t.Trap(uint8(syscall.Io), r0, r1, r2, uint32(sub)))
}

// Yield gives up the remainder of this thread's quantum without blocking.
func Yield(t *thread.Thread) {
	kernelTrap(t, 0, 0, 0, syscall.Yield)
}

// Sleep blocks the calling thread for ms milliseconds. Sleep(Forever) never
// returns.
func Sleep(t *thread.Thread, ms uint32) {
	kernelTrap(t, ms, 0, 0, syscall.Sleep)
}

// Stop transitions the calling thread to Stopped. It never returns.
func Stop(t *thread.Thread) {
	kernelTrap(t, 0, 0, 0, syscall.Stop)
}

// Fork is not implemented by this kernel; it always reports NotSupported,
// matching the core's own scope (process creation is out of scope, see
// SPEC_FULL.md's Non-goals).
func Fork(t *thread.Thread) errno.Kerr {
	return errno.Kerr(kernelTrap(t, 0, 0, 0, syscall.Fork))
}

// SyncCreate allocates a new kernel object of the given primitive kind. For
// PrimSemaphore, init and max set the initial and maximum count; both are
// ignored by the other primitive kinds.
func SyncCreate(t *thread.Thread, kind syscall.PrimitiveKind, init, max uint32) (handle uint32, err errno.Kerr) {
	r := kernelTrap(t, init, max, uint32(kind), syscall.SyncCreate)
	if r < 0 {
		return 0, errno.Kerr(r)
	}
	return uint32(r), errno.Success
}

// Pend acquires the primitive behind handle, waiting up to to. It returns
// the primitive-specific payload word on success (the posted value for a
// Signal, 0 for every other primitive) and a negative errno.Kerr on
// failure (TryAgain for a failed poll, TimedOut, or EINTR if Cancelled).
func Pend(t *thread.Thread, handle uint32, kind syscall.PrimitiveKind, to timeout.Timeout) int32 {
	return kernelTrap(t, to.Milliseconds(), handle, uint32(kind), syscall.Pend)
}

// Sync releases the primitive behind handle. arg is primitive-specific: the
// value to post for a Signal, ignored otherwise.
func Sync(t *thread.Thread, handle uint32, kind syscall.PrimitiveKind, arg uint32) errno.Kerr {
	return errno.Kerr(kernelTrap(t, arg, handle, uint32(kind), syscall.Sync))
}

// Cancel wakes every thread waiting on handle with errno.EINTR, returning
// how many were woken.
func Cancel(t *thread.Thread, handle uint32, kind syscall.PrimitiveKind) int32 {
	return kernelTrap(t, 0, handle, uint32(kind), syscall.Cancel)
}

// MemoryAlloc carves size bytes, aligned to align, out of the kernel arena.
// The returned value is an opaque arena-relative handle, not a real pointer,
// since there is no shared address space in this simulation (see
// memory.Arena and thread.Thread's IOBuf note).
func MemoryAlloc(t *thread.Thread, size, align uint32) (handle uint32, err errno.Kerr) {
	r := kernelTrap(t, size, align, 0, syscall.MemoryAlloc)
	if r < 0 {
		return 0, errno.Kerr(r)
	}
	return uint32(r), errno.Success
}

// MemoryFree is accepted but never reclaims anything; the kernel arena is a
// bump allocator (see memory.Arena's doc comment).
func MemoryFree(t *thread.Thread, handle uint32) errno.Kerr {
	return errno.Kerr(kernelTrap(t, handle, 0, 0, syscall.MemoryFree))
}

// Print writes s to the console, followed by a newline if nl is set. It
// stages s into the thread's IOBuf before trapping, since Print has no real
// pointer argument to dereference in this simulation (see thread.Thread's
// IOBuf field).
func Print(t *thread.Thread, s string, nl bool) int32 {
	t.IOBuf = []byte(s)
	var nlArg uint32
	if nl {
		nlArg = 1
	}
	return ioTrap(t, 0, uint32(len(s)), nlArg, syscall.Print)
}

// Println is Print with a trailing newline, matching the commented-out
// user_println! helper in the original userspace module.
func Println(t *thread.Thread, s string) int32 {
	return Print(t, s, true)
}

// Read1 reads a single byte from the console without blocking, returning
// errno.TryAgain if nothing is available.
func Read1(t *thread.Thread) int32 {
	return ioTrap(t, 0, 0, 0, syscall.Read1)
}

// HexPrint writes data to the console as a hex dump, 16 bytes per line.
func HexPrint(t *thread.Thread, data []byte) int32 {
	t.IOBuf = data
	return ioTrap(t, 0, uint32(len(data)), 0, syscall.HexPrint)
}
