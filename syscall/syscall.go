// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package syscall decodes a trapped thread's register state into a typed
// Syscall the kernel's dispatcher can switch on, mirroring the real ABI:
// the trap instruction's 8-bit immediate selects a Family, r3 selects a
// sub-function within that family, and r0-r2 carry payload.
package syscall

// Family is the trap instruction's 8-bit immediate.
type Family uint8

const (
	Test Family = iota
	Kernel
	Io
	Driver
)

// KernelID enumerates the Kernel family's sub-functions. Cancel is not part
// of the original closed set; it is added so a timed-out or externally
// interrupted Pend has a syscall to unwind through rather than only ever
// being driven by the tick path (see SPEC_FULL.md's supplemented features).
type KernelID uint32

const (
	Yield KernelID = iota
	Sleep
	SyncCreate
	Pend
	Sync
	Stop
	Fork
	MemoryAlloc
	MemoryFree
	Cancel
)

// IoID enumerates the Io family's sub-functions.
type IoID uint32

const (
	Print IoID = iota
	Read1
	HexPrint
)

// PrimitiveKind is the "variant"/"prim" argument shared by SyncCreate, Pend,
// and Sync: which concrete primitive a handle refers to.
type PrimitiveKind uint32

const (
	PrimSync PrimitiveKind = iota
	PrimSignal
	PrimSemaphore
	PrimMutex
)

// Syscall is the decoded form of a trapped thread's registers: which
// family, which sub-function within it, and the raw payload words for the
// dispatcher to interpret according to that sub-function.
type Syscall struct {
	Family     Family
	Sub        uint32
	R0, R1, R2 uint32
}

// Decode reconstructs a Syscall from a thread.Trap's raw fields. It never
// fails: an out-of-range Family or Sub is simply passed through unvalidated,
// and the dispatcher maps anything it doesn't recognize to NoSuchSyscall.
func Decode(imm uint8, r0, r1, r2, r3 uint32) Syscall {
	return Syscall{Family: Family(imm), Sub: r3, R0: r0, R1: r1, R2: r2}
}
