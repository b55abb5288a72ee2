// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package ksync implements the concrete synchronization primitives every
// kernel object wraps: Sync (plain rendezvous), Signal (sticky broadcast),
// Semaphore (counting), and Mutex (ownership). Each is built against the
// same SwapData/SyncPrimitive contract so kobj.Object can drive any of
// them identically.
package ksync

// Kind tags the payload a SwapData value carries across an acquire/release.
// Go has no tagged-union sum type, so SwapData plays the role the original
// kernel's SwapData enum (and each primitive's own Swap associated type)
// both played, with Kind standing in for the discriminant.
type Kind int

const (
	Empty Kind = iota
	SignalKind
	Ownership
)

// SwapData is the value handed from a releaser to whichever thread is
// notified, or returned to a thread that acquired without waiting.
type SwapData struct {
	Kind       Kind
	SignalValue uint32
}

func EmptySwap() SwapData                { return SwapData{Kind: Empty} }
func SignalSwap(v uint32) SwapData        { return SwapData{Kind: SignalKind, SignalValue: v} }
func OwnershipSwap() SwapData             { return SwapData{Kind: Ownership} }

// ToSyscallRet renders the swap payload as the word placed in r0, matching
// Swappable::to_syscall_ret in the original: only a Signal carries a value,
// everything else returns success (0).
func (s SwapData) ToSyscallRet() uint32 {
	if s.Kind == SignalKind {
		return s.SignalValue
	}
	return 0
}

// ReleaseOutcome reports whether a release fully freed the primitive or
// merely notified one waiter while the primitive (e.g. a Signal) remains
// available to others.
type ReleaseOutcome struct {
	Released bool
	Swap     SwapData // valid when !Released
}

func Released() ReleaseOutcome              { return ReleaseOutcome{Released: true} }
func Notified(swap SwapData) ReleaseOutcome { return ReleaseOutcome{Swap: swap} }
