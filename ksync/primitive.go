// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package ksync

// SyncPrimitive is the behavior every concrete primitive (Sync, Signal,
// Semaphore, Mutex) implements. kobj.Object drives any of them through
// this interface alone, so the waitqueue management in kobj is written once.
type SyncPrimitive interface {
	// Acquire attempts an immediate, non-blocking acquisition for the
	// calling thread id. ok is false when the primitive is unavailable and
	// the caller must wait.
	Acquire(threadID int) (swap SwapData, ok bool)

	// Release hands swap back to the primitive. ok is false if swap is not
	// the Kind this primitive expects, mirroring the original's
	// TryFrom<SwapData> rejection path.
	Release(swap SwapData) (outcome ReleaseOutcome, ok bool)
}
