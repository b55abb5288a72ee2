// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package demo

import (
	"fmt"

	"github.com/gmofishsauce/wut4/rtos/errno"
	"github.com/gmofishsauce/wut4/rtos/syscall"
	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/timeout"
	"github.com/gmofishsauce/wut4/rtos/userspace"
)

// mutexHandle is shared between MutexOwner and MutexWaiter the same way
// signalHandle is shared between the signal demo's two threads: one thread
// creates the primitive, the other only ever refers to it by handle.
var mutexHandle uint32

// MutexOwner creates the shared mutex, acquires it immediately, holds it for
// a second while MutexWaiter blocks behind it, then releases it.
func MutexOwner(t *thread.Thread) {
	h, err := userspace.SyncCreate(t, syscall.PrimMutex, 0, 0)
	mutexHandle = h
	userspace.Println(t, fmt.Sprintf("owner: create mutex = %d", h))
	if err != errno.Success {
		userspace.Stop(t)
		return
	}

	userspace.Pend(t, h, syscall.PrimMutex, timeout.Duration(0))
	userspace.Println(t, "owner: acquired")
	userspace.Sleep(t, 1000)
	userspace.Sync(t, h, syscall.PrimMutex, 0)
	userspace.Println(t, "owner: released")
	userspace.Stop(t)
}

// MutexWaiter waits for MutexOwner to publish the handle, then blocks on the
// mutex until the owner releases it, demonstrating the FIFO wake order
// kobj.Object.Release guarantees.
func MutexWaiter(t *thread.Thread) {
	userspace.Sleep(t, 10)
	r := userspace.Pend(t, mutexHandle, syscall.PrimMutex, timeout.Forever())
	userspace.Println(t, fmt.Sprintf("waiter: acquired, ret = %d", r))
	userspace.Sync(t, mutexHandle, syscall.PrimMutex, 0)
	userspace.Println(t, "waiter: released")
	userspace.Stop(t)
}
