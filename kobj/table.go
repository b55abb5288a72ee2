// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package kobj

import "github.com/gmofishsauce/wut4/rtos/errno"

// Table is the kernel's fixed-capacity object table: SyncCreate allocates a
// slot and returns its index as the handle the syscall ABI hands back to
// userspace; every other sync syscall looks the handle back up here.
type Table struct {
	slots []*Object
}

// NewTable preallocates capacity slots, all empty.
func NewTable(capacity int) *Table {
	return &Table{slots: make([]*Object, capacity)}
}

// Alloc installs obj in the first free slot and returns its handle, or
// errno.NoMemory if the table is full.
func (t *Table) Alloc(newObj func(handle int) *Object) (int, errno.Kerr) {
	for i, s := range t.slots {
		if s == nil {
			obj := newObj(i)
			t.slots[i] = obj
			return i, errno.Success
		}
	}
	return 0, errno.NoMemory
}

// Get looks up the object at handle, or errno.NoEntry if it's out of range
// or the slot is empty.
func (t *Table) Get(handle int) (*Object, errno.Kerr) {
	if handle < 0 || handle >= len(t.slots) || t.slots[handle] == nil {
		return nil, errno.NoEntry
	}
	return t.slots[handle], errno.Success
}

// Free clears the slot at handle, making it available for reuse.
func (t *Table) Free(handle int) errno.Kerr {
	if handle < 0 || handle >= len(t.slots) || t.slots[handle] == nil {
		return errno.NoEntry
	}
	t.slots[handle] = nil
	return errno.Success
}
