// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package memory is the kernel's heap: a single bump arena backing the
// MemoryAlloc syscall. There is no free list - memory is never reclaimed,
// only handed out further down the arena - matching the original kernel's
// deliberate choice of simplicity over reuse.
package memory

// MaxSupportedAlign is the largest alignment Alloc honors; this matches the
// arena's own 8-byte alignment, so no request can ask for more than the
// arena itself guarantees.
const MaxSupportedAlign = 8

// Arena is a fixed-size region handed out from the top down, exactly like
// the kernel's own BumpAllocator: each allocation advances `remaining`
// downward and rounds the resulting offset down to the requested alignment,
// so every allocation after the first may waste a few bytes to alignment
// but the arena never grows.
type Arena struct {
	buf       []byte
	remaining int
}

// NewArena allocates a size-byte arena. Bytes start at 0x77, an unmistakable
// "never written" marker distinct from a freshly-zeroed page, matching the
// original arena's poison fill. Alloc zeros each region it hands out before
// returning it, so the poison only ever shows up by reading past the bounds
// of an allocation - it never leaks into memory the caller was actually
// given.
func NewArena(size int) *Arena {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x77
	}
	return &Arena{buf: buf, remaining: size}
}

// Alloc carves out size bytes aligned to align (at most MaxSupportedAlign),
// returning the byte offset into the arena. ok is false if align is too
// large or the arena is exhausted.
func (a *Arena) Alloc(size, align int) (offset int, ok bool) {
	if align <= 0 {
		align = 1
	}
	if align > MaxSupportedAlign {
		return 0, false
	}
	if a.remaining < size {
		return 0, false
	}
	remaining := a.remaining - size
	remaining &^= align - 1
	a.remaining = remaining
	region := a.buf[remaining : remaining+size]
	for i := range region {
		region[i] = 0
	}
	return remaining, true
}

// Free is a no-op: the bump allocator never reclaims memory. The MemoryFree
// syscall does not call it; the dispatcher answers that syscall with
// NotSupported.
func (a *Arena) Free(offset int) {}

// Bytes returns the live slice of the allocation starting at offset,
// letting callers read or write the memory they were handed.
func (a *Arena) Bytes(offset, size int) []byte {
	return a.buf[offset : offset+size]
}

// Remaining reports how many bytes are left, for debug dumps.
func (a *Arena) Remaining() int { return a.remaining }
