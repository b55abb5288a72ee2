// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package loader

import (
	"encoding/binary"
	"errors"

	"github.com/gmofishsauce/wut4/rtos/memory"
	"github.com/gmofishsauce/wut4/rtos/thread"
)

// ErrArenaExhausted means there was not enough RAM left in the arena to
// hold this image's writable segment.
var ErrArenaExhausted = errors.New("loader: arena has no room for the writable segment")

// EntryContext is what a loaded image's entry trampoline expects to find at
// the bottom of its stack: the entry address to branch to (textRAMBase plus
// the entry offset),
// the GOT base to load into the PIC register, and the first argument.
type EntryContext struct {
	EntryAddr uint32
	GotAddr   uint32
	Arg0      uint32
}

// encode renders c the way a real trampoline reads it back: three
// little-endian words, in field order.
func (c EntryContext) encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:], c.EntryAddr)
	binary.LittleEndian.PutUint32(buf[4:], c.GotAddr)
	binary.LittleEndian.PutUint32(buf[8:], c.Arg0)
	return buf
}

// Invoker is the trampoline this simulation cannot interpret natively: there
// is no ARMv7-M instruction decoder in this repo (the teacher's own
// emulator interprets a different, 16-bit instruction set, and building a
// second, unrelated CPU interpreter is out of scope here), so "branch to
// entry with the GOT register loaded and arg0 in r0" is represented as a
// Go callback instead of real machine code. Production wiring still gets
// everything upstream of this boundary for free: ELF parsing, GOT
// relocation, and entry-context placement are all real; only the final
// jump is simulated.
type Invoker func(ctx EntryContext, text []byte) (r0 uint32)

// Instantiate allocates RAM for l's writable segment from arena, relocates
// the GOT into it, writes the EntryContext at the bottom of a fresh stack,
// and returns a thread.Entry that runs invoke when scheduled. textRAMBase is
// where l.Text() is considered to live for GOT relocation purposes (the
// image's own .text address when executing in place, i.e. .text is not
// copied, so text-pointing GOT entries are left unshifted).
func Instantiate(l *Loadable, arena *memory.Arena, textRAMBase uint64, stackSize int, invoke Invoker) (thread.Entry, error) {
	offset, ok := arena.Alloc(l.AllocSize(), memory.MaxSupportedAlign)
	if !ok {
		return nil, ErrArenaExhausted
	}
	ram := arena.Bytes(offset, l.AllocSize())
	ramBase := uint64(offset)
	if err := l.Relocate(ram, textRAMBase, ramBase, noinitFill); err != nil {
		return nil, err
	}

	ctx := EntryContext{
		EntryAddr: uint32(textRAMBase) + uint32(l.EntryOffset()),
		GotAddr:   uint32(ramBase),
	}

	return func(t *thread.Thread) {
		ctx.Arg0 = t.Frame.R0
		if !t.Stack.Info().WriteBottom(ctx.encode()) {
			return
		}
		r0 := invoke(ctx, l.Text())
		t.Frame.R0 = r0
	}, nil
}

// noinitFill matches the original kernel's canary fill for the .noinit
// section when that feature is enabled, giving an uninitialized read in a
// loaded program's .noinit data a value that stands out in a memory dump.
const noinitFill = 0xAA
