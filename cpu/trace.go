// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package cpu

import (
	"fmt"
	"io"
)

// Tracer logs supervisor-level events: thread switches, syscall dispatch,
// tick delivery. Unlike the ISA-level emulator's tracer it has no
// instruction stream to decode - the kernel has no instructions, only
// threads and syscalls - so it logs at that grain instead.
type Tracer struct {
	out   io.Writer
	ticks uint64
}

func NewTracer(out io.Writer) *Tracer { return &Tracer{out: out} }

func (t *Tracer) TraceSwitch(threadID int, reason string) {
	if t.out == nil {
		return
	}
	fmt.Fprintf(t.out, "[tick %d] switch -> thread %d (%s)\n", t.ticks, threadID, reason)
}

func (t *Tracer) TraceSyscall(threadID int, name string, args [4]uint32, result uint32) {
	if t.out == nil {
		return
	}
	fmt.Fprintf(t.out, "[tick %d] thread %d syscall %s(%08x,%08x,%08x,%08x) = %08x\n",
		t.ticks, threadID, name, args[0], args[1], args[2], args[3], result)
}

func (t *Tracer) TraceTick(tick uint64) {
	t.ticks = tick
	if t.out == nil {
		return
	}
	fmt.Fprintf(t.out, "[tick %d] tick\n", tick)
}

func (t *Tracer) TraceConsoleOutput(b byte) {
	if t.out == nil {
		return
	}
	fmt.Fprintf(t.out, "[tick %d] console out %q\n", t.ticks, b)
}
