// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package thread

// Stack is a thread's private memory region. It grows down from Top, which
// is always 8-byte aligned, matching the AAPCS requirement that SP be
// 8-aligned at every public interface.
type Stack struct {
	mem []byte
}

// NewStack allocates size bytes of stack memory. size need not itself be a
// multiple of 8; Top rounds down.
func NewStack(size int) *Stack {
	return &Stack{mem: make([]byte, size)}
}

func (s *Stack) Size() int { return len(s.mem) }

// Top returns the 8-byte-aligned initial stack pointer offset: one past the
// highest byte a thread uses.
func (s *Stack) Top() int {
	return len(s.mem) - (len(s.mem) % 8)
}

// Info returns the StackInfo view used to seed a fresh thread's entry state.
func (s *Stack) Info() StackInfo {
	return StackInfo{Size: s.Size(), Top: s.Top(), stack: s}
}

// PutByte and ByteAt address the stack relative to Top, matching how a
// thread addresses its own locals relative to a descending SP.
func (s *Stack) PutByte(offsetFromTop int, b byte) {
	s.mem[s.Top()-1-offsetFromTop] = b
}

func (s *Stack) ByteAt(offsetFromTop int) byte {
	return s.mem[s.Top()-1-offsetFromTop]
}

// StackInfo is a read-mostly view of a Stack's geometry, handed to the
// loader so it can place an entry context at the bottom of the region
// without reaching back into Thread internals.
type StackInfo struct {
	Size int
	Top  int
	stack *Stack
}

// WriteBottom copies obj to the lowest address of the stack region (offset
// zero), returning false if it doesn't fit. The loadable-program loader uses
// this to deposit the argument block a fresh user thread expects to find
// below its initial SP.
func (si StackInfo) WriteBottom(obj []byte) bool {
	if len(obj) > si.Size {
		return false
	}
	copy(si.stack.mem, obj)
	return true
}

// ReadBottom reads back length bytes starting at the bottom of the region.
func (si StackInfo) ReadBottom(length int) []byte {
	return si.stack.mem[:length]
}
