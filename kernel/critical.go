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

package kernel

// CriticalSection is a token proving kernel state is being mutated with
// interrupts excluded. On real hardware this masks the tick interrupt; in
// this simulation the supervisor already owns all kernel state exclusively
// between traps (see the thread package's switch-primitive doc comment), so
// the token carries no force-on override and does no masking of its own -
// it exists so call sites read the same way the ABI-level kernel does.
// Step brackets its read-and-clear of a thread's PendingResult with it;
// runqueue and kernel-object mutations are not bracketed.
type CriticalSection struct{}

func EnterCritical() CriticalSection { return CriticalSection{} }

func (CriticalSection) Exit() {}
