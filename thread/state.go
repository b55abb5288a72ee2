// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package thread

import "github.com/gmofishsauce/wut4/rtos/timeout"

// Kind distinguishes the three states a thread can be in. There is no
// separate "blocked forever" kind: a Pending thread with a Never deadline is
// simply a Pending thread whose Expired check never fires.
type Kind int

const (
	Stopped Kind = iota
	Running
	Pending
)

func (k Kind) String() string {
	switch k {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Pending:
		return "Pending"
	default:
		return "Kind(unknown)"
	}
}

// NoHandle marks a Pending thread that isn't waiting on any kernel object -
// a plain timed Sleep rather than a Pend.
const NoHandle = -1

// PendingContext records why a Pending thread is on a waitqueue: which
// kernel object it is waiting on and when, if ever, the wait times out.
type PendingContext struct {
	Handle   int
	Deadline timeout.Instant
}

// State bundles a thread's Kind with the context a Pending thread needs.
// Stopped and Running threads carry a zero PendingContext; it is only
// meaningful when Kind == Pending.
type State struct {
	Kind    Kind
	Pending PendingContext
}

func StoppedState() State { return State{Kind: Stopped} }
func RunningState() State { return State{Kind: Running} }
func PendingState(handle int, deadline timeout.Instant) State {
	return State{Kind: Pending, Pending: PendingContext{Handle: handle, Deadline: deadline}}
}
