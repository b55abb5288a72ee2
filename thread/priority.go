// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package thread

// Priority is the runqueue's own ordering key, not the raw signed priority
// byte spec.md describes: there, a non-negative raw priority is preemptive
// and a negative one is cooperative, and the numerically highest priority
// runs next (matching the "same as Zephyr RTOS" ThreadPriority this is
// ported from). RunQueue (list.go) only ever compares with "lower sorts
// first", so Priority stores that rule pre-negated instead of mirroring the
// raw byte: preemptive values land in the negative range and cooperative
// ones in the non-negative range, which makes every preemptive priority
// outrank every cooperative one under plain ascending order, and a smaller
// `level` still outrank a larger one within either class.
type Priority int8

// Cooperative builds a cooperative-class priority; level must be >= 0, lower
// runs first among other cooperative threads.
func Cooperative(level int8) Priority {
	if level < 0 {
		level = 0
	}
	return Priority(level)
}

// Preemptive builds a preemptive-class priority; level must be >= 0, lower
// runs first among other preemptive threads. Encoded into the negative
// range (level 0 -> -128, level 127 -> -1) so every preemptive priority
// still sorts below every cooperative one, and increasing level sorts
// later within the class instead of earlier.
func Preemptive(level int8) Priority {
	if level < 0 {
		level = 0
	}
	return Priority(level + (-128))
}

// IsPreemptive reports whether p was built by Preemptive. Priority's sign is
// pre-negated for RunQueue's benefit (see the type doc comment), so this is
// the opposite of spec.md's raw-priority sign convention.
func (p Priority) IsPreemptive() bool { return p < 0 }

// Less reports whether p should be scheduled ahead of other within the
// runqueue ordering: preemptive before cooperative, then numerically.
func (p Priority) Less(other Priority) bool { return p < other }
