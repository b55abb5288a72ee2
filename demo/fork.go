// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package demo

import (
	"fmt"

	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/userspace"
)

// Fork issues the Fork syscall and prints its result, demonstrating that the
// call is accepted by the ABI but always reports NotSupported (process
// creation is out of scope; see userspace.Fork's doc comment).
func Fork(t *thread.Thread) {
	res := userspace.Fork(t)
	userspace.Println(t, fmt.Sprintf("fork: res = %d", res))
	userspace.Stop(t)
}
