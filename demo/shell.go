// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package demo holds the example thread bodies cmd/ksim spawns when it is
// not given a loadable ELF to run instead: a shell reading one byte at a
// time from the console, a signal producer/consumer pair, a fork stub, and
// a mutex owner/waiter pair. All but the mutex pair are direct ports of the
// original kernel's demo threads onto the userspace package's syscall
// wrappers.
package demo

import (
	"fmt"

	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/userspace"
)

// Shell loops forever, reading one byte at a time off the console and
// dispatching on it: 'y' yields, 's' sleeps for a second, 'w' prints a fixed
// message via the Print syscall, anything else is ignored. When no byte is
// available it sleeps 100ms and polls again, same as the original.
func Shell(t *thread.Thread) {
	for {
		r := userspace.Read1(t)
		if r < 0 {
			userspace.Sleep(t, 100)
			continue
		}
		userspace.Println(t, fmt.Sprintf("recv: %#02x", byte(r)))

		var ret int32
		switch byte(r) {
		case 'y':
			userspace.Println(t, "yield !")
			userspace.Yield(t)
		case 's':
			userspace.Println(t, "SVC sleep")
			userspace.Sleep(t, 1000)
		case 'w':
			userspace.Println(t, "SVC print")
			ret = userspace.Println(t, "Hello using SVC !!")
		}
		userspace.Println(t, fmt.Sprintf("syscall_ret: %#08x", uint32(ret)))
		userspace.Sleep(t, 100)
	}
}
