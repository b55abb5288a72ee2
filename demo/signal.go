// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package demo

import (
	"fmt"

	"github.com/gmofishsauce/wut4/rtos/errno"
	"github.com/gmofishsauce/wut4/rtos/syscall"
	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/timeout"
	"github.com/gmofishsauce/wut4/rtos/userspace"
)

// signalHandle is shared between SignalConsumer and SignalProducer the same
// way the original demo shares a file-scope signal ID between its two thread
// bodies: the producer creates the primitive and the consumer polls it.
// Both threads must be spawned by the same caller before either runs.
var signalHandle uint32

// SignalConsumer sleeps a second, then polls the shared signal every 3
// seconds until it fires, mirroring the original's poll-with-timeout loop.
func SignalConsumer(t *thread.Thread) {
	userspace.Sleep(t, 1000)
	for {
		r := userspace.Pend(t, signalHandle, syscall.PrimSignal, timeout.Duration(3000))
		userspace.Println(t, fmt.Sprintf("consumer: poll signal = %d", r))
		if r >= 0 {
			break
		}
	}
	userspace.Println(t, "consumer: done")
	userspace.Stop(t)
}

// SignalProducer creates the shared signal, waits 5 seconds, then posts a
// fixed value to wake the consumer.
func SignalProducer(t *thread.Thread) {
	h, err := userspace.SyncCreate(t, syscall.PrimSignal, 0, 0)
	signalHandle = h
	userspace.Println(t, fmt.Sprintf("producer: create signal = %d", h))
	if err != errno.Success {
		userspace.Println(t, fmt.Sprintf("producer: create failed = %d", err))
		userspace.Stop(t)
		return
	}

	const signalValue = 12345
	userspace.Sleep(t, 5000)
	ret := userspace.Sync(t, h, syscall.PrimSignal, signalValue)
	userspace.Println(t, fmt.Sprintf("producer: signal = %d, ret = %d", h, ret))

	userspace.Println(t, "producer: done")
	userspace.Stop(t)
}
