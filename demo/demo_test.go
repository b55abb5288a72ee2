// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package demo

import (
	"strings"
	"testing"

	"github.com/gmofishsauce/wut4/rtos/cpu"
	"github.com/gmofishsauce/wut4/rtos/kernel"
	"github.com/gmofishsauce/wut4/rtos/thread"
)

func newTestKernel() (*kernel.Kernel, *cpu.UART) {
	u := cpu.NewUART()
	return kernel.New(kernel.Config{Console: u, ObjectTable: 8, ArenaSize: 512}), u
}

func drain(k *kernel.Kernel, maxSteps int) {
	for i := 0; i < maxSteps && !k.Idle(); i++ {
		k.Step()
	}
}

func TestForkReportsNotSupported(t *testing.T) {
	k, u := newTestKernel()
	k.Spawn(1, thread.Cooperative(0), 256, Fork, 0)
	drain(k, 10)

	out := string(u.Written())
	if !strings.Contains(out, "fork: res =") {
		t.Fatalf("expected fork result line, got %q", out)
	}
	if !strings.Contains(out, "-524") {
		t.Fatalf("expected NotSupported (-524) in output, got %q", out)
	}
}

func TestSignalProducerConsumerHandshake(t *testing.T) {
	k, u := newTestKernel()
	signalHandle = 0
	k.Spawn(1, thread.Cooperative(0), 256, SignalConsumer, 0)
	k.Spawn(2, thread.Cooperative(0), 256, SignalProducer, 0)

	drain(k, 20)
	// Sleep/Pend deadlines are expressed in milliseconds and this kernel
	// treats one Tick as one millisecond, so reaching the producer's 5000ms
	// wait takes that many ticks; Tick/Step are synchronous here so this
	// loop costs no real wall time.
	for i := 0; i < 8000 && !strings.Contains(string(u.Written()), "consumer: done"); i++ {
		k.Tick()
		drain(k, 20)
	}

	out := string(u.Written())
	if !strings.Contains(out, "producer: create signal") {
		t.Fatalf("expected producer to report signal creation, got %q", out)
	}
	if !strings.Contains(out, "consumer: done") {
		t.Fatalf("expected consumer to observe the posted signal, got %q", out)
	}
}

func TestMutexOwnerAndWaiterHandshake(t *testing.T) {
	k, u := newTestKernel()
	mutexHandle = 0
	k.Spawn(1, thread.Cooperative(0), 256, MutexOwner, 0)
	k.Spawn(2, thread.Cooperative(0), 256, MutexWaiter, 0)

	drain(k, 20)
	for i := 0; i < 1200 && !strings.Contains(string(u.Written()), "waiter: released"); i++ {
		k.Tick()
		drain(k, 20)
	}

	out := string(u.Written())
	if !strings.Contains(out, "owner: released") {
		t.Fatalf("expected owner to release the mutex, got %q", out)
	}
	if !strings.Contains(out, "waiter: acquired") {
		t.Fatalf("expected waiter to acquire the mutex after the owner released it, got %q", out)
	}
}
