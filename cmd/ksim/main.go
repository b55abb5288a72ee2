// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Command ksim drives this repository's kernel the way the original
// hardware's tick interrupt and console UART would: a real-time ticker
// calls Kernel.Tick on a fixed period while a tight loop calls Kernel.Step
// as fast as threads have work, with console I/O wired to this process's
// own terminal (or, with -serial, a real serial port).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/gmofishsauce/wut4/rtos/console"
	"github.com/gmofishsauce/wut4/rtos/cpu"
	"github.com/gmofishsauce/wut4/rtos/demo"
	"github.com/gmofishsauce/wut4/rtos/kernel"
	"github.com/gmofishsauce/wut4/rtos/loader"
	"github.com/gmofishsauce/wut4/rtos/thread"
	"github.com/gmofishsauce/wut4/rtos/userspace"
)

var (
	traceFile   = flag.String("trace", "", "Write supervisor trace to file")
	maxTicks    = flag.Uint64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	tickPeriod  = flag.Duration("tick", 10*time.Millisecond, "Real time per simulated tick")
	elfPath     = flag.String("elf", "", "Load and run a loadable ELF image instead of the demo threads")
	serialDev   = flag.String("serial", "", "Use a real serial port instead of this terminal's stdin/stderr")
	serialBaud  = flag.Int("baud", 9600, "Baud rate when -serial is given")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

const version = "1.0.0"

const (
	objectTableSize = 16
	arenaSize       = 4096
	userStackSize   = 1024
	loaderTextBase  = 0x9000
)

var savedTermState *term.State

func setupTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to get terminal state: %v", err)
	}
	savedTermState = state
	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("failed to set raw mode: %v", err)
	}
	return nil
}

func restoreTerminal() {
	if savedTermState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedTermState)
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("wut4 rtos simulator v%s\n", version)
		os.Exit(0)
	}

	var con cpu.Console
	if *serialDev != "" {
		s, err := console.OpenSerial(*serialDev, *serialBaud)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening serial port: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		con = s
	} else {
		if err := setupTerminal(); err != nil {
			fmt.Fprintf(os.Stderr, "Error setting up terminal: %v\n", err)
			os.Exit(1)
		}
		defer restoreTerminal()
		con = console.NewStdio()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		restoreTerminal()
		os.Exit(130)
	}()

	var tracer *cpu.Tracer
	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		tracer = cpu.NewTracer(f)
	}

	k := kernel.New(kernel.Config{
		Console:     con,
		Tracer:      tracer,
		ObjectTable: objectTableSize,
		ArenaSize:   arenaSize,
	})

	if *elfPath != "" {
		if err := spawnLoadable(k, *elfPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *elfPath, err)
			restoreTerminal()
			os.Exit(1)
		}
	} else {
		spawnDemo(k)
	}

	run(k, *maxTicks, *tickPeriod)

	restoreTerminal()
	fmt.Fprintf(os.Stderr, "\nksim: exit at tick %d\n", k.Now())
}

// spawnDemo starts the shell, signal producer/consumer, fork stub, and
// mutex owner/waiter threads that ship with this repository; the mutex pair
// has no counterpart in the original kernel's demo binary.
func spawnDemo(k *kernel.Kernel) {
	k.Spawn(1, thread.Cooperative(0), userStackSize, demo.Shell, 0)
	k.Spawn(2, thread.Cooperative(1), userStackSize, demo.SignalProducer, 0)
	k.Spawn(3, thread.Cooperative(1), userStackSize, demo.SignalConsumer, 0)
	k.Spawn(4, thread.Cooperative(2), userStackSize, demo.Fork, 0)
	k.Spawn(5, thread.Cooperative(2), userStackSize, demo.MutexOwner, 0)
	k.Spawn(6, thread.Cooperative(2), userStackSize, demo.MutexWaiter, 0)
}

// spawnLoadable reads, parses, and relocates the ELF at path, then spawns a
// thread whose entry trampoline is the loader's simulated Invoker: it
// reports the call and returns 0, standing in for "branch to entry with the
// GOT register loaded" (see loader.Invoker's doc comment for why there is
// no real branch here).
func spawnLoadable(k *kernel.Kernel, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	l, err := loader.Load(data, userspace.PICRegister)
	if err != nil {
		return err
	}
	entry, err := loader.Instantiate(l, k.Arena(), loaderTextBase, userStackSize, traceInvoker)
	if err != nil {
		return err
	}
	k.Spawn(5, thread.Cooperative(0), userStackSize, entry, 0)
	return nil
}

func traceInvoker(ctx loader.EntryContext, text []byte) uint32 {
	fmt.Fprintf(os.Stderr, "ksim: simulated branch to entry=%#08x got=%#08x arg0=%#08x (%d bytes of text)\n",
		ctx.EntryAddr, ctx.GotAddr, ctx.Arg0, len(text))
	return 0
}

// run drives the supervisor: Step as fast as there is ready work, and
// advance the tick clock once per tickPeriod of wall time, stopping after
// maxTicks if it is nonzero.
func run(k *kernel.Kernel, maxTicks uint64, tickPeriod time.Duration) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		for !k.Idle() && k.Panicked() == nil {
			k.Step()
		}
		if err := k.Panicked(); err != nil {
			fmt.Fprintf(os.Stderr, "ksim: kernel panic: %v\n", err)
			return
		}
		<-ticker.C
		k.Tick()
		if maxTicks > 0 && k.Now() >= maxTicks {
			return
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "wut4 rtos simulator - runs the kernel's scheduler and syscalls in-process\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nWith no -elf, ksim spawns the shell/signal/fork/mutex demo threads and connects\n")
	fmt.Fprintf(os.Stderr, "console I/O to stdin/stderr. Use -trace to record a supervisor-level trace.\n")
}
