// Command protokernel boots the simulated kernel and drops into an
// interactive monitor for inspecting the running machine: scheduler
// state, heap accounting, frame counts, raw memory, and the text
// console.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	getopt "github.com/pborman/getopt/v2"
	"github.com/peterh/liner"

	"github.com/ashutoshR112/protokernel/internal/kernel"
	"github.com/ashutoshR112/protokernel/internal/klog"
	"github.com/ashutoshR112/protokernel/internal/kpanic"
	"github.com/ashutoshR112/protokernel/internal/sched"
)

func main() {
	optMem := getopt.StringLong("mem", 'm', "16777216", "Simulated physical memory size in bytes")
	optHz := getopt.StringLong("hz", 'z', "20", "Timer frequency in Hz")
	optThreads := getopt.StringLong("threads", 't', "0", "Worker threads to spawn at boot")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	out := os.Stdout
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Println("cannot create log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	log := klog.New(out, slog.LevelInfo)
	slog.SetDefault(log)
	kpanic.Logger = log

	memEnd, err := strconv.ParseUint(*optMem, 0, 32)
	if err != nil {
		log.Error("invalid --mem value", "value", *optMem, "error", err)
		os.Exit(1)
	}
	hz, err := strconv.ParseUint(*optHz, 0, 32)
	if err != nil {
		log.Error("invalid --hz value", "value", *optHz, "error", err)
		os.Exit(1)
	}
	threads, err := strconv.ParseUint(*optThreads, 0, 32)
	if err != nil {
		log.Error("invalid --threads value", "value", *optThreads, "error", err)
		os.Exit(1)
	}

	log.Info("protokernel starting", "mem", memEnd, "hz", hz)

	var k *kernel.Kernel
	func() {
		defer func() {
			if r := recover(); r != nil {
				haltOnFault(log, r)
			}
		}()
		k = kernel.Boot(log, kernel.Config{
			MemEnd:  uint32(memEnd),
			TimerHz: uint32(hz),
		})
	}()
	if k == nil {
		os.Exit(1)
	}

	// Worker stacks live in simulated physical memory, carved from the
	// bump allocator above the kernel image. Each worker prints its id
	// to the text console on every loop iteration, passing a scheduler
	// checkpoint after each print, so the round-robin rotation is
	// visible from the monitor's "console" command. The PIT is started
	// only after every worker exists so no tick can schedule a
	// half-built one.
	const workerStackSize = 0x1000
	for i := uint64(0); i < threads; i++ {
		stackTop := k.Bump.Alloc(workerStackSize, true) + workerStackSize
		id := strconv.FormatUint(i, 10)
		var th *sched.Thread
		th = k.Scheduler.NewThread(k.Mem, func(arg uint32) uint32 {
			for n := 0; n < 100; n++ {
				k.Console.WriteString(id)
				th.CheckPoint()
			}
			return arg
		}, uint32(i), stackTop)
	}

	k.PIT.Start()
	defer k.PIT.Shutdown()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down on signal")
		os.Exit(0)
	}()

	runMonitor(log, k)
}

// haltOnFault logs a recovered *kpanic.Fault and halts forever, the
// permanent parked-CPU behavior, at the one place in this tree with a
// real top-level goroutine to park.
func haltOnFault(log *slog.Logger, r any) {
	if fault, ok := r.(*kpanic.Fault); ok {
		log.Error("kernel halted", "fault", fault.Error())
	} else {
		log.Error("kernel halted", "panic", fmt.Sprint(r))
	}
	kpanic.Halt()
}

// command is one monitor verb: a name, the minimum prefix length that
// selects it, and the handler that runs it. Input is matched by prefix,
// so "p" runs ps and "co" runs console.
type command struct {
	name string
	min  int
	run  func(k *kernel.Kernel, args []string) (quit bool)
}

var commands = []command{
	{name: "ps", min: 1, run: cmdPS},
	{name: "heap", min: 2, run: cmdHeap},
	{name: "frames", min: 1, run: cmdFrames},
	{name: "mem", min: 1, run: cmdMem},
	{name: "console", min: 1, run: cmdConsole},
	{name: "help", min: 2, run: cmdHelp},
	{name: "quit", min: 1, run: func(*kernel.Kernel, []string) bool { return true }},
}

func matchCommand(name string) []command {
	if name == "" {
		return nil
	}
	var match []command
	for _, c := range commands {
		if len(name) <= len(c.name) && len(name) >= c.min && c.name[:len(name)] == name {
			match = append(match, c)
		}
	}
	return match
}

func completeCmd(line string) []string {
	match := matchCommand(line)
	names := make([]string, len(match))
	for i, c := range match {
		names[i] = c.name
	}
	return names
}

func runMonitor(log *slog.Logger, k *kernel.Kernel) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(completeCmd)

	for {
		input, err := ln.Prompt("protokernel> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			log.Error("error reading line", "error", err)
			return
		}
		ln.AppendHistory(input)

		fields := splitFields(input)
		if len(fields) == 0 {
			continue
		}

		match := matchCommand(fields[0])
		switch len(match) {
		case 0:
			fmt.Println("unknown command:", fields[0])
		case 1:
			if match[0].run(k, fields[1:]) {
				return
			}
		default:
			fmt.Println("ambiguous command:", fields[0])
		}
	}
}

func splitFields(s string) []string {
	var fields []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if cur != "" {
				fields = append(fields, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		fields = append(fields, cur)
	}
	return fields
}

func cmdPS(k *kernel.Kernel, _ []string) bool {
	cur := k.Scheduler.Current()
	fmt.Printf("current: id=%d state=%s\n", cur.ID, cur.State())
	fmt.Printf("ready queue length: %d\n", k.Scheduler.ReadyLen())
	fmt.Printf("ticks: %d\n", k.Scheduler.Ticks())
	return false
}

func cmdHeap(k *kernel.Kernel, _ []string) bool {
	fmt.Printf("heap: start=%#x end=%#x\n", k.Heap.Start(), k.Heap.End())
	return false
}

func cmdFrames(k *kernel.Kernel, _ []string) bool {
	total := k.Frames.NFrames()
	used := uint32(0)
	for i := uint32(0); i < total; i++ {
		if k.Frames.Test(i) {
			used++
		}
	}
	fmt.Printf("frames: total=%d used=%d free=%d\n", total, used, total-used)
	return false
}

func cmdMem(k *kernel.Kernel, args []string) bool {
	if len(args) == 0 {
		fmt.Println("usage: mem <address> (0x prefix for hex)")
		return false
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		fmt.Println("bad address:", args[0])
		return false
	}
	if !k.Mem.Contains(uint32(addr)) {
		fmt.Println("address out of range")
		return false
	}
	fmt.Printf("%#08x: %#02x\n", addr, k.Mem.Read8(uint32(addr)))
	return false
}

func cmdConsole(k *kernel.Kernel, _ []string) bool {
	fmt.Println(k.Console.String())
	return false
}

func cmdHelp(*kernel.Kernel, []string) bool {
	fmt.Println("commands: ps, heap, frames, mem <addr>, console, help, quit")
	return false
}
