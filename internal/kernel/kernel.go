// Package kernel wires every subsystem of the runtime substrate
// together in boot order: descriptor tables, the frame bitset, the
// kernel page directory, identity mapping of everything the boot
// allocator has touched so far, the heap's higher-half region, the
// timer, and the scheduler. Ordering matters — each step consumes
// placement memory the identity-map step must cover.
package kernel

import (
	"fmt"
	"log/slog"

	"github.com/ashutoshR112/protokernel/internal/bump"
	"github.com/ashutoshR112/protokernel/internal/console"
	"github.com/ashutoshR112/protokernel/internal/descriptor"
	"github.com/ashutoshR112/protokernel/internal/frame"
	"github.com/ashutoshR112/protokernel/internal/heap"
	"github.com/ashutoshR112/protokernel/internal/ioport"
	"github.com/ashutoshR112/protokernel/internal/keyboard"
	"github.com/ashutoshR112/protokernel/internal/paging"
	"github.com/ashutoshR112/protokernel/internal/physmem"
	"github.com/ashutoshR112/protokernel/internal/sched"
	"github.com/ashutoshR112/protokernel/internal/timer"
)

// Memory map defaults: a 1 MiB higher-half heap able to grow to just
// under 256 MiB, over 16 MiB of physical RAM.
const (
	HeapStart        = 0xC0000000
	HeapInitialSize  = 0x00100000
	HeapMax          = 0xCFFFF000
	HeapMinSize      = 0x00070000
	HeapIndexCap     = 0x00020000
	DefaultMemEnd    = 16 * 1024 * 1024
	DefaultKernelEnd = 0x00020000
	DefaultTimerHz   = 20
	pageSize         = 0x1000
)

// Config parameterizes Boot. Zero-valued fields fall back to the
// defaults above.
type Config struct {
	MemEnd    uint32
	KernelEnd uint32
	TimerHz   uint32
}

func (c Config) withDefaults() Config {
	if c.MemEnd == 0 {
		c.MemEnd = DefaultMemEnd
	}
	if c.KernelEnd == 0 {
		c.KernelEnd = DefaultKernelEnd
	}
	if c.TimerHz == 0 {
		c.TimerHz = DefaultTimerHz
	}
	return c
}

// Kernel is the single process-wide state struct: every subsystem below
// receives an explicit reference to the pieces it depends on instead of
// reaching for a package-level variable.
type Kernel struct {
	Log *slog.Logger

	Bus        *ioport.Bus
	Descriptor *descriptor.Table
	Bump       *bump.Allocator
	Frames     *frame.Bitset
	Directory  *paging.Directory
	CPU        *paging.CPU
	Heap       *heap.Heap
	PIT        *timer.Timer
	Scheduler  *sched.Scheduler
	Console    *console.Console
	Keyboard   *keyboard.Keyboard
	Mem        *physmem.RAM

	cfg Config
}

// Boot performs the entire init sequence in order and returns a Kernel
// ready to run: segment/interrupt tables first, then PIC remap, then
// paging (frame bitset, kernel directory, heap page-table reservation,
// identity map, heap page allocation, page-fault handler, directory
// switch, heap init), then the timer and scheduler.
func Boot(log *slog.Logger, cfg Config) *Kernel {
	cfg = cfg.withDefaults()

	k := &Kernel{
		Log: log,
		cfg: cfg,
		Mem: physmem.New(cfg.MemEnd),
		Bus: ioport.New(),
	}

	k.Descriptor = descriptor.New(k.Bus)
	k.Descriptor.RemapPIC()

	k.Bump = bump.New(cfg.KernelEnd)

	// Size the frame bitset from the end of physical memory and
	// "allocate" its backing bytes from the bump allocator. frame.New
	// owns its real Go slice; this call only advances the placement
	// cursor by what the bitset would occupy, preserving the
	// identity-map accounting below.
	nframes := cfg.MemEnd / pageSize
	bitsetBytes := (nframes + 31) / 32 * 4
	k.Bump.Alloc(bitsetBytes, false)
	k.Frames = frame.New(cfg.MemEnd)

	// Page-aligned kernel directory allocation: two 1024-entry arrays of
	// 4-byte words (table references and table physical addresses).
	k.Bump.Alloc(2*1024*4, true)
	k.Directory = paging.NewDirectory()

	// Force the page tables covering the heap to exist before identity
	// mapping consumes more bump memory.
	for p := uint32(HeapStart); p < HeapStart+HeapInitialSize; p += pageSize {
		k.Directory.GetPage(p, true, k.Bump)
	}

	// Pre-allocate the bare heap record. The Go Heap value itself is
	// constructed later in ordinary memory; this call only accounts for
	// the placement bytes its storage would consume.
	k.Bump.Alloc(4, false)

	// Identity-map everything below the placement cursor. The loop
	// bound is re-read every iteration: creating a page table mid-loop
	// pushes the cursor further out, and those new tables must be
	// mapped too, so the loop runs to the fixed point.
	for i := uint32(0); i < k.Bump.Next(); i += pageSize {
		p := k.Directory.GetPage(i, true, k.Bump)
		k.Frames.Alloc(p, false, false)
	}

	// Back the heap's reserved pages with frames.
	for p := uint32(HeapStart); p < HeapStart+HeapInitialSize; p += pageSize {
		page := k.Directory.GetPage(p, false, nil)
		k.Frames.Alloc(page, false, false)
	}

	k.CPU = paging.NewCPU()
	k.Descriptor.Register(14, paging.FaultHandler(func(format string, args ...any) {
		k.Log.Error(fmt.Sprintf(format, args...))
	}))

	k.CPU.SwitchPageDirectory(k.Directory)

	k.Heap = heap.New(HeapStart, HeapStart+HeapInitialSize, HeapMax, false, false,
		k.Directory, k.Frames, k.Bump)

	k.Scheduler = sched.New(log, sched.NewBootThread())
	k.Descriptor.Register(32, func(*descriptor.Frame) { k.Scheduler.Tick() })

	// Program the PIT divisor over the bus, then stand the ticker up. Each
	// tick raises IRQ0 through the common dispatcher rather than calling
	// the scheduler directly, so the EOI-before-handler ordering holds on
	// the real tick path, not just in tests that dispatch frames by hand.
	timer.Configure(k.Bus, cfg.TimerHz)
	k.PIT = timer.New(cfg.TimerHz, func() {
		k.Descriptor.Dispatch(&descriptor.Frame{IntNo: 32})
	})

	k.Console = console.New()
	k.Console.WriteString("protokernel\n")
	k.Keyboard = keyboard.New()
	k.Keyboard.Register(k.Descriptor, k.Bus)

	return k
}
