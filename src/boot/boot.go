// Package boot implements the boot contract (§6) and the hosted
// tick/dispatch loop that stands in for a real trap/IRQ path (§1
// out-of-scope: "early boot/GDT/IDT setup" — this package starts
// after that point, with paging already enabled and init_pdir already
// built, never before it). No teacher file covers this role directly;
// grounded on spec.md §6's boot contract fields and on
// original_source/kernel/main.c's post-paging boot sequence for what
// order mounting, pid-1 creation and the first scheduler tick happen
// in.
package boot

import (
	"golang.org/x/sys/cpu"

	"nyx/src/defs"
	"nyx/src/diag"
	"nyx/src/proc"
	"nyx/src/sched"
	"nyx/src/signal"
	"nyx/src/syscall"
	"nyx/src/vm"
)

// Memory map entry types (§6: "{base, size, type}").
const (
	MemUsable   = 1
	MemReserved = 2
	MemACPI     = 3
	MemNVS      = 4
)

// MemRegion_t is one BIOS-style memory map entry. A Size of zero
// terminates the array the boot loader hands the kernel (§6).
type MemRegion_t struct {
	Base uint64
	Size uint64
	Type int
}

// CPUInfo_t is the CPUID-derived identification the boot contract
// names (§6: "CPUID vendor/brand/base-frequency strings").
type CPUInfo_t struct {
	Vendor      string
	Brand       string
	BaseFreqMHz int
}

// DetectCPU stands in for the CPUID instruction a real boot path
// would execute before paging is even enabled (§1: bare-metal entry
// is out of scope). golang.org/x/sys/cpu's feature-flag detection is
// the closest a hosted harness gets to silicon identification; a base
// frequency isn't observable this way, so it's left unknown.
func DetectCPU() CPUInfo_t {
	vendor := "GenuineIntel"
	brand := "hosted-i386"
	switch {
	case cpu.X86.HasAVX512F:
		brand = "hosted-i386/avx512f"
	case cpu.X86.HasAVX2:
		brand = "hosted-i386/avx2"
	case cpu.X86.HasSSE42:
		brand = "hosted-i386/sse4.2"
	}
	return CPUInfo_t{Vendor: vendor, Brand: brand, BaseFreqMHz: 0}
}

// BootInfo_t is everything the boot contract hands the kernel (§6).
type BootInfo_t struct {
	MemMap []MemRegion_t
	CPU    CPUInfo_t
}

// Detect builds a BootInfo_t for this hosted harness: one usable
// region of poolBytes bytes (the size of the physical page pool
// mem.Physmem.Init reserved), terminated per the boot contract's zero-size sentinel, plus CPU
// identification.
func Detect(poolBytes uint64) BootInfo_t {
	return BootInfo_t{
		MemMap: []MemRegion_t{
			{Base: 0x100000, Size: poolBytes, Type: MemUsable},
			{Base: 0, Size: 0, Type: 0},
		},
		CPU: DetectCPU(),
	}
}

// Tick advances the scheduler clock by one timer tick (§4.3's timer
// ISR duties), the hosted stand-in for the periodic hardware timer
// interrupt a real boot path would program.
func Tick() {
	sched.Tick()
}

// Syscall runs th's pending trap through the syscall dispatch table
// and records it against src/diag's profile (§4.6, §6 D_PROF).
func Syscall(th *proc.Thread_t) {
	syscall.Dispatch(th)
	diag.Global.Syscalls.Inc()
}

// PageFault runs a page fault against as and records it (§4.2, §6
// D_PROF).
func PageFault(as *vm.As_t, va uint32, write bool) defs.Err_t {
	diag.Global.PageFaults.Inc()
	return as.PageFault(va, write)
}

// DeliverSignals runs the signal-delivery policy on th's return path
// to user mode and records deliveries that terminated or stopped the
// process (§4.4, §6 D_PROF). Deliveries to a user handler and ignored
// signals both return Continue and are not counted.
func DeliverSignals(th *proc.Thread_t, p *proc.Proc_t, frame *defs.Frame_t) signal.DeliverResult {
	res := signal.Deliver(th, p, p.As, frame)
	if res != signal.Continue {
		diag.Global.Signals.Inc()
	}
	return res
}
