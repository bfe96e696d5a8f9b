// Package diag implements the kernel-mode panic dump (§7: "Faults in
// kernel mode ... panic — the kernel halts ... after dumping register
// state") and the D_PROF profiling pseudo-device (§6 device majors).
// Grounded on two biscuit files the retrieval pack carried but whose
// own package had no caller in spec.md's scope: `src/caller/caller.go`
// (Callerdump's runtime.Callers stack-unwind, generalized here into
// the Go-side half of a panic dump — the kernel has no unwinder of
// its own, so the host Go runtime's is the honest stand-in) and
// `src/stats/stats.go` (Counter_t, generalized from its build-time
// `Stats`-gated no-op into the always-on counters D_PROF reads).
package diag

import (
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/google/pprof/profile"
	"github.com/ianlancetaylor/demangle"
	"golang.org/x/arch/x86/x86asm"

	"nyx/src/defs"
	"nyx/src/proc"
	"nyx/src/vm"
)

// Counter_t is a monotonically-increasing statistic, read by the
// D_PROF device. Unlike biscuit's build-time `Stats`-gated version,
// these are always live: D_PROF only has counters to report if the
// counting isn't compiled out.
type Counter_t struct{ n int64 }

func (c *Counter_t) Inc()       { atomic.AddInt64(&c.n, 1) }
func (c *Counter_t) Get() int64 { return atomic.LoadInt64(&c.n) }

// Counters is the kernel-wide counter block D_PROF exposes.
type Counters struct {
	Syscalls    Counter_t
	PageFaults  Counter_t
	CtxSwitches Counter_t
	Signals     Counter_t
}

// Global is the one counter block a hosted kernel core needs; there's
// only one CPU (§5), so there's no per-CPU shard to maintain.
var Global = &Counters{}

// Snapshot builds a pprof profile of the current counter values,
// which D_PROF's minor-device read returns as its payload (§6, §7
// DOMAIN STACK wiring).
func (c *Counters) Snapshot() *profile.Profile {
	valType := &profile.ValueType{Type: "count", Unit: "count"}
	mapping := &profile.Mapping{ID: 1, File: "kernel"}
	mkSample := func(name string, id uint64, v int64) (*profile.Sample, *profile.Function, *profile.Location) {
		fn := &profile.Function{ID: id, Name: name, SystemName: name}
		loc := &profile.Location{ID: id, Mapping: mapping, Line: []profile.Line{{Function: fn}}}
		return &profile.Sample{Location: []*profile.Location{loc}, Value: []int64{v}}, fn, loc
	}
	counters := []struct {
		name string
		val  int64
	}{
		{"syscalls", c.Syscalls.Get()},
		{"page_faults", c.PageFaults.Get()},
		{"context_switches", c.CtxSwitches.Get()},
		{"signals_delivered", c.Signals.Get()},
	}
	p := &profile.Profile{SampleType: []*profile.ValueType{valType}, Mapping: []*profile.Mapping{mapping}}
	for i, cnt := range counters {
		s, fn, loc := mkSample(cnt.name, uint64(i+1), cnt.val)
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, s)
	}
	return p
}

// Symbol is one ELF symbol-table entry, the minimal shape PanicDump
// needs to resolve a return address to a name (§6 executable format).
type Symbol struct {
	Name  string
	Value uint32
}

// symbolFor finds the symbol with the greatest Value <= pc, the usual
// "which function contains this address" scan over a sorted table.
func symbolFor(syms []Symbol, pc uint32) string {
	if len(syms) == 0 {
		return "?"
	}
	i := sort.Search(len(syms), func(i int) bool { return syms[i].Value > pc })
	if i == 0 {
		return "?"
	}
	return demangle.Filter(syms[i-1].Name)
}

// Dump renders a kernel-mode panic's register state, the disassembled
// faulting instruction, a best-effort symbol for it, and the host
// Go runtime's own call stack (standing in for a native unwinder,
// since a hosted kernel core has none of its own) — the panic path
// §7 calls for (§7: "after dumping register state").
func Dump(reason string, frame *defs.Frame_t, th *proc.Thread_t, as *vm.As_t, syms []Symbol) string {
	s := fmt.Sprintf("kernel panic: %s\n", reason)
	s += fmt.Sprintf("thread %d: eip=%#x esp=%#x eflags=%#x\n", th.Tid, frame.Eip, frame.Esp, frame.Eflags)
	s += fmt.Sprintf("eax=%#x ebx=%#x ecx=%#x edx=%#x esi=%#x edi=%#x ebp=%#x\n",
		frame.Eax, frame.Ebx, frame.Ecx, frame.Edx, frame.Esi, frame.Edi, frame.Ebp)

	if as != nil {
		var code [15]byte
		if err := as.CopyIn(frame.Eip, code[:]); err == 0 {
			if inst, derr := x86asm.Decode(code[:], 32); derr == nil {
				s += fmt.Sprintf("faulting insn: %s\n", x86asm.GNUSyntax(inst, uint64(frame.Eip), nil))
			} else {
				s += "faulting insn: <undecodable>\n"
			}
		}
	}
	s += fmt.Sprintf("in: %s\n", symbolFor(syms, frame.Eip))

	s += "host backtrace:\n"
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		s += fmt.Sprintf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		if !more {
			break
		}
	}
	return s
}
