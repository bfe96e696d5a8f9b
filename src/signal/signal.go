// Package signal implements the per-process disposition table,
// per-thread pending masks, default actions and user-mode trampoline
// delivery (§4.4). Grounded on spec.md §4.4 directly and on
// original_source/kernel/include/signal.h and lib/include/signal.h
// for the signal-number space and default-action table (glossary:
// "Signal default action table").
//
// The 8-byte in-stack trampoline spec.md describes is fragile by its
// own DESIGN NOTES admission (it needs a writable, executable user
// stack). This core installs a single read-only trampoline page at a
// fixed virtual address at exec time instead (InstallTrampoline) and
// points the saved return address there, per the suggested redesign.
package signal

import (
	"encoding/binary"

	"nyx/src/defs"
	"nyx/src/mem"
	"nyx/src/proc"
	"nyx/src/sched"
	"nyx/src/vm"
)

// TrampolineVA is the fixed virtual address of the read-only
// sigreturn trampoline, installed once per address space at exec
// time. It sits two pages below the top-of-stack mapping spec.md's S2
// scenario places at 0xFFFFE000.
const TrampolineVA uint32 = 0xFFFFC000

// trampolineCode is "mov eax, -1 ; int 0xFF", padded to 8 bytes with
// a nop (§6 syscall ABI: -1 is reserved for sigreturn).
var trampolineCode = [8]byte{0xB8, 0xFF, 0xFF, 0xFF, 0xFF, 0xCD, 0xFF, 0x90}

// InstallTrampoline eagerly maps and populates the trampoline page,
// called once by execve (forkexec.Execve) before the new image first
// runs.
func InstallTrampoline(as *vm.As_t) defs.Err_t {
	pa, err := as.AllocUser(TrampolineVA, mem.PTE_P|mem.PTE_U)
	if err != 0 {
		return err
	}
	copy(mem.Physmem.Dmap(pa)[:], trampolineCode[:])
	return 0
}

// CanKill implements the §4.4 permission check for kill(2).
func CanKill(sender, target *proc.Proc_t, sig defs.Signo_t) bool {
	if target.Pid == defs.InitPid {
		target.Lock()
		disp := target.Sigdisp[sig]
		target.Unlock()
		if disp == defs.SigdispDFL || disp == defs.SigdispIGN {
			return false
		}
	}
	if sender.Uid == 0 {
		return true
	}
	if sig == defs.SIGCONT && sender.Sid == target.Sid {
		return true
	}
	return sender.Uid == target.Uid
}

// SendProcSignal posts sig to p and wakes an eligible thread (§4.4).
func SendProcSignal(p *proc.Proc_t, sig defs.Signo_t) {
	p.Signal(sig)
	sched.WakeOneInterruptible(p.Pid)
}

// pendingMask computes signal_pending(t) = (t.pending | t.owner.pending)
// & ~t.mask, with bit 0 always considered pending when set regardless
// of mask (§4.4).
func pendingMask(th *proc.Thread_t, p *proc.Proc_t) defs.SigMask {
	p.Lock()
	ppend := p.Pending
	p.Unlock()
	combined := defs.SigMask(uint32(th.Pending) | uint32(ppend))
	masked := combined &^ th.Mask
	if combined.Has(defs.SIG_KILL_THREAD) {
		masked.Set(defs.SIG_KILL_THREAD)
	}
	return masked
}

// Interrupted reports whether th has an unmasked signal waiting,
// without consuming it — the check a blocked syscall (waitpid's
// wait loop, an interruptible device read) makes after waking to
// decide whether to surface EINTR instead of continuing to block
// (§5: "resumption surfaces EINTR").
func Interrupted(th *proc.Thread_t, p *proc.Proc_t) bool {
	return pendingMask(th, p) != 0
}

// DeliverResult tells the exception-return path what Deliver did.
type DeliverResult int

const (
	Continue DeliverResult = iota
	Terminated
	Stopped
)

// Deliver runs the signal-delivery policy on the exit path back to
// user mode from any kernel entry (§4.4). frame is the thread's
// current exception frame; delivery to a handler rewrites it in
// place so the return-to-user path lands in the handler instead.
func Deliver(th *proc.Thread_t, p *proc.Proc_t, as *vm.As_t, frame *defs.Frame_t) DeliverResult {
	mask := pendingMask(th, p)
	if mask.Has(defs.SIG_KILL_THREAD) {
		th.Pending.Clear(defs.SIG_KILL_THREAD)
		return Terminated
	}
	sig, ok := mask.Lowest()
	if !ok {
		return Continue
	}
	th.Pending.Clear(sig)
	p.Lock()
	p.Pending.Clear(sig)
	disp := p.Sigdisp[sig]
	p.Unlock()

	if sig == defs.SIGKILL {
		terminate(p, defs.WTermSig(sig))
		return Terminated
	}
	if sig == defs.SIGSTOP {
		stop(p, th)
		return Stopped
	}

	switch disp {
	case defs.SigdispIGN:
		return Continue
	case defs.SigdispDFL:
		switch defs.DefaultAction(sig) {
		case defs.ActIgnore, defs.ActCont:
			return Continue
		case defs.ActStop:
			stop(p, th)
			return Stopped
		default: // ActTerm
			terminate(p, defs.WTermSig(sig))
			return Terminated
		}
	default:
		deliverToHandler(th, as, frame, sig, uintptr(disp))
		// one-shot: reset to DFL after delivery (§4.4; §9 resolved —
		// implemented literally as specified, not as a bug).
		p.Lock()
		p.Sigdisp[sig] = defs.SigdispDFL
		p.Unlock()
		return Continue
	}
}

func terminate(p *proc.Proc_t, status int) {
	p.Lock()
	p.ExitStatus = status
	p.State = proc.PZombie
	p.Unlock()
}

func stop(p *proc.Proc_t, th *proc.Thread_t) {
	p.Lock()
	p.State = proc.PStopped
	p.Unlock()
	sched.BlockInterruptible(th)
}

// sigframeSize is the on-stack footprint of a saved Frame_t: room for
// 11 uint32 words, of which putFrame/getFrame use the first 10.
const sigframeSize = 11 * 4

// deliverToHandler builds a sigframe on the user stack (retaddr =
// TrampolineVA, then the signal number, then the saved register
// context) and redirects frame to start the handler.
func deliverToHandler(th *proc.Thread_t, as *vm.As_t, frame *defs.Frame_t, sig defs.Signo_t, handler uintptr) {
	const callHeader = 8 // retaddr + signal-number argument
	newEsp := (frame.Esp - uint32(callHeader+sigframeSize)) &^ 0xf
	contextVA := newEsp + callHeader

	var buf [callHeader + sigframeSize]byte
	binary.LittleEndian.PutUint32(buf[0:], TrampolineVA)
	binary.LittleEndian.PutUint32(buf[4:], uint32(sig))
	putFrame(buf[callHeader:], frame)
	as.CopyOut(newEsp, buf[:])

	th.SigframeVA = contextVA
	frame.Eip = uint32(handler)
	frame.Esp = newEsp
}

func putFrame(buf []byte, f *defs.Frame_t) {
	binary.LittleEndian.PutUint32(buf[0:], f.Eax)
	binary.LittleEndian.PutUint32(buf[4:], f.Ebx)
	binary.LittleEndian.PutUint32(buf[8:], f.Ecx)
	binary.LittleEndian.PutUint32(buf[12:], f.Edx)
	binary.LittleEndian.PutUint32(buf[16:], f.Esi)
	binary.LittleEndian.PutUint32(buf[20:], f.Edi)
	binary.LittleEndian.PutUint32(buf[24:], f.Ebp)
	binary.LittleEndian.PutUint32(buf[28:], f.Eip)
	binary.LittleEndian.PutUint32(buf[32:], f.Eflags)
	binary.LittleEndian.PutUint32(buf[36:], f.Esp)
}

func getFrame(buf []byte, f *defs.Frame_t) {
	f.Eax = binary.LittleEndian.Uint32(buf[0:])
	f.Ebx = binary.LittleEndian.Uint32(buf[4:])
	f.Ecx = binary.LittleEndian.Uint32(buf[8:])
	f.Edx = binary.LittleEndian.Uint32(buf[12:])
	f.Esi = binary.LittleEndian.Uint32(buf[16:])
	f.Edi = binary.LittleEndian.Uint32(buf[20:])
	f.Ebp = binary.LittleEndian.Uint32(buf[24:])
	f.Eip = binary.LittleEndian.Uint32(buf[28:])
	f.Eflags = binary.LittleEndian.Uint32(buf[32:])
	f.Esp = binary.LittleEndian.Uint32(buf[36:])
}

// Sigreturn restores the register context saved by Deliver; it's the
// syscall -1 handler the trampoline invokes when a handler returns.
func Sigreturn(th *proc.Thread_t, as *vm.As_t, frame *defs.Frame_t) defs.Err_t {
	if th.SigframeVA == 0 {
		return -defs.EINVAL
	}
	var buf [sigframeSize]byte
	if err := as.CopyIn(th.SigframeVA, buf[:]); err != 0 {
		return err
	}
	getFrame(buf[:], frame)
	th.SigframeVA = 0
	return 0
}
