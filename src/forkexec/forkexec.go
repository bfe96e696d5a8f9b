// Package forkexec orchestrates fork and execve (§4.5), tying
// together proc's tables, vm's address-space cloning/loading, elf's
// image validation and signal's trampoline installation. No single
// teacher file covers this tying-together role; it's grounded on
// spec.md §4.5 directly, composing the already-grounded proc/vm/elf/
// signal packages the way biscuit's own sys_fork/sys_execv glue each
// subsystem's entry points together.
package forkexec

import (
	"nyx/src/defs"
	"nyx/src/elf"
	"nyx/src/fs"
	"nyx/src/mem"
	"nyx/src/proc"
	"nyx/src/sched"
	"nyx/src/signal"
	"nyx/src/vm"
)

// UserStackTop is the fixed top-of-stack virtual address execve
// installs (§8 scenario S2: "a STACK mapping at 0xFFFFE000").
const UserStackTop uint32 = 0xFFFFE000

// UserStackInitSize is the STACK mapping's initial size; the
// page-fault handler's stack-growth policy extends it downward.
const UserStackInitSize uint32 = mem.PGSIZE

// Fork creates a child of parent/pThread (§4.5): a new process and
// thread, a copy-on-write clone of the parent's address space, a
// verbatim copy of the memory-map record array, inherited identity
// fields, and a child kernel stack prepared so the child resumes from
// the parent's current syscall with eax=0 while the parent receives
// the child's pid. Returns the child process on success.
func Fork(parent *proc.Proc_t, pThread *proc.Thread_t) (*proc.Proc_t, defs.Err_t) {
	child, err := proc.Procs.AllocProc()
	if err != 0 {
		return nil, err
	}

	childAs, err := vm.NewAS()
	if err != 0 {
		proc.Procs.FreeProc(child.Pid)
		return nil, err
	}
	if err := parent.As.ForkInto(childAs); err != 0 {
		proc.Procs.FreeProc(child.Pid)
		return nil, err
	}

	childThread, err := proc.Procs.AllocThread(child.Pid)
	if err != 0 {
		childAs.FreeProcessMemory()
		proc.Procs.FreeProc(child.Pid)
		return nil, err
	}

	parent.Lock()
	child.Ppid = parent.Pid
	child.Pgid = parent.Pgid
	child.Sid = parent.Sid
	child.Uid, child.Gid, child.Euid, child.Egid = parent.Uid, parent.Gid, parent.Euid, parent.Egid
	child.Sigdisp = parent.Sigdisp
	child.Cwd = parent.Cwd
	child.Exe = parent.Exe
	for i, pf := range parent.Fdtable {
		if pf == nil {
			continue
		}
		pf.Lock()
		pf.RefCount++
		pf.Unlock()
		child.Fdtable[i] = pf
	}
	parent.Unlock()

	child.As = childAs
	child.State = proc.PRunning
	child.ThreadCount = 1
	child.NextTid = 2

	childThread.Frame = pThread.Frame
	childThread.Frame.Eax = 0
	childThread.State = proc.TInterruptible
	childThread.Mask = pThread.Mask

	return child, 0
}

// Execve replaces p's image with the executable in ino (§4.5). Peer
// threads are stopped first; current process memory is freed; each
// PT_LOAD becomes a memory-map record plus one STACK mapping at the
// top of user space; time counters, the thread-id counter and
// user-installed signal dispositions reset; the calling thread's
// exception frame is rewritten to resume at the new entry point.
func Execve(p *proc.Proc_t, th *proc.Thread_t, ino fs.Inode_i) defs.Err_t {
	img, err := elf.Load(ino)
	if err != 0 {
		return err
	}

	sched.StopOtherThreads(p, th)

	p.As.FreeProcessMemory()

	newAs, err := vm.NewAS()
	if err != 0 {
		return err
	}
	for _, seg := range img.Segments {
		if err := newAs.AddMapping(seg.Base, seg.Size, seg.Flags, seg.FileOffset, seg.FileSize, seg.Inode); err != 0 {
			return err
		}
	}
	if err := newAs.AddMapping(UserStackTop, UserStackInitSize, vm.MMWritable|vm.MMStack, 0, 0, nil); err != 0 {
		return err
	}
	if err := signal.InstallTrampoline(newAs); err != 0 {
		return err
	}

	p.Lock()
	p.As = newAs
	p.Exe = ino
	p.Rtime, p.Ktime, p.Utime = 0, 0, 0
	p.NextTid = 2
	for i := range p.Sigdisp {
		p.Sigdisp[i] = defs.SigdispDFL
	}
	p.Unlock()

	th.Frame.Eip = img.Entry
	th.Frame.Esp = UserStackTop + UserStackInitSize
	th.Frame.Eflags = defs.EFLAGS_IF
	return 0
}
