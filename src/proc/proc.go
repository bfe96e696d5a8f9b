// Package proc implements the process and thread tables (§3, §4.3's
// data model): fixed-capacity arrays of identity/bookkeeping fields,
// keyed by integer id rather than by live reference, per the DESIGN
// NOTES guidance against cyclic pointers between process and thread
// or process and parent.
//
// No teacher file in the retrieval pack implemented this table
// (biscuit's own src/proc package was an empty stub); the per-thread
// record shape is grounded on the idea behind biscuit's
// src/tinfo/tinfo.go (a per-thread note keyed by tid in a locked map),
// generalized here into the full process/thread data model spec.md
// §3 names, and on original_source/kernel/sched.h's field list for
// which identity fields a process/thread carries.
package proc

import (
	"sync"

	"nyx/src/defs"
	"nyx/src/fd"
	"nyx/src/vm"
)

// MaxProcs and MaxThreads bound the process/thread tables (§3: "Fixed
// arrays").
const (
	MaxProcs   = 1024
	MaxThreads = 4096
	OpenMax    = 32
)

// ProcState is a process's lifecycle state (§3).
type ProcState int

const (
	PNone ProcState = iota
	PRunning
	PStopped
	PZombie
)

// ThreadState is a thread's scheduling state (§3, §4.3 state diagram).
type ThreadState int

const (
	TNone ThreadState = iota
	TRunning
	TInterruptible
	TUninterruptible
)

// OpenFile_t is one entry in the system-wide open-file table, shared
// across dup and fork (§3 "Open file").
type OpenFile_t struct {
	sync.Mutex
	Fd       *fd.Fd_t
	Position int
	RefCount int
}

// Proc_t is one process's identity and bookkeeping (§3). Parent/child/
// session/group relationships are plain Pid_t fields, never pointers,
// per DESIGN NOTES.
type Proc_t struct {
	sync.Mutex

	Pid, Ppid, Pgid, Sid      defs.Pid_t
	Uid, Gid, Euid, Egid      int
	State                     ProcState
	AlarmTicks                int
	Rtime, Ktime, Utime       uint64
	NextTid                   defs.Tid_t
	ThreadCount               int
	Pending                   defs.SigMask
	Sigdisp                   [defs.NSIG]defs.Sigdisp_t
	ExitStatus                int
	Cwd                       *fd.Cwd_t
	Exe                       interface{} // fs.Inode_i; interface{} here avoids an fs<->proc import cycle
	Fdtable                   [OpenMax]*OpenFile_t
	As                        *vm.As_t
}

// Thread_t is one kernel-schedulable thread (§3).
type Thread_t struct {
	Tid          defs.Tid_t
	Pid          defs.Pid_t // owning process
	KernStack    uint32     // physical frame backing the kernel stack, as a raw value for the context switcher
	SavedSP      uint32
	TSSEsp0      uint32
	State        ThreadState
	AgingCounter int
	WakeTick     uint64
	Pending      defs.SigMask
	Mask         defs.SigMask
	SigframeVA   uint32       // user-stack address of the saved context, while in a handler
	Frame        defs.Frame_t // the exception frame this thread resumes with when next dispatched
}

// Signal ORs sig into the process's pending mask, promoting a STOPPED
// process to RUNNING on SIGCONT (§4.4 send_proc_signal, the pure
// data-level half of it — waking an eligible thread is the
// scheduler's job, done by its caller).
func (p *Proc_t) Signal(sig defs.Signo_t) {
	p.Lock()
	defer p.Unlock()
	p.Pending.Set(sig)
	if sig == defs.SIGCONT && p.State == PStopped {
		p.State = PRunning
	}
}

// Table_t is the global process/thread table pair: fixed arrays with
// free-id stacks for allocation, mirroring mem.Physmem_t's free-stack
// idiom (§4.1) for an entirely different resource.
type Table_t struct {
	sync.Mutex
	procs       [MaxProcs]*Proc_t
	threads     [MaxThreads]*Thread_t
	freeProcs   []defs.Pid_t
	freeThreads []defs.Tid_t
}

// NewTable builds an empty table with every pid/tid slot above 0 free.
func NewTable() *Table_t {
	t := &Table_t{}
	for i := MaxProcs - 1; i >= 1; i-- {
		t.freeProcs = append(t.freeProcs, defs.Pid_t(i))
	}
	for i := MaxThreads - 1; i >= 1; i-- {
		t.freeThreads = append(t.freeThreads, defs.Tid_t(i))
	}
	return t
}

// Procs is the global process/thread table.
var Procs = NewTable()

// AllocProc reserves a pid slot and installs a freshly constructed
// Proc_t, or -EAGAIN per §7's resource-exhaustion taxonomy when the
// table is full.
func (t *Table_t) AllocProc() (*Proc_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	if len(t.freeProcs) == 0 {
		return nil, -defs.EAGAIN
	}
	pid := t.freeProcs[len(t.freeProcs)-1]
	t.freeProcs = t.freeProcs[:len(t.freeProcs)-1]
	p := &Proc_t{Pid: pid, State: PRunning}
	t.procs[pid] = p
	return p, 0
}

// FreeProc releases a pid slot after its zombie has been reaped.
func (t *Table_t) FreeProc(pid defs.Pid_t) {
	t.Lock()
	defer t.Unlock()
	t.procs[pid] = nil
	t.freeProcs = append(t.freeProcs, pid)
}

// Get looks up a live process by pid.
func (t *Table_t) Get(pid defs.Pid_t) (*Proc_t, bool) {
	t.Lock()
	defer t.Unlock()
	if pid <= 0 || int(pid) >= len(t.procs) {
		return nil, false
	}
	p := t.procs[pid]
	return p, p != nil
}

// AllocThread reserves a tid slot and installs a new thread owned by
// pid.
func (t *Table_t) AllocThread(pid defs.Pid_t) (*Thread_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	if len(t.freeThreads) == 0 {
		return nil, -defs.EAGAIN
	}
	tid := t.freeThreads[len(t.freeThreads)-1]
	t.freeThreads = t.freeThreads[:len(t.freeThreads)-1]
	th := &Thread_t{Tid: tid, Pid: pid, State: TInterruptible}
	t.threads[tid] = th
	return th, 0
}

// FreeThread releases a tid slot (sched.StopThread calls this once a
// thread has run its last quantum).
func (t *Table_t) FreeThread(tid defs.Tid_t) {
	t.Lock()
	defer t.Unlock()
	t.threads[tid] = nil
	t.freeThreads = append(t.freeThreads, tid)
}

// GetThread looks up a live thread by tid.
func (t *Table_t) GetThread(tid defs.Tid_t) (*Thread_t, bool) {
	t.Lock()
	defer t.Unlock()
	if tid <= 0 || int(tid) >= len(t.threads) {
		return nil, false
	}
	th := t.threads[tid]
	return th, th != nil
}

// Threads returns every live thread belonging to pid.
func (t *Table_t) Threads(pid defs.Pid_t) []*Thread_t {
	t.Lock()
	defer t.Unlock()
	var out []*Thread_t
	for _, th := range t.threads {
		if th != nil && th.Pid == pid {
			out = append(out, th)
		}
	}
	return out
}

// AllThreads returns every live thread, for the scheduler's selection
// pass.
func (t *Table_t) AllThreads() []*Thread_t {
	t.Lock()
	defer t.Unlock()
	var out []*Thread_t
	for _, th := range t.threads {
		if th != nil {
			out = append(out, th)
		}
	}
	return out
}

// LiveProcs returns every live process, for the scheduler's per-tick
// alarm sweep.
func (t *Table_t) LiveProcs() []*Proc_t {
	t.Lock()
	defer t.Unlock()
	var out []*Proc_t
	for _, p := range t.procs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Children returns every live process whose parent is pid.
func (t *Table_t) Children(pid defs.Pid_t) []*Proc_t {
	t.Lock()
	defer t.Unlock()
	var out []*Proc_t
	for _, p := range t.procs {
		if p != nil && p.Ppid == pid {
			out = append(out, p)
		}
	}
	return out
}

// Reparent gives every child of pid to init (§3: "A process with no
// living parent is reparented to pid 1; init receives SIGCHLD if the
// orphan is already a zombie"). Per the resolved Open Question on the
// source's out-of-loop-scope bug, SIGCHLD always goes to init itself —
// never to a loop-scoped variable that could end up referring to the
// last orphan processed instead of pid 1.
func (t *Table_t) Reparent(pid defs.Pid_t) {
	orphans := t.Children(pid)
	init, ok := t.Get(defs.InitPid)
	for _, orphan := range orphans {
		orphan.Lock()
		orphan.Ppid = defs.InitPid
		zombie := orphan.State == PZombie
		orphan.Unlock()
		if zombie && ok {
			init.Signal(defs.SIGCHLD)
		}
	}
}
