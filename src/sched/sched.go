// Package sched implements the quantum/aging scheduler and thread
// state machine (§4.3). No teacher file covers this: biscuit runs
// threads as real goroutines under its own forked Go runtime's
// scheduler, which a hosted module running on a stock toolchain
// cannot reach into, so this is written fresh as the explicit
// stackful task abstraction the DESIGN NOTES call for ("Coroutine-
// like blocking ... represent as yield/sleep/wait-on-condition
// primitives"). The state diagram and aging algorithm are grounded
// directly on spec.md §4.3; tie-break and tick-accounting details it
// leaves implicit follow original_source/kernel/sched.c.
package sched

import (
	"sync"

	"nyx/src/defs"
	"nyx/src/diag"
	"nyx/src/proc"
)

// SchedFreq is the quantum length in timer ticks (§4.3: "Quantum is
// SCHED_FREQ timer ticks"), at the 10ms tick rate §4.3's timer ISR
// duties specify — 100Hz, a 10-tick quantum is 100ms.
const SchedFreq = 10

// idle is the distinguished idle thread (§3: "One distinguished idle
// thread with counter = -1"). It never enters the process/thread
// table — nothing ever waits on it or signals it.
var idle = &proc.Thread_t{Tid: defs.NoTid, AgingCounter: -1, State: proc.TRunning}

// Sched_t is the scheduler's own state: the tick clock and the
// currently running thread.
type Sched_t struct {
	sync.Mutex
	Now         uint64
	quantumLeft int
	Current     *proc.Thread_t
}

// S is the global scheduler instance.
var S = &Sched_t{quantumLeft: SchedFreq, Current: idle}

// stopLock serializes stop_other_threads calls so concurrent exit and
// execve on sibling threads don't race (§4.3).
var stopLock sync.Mutex

// Tick runs the timer ISR's per-tick duties (§4.3): advance the clock,
// decrement alarms and post SIGALRM on expiry, wake due sleepers, and
// reschedule at the quantum boundary.
func Tick() {
	S.Lock()
	S.Now++
	now := S.Now
	S.quantumLeft--
	resched := S.quantumLeft <= 0
	if resched {
		S.quantumLeft = SchedFreq
	}
	S.Unlock()

	for _, p := range proc.Procs.LiveProcs() {
		p.Lock()
		if p.State == proc.PRunning && p.AlarmTicks > 0 {
			p.AlarmTicks--
			if p.AlarmTicks == 0 {
				p.Pending.Set(defs.SIGALRM)
			}
		}
		p.Unlock()
	}

	for _, th := range proc.Procs.AllThreads() {
		if th.State == proc.TInterruptible && th.WakeTick != 0 && th.WakeTick <= now {
			th.WakeTick = 0
			th.State = proc.TRunning
		}
	}

	if resched {
		Reschedule()
	}
}

// Reschedule selects the next thread to run (§4.3 selection policy):
// among RUNNING threads whose owning process is RUNNING, the one with
// the greatest aging counter runs next; every other eligible thread's
// counter advances by one; the chosen thread's counter resets to zero.
// The idle thread runs when nothing else is eligible.
func Reschedule() *proc.Thread_t {
	S.Lock()
	defer S.Unlock()
	var best *proc.Thread_t
	var eligible []*proc.Thread_t
	for _, th := range proc.Procs.AllThreads() {
		if th.State != proc.TRunning {
			continue
		}
		owner, ok := proc.Procs.Get(th.Pid)
		if !ok || owner.State != proc.PRunning {
			continue
		}
		eligible = append(eligible, th)
		if best == nil || th.AgingCounter > best.AgingCounter {
			best = th
		}
	}
	for _, th := range eligible {
		if th != best {
			th.AgingCounter++
		}
	}
	if best == nil {
		if S.Current != idle {
			diag.Global.CtxSwitches.Inc()
		}
		S.Current = idle
		return idle
	}
	if S.Current != best {
		diag.Global.CtxSwitches.Inc()
	}
	best.AgingCounter = 0
	S.Current = best
	return best
}

// Yield reschedules voluntarily; th stays RUNNING.
func Yield(th *proc.Thread_t) {
	Reschedule()
}

// BlockInterruptible sets th to INTERRUPTIBLE and reschedules. A
// pending unmasked signal wakes it back to RUNNING (the exception
// dispatch's return-to-user path checks this before re-blocking).
func BlockInterruptible(th *proc.Thread_t) {
	th.State = proc.TInterruptible
	Reschedule()
}

// BlockUninterruptible sets th to UNINTERRUPTIBLE and reschedules.
// Signals do not wake an uninterruptibly-blocked thread.
func BlockUninterruptible(th *proc.Thread_t) {
	th.State = proc.TUninterruptible
	Reschedule()
}

// Sleep blocks th interruptibly until ticks timer ticks have passed.
func Sleep(th *proc.Thread_t, ticks uint64) {
	S.Lock()
	th.WakeTick = S.Now + ticks
	S.Unlock()
	BlockInterruptible(th)
}

// StopThread retires th: NONE state, decrement the owning process's
// thread count, yield, then release its table slot.
func StopThread(th *proc.Thread_t) {
	th.State = proc.TNone
	if owner, ok := proc.Procs.Get(th.Pid); ok {
		owner.Lock()
		owner.ThreadCount--
		owner.Unlock()
	}
	Reschedule()
	proc.Procs.FreeThread(th.Tid)
}

// StopOtherThreads quiesces every thread in p other than caller
// (§4.3, §5): sets pending bit 0 on each peer, wakes any that are
// INTERRUPTIBLE, and spin-yields until only the caller remains.
// Serialized so a racing exit and execve in the same process don't
// both try to quiesce peers at once.
func StopOtherThreads(p *proc.Proc_t, caller *proc.Thread_t) {
	stopLock.Lock()
	defer stopLock.Unlock()
	for {
		peers := proc.Procs.Threads(p.Pid)
		live := 0
		for _, th := range peers {
			if th == caller {
				live++
				continue
			}
			if th.State == proc.TNone {
				continue
			}
			th.Pending.Set(defs.SIG_KILL_THREAD)
			if th.State == proc.TInterruptible {
				th.State = proc.TRunning
			}
			live++
		}
		if live <= 1 {
			return
		}
		Yield(caller)
	}
}

// WakeOneInterruptible wakes a single INTERRUPTIBLE thread belonging
// to pid, if one exists and none of its siblings is already RUNNING
// (§4.4 send_proc_signal: "wakes one interruptible thread of p if no
// other thread is already eligible").
func WakeOneInterruptible(pid defs.Pid_t) {
	for _, th := range proc.Procs.Threads(pid) {
		if th.State == proc.TRunning {
			return
		}
	}
	for _, th := range proc.Procs.Threads(pid) {
		if th.State == proc.TInterruptible {
			th.State = proc.TRunning
			return
		}
	}
}
