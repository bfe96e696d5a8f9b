package sched

import (
	"runtime"
	"testing"
	"time"

	"nyx/src/defs"
	"nyx/src/proc"
)

// freshProc installs p into the global process table at a fresh pid,
// cleaning up at test end.
func freshProc(t *testing.T, state proc.ProcState) *proc.Proc_t {
	t.Helper()
	p, err := proc.Procs.AllocProc()
	if err != 0 {
		t.Fatalf("AllocProc: %v", err)
	}
	p.State = state
	t.Cleanup(func() { proc.Procs.FreeProc(p.Pid) })
	return p
}

func freshThread(t *testing.T, pid defs.Pid_t, state proc.ThreadState) *proc.Thread_t {
	t.Helper()
	th, err := proc.Procs.AllocThread(pid)
	if err != 0 {
		t.Fatalf("AllocThread: %v", err)
	}
	th.State = state
	t.Cleanup(func() { proc.Procs.FreeThread(th.Tid) })
	return th
}

func TestRescheduleAgesNonSelected(t *testing.T) {
	p := freshProc(t, proc.PRunning)
	a := freshThread(t, p.Pid, proc.TRunning)
	b := freshThread(t, p.Pid, proc.TRunning)
	a.AgingCounter = 5
	b.AgingCounter = 2

	best := Reschedule()
	if best != a {
		t.Fatalf("expected the more-aged thread to be selected")
	}
	if a.AgingCounter != 0 {
		t.Fatalf("selected thread's counter should reset to 0, got %d", a.AgingCounter)
	}
	if b.AgingCounter != 3 {
		t.Fatalf("unselected thread should age by one, got %d", b.AgingCounter)
	}
}

func TestRescheduleSkipsNonRunningProcess(t *testing.T) {
	p := freshProc(t, proc.PStopped)
	th := freshThread(t, p.Pid, proc.TRunning)
	th.AgingCounter = 100

	best := Reschedule()
	if best == th {
		t.Fatal("a thread owned by a non-running process must not be selected")
	}
}

func TestBlockInterruptibleSetsState(t *testing.T) {
	p := freshProc(t, proc.PRunning)
	th := freshThread(t, p.Pid, proc.TRunning)
	BlockInterruptible(th)
	if th.State != proc.TInterruptible {
		t.Fatalf("state = %v, want TInterruptible", th.State)
	}
}

func TestWakeOneInterruptibleWakesExactlyOne(t *testing.T) {
	p := freshProc(t, proc.PRunning)
	a := freshThread(t, p.Pid, proc.TInterruptible)
	b := freshThread(t, p.Pid, proc.TInterruptible)

	WakeOneInterruptible(p.Pid)
	running := 0
	if a.State == proc.TRunning {
		running++
	}
	if b.State == proc.TRunning {
		running++
	}
	if running != 1 {
		t.Fatalf("expected exactly one thread woken, got %d", running)
	}
}

func TestWakeOneInterruptibleNoopIfAlreadyRunning(t *testing.T) {
	p := freshProc(t, proc.PRunning)
	a := freshThread(t, p.Pid, proc.TRunning)
	b := freshThread(t, p.Pid, proc.TInterruptible)

	WakeOneInterruptible(p.Pid)
	if a.State != proc.TRunning {
		t.Fatal("already-running thread state should be untouched")
	}
	if b.State != proc.TInterruptible {
		t.Fatal("should not wake a sibling when one thread is already eligible")
	}
}

// TestStopOtherThreadsQuiescesPeers drives StopOtherThreads on its own
// goroutine (it spin-waits for peers to retire, which in a hosted
// model with no real peer execution would otherwise never happen) and
// simulates the peer noticing SIG_KILL_THREAD and retiring itself.
func TestStopOtherThreadsQuiescesPeers(t *testing.T) {
	p := freshProc(t, proc.PRunning)
	caller := freshThread(t, p.Pid, proc.TRunning)
	peer := freshThread(t, p.Pid, proc.TInterruptible)

	done := make(chan struct{})
	go func() {
		StopOtherThreads(p, caller)
		close(done)
	}()

	for i := 0; i < 100000 && !peer.Pending.Has(defs.SIG_KILL_THREAD); i++ {
		runtime.Gosched()
	}
	if !peer.Pending.Has(defs.SIG_KILL_THREAD) {
		t.Fatal("peer should have SIG_KILL_THREAD posted")
	}
	peer.State = proc.TNone

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopOtherThreads did not return after peer retired")
	}
}
