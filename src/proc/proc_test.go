package proc

import (
	"testing"

	"nyx/src/defs"
)

func TestAllocFreeProcRoundtrip(t *testing.T) {
	tbl := NewTable()
	p, err := tbl.AllocProc()
	if err != 0 {
		t.Fatalf("AllocProc: %v", err)
	}
	if p.State != PRunning {
		t.Fatalf("fresh proc state = %v, want PRunning", p.State)
	}
	if _, ok := tbl.Get(p.Pid); !ok {
		t.Fatal("allocated pid should be visible via Get")
	}
	tbl.FreeProc(p.Pid)
	if _, ok := tbl.Get(p.Pid); ok {
		t.Fatal("freed pid should no longer be visible")
	}
}

func TestAllocProcExhaustion(t *testing.T) {
	tbl := NewTable()
	var got []defs.Pid_t
	for {
		p, err := tbl.AllocProc()
		if err != 0 {
			break
		}
		got = append(got, p.Pid)
	}
	if len(got) != MaxProcs-1 {
		t.Fatalf("allocated %d procs, want %d (slot 0 reserved)", len(got), MaxProcs-1)
	}
	if _, err := tbl.AllocProc(); err != -defs.EAGAIN {
		t.Fatalf("exhausted table: err = %v, want EAGAIN", err)
	}
	for _, pid := range got {
		tbl.FreeProc(pid)
	}
}

func TestThreadsFiltersByPid(t *testing.T) {
	tbl := NewTable()
	a, _ := tbl.AllocThread(3)
	b, _ := tbl.AllocThread(3)
	c, _ := tbl.AllocThread(4)

	threadsOf3 := tbl.Threads(3)
	if len(threadsOf3) != 2 {
		t.Fatalf("expected 2 threads owned by pid 3, got %d", len(threadsOf3))
	}
	for _, th := range threadsOf3 {
		if th != a && th != b {
			t.Fatalf("unexpected thread %v in pid 3's set", th)
		}
	}
	tbl.FreeThread(a.Tid)
	tbl.FreeThread(b.Tid)
	tbl.FreeThread(c.Tid)
}

func TestReparentRetargetsToInit(t *testing.T) {
	tbl := NewTable()
	tbl.procs[defs.InitPid] = &Proc_t{Pid: defs.InitPid, State: PRunning}
	tbl.freeProcs = removePid(tbl.freeProcs, defs.InitPid)

	parent, _ := tbl.AllocProc()
	child, _ := tbl.AllocProc()
	child.Ppid = parent.Pid
	child.State = PZombie

	tbl.Reparent(parent.Pid)

	if child.Ppid != defs.InitPid {
		t.Fatalf("child.Ppid = %d, want InitPid", child.Ppid)
	}
	init, _ := tbl.Get(defs.InitPid)
	if !init.Pending.Has(defs.SIGCHLD) {
		t.Fatal("init should receive SIGCHLD for an already-zombie orphan")
	}
}

func removePid(free []defs.Pid_t, pid defs.Pid_t) []defs.Pid_t {
	out := free[:0]
	for _, p := range free {
		if p != pid {
			out = append(out, p)
		}
	}
	return out
}

func TestSignalWakesStoppedOnSigcont(t *testing.T) {
	p := &Proc_t{State: PStopped}
	p.Signal(defs.SIGCONT)
	if p.State != PRunning {
		t.Fatalf("state = %v, want PRunning after SIGCONT", p.State)
	}
	if !p.Pending.Has(defs.SIGCONT) {
		t.Fatal("SIGCONT should still be recorded as pending")
	}
}
