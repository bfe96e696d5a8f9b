package defs

import "testing"

func TestMkdevRoundtrip(t *testing.T) {
	d := Mkdev(int(D_TTY), 3)
	maj, min := Unmkdev(d)
	if Dev_t(maj) != D_TTY || min != 3 {
		t.Fatalf("roundtrip mismatch: maj=%d min=%d", maj, min)
	}
}

func TestSigMask(t *testing.T) {
	var m SigMask
	m.Set(SIGALRM)
	m.Set(SIGCHLD)
	if !m.Has(SIGALRM) || !m.Has(SIGCHLD) {
		t.Fatal("expected both bits set")
	}
	lo, ok := m.Lowest()
	if !ok || lo != SIGALRM {
		t.Fatalf("expected lowest=SIGALRM, got %d ok=%v", lo, ok)
	}
	m.Clear(SIGALRM)
	lo, ok = m.Lowest()
	if !ok || lo != SIGCHLD {
		t.Fatalf("expected lowest=SIGCHLD after clear, got %d ok=%v", lo, ok)
	}
}

func TestDefaultAction(t *testing.T) {
	if DefaultAction(SIGSTOP) != ActStop {
		t.Fatal("SIGSTOP should default-stop")
	}
	if DefaultAction(SIGCONT) != ActCont {
		t.Fatal("SIGCONT should default-continue")
	}
	if DefaultAction(SIGCHLD) != ActIgnore {
		t.Fatal("SIGCHLD should default-ignore")
	}
	if DefaultAction(SIGSEGV) != ActTerm {
		t.Fatal("SIGSEGV should default-terminate")
	}
}

func TestWstatusEncoding(t *testing.T) {
	st := WExitStatus(42)
	if WIFSIGNALED(st) {
		t.Fatal("normal exit should not look signaled")
	}
	if WEXITSTATUS(st) != 42 {
		t.Fatalf("expected 42, got %d", WEXITSTATUS(st))
	}
	st = WTermSig(SIGSEGV)
	if !WIFSIGNALED(st) {
		t.Fatal("expected signaled status")
	}
	if WTERMSIG(st) != SIGSEGV {
		t.Fatalf("expected SIGSEGV, got %d", WTERMSIG(st))
	}
}
