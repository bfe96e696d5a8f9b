package syscall

import (
	"testing"

	"nyx/src/console"
	"nyx/src/defs"
	"nyx/src/fs"
	"nyx/src/proc"
	"nyx/src/stat"
)

// fakeCharInode stands in for a MINIX-v1 character-device inode: its
// mode and rdev fields are all doOpen's multiplexer ever inspects.
type fakeCharInode struct{ maj, min int }

func (f *fakeCharInode) Read(dst []byte, offset int) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeCharInode) Write(src []byte, offset int) (int, defs.Err_t) { return 0, 0 }
func (f *fakeCharInode) Size() int                                      { return 0 }
func (f *fakeCharInode) Stat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.IFCHR)
	st.Wrdev(uint(defs.Mkdev(f.maj, f.min)))
	return 0
}

// fakeRegInode stands in for an ordinary file.
type fakeRegInode struct{}

func (fakeRegInode) Read(dst []byte, offset int) (int, defs.Err_t)  { return 0, 0 }
func (fakeRegInode) Write(src []byte, offset int) (int, defs.Err_t) { return 0, 0 }
func (fakeRegInode) Size() int                                      { return 0 }
func (fakeRegInode) Stat(st *stat.Stat_t) defs.Err_t                { st.Wmode(stat.IFREG); return 0 }

// fakeFs's Put is the only method openFops's char-device path touches.
type fakeFs struct{}

func (fakeFs) Mount(disk fs.Disk_i) (fs.Inode_i, defs.Err_t)           { return nil, 0 }
func (fakeFs) Lookup(dir fs.Inode_i, name string) (fs.Inode_i, defs.Err_t) { return nil, 0 }
func (fakeFs) Get(inum int) (fs.Inode_i, defs.Err_t)                   { return nil, 0 }
func (fakeFs) Put(ino fs.Inode_i)                                      {}

func TestOpenFopsRoutesTTYToConsole(t *testing.T) {
	Cache = fs.NewInodeCache(fakeFs{})
	fops, err := openFops(&fakeCharInode{maj: int(defs.D_TTY), min: 3})
	if err != 0 {
		t.Fatalf("openFops: %v", err)
	}
	if _, ok := fops.(*console.TTY_t); !ok {
		t.Fatalf("expected *console.TTY_t, got %T", fops)
	}
}

func TestOpenFopsSameMinorReusesTTY(t *testing.T) {
	Cache = fs.NewInodeCache(fakeFs{})
	a, err := openFops(&fakeCharInode{maj: int(defs.D_TTY), min: 7})
	if err != 0 {
		t.Fatalf("openFops: %v", err)
	}
	b, err := openFops(&fakeCharInode{maj: int(defs.D_TTY), min: 7})
	if err != 0 {
		t.Fatalf("openFops: %v", err)
	}
	if a.(*console.TTY_t) != b.(*console.TTY_t) {
		t.Fatal("expected the same minor device to be reused across opens")
	}
}

func TestOpenFopsUnknownMajorIsENXIO(t *testing.T) {
	Cache = fs.NewInodeCache(fakeFs{})
	_, err := openFops(&fakeCharInode{maj: 99, min: 0})
	if err != -defs.ENXIO {
		t.Fatalf("expected ENXIO, got %v", err)
	}
}

func TestOpenFopsRegularFileBypassesMultiplexer(t *testing.T) {
	fops, err := openFops(fakeRegInode{})
	if err != 0 {
		t.Fatalf("openFops: %v", err)
	}
	if _, ok := fops.(*inodeFile); !ok {
		t.Fatalf("expected *inodeFile, got %T", fops)
	}
}

func TestSelectorMatches(t *testing.T) {
	caller := &proc.Proc_t{Pid: 5, Pgid: 5}
	same := &proc.Proc_t{Pid: 6, Pgid: 5}
	other := &proc.Proc_t{Pid: 7, Pgid: 9}

	if !selectorMatches(-1, same, caller) || !selectorMatches(-1, other, caller) {
		t.Fatal("-1 should match any process")
	}
	if !selectorMatches(0, same, caller) || selectorMatches(0, other, caller) {
		t.Fatal("0 should match same pgid only")
	}
	if !selectorMatches(int(same.Pid), same, caller) || selectorMatches(int(same.Pid), other, caller) {
		t.Fatal("positive selector should match exact pid only")
	}
	if !selectorMatches(-9, other, caller) || selectorMatches(-9, same, caller) {
		t.Fatal("negative selector should match the named pgid only")
	}
}

func TestSetReturn(t *testing.T) {
	th := &proc.Thread_t{}
	setReturn(th, 42, 0)
	if th.Frame.Eax != 42 {
		t.Fatalf("success: eax = %d, want 42", th.Frame.Eax)
	}
	setReturn(th, 0, -defs.EBADF)
	if int32(th.Frame.Eax) != -int32(defs.EBADF) {
		t.Fatalf("failure: eax = %#x, want -EBADF", th.Frame.Eax)
	}
}

func TestDoAlarmReturnsPreviousRemaining(t *testing.T) {
	p := &proc.Proc_t{}
	if old := doAlarm(p, 10); old != 0 {
		t.Fatalf("first alarm: old = %d, want 0", old)
	}
	p.AlarmTicks = 250 // 2.5s left, rounds up to 3s
	if old := doAlarm(p, 0); old != 3 {
		t.Fatalf("second alarm: old = %d, want 3", old)
	}
	if p.AlarmTicks != 0 {
		t.Fatalf("alarm(0) should cancel: AlarmTicks = %d", p.AlarmTicks)
	}
}

func TestDoSignalRejectsUncatchable(t *testing.T) {
	p := &proc.Proc_t{}
	if err := doSignal(p, defs.SIGKILL, 0x1000); err != -defs.EINVAL {
		t.Fatalf("SIGKILL: err = %v, want EINVAL", err)
	}
	if err := doSignal(p, defs.SIGSTOP, 0x1000); err != -defs.EINVAL {
		t.Fatalf("SIGSTOP: err = %v, want EINVAL", err)
	}
	if err := doSignal(p, defs.SIGUSR1, 0x1000); err != 0 {
		t.Fatalf("SIGUSR1: err = %v, want success", err)
	}
	if p.Sigdisp[defs.SIGUSR1] != 0x1000 {
		t.Fatalf("disposition not recorded: got %#x", p.Sigdisp[defs.SIGUSR1])
	}
}

func TestDoKillRejectsOutOfRangeSignal(t *testing.T) {
	caller := &proc.Proc_t{Pid: 1, Uid: 0}
	if err := doKill(caller, -1, 0); err != -defs.EINVAL {
		t.Fatalf("sig 0: err = %v, want EINVAL", err)
	}
	if err := doKill(caller, -1, defs.NSIG); err != -defs.EINVAL {
		t.Fatalf("sig NSIG: err = %v, want EINVAL", err)
	}
}
