// Package syscall implements the syscall dispatch table (§4.6): one
// entry point per trap, each translating register arguments and a
// process's collaborator state into a call against proc/sched/signal/
// vm/fd/fs/forkexec. No teacher file covers this exact shape (biscuit
// dispatches through its own sys_* table over its forked-runtime
// syscall trap, which this core's hosted model doesn't have); the
// table layout and per-call semantics are grounded directly on
// spec.md §4.6/§4.7 and on original_source/kernel/syscall.c's
// handler-per-number structure.
package syscall

import (
	"encoding/binary"
	"sync"

	"nyx/src/console"
	"nyx/src/defs"
	"nyx/src/fd"
	"nyx/src/forkexec"
	"nyx/src/fs"
	"nyx/src/proc"
	"nyx/src/sched"
	"nyx/src/signal"
	"nyx/src/stat"
	"nyx/src/ustr"
)

// Disk is the mounted filesystem's Fs_i. Disk, Cache and Root are
// plain package variables that no code in this module assigns; the
// embedding harness sets them. Path resolution walks Lookup calls
// against Disk directly; Cache dedupes
// concurrent Get(inum) callers (execve re-opening an already-running
// binary, §4.5).
var Disk fs.Fs_i
var Cache *fs.InodeCache_t
var Root fs.Inode_i

// Dispatch runs the syscall numbered in th.Frame.Eax against the
// process owning th, with arguments in Ebx/Ecx/Edx (§6 ABI) and the
// result written back into Eax — except exit, which never returns,
// and fork/execve, whose child/new-image frame each prepare directly.
func Dispatch(th *proc.Thread_t) {
	p, ok := proc.Procs.Get(th.Pid)
	if !ok {
		return
	}
	num := int32(th.Frame.Eax)
	a1, a2, a3 := th.Frame.Ebx, th.Frame.Ecx, th.Frame.Edx

	switch num {
	case defs.SYS_SIGRETURN:
		setReturn(th, 0, signal.Sigreturn(th, p.As, &th.Frame))
	case defs.SYS_EXIT:
		doExit(p, th, int(int32(a1)))
		return
	case defs.SYS_WAITPID:
		pid, err := doWaitpid(p, th, int(int32(a1)), a2, int(a3))
		setReturn(th, pid, err)
	case defs.SYS_ALARM:
		setReturn(th, doAlarm(p, int(a1)), 0)
	case defs.SYS_KILL:
		setReturn(th, 0, doKill(p, int(int32(a1)), defs.Signo_t(a2)))
	case defs.SYS_SIGNAL:
		setReturn(th, 0, doSignal(p, defs.Signo_t(a1), uintptr(a2)))
	case defs.SYS_READ:
		n, err := doRead(p, int(a1), a2, int(a3))
		setReturn(th, n, err)
	case defs.SYS_WRITE:
		n, err := doWrite(p, int(a1), a2, int(a3))
		setReturn(th, n, err)
	case defs.SYS_OPEN:
		fdnum, err := doOpen(p, a1, int(a2), int(a3))
		setReturn(th, fdnum, err)
	case defs.SYS_CLOSE:
		setReturn(th, 0, doClose(p, int(a1)))
	case defs.SYS_DUP:
		nfd, err := doDup(p, int(a1))
		setReturn(th, nfd, err)
	case defs.SYS_GETPID:
		setReturn(th, int(p.Pid), 0)
	case defs.SYS_GETPPID:
		setReturn(th, int(p.Ppid), 0)
	case defs.SYS_EXECVE:
		doExecve(p, th, a1)
	case defs.SYS_FORK:
		doFork(p, th)
	default:
		setReturn(th, 0, -defs.ENOSYS)
	}
}

// setReturn writes val (success) or err, already a negative errno
// (failure), into the accumulator per the ABI (§6).
func setReturn(th *proc.Thread_t, val int, err defs.Err_t) {
	if err != 0 {
		th.Frame.Eax = uint32(int32(err))
		return
	}
	th.Frame.Eax = uint32(int32(val))
}

// selectorMatches implements the pid-selector shape waitpid and kill
// both use (§4.6): -1 any, 0 same pgid as caller, >0 exact pid, <-1
// the named pgid.
func selectorMatches(selector int, target *proc.Proc_t, caller *proc.Proc_t) bool {
	switch {
	case selector == -1:
		return true
	case selector == 0:
		return target.Pgid == caller.Pgid
	case selector > 0:
		return target.Pid == defs.Pid_t(selector)
	default:
		return target.Pgid == defs.Pid_t(-selector)
	}
}

// doExit implements syscall 0 (§4.6, §4.3): quiesce peer threads,
// free address space, become a zombie, reparent children to init and
// notify the real parent, then retire the calling thread for good.
func doExit(p *proc.Proc_t, th *proc.Thread_t, status int) {
	sched.StopOtherThreads(p, th)
	p.As.FreeProcessMemory()
	p.Lock()
	p.ExitStatus = defs.WExitStatus(uint8(status))
	p.State = proc.PZombie
	p.Unlock()
	proc.Procs.Reparent(p.Pid)
	if parent, ok := proc.Procs.Get(p.Ppid); ok {
		signal.SendProcSignal(parent, defs.SIGCHLD)
	}
	sched.StopThread(th)
}

// doWaitpid implements syscall 1 (§4.6): block interruptibly in a
// loop scanning children matching selector, returning ECHILD if none
// match, EINTR on signal, or the zombie's pid and exit status.
func doWaitpid(p *proc.Proc_t, th *proc.Thread_t, selector int, wstatusVA uint32, options int) (int, defs.Err_t) {
	for {
		matched := false
		for _, c := range proc.Procs.Children(p.Pid) {
			if !selectorMatches(selector, c, p) {
				continue
			}
			matched = true
			c.Lock()
			if c.State != proc.PZombie {
				c.Unlock()
				continue
			}
			status, pid := c.ExitStatus, c.Pid
			c.Unlock()
			if wstatusVA != 0 {
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], uint32(int32(status)))
				if err := p.As.CopyOut(wstatusVA, buf[:]); err != 0 {
					return 0, err
				}
			}
			proc.Procs.FreeProc(pid)
			return int(pid), 0
		}
		if !matched {
			return 0, -defs.ECHILD
		}
		if options&defs.WNOHANG != 0 {
			return 0, 0
		}
		sched.BlockInterruptible(th)
		if signal.Interrupted(th, p) {
			return 0, -defs.EINTR
		}
	}
}

// doAlarm implements syscall 2 (§4.6): store the new remaining ticks
// at 100Hz resolution, return the previous value rounded to seconds.
func doAlarm(p *proc.Proc_t, seconds int) int {
	p.Lock()
	defer p.Unlock()
	old := (p.AlarmTicks + 99) / 100
	p.AlarmTicks = seconds * 100
	return old
}

// doKill implements syscall 3 (§4.6, §4.4 permission check).
func doKill(p *proc.Proc_t, selector int, sig defs.Signo_t) defs.Err_t {
	if sig == 0 || sig >= defs.NSIG {
		return -defs.EINVAL
	}
	matched := false
	for _, t := range proc.Procs.LiveProcs() {
		if !selectorMatches(selector, t, p) {
			continue
		}
		matched = true
		if !signal.CanKill(p, t, sig) {
			return -defs.EPERM
		}
		signal.SendProcSignal(t, sig)
	}
	if !matched {
		return -defs.ESRCH
	}
	return 0
}

// doSignal implements syscall 4 (§4.6): install a disposition for sig,
// rejecting the two signals that can't be caught or ignored.
func doSignal(p *proc.Proc_t, sig defs.Signo_t, handler uintptr) defs.Err_t {
	if sig == defs.SIGKILL || sig == defs.SIGSTOP || sig == 0 || sig >= defs.NSIG {
		return -defs.EINVAL
	}
	p.Lock()
	p.Sigdisp[sig] = defs.Sigdisp_t(handler)
	p.Unlock()
	return 0
}

// doFork implements syscall 12 (§4.6, §4.5): the parent thread
// receives the child's pid; the child thread's own frame was already
// prepared with eax=0 by forkexec.Fork.
func doFork(p *proc.Proc_t, th *proc.Thread_t) {
	child, err := forkexec.Fork(p, th)
	if err != 0 {
		setReturn(th, 0, err)
		return
	}
	setReturn(th, int(child.Pid), 0)
}

// doExecve implements syscall 11 (§4.6, §4.5). On success the frame
// is rewritten in place by forkexec.Execve to resume at the new
// image's entry point; only failure writes a return value.
func doExecve(p *proc.Proc_t, th *proc.Thread_t, pathVA uint32) {
	path, err := p.As.CopyInString(pathVA, 256)
	if err != 0 {
		setReturn(th, 0, err)
		return
	}
	ino, err := resolvePath(p, ustr.Ustr(path))
	if err != 0 {
		setReturn(th, 0, err)
		return
	}
	if err := forkexec.Execve(p, th, ino); err != 0 {
		setReturn(th, 0, err)
	}
}

// resolvePath walks path's components against Disk.Lookup, starting
// from Root (§4.7's path resolution, used by open and execve). It
// canonicalizes against the caller's cwd first so "." and ".." never
// reach Lookup.
func resolvePath(p *proc.Proc_t, path ustr.Ustr) (fs.Inode_i, defs.Err_t) {
	canon := p.Cwd.Canonicalpath(path)
	cur := Root
	start := 1
	for i := 1; i <= len(canon); i++ {
		if i < len(canon) && canon[i] != '/' {
			continue
		}
		if i > start {
			name := string(canon[start:i])
			next, err := Disk.Lookup(cur, name)
			if err != 0 {
				return nil, err
			}
			cur = next
		}
		start = i + 1
	}
	return cur, 0
}

// inodeFile adapts an fs.Inode_i into the fd.Fdops_i a descriptor
// table entry needs, releasing the inode cache reference on close.
type inodeFile struct{ ino fs.Inode_i }

func (f *inodeFile) Read(dst []byte, offset int) (int, defs.Err_t) {
	return f.ino.Read(dst, offset)
}
func (f *inodeFile) Write(src []byte, offset int) (int, defs.Err_t) {
	return f.ino.Write(src, offset)
}
func (f *inodeFile) Close() defs.Err_t {
	Cache.Put(f.ino)
	return 0
}

// ttyBufSize bounds each tty minor device's input/output rings to a
// single physical page (circbuf.Cb_init's own limit).
const ttyBufSize = 4096

var ttyMu sync.Mutex
var ttys = map[int]*console.TTY_t{}

// ttyDev returns the D_TTY minor device numbered minor, creating it on
// first open (§4.7, §6 D_TTY).
func ttyDev(minor int) (*console.TTY_t, defs.Err_t) {
	ttyMu.Lock()
	defer ttyMu.Unlock()
	if t, ok := ttys[minor]; ok {
		return t, 0
	}
	t, err := console.NewTTY(ttyBufSize)
	if err != 0 {
		return nil, err
	}
	ttys[minor] = t
	return t, 0
}

// openFops resolves ino to the fd.Fdops_i a descriptor slot should
// hold: an ordinary file routes straight through, a character-device
// inode is routed to the matching minor device behind the major's
// multiplexer (§2 "wire to inode cache and character device
// multiplexer", §4.7). ino's cache reference is released here for
// char devices, since the multiplexer — not the inode — now owns the
// open fd's lifetime.
func openFops(ino fs.Inode_i) (fd.Fdops_i, defs.Err_t) {
	var st stat.Stat_t
	if err := ino.Stat(&st); err != 0 {
		Cache.Put(ino)
		return nil, err
	}
	if st.Mode()&stat.IFMT != stat.IFCHR {
		return &inodeFile{ino}, 0
	}
	maj, min := defs.Unmkdev(defs.Dev_t(st.Rdev()))
	Cache.Put(ino)
	switch defs.Dev_t(maj) {
	case defs.D_TTY:
		return ttyDev(min)
	default:
		return nil, -defs.ENXIO
	}
}

// doOpen implements syscall 7 (§4.7): resolve path, reject invalid
// access-mode bits, reserve a descriptor table slot.
func doOpen(p *proc.Proc_t, pathVA uint32, flags, mode int) (int, defs.Err_t) {
	path, err := p.As.CopyInString(pathVA, 256)
	if err != 0 {
		return 0, err
	}
	accmode := flags & defs.O_ACCMODE
	if accmode != defs.O_RDONLY && accmode != defs.O_WRONLY && accmode != defs.O_RDWR {
		return 0, -defs.EINVAL
	}
	ino, err := resolvePath(p, ustr.Ustr(path))
	if err != 0 {
		return 0, err
	}
	fops, err := openFops(ino)
	if err != 0 {
		return 0, err
	}

	p.Lock()
	defer p.Unlock()
	slot := -1
	for i, f := range p.Fdtable {
		if f == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		fops.Close()
		return 0, -defs.EMFILE
	}
	perms := fd.FD_READ
	switch accmode {
	case defs.O_WRONLY:
		perms = fd.FD_WRITE
	case defs.O_RDWR:
		perms = fd.FD_READ | fd.FD_WRITE
	}
	p.Fdtable[slot] = &proc.OpenFile_t{Fd: &fd.Fd_t{Fops: fops, Perms: perms}, RefCount: 1}
	return slot, 0
}

// getOpenFile looks up fdnum in p's descriptor table, checking it
// carries the needed permission bit.
func getOpenFile(p *proc.Proc_t, fdnum int, need int) (*proc.OpenFile_t, defs.Err_t) {
	if fdnum < 0 || fdnum >= proc.OpenMax {
		return nil, -defs.EBADF
	}
	p.Lock()
	of := p.Fdtable[fdnum]
	p.Unlock()
	if of == nil {
		return nil, -defs.EBADF
	}
	if of.Fd.Perms&need == 0 {
		return nil, -defs.EBADF
	}
	return of, 0
}

// doRead implements syscall 5 (§4.7).
func doRead(p *proc.Proc_t, fdnum int, bufVA uint32, n int) (int, defs.Err_t) {
	of, err := getOpenFile(p, fdnum, fd.FD_READ)
	if err != 0 {
		return 0, err
	}
	buf := make([]byte, n)
	of.Lock()
	nn, rerr := of.Fd.Fops.Read(buf, of.Position)
	if rerr == 0 {
		of.Position += nn
	}
	of.Unlock()
	if rerr != 0 {
		return 0, rerr
	}
	if err := p.As.CopyOut(bufVA, buf[:nn]); err != 0 {
		return 0, err
	}
	return nn, 0
}

// doWrite implements syscall 6 (§4.7).
func doWrite(p *proc.Proc_t, fdnum int, bufVA uint32, n int) (int, defs.Err_t) {
	of, err := getOpenFile(p, fdnum, fd.FD_WRITE)
	if err != 0 {
		return 0, err
	}
	buf := make([]byte, n)
	if err := p.As.CopyIn(bufVA, buf); err != 0 {
		return 0, err
	}
	of.Lock()
	nn, werr := of.Fd.Fops.Write(buf, of.Position)
	if werr == 0 {
		of.Position += nn
	}
	of.Unlock()
	if werr != 0 {
		return 0, werr
	}
	return nn, 0
}

// doClose implements syscall 8 (§4.7): decrements the open-file
// entry's refcount, closing the underlying description only once the
// last descriptor referencing it is gone.
func doClose(p *proc.Proc_t, fdnum int) defs.Err_t {
	if fdnum < 0 || fdnum >= proc.OpenMax {
		return -defs.EBADF
	}
	p.Lock()
	of := p.Fdtable[fdnum]
	if of == nil {
		p.Unlock()
		return -defs.EBADF
	}
	p.Fdtable[fdnum] = nil
	p.Unlock()

	of.Lock()
	of.RefCount--
	last := of.RefCount == 0
	of.Unlock()
	if last {
		return of.Fd.Fops.Close()
	}
	return 0
}

// doDup implements syscall 9 (§4.7): aliases oldfd's open-file entry
// into the next free slot, incrementing its refcount.
func doDup(p *proc.Proc_t, oldfd int) (int, defs.Err_t) {
	if oldfd < 0 || oldfd >= proc.OpenMax {
		return 0, -defs.EBADF
	}
	p.Lock()
	defer p.Unlock()
	of := p.Fdtable[oldfd]
	if of == nil {
		return 0, -defs.EBADF
	}
	slot := -1
	for i, f := range p.Fdtable {
		if f == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, -defs.EMFILE
	}
	of.Lock()
	of.RefCount++
	of.Unlock()
	p.Fdtable[slot] = of
	return slot, 0
}
