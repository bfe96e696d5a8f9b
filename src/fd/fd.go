// Package fd implements the per-process open-file descriptor table
// (§4.6: read/write/open/close/dup) and current-working-directory
// tracking. Grounded on biscuit's src/fd/fd.go.
package fd

import (
	"sync"

	"nyx/src/defs"
	"nyx/src/ustr"
)

// File descriptor permission bits.
const (
	FD_READ    = 0x1 // read permission
	FD_WRITE   = 0x2 // write permission
	FD_CLOEXEC = 0x4 // close-on-exec flag
)

// Fdops_i is the operation set every open file description implements
// (a regular file, a pipe end, a tty) — the descriptor table itself
// only needs Read/Write/Close to implement dup/close/read/write
// (§4.6); what backs a given Fdops_i is out of scope (§1). Unlike
// biscuit, where dup/fork reopen the underlying description, this
// core's open-file table entry (proc.OpenFile_t) is the one shared
// unit — dup and fork alias the same entry and bump its refcount, so
// Fdops_i itself never needs its own reopen/refcount bookkeeping.
type Fdops_i interface {
	Read(dst []byte, offset int) (int, defs.Err_t)
	Write(src []byte, offset int) (int, defs.Err_t)
	Close() defs.Err_t
}

// Fd_t represents one open file descriptor.
type Fd_t struct {
	Fops  Fdops_i // descriptor operations; a reference, not a value
	Perms int     // permission bits
}

// Close_panic closes the descriptor and panics on failure — used at
// process exit, where a close failure would indicate a kernel bug
// rather than a user error.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("fd: close failed at process teardown")
	}
}

// Cwd_t tracks a process's current working directory.
type Cwd_t struct {
	sync.Mutex // serializes concurrent chdirs
	Fd         *Fd_t
	Path       ustr.Ustr
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	return cwd.Path.Extend(p)
}

// Canonicalpath resolves p (relative or absolute) against cwd into a
// path with no "." or ".." components.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return canonicalize(cwd.Fullpath(p))
}

// canonicalize removes "." and ".." components from an absolute path.
func canonicalize(p ustr.Ustr) ustr.Ustr {
	var stack []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			comp := p[start:i]
			start = i + 1
			if len(comp) == 0 || comp.Isdot() {
				continue
			}
			if comp.Isdotdot() {
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				continue
			}
			stack = append(stack, comp)
		}
	}
	out := ustr.MkUstr()
	for _, comp := range stack {
		out = append(out, '/')
		out = append(out, comp...)
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	return out
}

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: fd, Path: ustr.MkUstrRoot()}
}
