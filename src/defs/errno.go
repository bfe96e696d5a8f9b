package defs

// Err_t is a kernel error code: zero on success, otherwise -errno. The
// syscall ABI (§6) returns Err_t values directly in the accumulator, so
// every fallible kernel entry point returns one instead of the stdlib
// error interface.
type Err_t int

// Errno values. Only the subset the core's syscalls and fault paths
// actually produce (§7) is defined; this is not a POSIX errno.h port.
const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	ENXIO        Err_t = 6
	E2BIG        Err_t = 7
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EFAULT       Err_t = 14
	ENOTBLK      Err_t = 15
	EBUSY        Err_t = 16
	EEXIST       Err_t = 17
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	ENFILE       Err_t = 23
	EMFILE       Err_t = 24
	ENOTTY       Err_t = 25
	ENOSPC       Err_t = 28
	ESPIPE       Err_t = 29
	ENAMETOOLONG Err_t = 36
	ENOSYS       Err_t = 38
	ENOHEAP      Err_t = 39 // kernel-internal: resource bound exhausted (§5)
)

// String names an errno for diagnostics; it never appears in a syscall
// return value.
func (e Err_t) String() string {
	switch e {
	case 0:
		return "ok"
	case EPERM:
		return "EPERM"
	case ENOENT:
		return "ENOENT"
	case ESRCH:
		return "ESRCH"
	case EINTR:
		return "EINTR"
	case EIO:
		return "EIO"
	case ENXIO:
		return "ENXIO"
	case E2BIG:
		return "E2BIG"
	case EBADF:
		return "EBADF"
	case ECHILD:
		return "ECHILD"
	case EAGAIN:
		return "EAGAIN"
	case ENOMEM:
		return "ENOMEM"
	case EFAULT:
		return "EFAULT"
	case ENOTBLK:
		return "ENOTBLK"
	case EBUSY:
		return "EBUSY"
	case EEXIST:
		return "EEXIST"
	case ENOTDIR:
		return "ENOTDIR"
	case EISDIR:
		return "EISDIR"
	case EINVAL:
		return "EINVAL"
	case ENFILE:
		return "ENFILE"
	case EMFILE:
		return "EMFILE"
	case ENOTTY:
		return "ENOTTY"
	case ENOSPC:
		return "ENOSPC"
	case ESPIPE:
		return "ESPIPE"
	case ENAMETOOLONG:
		return "ENAMETOOLONG"
	case ENOSYS:
		return "ENOSYS"
	case ENOHEAP:
		return "ENOHEAP"
	default:
		return "errno(?)"
	}
}
