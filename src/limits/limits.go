// Package limits tracks system-wide resource bounds (§5): fixed-capacity
// tables never grow, so every allocator checks a limit before handing
// out a slot.
package limits

import (
	"sync/atomic"
	"unsafe"
)

// Lhits counts limit hits, for diagnostics.
var Lhits int

// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

// Syslimit_t tracks system-wide resource limits (§3 fixed-capacity
// arrays, §5 failure modes: EAGAIN/error return rather than OOM kill).
// Trimmed from the teacher's networking/futex/arp-aware version to the
// fields this core's process/thread/fd tables actually need.
type Syslimit_t struct {
	Sysprocs int          // max live processes
	Systhreads int        // max live threads, system-wide
	Pipes    Sysatomic_t  // max open pipes/circular buffers
	Mfspgs   Sysatomic_t  // additional per-page objects beyond each file's freebie
	Blocks   int          // bdev blocks available to the page pool
}

// Syslimit holds the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs:   1024,
		Systhreads: 4096,
		Pipes:      1024,
		Mfspgs:     1e4,
		Blocks:     100000,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	atomic.AddInt64(s._aptr(), n)
}

// Taken tries to decrement the limit by the provided amount, reporting
// whether it succeeded.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
