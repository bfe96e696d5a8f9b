// Package circbuf implements a single-reader/single-writer byte ring
// buffer backing TTY-style character devices and the read end of a
// pipe (§4.7). Not safe for concurrent use; callers serialize access
// themselves (the fd layer holds a per-descriptor lock).
package circbuf

import (
	"nyx/src/defs"
	"nyx/src/mem"
)

// Userio_i is the minimal user-memory copy surface circbuf needs from
// its caller — a read or write syscall handler that already knows how
// to move bytes to and from the calling process's address space.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
}

// Circbuf_t is a circular buffer over one physical page, allocated
// lazily on first use so an idle pipe or tty costs nothing.
type Circbuf_t struct {
	Buf   []uint8
	bufsz int
	head  int
	tail  int
	p_pg  mem.Pa_t
}

// Bufsz returns the configured buffer size.
func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

// Cb_init configures the buffer's size; the backing page is allocated
// lazily on first read or write.
func (cb *Circbuf_t) Cb_init(sz int) defs.Err_t {
	if sz <= 0 || sz > mem.PGSIZE {
		panic("bad circbuf size")
	}
	cb.bufsz = sz
	cb.head, cb.tail = 0, 0
	return 0
}

// Cb_release drops the reference to the backing page.
func (cb *Circbuf_t) Cb_release() {
	if cb.Buf == nil {
		return
	}
	if mem.Physmem.Refdown(cb.p_pg) {
		mem.Physmem.Push(cb.p_pg)
	}
	cb.p_pg = 0
	cb.Buf = nil
	cb.head, cb.tail = 0, 0
}

// Cb_ensure allocates the backing page on first use.
func (cb *Circbuf_t) Cb_ensure() defs.Err_t {
	if cb.Buf != nil {
		return 0
	}
	if cb.bufsz == 0 {
		panic("not initted")
	}
	pa, ok := mem.Physmem.Pop()
	if !ok {
		return -defs.ENOMEM
	}
	cb.p_pg = pa
	cb.Buf = mem.Physmem.Dmap(pa)[:cb.bufsz]
	cb.head, cb.tail = 0, 0
	return 0
}

// Full returns true when the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == cb.bufsz
}

// Empty reports whether the buffer contains any data.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

// Left returns the remaining capacity in bytes.
func (cb *Circbuf_t) Left() int {
	return cb.bufsz - (cb.head - cb.tail)
}

// Used returns the current number of bytes in the buffer.
func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

// Copyin reads from src into the circular buffer.
func (cb *Circbuf_t) Copyin(src Userio_i) (int, defs.Err_t) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	if cb.Full() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if ti <= hi {
		dst := cb.Buf[hi:]
		wrote, err := src.Uioread(dst)
		if err != 0 {
			return 0, err
		}
		if wrote != len(dst) {
			cb.head += wrote
			return wrote, 0
		}
		c += wrote
		hi = (cb.head + wrote) % cb.bufsz
	}
	if hi > ti {
		panic("circbuf: bad wraparound invariant")
	}
	dst := cb.Buf[hi:ti]
	wrote, err := src.Uioread(dst)
	c += wrote
	if err != 0 {
		return c, err
	}
	cb.head += c
	return c, 0
}

// Copyout writes the entire buffer contents to dst.
func (cb *Circbuf_t) Copyout(dst Userio_i) (int, defs.Err_t) {
	return cb.Copyout_n(dst, 0)
}

// Copyout_n writes up to max bytes of the buffer to dst (max == 0
// means unbounded).
func (cb *Circbuf_t) Copyout_n(dst Userio_i, max int) (int, defs.Err_t) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	if cb.Empty() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if hi <= ti {
		src := cb.Buf[ti:]
		if max != 0 && max < len(src) {
			src = src[:max]
		}
		wrote, err := dst.Uiowrite(src)
		if err != 0 {
			return 0, err
		}
		if wrote != len(src) || wrote == max {
			cb.tail += wrote
			return wrote, 0
		}
		c += wrote
		if max != 0 {
			max -= c
		}
		ti = (cb.tail + wrote) % cb.bufsz
	}
	if ti > hi {
		panic("circbuf: bad wraparound invariant")
	}
	src := cb.Buf[ti:hi]
	if max != 0 && max < len(src) {
		src = src[:max]
	}
	wrote, err := dst.Uiowrite(src)
	if err != 0 {
		return 0, err
	}
	c += wrote
	cb.tail += c
	return c, 0
}

// Advhead advances the head index, exposing bytes already written
// directly into Buf to readers.
func (cb *Circbuf_t) Advhead(sz int) {
	if cb.Full() || cb.Left() < sz {
		panic("circbuf: advancing past capacity")
	}
	cb.head += sz
}

// Advtail advances the tail index after data has been consumed
// directly from Buf.
func (cb *Circbuf_t) Advtail(sz int) {
	if sz != 0 && (cb.Empty() || cb.Used() < sz) {
		panic("circbuf: advancing past available data")
	}
	cb.tail += sz
}
