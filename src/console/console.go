// Package console implements the one piece of console behavior that
// is pure data transformation rather than a hardware callback: the
// serial line-ending cooking transform (§6: "\n -> \r\n cooking") and
// the ring-buffered character device (§2: "File/FD table ... wire to
// ... character device multiplexer", §4.7) sitting behind it. The
// VGA text-memory writer, CRTC cursor ports and UART itself are
// interrupt-driven collaborators out of scope (§1); Feed/Drain are
// the seams a real driver would call into and read back from.
package console

import (
	"golang.org/x/text/transform"

	"nyx/src/circbuf"
	"nyx/src/defs"
)

// crlf is a transform.Transformer cooking '\n' into "\r\n".
type crlf struct{ transform.NopResetter }

func (crlf) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		need := 1
		if b == '\n' {
			need = 2
		}
		if nDst+need > len(dst) {
			if nSrc == 0 {
				return nDst, nSrc, transform.ErrShortDst
			}
			return nDst, nSrc, nil
		}
		if b == '\n' {
			dst[nDst] = '\r'
			nDst++
		}
		dst[nDst] = b
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}

// Cook returns the \n -> \r\n cooking transform (§6).
func Cook() transform.Transformer { return crlf{} }

// cook runs b through Cook(), for TTY_t's write path.
func cook(b []byte) []byte {
	out, _, err := transform.Bytes(Cook(), b)
	if err != nil {
		return b
	}
	return out
}

// byteCursor adapts a plain, position-tracked byte slice to
// circbuf.Userio_i — TTY_t operates on bytes the syscall layer has
// already copied to/from user memory, not on a live address space.
type byteCursor struct {
	b   []byte
	pos int
}

func (c *byteCursor) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, c.b[c.pos:])
	c.pos += n
	return n, 0
}

func (c *byteCursor) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(c.b[c.pos:], src)
	c.pos += n
	return n, 0
}

// TTY_t is one minor device behind major D_TTY's multiplexer. Input
// arrives via Feed (standing in for a keyboard/UART IRQ handler);
// output is cooked before landing in a ring a hosted harness drains
// via Drain (standing in for the VGA/serial write path).
type TTY_t struct {
	in  circbuf.Circbuf_t
	out circbuf.Circbuf_t
}

// NewTTY allocates a minor device with bufsz-byte input and output rings.
func NewTTY(bufsz int) (*TTY_t, defs.Err_t) {
	t := &TTY_t{}
	if err := t.in.Cb_init(bufsz); err != 0 {
		return nil, err
	}
	if err := t.out.Cb_init(bufsz); err != 0 {
		return nil, err
	}
	return t, 0
}

// Feed injects bytes as if a hardware input driver had received them.
func (t *TTY_t) Feed(b []byte) (int, defs.Err_t) {
	return t.in.Copyin(&byteCursor{b: b})
}

// Drain returns whatever cooked output has accumulated, for a hosted
// harness standing in for the real VGA/UART write.
func (t *TTY_t) Drain() ([]byte, defs.Err_t) {
	cur := &byteCursor{b: make([]byte, t.out.Used())}
	n, err := t.out.Copyout(cur)
	return cur.b[:n], err
}

// Read implements fd.Fdops_i against the input ring (§4.7).
func (t *TTY_t) Read(dst []byte, offset int) (int, defs.Err_t) {
	return t.in.Copyout_n(&byteCursor{b: dst}, len(dst))
}

// Write implements fd.Fdops_i: cooks src, then buffers it on the
// output ring (§4.7, §6).
func (t *TTY_t) Write(src []byte, offset int) (int, defs.Err_t) {
	cooked := cook(src)
	if _, err := t.out.Copyin(&byteCursor{b: cooked}); err != 0 {
		return 0, err
	}
	return len(src), 0
}

// Close is a no-op: an in-memory ring device has nothing to release.
func (t *TTY_t) Close() defs.Err_t { return 0 }
