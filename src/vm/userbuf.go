package vm

import (
	"context"

	"golang.org/x/sync/errgroup"

	"nyx/src/defs"
	"nyx/src/mem"
)

// translateLocked returns a byte slice aliasing the frame backing va,
// starting at va's in-page offset, faulting the page in first if
// necessary. Callers must hold as.Mutex. Grounded on biscuit's
// Userdmap8_inner, which does the same translate-or-fault dance under
// its own lock_pmap/unlock_pmap pair.
func (as *As_t) translateLocked(va uint32, write bool) ([]byte, defs.Err_t) {
	view, ptx, err := as.lookupPTE(va, true)
	if err != 0 {
		return nil, err
	}
	pte := view.Get(ptx)
	usable := pte&mem.PTE_P != 0 && (!write || (pte&mem.PTE_W != 0 && pte&mem.PTE_COW == 0))
	if !usable {
		if e := as.pageFaultLocked(va, write); e != 0 {
			return nil, e
		}
		pte = view.Get(ptx)
	}
	buf := mem.Physmem.Dmap(pte & mem.PTE_ADDR)
	off := va & uint32(mem.PGOFFSET)
	return buf[off:], 0
}

// CopyIn reads len(dst) bytes starting at user virtual address va into
// dst, crossing page boundaries and faulting pages in as needed.
func (as *As_t) CopyIn(va uint32, dst []byte) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	for len(dst) > 0 {
		src, err := as.translateLocked(va, false)
		if err != 0 {
			return err
		}
		n := len(dst)
		if n > len(src) {
			n = len(src)
		}
		copy(dst[:n], src[:n])
		dst = dst[n:]
		va += uint32(n)
	}
	return 0
}

// CopyOut writes src into user memory starting at va, crossing page
// boundaries and faulting (including COW-breaking) pages in as needed.
func (as *As_t) CopyOut(va uint32, src []byte) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	for len(src) > 0 {
		dst, err := as.translateLocked(va, true)
		if err != 0 {
			return err
		}
		n := len(src)
		if n > len(dst) {
			n = len(dst)
		}
		copy(dst[:n], src[:n])
		src = src[n:]
		va += uint32(n)
	}
	return 0
}

// CopyInString reads a NUL-terminated string from user memory, up to
// max bytes, mirroring biscuit's Userstr helper.
func (as *As_t) CopyInString(va uint32, max int) (string, defs.Err_t) {
	as.Lock()
	defer as.Unlock()
	buf := make([]byte, 0, 64)
	for len(buf) < max {
		src, err := as.translateLocked(va, false)
		if err != 0 {
			return "", err
		}
		for _, b := range src {
			if b == 0 {
				return string(buf), 0
			}
			buf = append(buf, b)
			if len(buf) >= max {
				return "", -defs.ENAMETOOLONG
			}
		}
		va += uint32(len(src))
	}
	return "", -defs.ENAMETOOLONG
}

// Prefault pre-populates the pages spanning [va, va+n) ahead of a bulk
// copy, so the hot copy loop in CopyIn/CopyOut doesn't pay a fault per
// page one at a time. The current page and its immediate successor are
// faulted concurrently via errgroup.Group, the same read-ahead-pair
// idiom the domain stack's demand-paging helper is built around.
func (as *As_t) Prefault(va, n uint32) defs.Err_t {
	if n == 0 {
		return 0
	}
	start := mem.PageBase(va)
	end := mem.PageBase(va+n-1) + mem.PGSIZE
	var pages []uint32
	for p := start; p < end; p += mem.PGSIZE {
		pages = append(pages, p)
	}

	for i := 0; i < len(pages); i += 2 {
		g, _ := errgroup.WithContext(context.Background())
		var e1, e2 defs.Err_t
		first := pages[i]
		g.Go(func() error {
			e1 = as.faultOne(first, false)
			return nil
		})
		if i+1 < len(pages) {
			second := pages[i+1]
			g.Go(func() error {
				e2 = as.faultOne(second, false)
				return nil
			})
		}
		g.Wait()
		if e1 != 0 {
			return e1
		}
		if e2 != 0 {
			return e2
		}
	}
	return 0
}

// faultOne takes the lock and faults a single page, for use by the
// concurrent pair in Prefault.
func (as *As_t) faultOne(va uint32, write bool) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	view, ptx, err := as.lookupPTE(va, true)
	if err != 0 {
		return err
	}
	if view.Get(ptx)&mem.PTE_P != 0 {
		return 0
	}
	return as.pageFaultLocked(va, write)
}
