// Package vm implements the per-process address space: page tables,
// memory-map records and the page-fault policy that ties them together
// (§4.2, §4.3). Grounded on biscuit's src/vm/as.go (As_t, Sys_pgfault),
// generalized from biscuit's VANON/VFILE/VSANON region kinds to
// spec.md's READONLY/WRITABLE/STACK/SHARED flag model and from its
// amd64 4-level unsafe.Pointer-walked page tables to the i386 2-level
// PmapView scheme in package mem.
package vm

import (
	"sync"

	"nyx/src/defs"
	"nyx/src/mem"
)

// As_t is one process's address space: a page directory frame, the
// page-table frames hung off it, and the memory-map record array that
// drives demand paging. All entry points serialize on the embedded
// mutex — mm_lock in biscuit's naming — because the page-fault handler
// and concurrent syscalls against the same address space can race
// (§4.2 DESIGN NOTES).
type As_t struct {
	sync.Mutex
	pdirPA  mem.Pa_t
	ptabs   map[int]mem.Pa_t // page-directory index -> page-table frame
	regions Vmregion_t
}

// NewAS allocates a fresh, empty address space: one page directory
// frame and no page tables or mappings yet.
func NewAS() (*As_t, defs.Err_t) {
	pdirPA, ok := mem.Physmem.Pop()
	if !ok {
		return nil, -defs.ENOMEM
	}
	return &As_t{
		pdirPA: pdirPA,
		ptabs:  make(map[int]mem.Pa_t),
	}, 0
}

func (as *As_t) dir() mem.PmapView {
	return mem.ViewPmap(mem.Physmem.Dmap(as.pdirPA))
}

// ensurePtab returns the page table for pdx, allocating and linking a
// fresh frame into the page directory on first use.
func (as *As_t) ensurePtab(pdx int) (mem.PmapView, defs.Err_t) {
	if pa, ok := as.ptabs[pdx]; ok {
		return mem.ViewPmap(mem.Physmem.Dmap(pa)), 0
	}
	pa, ok := mem.Physmem.Pop()
	if !ok {
		return mem.PmapView{}, -defs.ENOMEM
	}
	as.ptabs[pdx] = pa
	as.dir().Set(pdx, pa|mem.PTE_P|mem.PTE_W|mem.PTE_U)
	return mem.ViewPmap(mem.Physmem.Dmap(pa)), 0
}

// ptab returns the page table for pdx without allocating one.
func (as *As_t) ptab(pdx int) (mem.PmapView, bool) {
	pa, ok := as.ptabs[pdx]
	if !ok {
		return mem.PmapView{}, false
	}
	return mem.ViewPmap(mem.Physmem.Dmap(pa)), true
}

// lookupPTE returns the page-table view and the entry index for va,
// allocating the backing page table when create is set.
func (as *As_t) lookupPTE(va uint32, create bool) (mem.PmapView, int, defs.Err_t) {
	pdx, ptx := mem.Pdx(va), mem.Ptx(va)
	if create {
		view, err := as.ensurePtab(pdx)
		if err != 0 {
			return mem.PmapView{}, 0, err
		}
		return view, ptx, 0
	}
	view, ok := as.ptab(pdx)
	if !ok {
		return mem.PmapView{}, 0, -defs.EFAULT
	}
	return view, ptx, 0
}

// Map installs a PTE for vaddr pointing at paddr with flags, allocating
// the containing page table on demand.
func (as *As_t) Map(vaddr uint32, paddr mem.Pa_t, flags mem.Pa_t) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	view, ptx, err := as.lookupPTE(vaddr, true)
	if err != 0 {
		return err
	}
	view.Set(ptx, (paddr&mem.PTE_ADDR)|flags|mem.PTE_P)
	return 0
}

// AllocUser pops a fresh frame from the pool and maps it at vaddr,
// returning the frame on success and releasing it again on mapping
// failure so the pool never leaks a page nobody can reach.
func (as *As_t) AllocUser(vaddr uint32, flags mem.Pa_t) (mem.Pa_t, defs.Err_t) {
	pa, ok := mem.Physmem.Pop()
	if !ok {
		return 0, -defs.ENOMEM
	}
	if err := as.Map(vaddr, pa, flags); err != 0 {
		mem.Physmem.Push(pa)
		return 0, err
	}
	return pa, 0
}

// AllocKernel allocates a frame without mapping it into the user
// region of the address space, for kernel-side scratch use (e.g. a
// freshly-built trampoline frame); it returns the frame's physical
// address directly rather than a virtual one since this core has no
// separate kernel virtual-address window (§1 scope: single address
// space model, no higher-half mapping to model).
func (as *As_t) AllocKernel() (mem.Pa_t, defs.Err_t) {
	pa, ok := mem.Physmem.Pop()
	if !ok {
		return 0, -defs.ENOMEM
	}
	return pa, 0
}

// Free unmaps vaddr and pushes its frame back to the pool unconditionally.
// Callers must know the page isn't COW-shared; free_process_memory, which
// doesn't know that, uses releasePage instead.
func (as *As_t) Free(vaddr uint32) {
	as.Lock()
	defer as.Unlock()
	view, ptx, err := as.lookupPTE(vaddr, false)
	if err != 0 {
		return
	}
	pte := view.Get(ptx)
	if pte&mem.PTE_P == 0 {
		return
	}
	view.Set(ptx, 0)
	mem.Physmem.Push(pte & mem.PTE_ADDR)
}

// releasePage drops one reference to a present page during a bulk
// unmap: push it back to the pool if this was the sole owner,
// otherwise just decrement the refcount and leave the frame for its
// other owners (§4.2 free_process_memory).
func releasePage(pa mem.Pa_t) {
	if mem.Physmem.Refcnt(pa) == 0 {
		mem.Physmem.Push(pa)
		return
	}
	mem.Physmem.Refdown(pa)
}

// PhysOf returns the physical frame backing vaddr, if present.
func (as *As_t) PhysOf(vaddr uint32) (mem.Pa_t, bool) {
	as.Lock()
	defer as.Unlock()
	view, ptx, err := as.lookupPTE(vaddr, false)
	if err != 0 {
		return 0, false
	}
	pte := view.Get(ptx)
	if pte&mem.PTE_P == 0 {
		return 0, false
	}
	return pte & mem.PTE_ADDR, true
}

// PteFlags returns the flag bits of vaddr's PTE, if present.
func (as *As_t) PteFlags(vaddr uint32) (mem.Pa_t, bool) {
	as.Lock()
	defer as.Unlock()
	view, ptx, err := as.lookupPTE(vaddr, false)
	if err != 0 {
		return 0, false
	}
	pte := view.Get(ptx)
	if pte&mem.PTE_P == 0 {
		return 0, false
	}
	return pte &^ mem.PTE_ADDR, true
}

// SetWritable flips the writable bit of vaddr's PTE.
func (as *As_t) SetWritable(vaddr uint32, w bool) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	view, ptx, err := as.lookupPTE(vaddr, false)
	if err != 0 {
		return err
	}
	pte := view.Get(ptx)
	if pte&mem.PTE_P == 0 {
		return -defs.EFAULT
	}
	if w {
		pte |= mem.PTE_W
	} else {
		pte &^= mem.PTE_W
	}
	view.Set(ptx, pte)
	return 0
}

// AddMapping records a new memory-map record (§3, §4.3 mmap-style
// entry points hand their result to this).
func (as *As_t) AddMapping(base, size uint32, flags MMFlag, fileOffset, fileSize int, inode Backing_i) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	return as.regions.Insert(&Mmap_t{
		Base:       base,
		Size:       size,
		Flags:      flags,
		FileOffset: fileOffset,
		FileSize:   fileSize,
		Inode:      inode,
	})
}

// Regions exposes the memory-map record array read-only, for callers
// that need to inspect it (diagnostics, process exit accounting).
func (as *As_t) Regions() []*Mmap_t {
	as.Lock()
	defer as.Unlock()
	return as.regions.All()
}

// FreeProcessMemory tears down the whole address space at process exit
// (§4.2): every present page in every mapping is released according to
// its refcount, every page-table frame is pushed back, and the page
// directory frame itself is pushed last.
func (as *As_t) FreeProcessMemory() {
	as.Lock()
	defer as.Unlock()
	for _, rec := range as.regions.All() {
		for va := rec.Base; va < rec.End(); va += mem.PGSIZE {
			view, ptx, err := as.lookupPTE(va, false)
			if err != 0 {
				continue
			}
			pte := view.Get(ptx)
			if pte&mem.PTE_P == 0 {
				continue
			}
			view.Set(ptx, 0)
			releasePage(pte & mem.PTE_ADDR)
		}
	}
	for pdx, pa := range as.ptabs {
		mem.Physmem.Push(pa)
		delete(as.ptabs, pdx)
	}
	as.regions.Clear()
	mem.Physmem.Push(as.pdirPA)
	as.pdirPA = 0
}

// ForkInto populates child (a freshly-allocated, empty address space)
// with a copy-on-write clone of as (§4.2 fork_memory):
//
//  1. Every present page of every non-SHARED mapping that's currently
//     writable has its WRITABLE bit cleared and its COW bit set in the
//     parent's own PTE — SHARED mappings are left writable and fully
//     shared, never copy-on-write.
//  2. Every present page, SHARED or not, has its pool refcount bumped
//     by one: the physical frame now has one more owner.
//  3. Every one of the parent's page-table frames is duplicated
//     verbatim into a freshly-allocated child frame, so the child's
//     page tables start out pointing at the exact same physical pages
//     (now correctly COW-marked or shared) as the parent's.
//
// Step 3 is where allocation can fail partway through. Per the
// resolved Open Question on fork's rollback semantics, every WRITABLE
// bit flip and every refcount bump from steps 1-2 is undone, and every
// child page-table frame already allocated in step 3 is freed, before
// returning -ENOMEM — the parent's address space must be left exactly
// as it was found if the child can't be completed.
func (as *As_t) ForkInto(child *As_t) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	child.Lock()
	defer child.Unlock()

	type flip struct {
		view mem.PmapView
		idx  int
		old  mem.Pa_t
	}
	var flips []flip
	var refuped []mem.Pa_t

	rollback := func(childFrames []mem.Pa_t) {
		for _, f := range flips {
			f.view.Set(f.idx, f.old)
		}
		for _, pa := range refuped {
			mem.Physmem.Refdown(pa)
		}
		for _, pa := range childFrames {
			mem.Physmem.Push(pa)
		}
	}

	for _, rec := range as.regions.All() {
		for va := rec.Base; va < rec.End(); va += mem.PGSIZE {
			view, ptx, err := as.lookupPTE(va, false)
			if err != 0 {
				continue
			}
			pte := view.Get(ptx)
			if pte&mem.PTE_P == 0 {
				continue
			}
			pa := pte & mem.PTE_ADDR
			if rec.Flags&MMShared == 0 && pte&mem.PTE_W != 0 {
				flips = append(flips, flip{view, ptx, pte})
				view.Set(ptx, (pte&^mem.PTE_W)|mem.PTE_COW)
			}
			mem.Physmem.Refup(pa)
			refuped = append(refuped, pa)
		}
	}

	var childFrames []mem.Pa_t
	for pdx, srcPA := range as.ptabs {
		dstPA, ok := mem.Physmem.Pop()
		if !ok {
			rollback(childFrames)
			return -defs.ENOMEM
		}
		childFrames = append(childFrames, dstPA)
		srcV := mem.ViewPmap(mem.Physmem.Dmap(srcPA))
		dstV := mem.ViewPmap(mem.Physmem.Dmap(dstPA))
		for i := 0; i < mem.NPTENTRY; i++ {
			dstV.Set(i, srcV.Get(i))
		}
		child.ptabs[pdx] = dstPA
		child.dir().Set(pdx, dstPA|mem.PTE_P|mem.PTE_W|mem.PTE_U)
	}
	child.regions = *as.regions.Clone()
	return 0
}

// pageFaultLocked implements the four-step page-fault policy (§4.2)
// with as.Mutex already held. Exported PageFault and the user-copy
// helpers in userbuf.go both fault through here.
func (as *As_t) pageFaultLocked(va uint32, write bool) defs.Err_t {
	base := mem.PageBase(va)
	rec, ok := as.regions.Lookup(va)
	if !ok {
		if grown, ok2 := as.regions.StackBelow(base, mem.PGSIZE); ok2 {
			rec = grown
		} else {
			return -defs.EFAULT
		}
	}
	if write && rec.Flags&MMWritable == 0 {
		return -defs.EFAULT
	}

	view, ptx, err := as.lookupPTE(va, true)
	if err != 0 {
		return err
	}
	pte := view.Get(ptx)

	// Step: write fault against a present COW page.
	if write && pte&mem.PTE_P != 0 && pte&mem.PTE_COW != 0 {
		pa := pte & mem.PTE_ADDR
		if mem.Physmem.Refcnt(pa) == 0 {
			// Sole remaining owner: just reclaim it as exclusively-owned.
			view.Set(ptx, (pte&^mem.PTE_COW)|mem.PTE_W)
			return 0
		}
		mem.Physmem.Refdown(pa)
		npa, ok := mem.Physmem.Pop()
		if !ok {
			return -defs.ENOMEM
		}
		*mem.Physmem.Dmap(npa) = *mem.Physmem.Dmap(pa)
		view.Set(ptx, (npa&mem.PTE_ADDR)|mem.PTE_P|mem.PTE_U|mem.PTE_W)
		return 0
	}

	// Step: not-present fault — allocate and populate.
	if pte&mem.PTE_P == 0 {
		if rec.Flags&MMStack != 0 && base < rec.Base {
			grow := rec.Base - base
			rec.Base = base
			rec.Size += grow
		}

		npa, ok := mem.Physmem.Pop()
		if !ok {
			return -defs.ENOMEM
		}
		if rec.Inode != nil && base >= rec.Base && int(base-rec.Base) < rec.FileSize {
			off := int(base - rec.Base)
			n := rec.FileSize - off
			if n > mem.PGSIZE {
				n = mem.PGSIZE
			}
			buf := mem.Physmem.Dmap(npa)
			if _, e := rec.Inode.ReadAt(rec.FileOffset+off, buf[:n]); e != 0 {
				mem.Physmem.Push(npa)
				return e
			}
		}
		flags := mem.PTE_P | mem.PTE_U
		if rec.Flags&MMWritable != 0 {
			flags |= mem.PTE_W
		}
		view.Set(ptx, (npa&mem.PTE_ADDR)|flags)
		return 0
	}

	// Present already and neither of the above: a benign race (two
	// faults on the same page before either installed its PTE update).
	return 0
}

// PageFault is the page-fault entry point (§4.2): locate the covering
// mapping, reject illegal writes, and either reclaim/copy a COW page
// or demand-page a not-yet-present one.
func (as *As_t) PageFault(va uint32, write bool) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	return as.pageFaultLocked(va, write)
}
