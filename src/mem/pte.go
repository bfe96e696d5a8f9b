package mem

import "encoding/binary"

// i386 two-level paging: a 32-bit linear address splits into a 10-bit
// page-directory index, a 10-bit page-table index and a 12-bit page
// offset. Each page directory/table holds 1024 4-byte entries — one
// page each (PGSIZE/4).
const (
	PDXSHIFT = 22
	PTXSHIFT = 12
	NPTENTRY = 1024
)

// PmapView overlays a physical frame's raw bytes as an array of 1024
// page-table/directory entries. This is the typed, pointer-free stand
// in DESIGN NOTES calls for in place of biscuit's unsafe.Pointer cast
// of the self-referential directory slot onto a *Pmap_t: a page table
// is nothing but a physical frame's bytes, and every access goes
// through this view rather than a raw pointer.
type PmapView struct {
	pg *Bytepg_t
}

// ViewPmap wraps a physical frame's bytes as a page table/directory.
func ViewPmap(pg *Bytepg_t) PmapView { return PmapView{pg} }

// Get returns entry i.
func (v PmapView) Get(i int) Pa_t {
	return Pa_t(binary.LittleEndian.Uint32(v.pg[i*4:]))
}

// Set writes entry i.
func (v PmapView) Set(i int, val Pa_t) {
	binary.LittleEndian.PutUint32(v.pg[i*4:], uint32(val))
}

// PTE/PDE bit flags. The first eight match the i386 architectural
// bits; COW reuses the OS-available bit 9 the way biscuit's amd64
// PTE_COW does.
const (
	PTE_P      Pa_t = 1 << 0 // present
	PTE_W      Pa_t = 1 << 1 // writable
	PTE_U      Pa_t = 1 << 2 // user-accessible
	PTE_PWT    Pa_t = 1 << 3
	PTE_PCD    Pa_t = 1 << 4 // cache-disable
	PTE_A      Pa_t = 1 << 5 // accessed
	PTE_D      Pa_t = 1 << 6 // dirty
	PTE_PS     Pa_t = 1 << 7 // page size (4MiB directory entry)
	PTE_COW    Pa_t = 1 << 9 // copy-on-write (software)
)

// PTE_ADDR extracts the physical frame address from a PTE.
const PTE_ADDR Pa_t = PGMASK

// Pdx returns the page-directory index of a virtual address.
func Pdx(va uint32) int { return int(va >> PDXSHIFT) }

// Ptx returns the page-table index of a virtual address.
func Ptx(va uint32) int { return int(va>>PTXSHIFT) & (NPTENTRY - 1) }

// PageBase rounds va down to its containing page's base address.
func PageBase(va uint32) uint32 { return va &^ uint32(PGOFFSET) }
