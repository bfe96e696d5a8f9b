package vm

import (
	"nyx/src/defs"
)

// MMFlag is a memory-map record's flag set (§3: flags ∈ {READONLY,
// WRITABLE, STACK, SHARED}). Absence of MMWritable means READONLY.
type MMFlag uint

const (
	MMWritable MMFlag = 1 << iota
	MMStack
	MMShared
)

// Backing_i is the read-side interface a memory-map record uses to
// demand-page its file-backed portion. It is the minimal surface the
// core needs from the inode cache collaborator spec.md places out of
// scope (§1): "specified only by the interfaces the core consumes".
type Backing_i interface {
	ReadAt(off int, buf []byte) (int, defs.Err_t)
}

// Mmap_t is one memory-map record (§3, glossary "Memory-map record"):
// a declarative description of a mapping, materialized on demand by
// the page-fault handler.
type Mmap_t struct {
	Base       uint32
	Size       uint32
	Flags      MMFlag
	FileOffset int
	FileSize   int
	Inode      Backing_i // nil for pure anonymous (zero-fill) mappings
}

// End returns the exclusive end address of the mapping.
func (m *Mmap_t) End() uint32 { return m.Base + m.Size }

// Contains reports whether va falls within [Base, Base+Size).
func (m *Mmap_t) Contains(va uint32) bool {
	return va >= m.Base && va < m.End()
}

// MaxRegions bounds the fixed-size memory-map array (§3: "Fixed-size
// array of up to N records").
const MaxRegions = 64

// Vmregion_t is a process's memory-map record array. Records never
// overlap (§3 invariant).
type Vmregion_t struct {
	recs []*Mmap_t
}

// Lookup finds the memory-map record containing va, if any.
func (r *Vmregion_t) Lookup(va uint32) (*Mmap_t, bool) {
	for _, m := range r.recs {
		if m.Contains(va) {
			return m, true
		}
	}
	return nil, false
}

// overlaps reports whether [base, base+size) intersects any existing
// record.
func (r *Vmregion_t) overlaps(base, size uint32) bool {
	end := base + size
	for _, m := range r.recs {
		if base < m.End() && end > m.Base {
			return true
		}
	}
	return false
}

// Insert adds a new memory-map record, rejecting it with -EINVAL if it
// would overlap an existing one (§3 invariant) or with -ENOMEM if the
// table is full.
func (r *Vmregion_t) Insert(m *Mmap_t) defs.Err_t {
	if len(r.recs) >= MaxRegions {
		return -defs.ENOMEM
	}
	if r.overlaps(m.Base, m.Size) {
		return -defs.EINVAL
	}
	r.recs = append(r.recs, m)
	return 0
}

// Remove deletes the record matching base, if present.
func (r *Vmregion_t) Remove(base uint32) {
	for i, m := range r.recs {
		if m.Base == base {
			r.recs = append(r.recs[:i], r.recs[i+1:]...)
			return
		}
	}
}

// All returns every record, for iteration by free_process_memory and
// fork_memory.
func (r *Vmregion_t) All() []*Mmap_t {
	return r.recs
}

// StackBelow returns the STACK-flavored record exactly one page above
// base, if any — the guard-page check a fault just below a stack's
// current floor uses to recognize "grow the stack" rather than
// "segfault" (§4.2 stack-growth handling).
func (r *Vmregion_t) StackBelow(base, pgsize uint32) (*Mmap_t, bool) {
	for _, m := range r.recs {
		if m.Flags&MMStack != 0 && m.Base == base+pgsize {
			return m, true
		}
	}
	return nil, false
}

// Clear empties the region list.
func (r *Vmregion_t) Clear() {
	r.recs = nil
}

// Clone returns a deep-enough copy (new record pointers, same Inode
// reference) suitable for fork's "duplicate the memory-map record
// array verbatim" (§4.5).
func (r *Vmregion_t) Clone() *Vmregion_t {
	nr := &Vmregion_t{recs: make([]*Mmap_t, len(r.recs))}
	for i, m := range r.recs {
		cp := *m
		nr.recs[i] = &cp
	}
	return nr
}
