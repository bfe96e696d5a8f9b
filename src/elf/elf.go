// Package elf validates a loadable executable image and translates
// its PT_LOAD program headers into memory-map records (§4.5, §6:
// "ELF-32 little-endian, machine i386, type EXEC, with page-aligned
// PT_LOAD segments... p_memsz > p_filesz is honored by zero-filling
// the tail"). Uses the standard library's debug/elf: no repo in the
// retrieval pack parses ELF for loading — the one ELF-touching file
// present (xyproto-vibe67's elf_complete.go) is an ELF *writer* for an
// unrelated JIT and shares no reader-side surface to ground this on,
// so this is the one place the core reaches for stdlib over a pack
// dependency.
package elf

import (
	"bytes"
	"debug/elf"

	"nyx/src/defs"
	"nyx/src/fs"
	"nyx/src/mem"
	"nyx/src/vm"
)

// LoadImage is a validated executable's entry point and the
// memory-map records execve installs for it (§4.5).
type LoadImage struct {
	Entry    uint32
	Segments []*vm.Mmap_t
}

// inodeBacking adapts fs.Inode_i's Read(dst, offset) to the
// vm.Backing_i.ReadAt(off, buf) shape the page-fault handler expects.
type inodeBacking struct{ ino fs.Inode_i }

func (b inodeBacking) ReadAt(off int, buf []byte) (int, defs.Err_t) {
	return b.ino.Read(buf, off)
}

// Load validates ino as a loadable executable and returns its
// translated segments. It reads the whole image into a temporary
// buffer to parse the ELF headers; no segment bytes are mapped here —
// they come in later via the page-fault handler, per spec.md's "no
// content is eagerly loaded".
func Load(ino fs.Inode_i) (*LoadImage, defs.Err_t) {
	hdr := make([]byte, ino.Size())
	n, err := ino.Read(hdr, 0)
	if err != 0 {
		return nil, err
	}
	hdr = hdr[:n]

	f, e := elf.NewFile(bytes.NewReader(hdr))
	if e != nil {
		return nil, -defs.EINVAL
	}
	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2LSB ||
		f.Machine != elf.EM_386 || f.Type != elf.ET_EXEC {
		return nil, -defs.EINVAL
	}

	img := &LoadImage{Entry: uint32(f.Entry)}
	backing := inodeBacking{ino}
	haveLoad := false
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		haveLoad = true
		if p.Vaddr%mem.PGSIZE != 0 {
			return nil, -defs.EINVAL
		}
		var flags vm.MMFlag
		if p.Flags&elf.PF_W != 0 {
			flags |= vm.MMWritable
		}
		size := roundup(uint32(p.Memsz), mem.PGSIZE)
		img.Segments = append(img.Segments, &vm.Mmap_t{
			Base:       uint32(p.Vaddr),
			Size:       size,
			Flags:      flags,
			FileOffset: int(p.Off),
			FileSize:   int(p.Filesz),
			Inode:      backing,
		})
	}
	if !haveLoad {
		return nil, -defs.EINVAL
	}
	return img, 0
}

func roundup(v, to uint32) uint32 {
	return (v + to - 1) &^ (to - 1)
}
