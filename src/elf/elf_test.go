package elf

import (
	"encoding/binary"
	"testing"

	"nyx/src/defs"
	"nyx/src/mem"
	"nyx/src/vm"
)

// memInode is a minimal fs.Inode_i backed by an in-memory byte slice,
// enough to drive Load without a real filesystem.
type memInode struct{ b []byte }

func (m *memInode) Read(dst []byte, offset int) (int, defs.Err_t) {
	if offset >= len(m.b) {
		return 0, 0
	}
	n := copy(dst, m.b[offset:])
	return n, 0
}
func (m *memInode) Write(src []byte, offset int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (m *memInode) Size() int                                      { return len(m.b) }

// buildELF32 hand-assembles a minimal ELF32 LSB EXEC image with one
// PT_LOAD segment, since debug/elf only reads images, it doesn't write
// them.
func buildELF32(entry, vaddr, memsz, filesz uint32, writable bool) []byte {
	const ehsize = 52
	const phsize = 32
	buf := make([]byte, ehsize+phsize)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EI_VERSION

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)          // e_type = ET_EXEC
	le.PutUint16(buf[18:], 3)          // e_machine = EM_386
	le.PutUint32(buf[20:], 1)          // e_version
	le.PutUint32(buf[24:], entry)      // e_entry
	le.PutUint32(buf[28:], ehsize)     // e_phoff
	le.PutUint32(buf[32:], 0)          // e_shoff
	le.PutUint32(buf[36:], 0)          // e_flags
	le.PutUint16(buf[40:], ehsize)     // e_ehsize
	le.PutUint16(buf[42:], phsize)     // e_phentsize
	le.PutUint16(buf[44:], 1)          // e_phnum
	le.PutUint16(buf[46:], 0)          // e_shentsize
	le.PutUint16(buf[48:], 0)          // e_shnum
	le.PutUint16(buf[50:], 0)          // e_shstrndx

	ph := buf[ehsize:]
	pflags := uint32(4) // PF_R
	if writable {
		pflags |= 2 // PF_W
	}
	le.PutUint32(ph[0:], 1)       // p_type = PT_LOAD
	le.PutUint32(ph[4:], ehsize)  // p_offset
	le.PutUint32(ph[8:], vaddr)   // p_vaddr
	le.PutUint32(ph[12:], vaddr)  // p_paddr
	le.PutUint32(ph[16:], filesz) // p_filesz
	le.PutUint32(ph[20:], memsz)  // p_memsz
	le.PutUint32(ph[24:], pflags) // p_flags
	le.PutUint32(ph[28:], mem.PGSIZE)

	return buf
}

func TestLoadValidImage(t *testing.T) {
	raw := buildELF32(0x08048000, 0x08048000, mem.PGSIZE, 0, true)
	img, err := Load(&memInode{b: raw})
	if err != 0 {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != 0x08048000 {
		t.Fatalf("entry = %#x, want 0x08048000", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.Base != 0x08048000 || seg.Size != mem.PGSIZE {
		t.Fatalf("segment base/size = %#x/%d, want 0x08048000/%d", seg.Base, seg.Size, mem.PGSIZE)
	}
	if seg.Flags&vm.MMWritable == 0 {
		t.Fatal("PF_W segment should translate to MMWritable")
	}
}

func TestLoadRejectsMisalignedSegment(t *testing.T) {
	raw := buildELF32(0x08048000, 0x08048001, mem.PGSIZE, 0, false)
	if _, err := Load(&memInode{b: raw}); err != -defs.EINVAL {
		t.Fatalf("misaligned PT_LOAD: err = %v, want EINVAL", err)
	}
}

func TestLoadRejectsNoPTLoad(t *testing.T) {
	raw := buildELF32(0x08048000, 0x08048000, mem.PGSIZE, 0, false)
	// zero out e_phnum so the ELF parser sees no program headers at all.
	binary.LittleEndian.PutUint16(raw[44:], 0)
	if _, err := Load(&memInode{b: raw}); err != -defs.EINVAL {
		t.Fatalf("no PT_LOAD: err = %v, want EINVAL", err)
	}
}

func TestLoadRoundsUpMemszToPage(t *testing.T) {
	raw := buildELF32(0x08048000, 0x08048000, 10, 10, false)
	img, err := Load(&memInode{b: raw})
	if err != 0 {
		t.Fatalf("Load: %v", err)
	}
	if img.Segments[0].Size != mem.PGSIZE {
		t.Fatalf("size = %d, want rounded up to %d", img.Segments[0].Size, mem.PGSIZE)
	}
}
