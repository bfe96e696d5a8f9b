package fs

import "encoding/binary"

// Superblock_t overlays the on-disk MINIX-v1 superblock (§6, glossary
// "MINIX-v1"): a single 4096-byte block holding the filesystem's
// sizing fields and magic number. The core only ever reads these
// fields through mount; it never writes a filesystem image itself
// (§1 out-of-scope: "MINIX-v1 filesystem internals (only interfaces)").
type Superblock_t struct {
	Data *[4096]byte
}

// MinixMagicV1 is the MINIX-v1 superblock magic number.
const MinixMagicV1 = 0x137F

func (sb *Superblock_t) u16(off int) int {
	return int(binary.LittleEndian.Uint16(sb.Data[off:]))
}

func (sb *Superblock_t) u32(off int) int {
	return int(binary.LittleEndian.Uint32(sb.Data[off:]))
}

// Ninodes returns the total number of inodes.
func (sb *Superblock_t) Ninodes() int { return sb.u16(0) }

// Nzones returns the total number of zones (blocks).
func (sb *Superblock_t) Nzones() int { return sb.u16(2) }

// Imapblocks returns the number of blocks in the inode bitmap.
func (sb *Superblock_t) Imapblocks() int { return sb.u16(4) }

// Zmapblocks returns the number of blocks in the zone (free block) bitmap.
func (sb *Superblock_t) Zmapblocks() int { return sb.u16(6) }

// Firstdatazone returns the first zone containing file data.
func (sb *Superblock_t) Firstdatazone() int { return sb.u16(8) }

// LogZoneSize returns log2(blocks per zone).
func (sb *Superblock_t) LogZoneSize() int { return sb.u16(10) }

// Maxsize returns the maximum file size in bytes.
func (sb *Superblock_t) Maxsize() int { return sb.u32(12) }

// Magic returns the superblock magic number; mount rejects anything
// other than MinixMagicV1.
func (sb *Superblock_t) Magic() int { return sb.u16(16) }

// Valid reports whether the superblock carries the MINIX-v1 magic.
func (sb *Superblock_t) Valid() bool { return sb.Magic() == MinixMagicV1 }
