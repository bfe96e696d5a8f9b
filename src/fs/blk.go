// Package fs names the collaborator surface the core consumes from a
// filesystem (§1 out-of-scope: "MINIX-v1 filesystem
// internals (only interfaces)"). It implements no filesystem itself —
// mount, inode_lookup and friends are interfaces a real MINIX-v1
// driver would satisfy, matched to the inode-cache dedup concern
// (§4.5 execve, §4.2 demand paging) this core does own.
package fs

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"nyx/src/defs"
	"nyx/src/stat"
)

// BSIZE is the on-disk block size in bytes, matching MINIX-v1 zones.
const BSIZE = 4096

// Disk_i is the block device a mounted filesystem reads and writes
// through. Device drivers are out of scope (§1); this is the seam a
// real one would plug into.
type Disk_i interface {
	Start(blockno int, data *[BSIZE]byte, write bool) bool
	Stats() string
}

// Inode_i is the read/write surface the core uses against an open
// file: execve's loader reads program text through it (vm.Backing_i
// is satisfied by any Inode_i), and read/write syscalls read and
// write through it directly.
type Inode_i interface {
	Read(dst []byte, offset int) (int, defs.Err_t)
	Write(src []byte, offset int) (int, defs.Err_t)
	Stat(st *stat.Stat_t) defs.Err_t
	Size() int
}

// Fs_i is the filesystem-wide surface: mount, path lookup and the
// inode cache's get/put pair (§6 mount, §4.5 execve path resolution).
type Fs_i interface {
	Mount(disk Disk_i) (Inode_i, defs.Err_t) // returns the root inode
	Lookup(dir Inode_i, name string) (Inode_i, defs.Err_t)
	Get(inum int) (Inode_i, defs.Err_t)
	Put(ino Inode_i)
}

// inodeErr wraps an Err_t so it can travel through singleflight's
// error-typed return without losing the original errno.
type inodeErr defs.Err_t

func (e inodeErr) Error() string { return defs.Err_t(e).String() }

// InodeCache_t dedupes concurrent Get(inum) calls for the same inode
// number against the backing filesystem, so two threads opening the
// same file at once (a common execve + fork pattern, §4.5) pay for a
// single disk round trip rather than racing two redundant ones.
type InodeCache_t struct {
	fs Fs_i
	g  singleflight.Group
}

// NewInodeCache wraps fs with get-deduplication.
func NewInodeCache(fs Fs_i) *InodeCache_t {
	return &InodeCache_t{fs: fs}
}

// Get returns the inode for inum, deduplicating concurrent callers.
func (c *InodeCache_t) Get(inum int) (Inode_i, defs.Err_t) {
	key := fmt.Sprintf("inum:%d", inum)
	v, err, _ := c.g.Do(key, func() (interface{}, error) {
		ino, e := c.fs.Get(inum)
		if e != 0 {
			return nil, inodeErr(e)
		}
		return ino, nil
	})
	if err != nil {
		return nil, defs.Err_t(err.(inodeErr))
	}
	return v.(Inode_i), 0
}

// Put releases a reference obtained from Get.
func (c *InodeCache_t) Put(ino Inode_i) {
	c.fs.Put(ino)
}
