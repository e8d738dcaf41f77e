package lardfs

import (
	"sync/atomic"
	"time"
)

// Inode is the in-memory, decoded form of a 32-byte on-disk inode
// record, plus the lookup refcount used by the Filesystem façade's
// free/live state machine. Exported fields mirror the on-disk layout
// field-for-field so callers can inspect metadata without going
// through getattr-shaped accessors.
type Inode struct {
	// refcnt is first for 64-bit alignment on 32-bit platforms:
	// sync/atomic panics on an unaligned field.
	refcnt uint64 // lookup count, raised by Filesystem.Lookup/Mkdir/Create/Symlink/Link, lowered by Forget

	Num int // zero-based index into the inode table

	Type      Type
	Perm      uint16 // setuid/setgid/sticky + rwx, low 12 bits
	LinkCount uint16
	UID       uint32
	GID       uint32
	Ctime     time.Time
	Mtime     time.Time
	Atime     time.Time
	Size      uint32
	Fip       uint32 // first data sector of the chain; 0 if chainless

	// deleted marks a directory removed by Rmdir while lookups were
	// still outstanding; Forget wipes it once those drain even though
	// its own "." entry keeps LinkCount above zero. Not persisted.
	deleted bool
}

// IsFree reports whether this inode slot is unallocated.
func (n *Inode) IsFree() bool {
	return n.Type == TypeFree
}

// IsDir reports whether this inode is a directory.
func (n *Inode) IsDir() bool {
	return n.Type == TypeDirectory
}

// IsSymlink reports whether this inode is a symbolic link.
func (n *Inode) IsSymlink() bool {
	return n.Type == TypeSymlink
}

func (n *Inode) record() *inodeRecord {
	bits := modeBits(n.Type, n.Perm)
	if n.Type == TypeFree {
		bits = 0
	}
	return &inodeRecord{
		ModeBits:  bits,
		LinkCount: n.LinkCount,
		UID:       n.UID,
		GID:       n.GID,
		Ctime:     uint32(n.Ctime.Unix()),
		Mtime:     uint32(n.Mtime.Unix()),
		Atime:     uint32(n.Atime.Unix()),
		Size:      n.Size,
		Fip:       n.Fip,
	}
}

func inodeFromRecord(num int, rec *inodeRecord) *Inode {
	typ, perm := splitModeBits(rec.ModeBits)
	return &Inode{
		Num:       num,
		Type:      typ,
		Perm:      perm,
		LinkCount: rec.LinkCount,
		UID:       rec.UID,
		GID:       rec.GID,
		Ctime:     time.Unix(int64(rec.Ctime), 0),
		Mtime:     time.Unix(int64(rec.Mtime), 0),
		Atime:     time.Unix(int64(rec.Atime), 0),
		Size:      rec.Size,
		Fip:       rec.Fip,
	}
}

// addRef/delRef manage the transient lookup count the free/live state
// machine checks before reclaiming an inode, kept atomic since a FUSE
// adapter calls these from multiple goroutines.
func (n *Inode) addRef(count uint64) uint64 {
	return atomic.AddUint64(&n.refcnt, count)
}

func (n *Inode) delRef(count uint64) uint64 {
	return atomic.AddUint64(&n.refcnt, ^(count - 1))
}

func (n *Inode) lookupCount() uint64 {
	return atomic.LoadUint64(&n.refcnt)
}

// inodeTable is the fixed-size array of inode records.
type inodeTable struct {
	s     *store
	base  uint32 // sb.IListP
	ssize uint32
	nodes []*Inode
}

func loadInodeTable(s *store, sb *Superblock) (*inodeTable, error) {
	n := sb.InodeCount()
	perSector := sb.SSize / inodeSize
	nodes := make([]*Inode, n)
	for i := uint32(0); i < n; i++ {
		if i%perSector == 0 {
			raw, err := s.readSector(sb.IListP + i/perSector)
			if err != nil {
				return nil, err
			}
			for j := uint32(0); j < perSector && i+j < n; j++ {
				rec, err := unmarshalInode(raw[j*inodeSize : (j+1)*inodeSize])
				if err != nil {
					return nil, err
				}
				nodes[i+j] = inodeFromRecord(int(i+j), rec)
			}
		}
	}
	return &inodeTable{s: s, base: sb.IListP, ssize: sb.SSize, nodes: nodes}, nil
}

// get returns inode n (zero-based), or an error if out of range.
func (t *inodeTable) get(n int) (*Inode, error) {
	if n < 0 || n >= len(t.nodes) {
		return nil, newErr("get", KindNotFound)
	}
	return t.nodes[n], nil
}

// put write-throughs the inode at index n back to disk.
func (t *inodeTable) put(n *Inode) error {
	perSector := t.ssize / inodeSize
	rawSector := t.base + uint32(n.Num)/perSector
	raw, err := t.s.readSector(rawSector)
	if err != nil {
		return err
	}
	off := (uint32(n.Num) % perSector) * inodeSize
	copy(raw[off:off+inodeSize], n.record().marshal())
	return t.s.writeSector(rawSector, raw)
}

// alloc finds the smallest free inode slot, initializes it, and
// allocates its first (EOF) data sector.
func (t *inodeTable) alloc(typ Type, perm uint16, uid, gid uint32, imap *imapAllocator) (*Inode, error) {
	for _, n := range t.nodes {
		if n.IsFree() {
			now := time.Now()
			fip, err := imap.alloc()
			if err != nil {
				return nil, err
			}
			n.Type = typ
			n.Perm = perm
			n.LinkCount = 1
			n.UID = uid
			n.GID = gid
			n.Ctime = now
			n.Mtime = now
			n.Atime = now
			n.Size = 0
			n.Fip = fip
			n.deleted = false
			if err := t.put(n); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	return nil, newErr("alloc", KindNoInodes)
}

// freeCount returns the number of unallocated inode slots, for statfs.
func (t *inodeTable) freeCount() int {
	var n int
	for _, node := range t.nodes {
		if node.IsFree() {
			n++
		}
	}
	return n
}

// wipe frees every sector in n's chain via imap and marks the inode
// free. Caller must have already established lookup count == 0 and
// that n is unlinked: link_count == 0, or for a directory, its name
// entry removed (its own "." entry still holds one link).
func wipe(n *Inode, imap *imapAllocator, table *inodeTable) error {
	sector := n.Fip
	for {
		next := imap.next(sector)
		if err := imap.free(sector); err != nil {
			return err
		}
		if next == imapEOF {
			break
		}
		if next == imapFree {
			return newErr("wipe", KindCorrupt)
		}
		sector = uint32(next)
	}
	n.Type = TypeFree
	n.Perm = 0
	n.LinkCount = 0
	n.UID = 0
	n.GID = 0
	n.Size = 0
	n.Fip = 0
	n.deleted = false
	return table.put(n)
}
