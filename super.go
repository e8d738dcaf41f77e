package lardfs

import "fmt"

// Superblock is the decoded 28-byte header at sector 0 of a LARDFS
// image.
type Superblock struct {
	SSize    uint32 // sector size in bytes
	NSectors uint32 // total sectors in the image
	IListP   uint32 // first sector of the inode table
	ImapP    uint32 // first sector of the imap
	DPoolP   uint32 // first sector of the data pool
}

// InodeCount returns N, the number of 32-byte inode records that fit
// between ilist_p and imap_p.
func (sb *Superblock) InodeCount() uint32 {
	return (sb.ImapP - sb.IListP) * sb.SSize / inodeSize
}

// DataSectorCount returns the number of sectors in the data pool.
func (sb *Superblock) DataSectorCount() uint32 {
	return sb.NSectors - sb.DPoolP
}

func readSuperblock(s *store) (*Superblock, error) {
	buf, err := s.readSector(0)
	if err != nil {
		return nil, err
	}
	rec, err := unmarshalSuperblock(buf[:superblockSize])
	if err != nil {
		return nil, err
	}
	if rec.Magic != magicBytes {
		return nil, wrapErr("readSuperblock", KindCorrupt, fmt.Errorf("bad magic %q", rec.Magic))
	}
	if rec.SSize == 0 || rec.SSize%4 != 0 {
		return nil, wrapErr("readSuperblock", KindCorrupt, fmt.Errorf("invalid sector size %d", rec.SSize))
	}
	return &Superblock{
		SSize:    rec.SSize,
		NSectors: rec.NSectors,
		IListP:   rec.IListP,
		ImapP:    rec.ImapP,
		DPoolP:   rec.DPoolP,
	}, nil
}

func (sb *Superblock) record() *superblockRecord {
	return &superblockRecord{
		Magic:    magicBytes,
		SSize:    sb.SSize,
		NSectors: sb.NSectors,
		IListP:   sb.IListP,
		ImapP:    sb.ImapP,
		DPoolP:   sb.DPoolP,
	}
}

// Geometry is the result of laying out a fresh image of a given
// capacity. It is exposed publicly so builder callers can predict
// layout ahead of formatting.
type Geometry struct {
	SSize     uint32
	NSectors  uint32
	DataCount uint32 // D
	ImapCount uint32 // M
	IListP    uint32
	ImapP     uint32
	DPoolP    uint32
}

// DefaultIfactor is the fraction of the image reserved for inode+imap
// overhead when the caller doesn't specify one.
const DefaultIfactor = 0.1

// ComputeGeometry lays out a fresh image of the given capacity: it
// picks a data pool size as (1-ifactor) of the sectors, sizes the imap
// to cover that pool, and reserves everything else for the inode
// table, rejecting capacities too small to fit the fixed overhead.
func ComputeGeometry(capacity int64, ssize uint32, ifactor float64) (Geometry, error) {
	if ssize == 0 || ssize%4 != 0 {
		return Geometry{}, fmt.Errorf("lardfs: sector size %d must be a positive multiple of 4", ssize)
	}
	if capacity%int64(ssize) != 0 {
		return Geometry{}, fmt.Errorf("lardfs: capacity %d not a multiple of sector size %d", capacity, ssize)
	}
	nsectors := uint32(capacity / int64(ssize))

	dataCount := uint32(float64(nsectors) * (1.0 - ifactor))
	imapCount := ceilDiv(dataCount*imapEntrySize, ssize)
	if nsectors < dataCount+imapCount+1 {
		return Geometry{}, fmt.Errorf("lardfs: capacity too small for ifactor %v", ifactor)
	}

	ilistP := uint32(1)
	imapP := ilistP + (nsectors - dataCount - imapCount - 1)
	dpoolP := imapP + imapCount

	return Geometry{
		SSize:     ssize,
		NSectors:  nsectors,
		DataCount: dataCount,
		ImapCount: imapCount,
		IListP:    ilistP,
		ImapP:     imapP,
		DPoolP:    dpoolP,
	}, nil
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
