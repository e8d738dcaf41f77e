package lardfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Fixed on-disk record widths. The codec is pure and stateless: it
// only packs and unpacks byte slices of exactly these lengths, with
// one function per record type rather than a generic struct-tag
// marshaller.
const (
	superblockSize = 28
	inodeSize      = 32
	imapEntrySize  = 4
	dirEntrySize   = 32
	dirNameSize    = dirEntrySize - 4 // 28 bytes, NUL-padded
)

var magicBytes = [8]byte{'L', 'A', 'R', 'D', 'F', 'S', '\n', 0}

var order = binary.BigEndian

// superblockRecord is the decoded form of the 28-byte superblock.
type superblockRecord struct {
	Magic    [8]byte
	SSize    uint32
	NSectors uint32
	IListP   uint32
	ImapP    uint32
	DPoolP   uint32
}

func (s *superblockRecord) marshal() []byte {
	buf := make([]byte, superblockSize)
	copy(buf[0:8], s.Magic[:])
	order.PutUint32(buf[8:12], s.SSize)
	order.PutUint32(buf[12:16], s.NSectors)
	order.PutUint32(buf[16:20], s.IListP)
	order.PutUint32(buf[20:24], s.ImapP)
	order.PutUint32(buf[24:28], s.DPoolP)
	return buf
}

func unmarshalSuperblock(buf []byte) (*superblockRecord, error) {
	if len(buf) != superblockSize {
		return nil, fmt.Errorf("lardfs: superblock record must be %d bytes, got %d", superblockSize, len(buf))
	}
	s := &superblockRecord{}
	copy(s.Magic[:], buf[0:8])
	s.SSize = order.Uint32(buf[8:12])
	s.NSectors = order.Uint32(buf[12:16])
	s.IListP = order.Uint32(buf[16:20])
	s.ImapP = order.Uint32(buf[20:24])
	s.DPoolP = order.Uint32(buf[24:28])
	return s, nil
}

// inodeRecord is the decoded form of a 32-byte inode entry.
type inodeRecord struct {
	ModeBits  uint16
	LinkCount uint16
	UID       uint32
	GID       uint32
	Ctime     uint32
	Mtime     uint32
	Atime     uint32
	Size      uint32
	Fip       uint32
}

func (n *inodeRecord) marshal() []byte {
	buf := make([]byte, inodeSize)
	order.PutUint16(buf[0:2], n.ModeBits)
	order.PutUint16(buf[2:4], n.LinkCount)
	order.PutUint32(buf[4:8], n.UID)
	order.PutUint32(buf[8:12], n.GID)
	order.PutUint32(buf[12:16], n.Ctime)
	order.PutUint32(buf[16:20], n.Mtime)
	order.PutUint32(buf[20:24], n.Atime)
	order.PutUint32(buf[24:28], n.Size)
	order.PutUint32(buf[28:32], n.Fip)
	return buf
}

func unmarshalInode(buf []byte) (*inodeRecord, error) {
	if len(buf) != inodeSize {
		return nil, fmt.Errorf("lardfs: inode record must be %d bytes, got %d", inodeSize, len(buf))
	}
	n := &inodeRecord{}
	n.ModeBits = order.Uint16(buf[0:2])
	n.LinkCount = order.Uint16(buf[2:4])
	n.UID = order.Uint32(buf[4:8])
	n.GID = order.Uint32(buf[8:12])
	n.Ctime = order.Uint32(buf[12:16])
	n.Mtime = order.Uint32(buf[16:20])
	n.Atime = order.Uint32(buf[20:24])
	n.Size = order.Uint32(buf[24:28])
	n.Fip = order.Uint32(buf[28:32])
	return n, nil
}

// marshalImapEntry/unmarshalImapEntry pack a single signed big-endian
// imap slot (-1 free, -2 EOF, k>=0 successor).
func marshalImapEntry(v int32) []byte {
	buf := make([]byte, imapEntrySize)
	order.PutUint32(buf, uint32(v))
	return buf
}

func unmarshalImapEntry(buf []byte) (int32, error) {
	if len(buf) != imapEntrySize {
		return 0, fmt.Errorf("lardfs: imap entry must be %d bytes, got %d", imapEntrySize, len(buf))
	}
	return int32(order.Uint32(buf)), nil
}

// dirEntryRecord is the decoded form of a 32-byte directory entry.
type dirEntryRecord struct {
	Inumber uint32
	Name    string
}

func marshalDirEntry(inumber uint32, name string) ([]byte, error) {
	if len(name) > dirNameSize {
		return nil, fmt.Errorf("lardfs: directory entry name %q exceeds %d bytes", name, dirNameSize)
	}
	buf := make([]byte, dirEntrySize)
	order.PutUint32(buf[0:4], inumber)
	copy(buf[4:], name) // remaining bytes already zero (NUL padding)
	return buf, nil
}

func unmarshalDirEntry(buf []byte) (*dirEntryRecord, error) {
	if len(buf) != dirEntrySize {
		return nil, fmt.Errorf("lardfs: directory entry record must be %d bytes, got %d", dirEntrySize, len(buf))
	}
	inumber := order.Uint32(buf[0:4])
	name := buf[4:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return &dirEntryRecord{Inumber: inumber, Name: string(name)}, nil
}
