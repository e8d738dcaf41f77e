package lardfs

import (
	"fmt"
	"io"
	"os"
)

// store owns the backing file for an image and provides sector-
// granular reads plus byte-granular write-through writes. It holds the
// single handle to the backing file; concurrent external access to
// the same file is undefined.
type store struct {
	f     *os.File
	ssize uint32
}

func openStore(f *os.File, ssize uint32) *store {
	return &store{f: f, ssize: ssize}
}

// readSector returns the ssize bytes of the given sector (a raw sector
// index within the whole image, not a data-pool-relative index;
// callers translate as needed).
func (s *store) readSector(sector uint32) ([]byte, error) {
	buf := make([]byte, s.ssize)
	off := int64(sector) * int64(s.ssize)
	n, err := s.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("lardfs: read sector %d: %w", sector, err)
	}
	// Treat a short read at EOF as a zero-filled sector; formatStore
	// always sizes the file to its full sector count up front, so this
	// only matters for reads issued before the image is finalized.
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return buf, nil
}

// write is byte-granular and requires no sector alignment.
func (s *store) write(off int64, data []byte) error {
	if _, err := s.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("lardfs: write at %d: %w", off, err)
	}
	return nil
}

// writeSector writes exactly ssize bytes at the given raw sector index.
func (s *store) writeSector(sector uint32, data []byte) error {
	if uint32(len(data)) != s.ssize {
		return fmt.Errorf("lardfs: writeSector: expected %d bytes, got %d", s.ssize, len(data))
	}
	return s.write(int64(sector)*int64(s.ssize), data)
}

// formatStore truncates the backing file to nsectors*ssize bytes and writes
// the superblock; it does not touch the inode or imap regions, which
// the Filesystem formatter zero/initializes separately.
func formatStore(f *os.File, sb *superblockRecord) (*store, error) {
	capacity := int64(sb.NSectors) * int64(sb.SSize)
	if err := f.Truncate(capacity); err != nil {
		return nil, fmt.Errorf("lardfs: truncate image to %d bytes: %w", capacity, err)
	}
	s := openStore(f, sb.SSize)
	if err := s.write(0, sb.marshal()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) close() error {
	return s.f.Close()
}
