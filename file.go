package lardfs

// fileEngine reads and writes file bytes by walking/extending the
// sector chain rooted at an inode's Fip. It operates in terms of
// data-pool-relative sector indices (what the imap speaks) and
// translates to raw image sector indices via dataP when it talks to
// the store.
type fileEngine struct {
	s     *store
	imap  *imapAllocator
	table *inodeTable
	dataP uint32 // sb.DPoolP
}

func newFileEngine(s *store, imap *imapAllocator, table *inodeTable, dataP uint32) *fileEngine {
	return &fileEngine{s: s, imap: imap, table: table, dataP: dataP}
}

// chain walks Fip through imap.next, collecting data-pool-relative
// sector indices until EOF. Encountering a free sector is Corrupt.
func (fe *fileEngine) chain(n *Inode) ([]uint32, error) {
	var out []uint32
	seen := make(map[uint32]bool)
	sector := n.Fip
	for {
		if seen[sector] {
			return nil, newErr("chain", KindCorrupt)
		}
		seen[sector] = true
		out = append(out, sector)
		next := fe.imap.next(sector)
		switch {
		case next == imapEOF:
			return out, nil
		case next == imapFree:
			return nil, newErr("chain", KindCorrupt)
		default:
			sector = uint32(next)
		}
	}
}

func (fe *fileEngine) readSector(sector uint32) ([]byte, error) {
	return fe.s.readSector(fe.dataP + sector)
}

func (fe *fileEngine) writeSector(sector uint32, data []byte) error {
	return fe.s.writeSector(fe.dataP+sector, data)
}

// read concatenates every chain sector, truncated to n.Size.
func (fe *fileEngine) read(n *Inode) ([]byte, error) {
	chain, err := fe.chain(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(chain)*int(fe.s.ssize))
	for _, sector := range chain {
		buf, err := fe.readSector(sector)
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	if uint32(len(out)) > n.Size {
		out = out[:n.Size]
	}
	return out, nil
}

// readAt reads up to len(p) bytes starting at off, io.ReaderAt style,
// for callers (e.g. the FUSE adapter) that want partial reads. It reads
// the whole file via read and copies out the requested range.
func (fe *fileEngine) readAt(n *Inode, off int64, p []byte) (int, error) {
	if off >= int64(n.Size) {
		return 0, nil
	}
	data, err := fe.read(n)
	if err != nil {
		return 0, err
	}
	end := off + int64(len(p))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return copy(p, data[off:end]), nil
}

// write grows size before persisting content, extends the chain via
// the allocator as needed, then read-modify-writes the affected
// sectors; an offset beyond the current size is rejected rather than
// creating a hole.
func (fe *fileEngine) write(n *Inode, offset uint32, buf []byte) error {
	if offset > n.Size {
		return newErr("write", KindBadOffset)
	}
	if len(buf) == 0 {
		return nil
	}
	ssize := fe.s.ssize
	grew := false
	if uint64(offset)+uint64(len(buf)) > uint64(n.Size) {
		n.Size = offset + uint32(len(buf))
		grew = true
		if err := fe.table.put(n); err != nil {
			return err
		}
	}

	chain, err := fe.chain(n)
	if err != nil {
		return err
	}

	lastNeeded := int((uint64(offset) + uint64(len(buf)) - 1) / uint64(ssize))
	for len(chain)-1 < lastNeeded {
		nsector, err := fe.imap.alloc()
		if err != nil {
			return err
		}
		tail := chain[len(chain)-1]
		if err := fe.imap.link(tail, int32(nsector)); err != nil {
			return err
		}
		chain = append(chain, nsector)
	}

	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		idx := int(pos / ssize)
		within := pos % ssize
		sector := chain[idx]
		room := ssize - within
		n2 := uint32(len(remaining))
		if n2 > room {
			n2 = room
		}
		if within != 0 || n2 != ssize {
			existing, err := fe.readSector(sector)
			if err != nil {
				return err
			}
			copy(existing[within:within+n2], remaining[:n2])
			if err := fe.writeSector(sector, existing); err != nil {
				return err
			}
		} else {
			if err := fe.writeSector(sector, remaining[:n2]); err != nil {
				return err
			}
		}
		remaining = remaining[n2:]
		pos += n2
	}

	now := nowFunc()
	n.Mtime = now
	if grew {
		n.Ctime = now
	}
	return fe.table.put(n)
}

// truncate resizes a file's chain, including the zero-size edge rule:
// a file always keeps at least one (EOF) sector.
func (fe *fileEngine) truncate(n *Inode, newSize uint32) error {
	if newSize == n.Size {
		return nil
	}
	if newSize > n.Size {
		zeros := make([]byte, newSize-n.Size)
		return fe.write(n, n.Size, zeros)
	}

	chain, err := fe.chain(n)
	if err != nil {
		return err
	}
	keep := int(ceilDiv(newSize, fe.s.ssize))
	if keep == 0 {
		keep = 1
	}
	for i := keep; i < len(chain); i++ {
		if err := fe.imap.free(chain[i]); err != nil {
			return err
		}
	}
	lastSector := chain[keep-1]
	if err := fe.imap.link(lastSector, imapEOF); err != nil {
		return err
	}

	boundary := newSize % fe.s.ssize
	if boundary != 0 || newSize == 0 {
		data, err := fe.readSector(lastSector)
		if err != nil {
			return err
		}
		for i := boundary; i < fe.s.ssize; i++ {
			data[i] = 0
		}
		if err := fe.writeSector(lastSector, data); err != nil {
			return err
		}
	}

	n.Size = newSize
	n.Mtime = nowFunc()
	n.Ctime = n.Mtime
	return fe.table.put(n)
}
