package lardfs

import "fmt"

// imapFree and imapEOF are the two sentinel imap values; any other
// value k>=0 is the index of the sector's successor.
const (
	imapFree = int32(-1)
	imapEOF  = int32(-2)
)

// imapAllocator holds the imap array in memory as the single source of
// truth during operation, write-through persisting every mutation to
// the on-disk imap region. Data sector indices here are zero-based
// within the data pool (0 ≤ s < len(entries)), distinct from the raw,
// whole-image sector indices used by store.
type imapAllocator struct {
	s       *store
	base    uint32 // first raw sector of the imap region (sb.ImapP)
	dataP   uint32 // first raw sector of the data pool (sb.DPoolP)
	entries []int32
}

func loadImapAllocator(s *store, sb *Superblock) (*imapAllocator, error) {
	n := sb.DataSectorCount()
	entries := make([]int32, n)
	perSector := sb.SSize / imapEntrySize
	for i := uint32(0); i < n; i++ {
		if i%perSector == 0 {
			raw, err := s.readSector(sb.ImapP + i/perSector)
			if err != nil {
				return nil, err
			}
			for j := uint32(0); j < perSector && i+j < n; j++ {
				v, err := unmarshalImapEntry(raw[j*imapEntrySize : (j+1)*imapEntrySize])
				if err != nil {
					return nil, err
				}
				entries[i+j] = v
			}
		}
	}
	return &imapAllocator{s: s, base: sb.ImapP, dataP: sb.DPoolP, entries: entries}, nil
}

// persistAt writes entries[sector] to its byte offset within the imap
// region, read-modify-write at sector granularity since multiple imap
// entries share one on-disk sector.
func (m *imapAllocator) persistAt(sector uint32) error {
	ssize := m.s.ssize
	perSector := ssize / imapEntrySize
	rawSector := m.base + sector/perSector
	raw, err := m.s.readSector(rawSector)
	if err != nil {
		return err
	}
	off := (sector % perSector) * imapEntrySize
	copy(raw[off:off+imapEntrySize], marshalImapEntry(m.entries[sector]))
	return m.s.writeSector(rawSector, raw)
}

// alloc scans ascending for the first free data sector, zeroes its
// backing storage, marks it EOF, persists, and returns its data-pool-
// relative index. Scan order is deterministic so tests observe stable
// allocations.
func (m *imapAllocator) alloc() (uint32, error) {
	for i, v := range m.entries {
		if v == imapFree {
			sector := uint32(i)
			zero := make([]byte, m.s.ssize)
			if err := m.s.writeSector(m.dataP+sector, zero); err != nil {
				return 0, err
			}
			m.entries[sector] = imapEOF
			if err := m.persistAt(sector); err != nil {
				return 0, err
			}
			return sector, nil
		}
	}
	return 0, newErr("alloc", KindNoSpace)
}

// free marks a data sector as available again. No zeroing is required;
// the next alloc zeroes it.
func (m *imapAllocator) free(sector uint32) error {
	m.entries[sector] = imapFree
	return m.persistAt(sector)
}

// next returns the in-memory successor/sentinel for sector.
func (m *imapAllocator) next(sector uint32) int32 {
	return m.entries[sector]
}

// link sets entries[from] := to and persists it.
func (m *imapAllocator) link(from uint32, to int32) error {
	m.entries[from] = to
	return m.persistAt(from)
}

// freeCount returns the number of free data sectors, for statfs.
func (m *imapAllocator) freeCount() uint32 {
	var n uint32
	for _, v := range m.entries {
		if v == imapFree {
			n++
		}
	}
	return n
}

func (m *imapAllocator) String() string {
	return fmt.Sprintf("imap(%d entries, %d free)", len(m.entries), m.freeCount())
}
