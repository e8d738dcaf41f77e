package lardfs

import "io/fs"

// Type tags an inode's file type, packed into the high nibble of its
// on-disk mode_bits field.
type Type uint16

const (
	// TypeFree marks an inode slot as unallocated.
	TypeFree Type = 0
	// TypeRegular is an ordinary file.
	TypeRegular Type = 1
	// TypeDirectory is a directory.
	TypeDirectory Type = 2
	// TypeSymlink is a symbolic link; its target path lives in the file
	// body like a regular file's contents (see DESIGN.md).
	TypeSymlink Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeFree:
		return "free"
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// permBits are the low 12 bits of mode_bits: setuid/setgid/sticky plus
// the rwx triple, Unix-style.
const (
	permSetuid = 0o4000
	permSetgid = 0o2000
	permSticky = 0o1000
	permMask   = 0o7777
)

// modeBits returns the packed on-disk mode_bits field for a type tag
// and a Unix permission value (the low 12 bits of mode, setuid/setgid/
// sticky included).
func modeBits(t Type, perm uint16) uint16 {
	return uint16(t)<<12 | (perm & permMask)
}

// splitModeBits is the inverse of modeBits.
func splitModeBits(bits uint16) (Type, uint16) {
	return Type(bits >> 12), bits & permMask
}

// ToFileMode converts a type tag + permission bits to a standard
// io/fs.FileMode, for exposure to callers that want Go stdlib semantics
// (e.g. the permission column printed by cmd/lardfsls).
func ToFileMode(t Type, perm uint16) fs.FileMode {
	m := fs.FileMode(perm & 0o777)
	switch t {
	case TypeDirectory:
		m |= fs.ModeDir
	case TypeSymlink:
		m |= fs.ModeSymlink
	}
	if perm&permSetuid != 0 {
		m |= fs.ModeSetuid
	}
	if perm&permSetgid != 0 {
		m |= fs.ModeSetgid
	}
	if perm&permSticky != 0 {
		m |= fs.ModeSticky
	}
	return m
}

// FromFileMode converts a standard io/fs.FileMode into a LARDFS type
// tag and permission bits. Only the three LARDFS-supported types are
// recognized; anything else (devices, sockets, pipes) maps to
// TypeRegular, since LARDFS has no on-disk representation for them.
func FromFileMode(m fs.FileMode) (Type, uint16) {
	t := TypeRegular
	switch {
	case m&fs.ModeDir != 0:
		t = TypeDirectory
	case m&fs.ModeSymlink != 0:
		t = TypeSymlink
	}
	perm := uint16(m.Perm())
	if m&fs.ModeSetuid != 0 {
		perm |= permSetuid
	}
	if m&fs.ModeSetgid != 0 {
		perm |= permSetgid
	}
	if m&fs.ModeSticky != 0 {
		perm |= permSticky
	}
	return t, perm
}

// Raw Unix st_mode bits, for callers (the FUSE adapter) that need the
// actual on-the-wire representation rather than Go's io/fs.FileMode.
const (
	unixIFREG = 0x8000
	unixIFDIR = 0x4000
	unixIFLNK = 0xa000
	unixISUID = 0x800
	unixISGID = 0x400
	unixISVTX = 0x200
)

// ToUnixMode packs a type tag and permission bits into a raw Unix
// st_mode value, the form fuse.Attr.Mode expects.
func ToUnixMode(t Type, perm uint16) uint32 {
	m := uint32(perm & 0o777)
	switch t {
	case TypeDirectory:
		m |= unixIFDIR
	case TypeSymlink:
		m |= unixIFLNK
	default:
		m |= unixIFREG
	}
	if perm&permSetuid != 0 {
		m |= unixISUID
	}
	if perm&permSetgid != 0 {
		m |= unixISGID
	}
	if perm&permSticky != 0 {
		m |= unixISVTX
	}
	return m
}
