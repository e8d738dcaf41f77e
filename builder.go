package lardfs

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// buildNode is one staged entry in a Builder's in-memory tree, not yet
// written to an image.
type buildNode struct {
	name     string
	typ      Type
	perm     uint16
	data     []byte // regular file content, or symlink target bytes
	children []*buildNode
}

// Builder assembles an in-memory file tree and formats it onto a fresh
// image in one pass, accepting either programmatic staging or a host
// fs.FS walked with fs.WalkDir via Add.
type Builder struct {
	capacity int64
	ssize    uint32
	ifactor  float64

	root *buildNode
	// byPath indexes every staged node by its slash-separated path
	// ("" for root).
	byPath map[string]*buildNode

	srcFS    fs.FS
	uid, gid uint32
}

// NewBuilder prepares a builder that will format an image of the given
// capacity (bytes), sector size, and inode-reservation fraction (see
// ComputeGeometry; pass DefaultIfactor when unsure).
func NewBuilder(capacity int64, ssize uint32, ifactor float64) *Builder {
	root := &buildNode{name: "", typ: TypeDirectory, perm: 0o755}
	return &Builder{
		capacity: capacity,
		ssize:    ssize,
		ifactor:  ifactor,
		root:     root,
		byPath:   map[string]*buildNode{"": root},
	}
}

// SetSourceFS sets the filesystem Add reads file/symlink content from.
func (b *Builder) SetSourceFS(srcFS fs.FS) {
	b.srcFS = srcFS
}

// SetOwner sets the uid/gid that Build stamps on every node it creates,
// including nodes staged before the call.
func (b *Builder) SetOwner(uid, gid uint32) {
	b.uid, b.gid = uid, gid
}

func cleanPath(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

func parentOf(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

func baseOf(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return p
	}
	return p[i+1:]
}

func (b *Builder) insert(p string, n *buildNode) error {
	parentPath := parentOf(p)
	parent, ok := b.byPath[parentPath]
	if !ok {
		return fmt.Errorf("lardfs: builder: parent directory %q not staged before %q", parentPath, p)
	}
	if parent.typ != TypeDirectory {
		return fmt.Errorf("lardfs: builder: parent %q is not a directory", parentPath)
	}
	parent.children = append(parent.children, n)
	b.byPath[p] = n
	return nil
}

// AddDir stages an empty directory at path, creating it directly;
// intermediate directories must already be staged.
func (b *Builder) AddDir(p string, perm uint16) error {
	p = cleanPath(p)
	if p == "" {
		return nil
	}
	n := &buildNode{name: baseOf(p), typ: TypeDirectory, perm: perm}
	return b.insert(p, n)
}

// AddFile stages a regular file with the given content.
func (b *Builder) AddFile(p string, perm uint16, data []byte) error {
	p = cleanPath(p)
	n := &buildNode{name: baseOf(p), typ: TypeRegular, perm: perm, data: data}
	return b.insert(p, n)
}

// AddSymlink stages a symbolic link whose content is target.
func (b *Builder) AddSymlink(p string, target string) error {
	p = cleanPath(p)
	n := &buildNode{name: baseOf(p), typ: TypeSymlink, perm: 0o777, data: []byte(target)}
	return b.insert(p, n)
}

// Add is compatible with fs.WalkDirFunc:
//
//	fs.WalkDir(srcFS, ".", builder.Add)
//
// staging every visited entry using SetSourceFS's filesystem for
// content.
func (b *Builder) Add(p string, d fs.DirEntry, walkErr error) error {
	if walkErr != nil {
		return walkErr
	}
	clean := cleanPath(p)
	if clean == "" {
		return nil
	}
	info, err := d.Info()
	if err != nil {
		return err
	}
	switch {
	case info.IsDir():
		return b.AddDir(clean, uint16(info.Mode().Perm()))
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := readLinkFS(b.srcFS, p)
		if err != nil {
			return err
		}
		return b.AddSymlink(clean, target)
	case info.Mode().IsRegular():
		data, err := fs.ReadFile(b.srcFS, p)
		if err != nil {
			return err
		}
		return b.AddFile(clean, uint16(info.Mode().Perm()), data)
	default:
		return fmt.Errorf("lardfs: builder: %q has unsupported mode %v", p, info.Mode())
	}
}

// symlinkReaderFS is satisfied by an fs.FS that can report a symlink's
// target; io/fs carries no such interface as of the Go version this
// module targets, so callers staging symlinks from a host tree supply
// one (os.DirFS-wrapped trees commonly do via a thin adapter).
type symlinkReaderFS interface {
	ReadLink(name string) (string, error)
}

func readLinkFS(srcFS fs.FS, p string) (string, error) {
	rl, ok := srcFS.(symlinkReaderFS)
	if !ok {
		return "", fmt.Errorf("lardfs: builder: source fs does not support symlinks, cannot stage %q", p)
	}
	return rl.ReadLink(p)
}

// Build formats f as a fresh image of the builder's geometry and
// materializes the staged tree onto it via the ordinary Filesystem
// operations (Mkdir/Create/Symlink/Write) — reusing the same
// write-through engine a mounted filesystem would use, rather than
// poking sectors directly, so a built image and a hand-assembled one
// are produced by identical code paths.
func (b *Builder) Build(f *os.File) (*Filesystem, error) {
	geo, err := ComputeGeometry(b.capacity, b.ssize, b.ifactor)
	if err != nil {
		return nil, err
	}
	fsys, err := FormatImage(f, geo)
	if err != nil {
		return nil, err
	}
	if err := b.materialize(fsys, RootIno, b.root); err != nil {
		return nil, err
	}
	return fsys, nil
}

func (b *Builder) materialize(fsys *Filesystem, parentIno uint64, parent *buildNode) error {
	children := append([]*buildNode(nil), parent.children...)
	sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })

	for _, n := range children {
		switch n.typ {
		case TypeDirectory:
			attr, err := fsys.Mkdir(parentIno, n.name, n.perm, b.uid, b.gid)
			if err != nil {
				return fmt.Errorf("lardfs: builder: mkdir %q: %w", n.name, err)
			}
			if err := b.materialize(fsys, attr.Ino, n); err != nil {
				return err
			}
		case TypeRegular:
			attr, err := fsys.Create(parentIno, n.name, n.perm, b.uid, b.gid)
			if err != nil {
				return fmt.Errorf("lardfs: builder: create %q: %w", n.name, err)
			}
			if len(n.data) > 0 {
				if _, err := fsys.Write(attr.Ino, 0, n.data); err != nil {
					return fmt.Errorf("lardfs: builder: write %q: %w", n.name, err)
				}
			}
		case TypeSymlink:
			if _, err := fsys.Symlink(parentIno, n.name, string(n.data), b.uid, b.gid); err != nil {
				return fmt.Errorf("lardfs: builder: symlink %q: %w", n.name, err)
			}
		}
	}
	return nil
}
