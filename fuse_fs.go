//go:build fuse

package lardfs

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fsNode adapts a Filesystem inode to go-fuse's fs.InodeEmbedder tree,
// built on go-fuse's higher-level fs package rather than the raw
// fuse.RawFileSystem API: LARDFS's externally-exposed inode numbers
// are already stable and 1-based, which is exactly what fs.StableAttr
// wants, so there's no inode-remapping layer needed.
type fsNode struct {
	fs.Inode
	fsys *Filesystem
	ino  uint64
}

var (
	_ fs.InodeEmbedder  = (*fsNode)(nil)
	_ fs.NodeLookuper   = (*fsNode)(nil)
	_ fs.NodeGetattrer  = (*fsNode)(nil)
	_ fs.NodeSetattrer  = (*fsNode)(nil)
	_ fs.NodeReaddirer  = (*fsNode)(nil)
	_ fs.NodeMkdirer    = (*fsNode)(nil)
	_ fs.NodeRmdirer    = (*fsNode)(nil)
	_ fs.NodeCreater    = (*fsNode)(nil)
	_ fs.NodeUnlinker   = (*fsNode)(nil)
	_ fs.NodeSymlinker  = (*fsNode)(nil)
	_ fs.NodeReadlinker = (*fsNode)(nil)
	_ fs.NodeLinker     = (*fsNode)(nil)
	_ fs.NodeRenamer    = (*fsNode)(nil)
	_ fs.NodeOpener     = (*fsNode)(nil)
	_ fs.NodeStatfser   = (*fsNode)(nil)
	_ fs.NodeForgetter  = (*fsNode)(nil)
)

func stableAttr(a *Attr) fs.StableAttr {
	var mode uint32
	switch a.Type {
	case TypeDirectory:
		mode = fuse.S_IFDIR
	case TypeSymlink:
		mode = fuse.S_IFLNK
	default:
		mode = fuse.S_IFREG
	}
	return fs.StableAttr{Mode: mode, Ino: a.Ino}
}

func (n *fsNode) newChild(ctx context.Context, a *Attr) *fs.Inode {
	return n.NewInode(ctx, &fsNode{fsys: n.fsys, ino: a.Ino}, stableAttr(a))
}

func fillAttr(out *fuse.Attr, a *Attr) {
	out.Ino = a.Ino
	out.Size = uint64(a.Size)
	out.Mode = ToUnixMode(a.Type, a.Perm)
	out.Nlink = uint32(a.LinkCount)
	out.Owner = fuse.Owner{Uid: a.UID, Gid: a.GID}
	out.Atime = uint64(a.Atime.Unix())
	out.Mtime = uint64(a.Mtime.Unix())
	out.Ctime = uint64(a.Ctime.Unix())
	out.Blksize = 512
	if a.Size > 0 {
		out.Blocks = (uint64(a.Size) + uint64(out.Blksize) - 1) / uint64(out.Blksize)
	}
}

func fillEntryOut(out *fuse.EntryOut, a *Attr) {
	out.NodeId = a.Ino
	fillAttr(&out.Attr, a)
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(time.Second)
}

// errnoOf translates a core *Error's Kind to the errno an adapter
// reports to the kernel.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return syscall.EIO
	}
	switch kind {
	case KindNotFound:
		return syscall.ENOENT
	case KindNameTooLong:
		return syscall.ENAMETOOLONG
	case KindNoInodes, KindNoSpace:
		return syscall.ENOSPC
	case KindNotEmpty:
		return syscall.ENOTEMPTY
	case KindBadOffset:
		return syscall.EINVAL
	case KindWrongType:
		return syscall.EINVAL
	case KindCorrupt:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

func (n *fsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	attr, err := n.fsys.Lookup(n.ino, name)
	if err != nil {
		return nil, errnoOf(err)
	}
	fillEntryOut(out, attr)
	return n.newChild(ctx, attr), 0
}

func (n *fsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fsys.Getattr(n.ino)
	if err != nil {
		return errnoOf(err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (n *fsNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var req SetattrRequest
	if sz, ok := in.GetSize(); ok {
		req.Size = &sz
	}
	if mode, ok := in.GetMode(); ok {
		perm := uint16(mode & 0o7777)
		req.Perm = &perm
	}
	if uid, ok := in.GetUID(); ok {
		req.UID = &uid
	}
	if gid, ok := in.GetGID(); ok {
		req.GID = &gid
	}
	if mt, ok := in.GetMTime(); ok {
		req.Mtime = &mt
	}
	if at, ok := in.GetATime(); ok {
		req.Atime = &at
	}
	attr, err := n.fsys.Setattr(n.ino, req)
	if err != nil {
		return errnoOf(err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (n *fsNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fsys.Readdir(n.ino)
	if err != nil {
		return nil, errnoOf(err)
	}
	out := make([]fuse.DirEntry, len(entries))
	for i, e := range entries {
		var mode uint32
		switch e.Type {
		case TypeDirectory:
			mode = fuse.S_IFDIR
		case TypeSymlink:
			mode = fuse.S_IFLNK
		default:
			mode = fuse.S_IFREG
		}
		out[i] = fuse.DirEntry{Name: e.Name, Ino: e.Ino, Mode: mode}
	}
	return fs.NewListDirStream(out), 0
}

func (n *fsNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	attr, err := n.fsys.Mkdir(n.ino, name, uint16(mode&0o7777), 0, 0)
	if err != nil {
		return nil, errnoOf(err)
	}
	fillEntryOut(out, attr)
	return n.newChild(ctx, attr), 0
}

func (n *fsNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.Rmdir(n.ino, name))
}

func (n *fsNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	attr, err := n.fsys.Create(n.ino, name, uint16(mode&0o7777), 0, 0)
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}
	fillEntryOut(out, attr)
	return n.newChild(ctx, attr), &fileHandle{fsys: n.fsys, ino: attr.Ino}, 0, 0
}

func (n *fsNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.Unlink(n.ino, name))
}

func (n *fsNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	attr, err := n.fsys.Symlink(n.ino, name, target, 0, 0)
	if err != nil {
		return nil, errnoOf(err)
	}
	fillEntryOut(out, attr)
	return n.newChild(ctx, attr), 0
}

func (n *fsNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.fsys.Readlink(n.ino)
	if err != nil {
		return nil, errnoOf(err)
	}
	return []byte(target), 0
}

// Link adds a second name for an existing inode without allocating a
// new one, so both names share the same data and attributes.
func (n *fsNode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	src, ok := target.(*fsNode)
	if !ok {
		return nil, syscall.EXDEV
	}
	attr, err := n.fsys.Link(src.ino, n.ino, name)
	if err != nil {
		return nil, errnoOf(err)
	}
	fillEntryOut(out, attr)
	return n.newChild(ctx, attr), 0
}

func (n *fsNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dst, ok := newParent.(*fsNode)
	if !ok {
		return syscall.EXDEV
	}
	return errnoOf(n.fsys.Rename(n.ino, name, dst.ino, newName))
}

func (n *fsNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if err := n.fsys.Open(n.ino); err != nil {
		return nil, 0, errnoOf(err)
	}
	return &fileHandle{fsys: n.fsys, ino: n.ino}, 0, 0
}

func (n *fsNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st := n.fsys.Statfs()
	out.Bsize = st.SSize
	out.Frsize = st.SSize
	out.Blocks = uint64(st.Blocks)
	out.Bfree = uint64(st.BlocksFree)
	out.Bavail = uint64(st.BlocksFree)
	out.Files = uint64(st.Inodes)
	out.Ffree = uint64(st.InodesFree)
	out.NameLen = dirNameSize
	return 0
}

// Forget reconciles go-fuse's own dentry-cache lifecycle (which already
// folds repeated kernel FORGET notifications into one call here) with
// the façade's lookup refcount: one outstanding reference is released
// per Lookup/Mkdir/Create/Symlink/Link reply this node ever produced.
func (n *fsNode) Forget() {
	_ = n.fsys.Forget(n.ino, 1)
}

// fileHandle is the per-Open handle for a regular file or symlink.
type fileHandle struct {
	fsys *Filesystem
	ino  uint64
}

var (
	_ fs.FileReader  = (*fileHandle)(nil)
	_ fs.FileWriter  = (*fileHandle)(nil)
	_ fs.FileFlusher = (*fileHandle)(nil)
	_ fs.FileFsyncer = (*fileHandle)(nil)
)

func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := fh.fsys.Read(fh.ino, off, dest)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (fh *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := fh.fsys.Write(fh.ino, off, data)
	if err != nil {
		return 0, errnoOf(err)
	}
	return uint32(n), 0
}

func (fh *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (fh *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return 0
}

// Mount exposes fsys at mountpoint until the returned server is
// unmounted or stopped.
func Mount(mountpoint string, fsys *Filesystem, debug bool) (*fuse.Server, error) {
	root := &fsNode{fsys: fsys, ino: RootIno}
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:  debug,
			FsName: "lardfs",
			Name:   "lardfs",
		},
	}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, fmt.Errorf("lardfs: mount %s: %w", mountpoint, err)
	}
	return server, nil
}
