package lardfs_test

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/lardfs/lardfs"
)

func newImage(t *testing.T, capacity int64, ssize uint32, ifactor float64) *lardfs.Filesystem {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "lardfs-*.img")
	if err != nil {
		t.Fatalf("create temp image: %s", err)
	}
	t.Cleanup(func() { f.Close() })

	geo, err := lardfs.ComputeGeometry(capacity, ssize, ifactor)
	if err != nil {
		t.Fatalf("compute geometry: %s", err)
	}
	fsys, err := lardfs.FormatImage(f, geo)
	if err != nil {
		t.Fatalf("format image: %s", err)
	}
	return fsys
}

// TestGeometryScenario is spec.md §8 scenario 1.
func TestGeometryScenario(t *testing.T) {
	geo, err := lardfs.ComputeGeometry(360*1024, 512, 0.1)
	if err != nil {
		t.Fatalf("ComputeGeometry: %s", err)
	}
	if geo.NSectors != 720 {
		t.Errorf("NSectors: got %d, want 720", geo.NSectors)
	}
	if geo.DataCount != 648 {
		t.Errorf("DataCount: got %d, want 648", geo.DataCount)
	}
	if geo.ImapCount != 6 {
		t.Errorf("ImapCount: got %d, want 6", geo.ImapCount)
	}
	if geo.IListP != 1 {
		t.Errorf("IListP: got %d, want 1", geo.IListP)
	}
	if geo.ImapP != 66 {
		t.Errorf("ImapP: got %d, want 66", geo.ImapP)
	}
	if geo.DPoolP != 72 {
		t.Errorf("DPoolP: got %d, want 72", geo.DPoolP)
	}
}

// TestMotdScenario is spec.md §8 scenario 2.
func TestMotdScenario(t *testing.T) {
	fsys := newImage(t, 360*1024, 512, 0.1)

	attr, err := fsys.Create(lardfs.RootIno, "motd", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	want := []byte("hello, world!\n")
	if _, err := fsys.Write(attr.Ino, 0, want); err != nil {
		t.Fatalf("Write: %s", err)
	}

	got := make([]byte, len(want))
	n, err := fsys.Read(attr.Ino, 0, got)
	if err != nil {
		t.Fatalf("Read: %s", err)
	}
	if !bytes.Equal(got[:n], want) {
		t.Errorf("read back %q, want %q", got[:n], want)
	}
}

// TestOverwriteScenario is spec.md §8 scenario 5.
func TestOverwriteScenario(t *testing.T) {
	fsys := newImage(t, 360*1024, 512, 0.1)

	attr, err := fsys.Create(lardfs.RootIno, "motd", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if _, err := fsys.Write(attr.Ino, 0, []byte("hello, world!\n")); err != nil {
		t.Fatalf("Write: %s", err)
	}

	if _, err := fsys.Write(attr.Ino, 0, []byte("weelp")); err != nil {
		t.Fatalf("Write: %s", err)
	}
	attr, err = fsys.Getattr(attr.Ino)
	if err != nil {
		t.Fatalf("Getattr: %s", err)
	}
	if attr.Size != 14 {
		t.Errorf("expected size unchanged at 14, got %d", attr.Size)
	}
	buf := make([]byte, attr.Size)
	if _, err := fsys.Read(attr.Ino, 0, buf); err != nil {
		t.Fatalf("Read: %s", err)
	}
	if string(buf) != "weelp, world!\n" {
		t.Errorf("got %q, want %q", buf, "weelp, world!\n")
	}

	if _, err := fsys.Write(attr.Ino, 7, []byte("thingy!\n")); err != nil {
		t.Fatalf("Write: %s", err)
	}
	attr, err = fsys.Getattr(attr.Ino)
	if err != nil {
		t.Fatalf("Getattr: %s", err)
	}
	if attr.Size != 15 {
		t.Errorf("expected size 15, got %d", attr.Size)
	}
	buf = make([]byte, attr.Size)
	if _, err := fsys.Read(attr.Ino, 0, buf); err != nil {
		t.Fatalf("Read: %s", err)
	}
	if string(buf) != "weelp, thingy!\n" {
		t.Errorf("got %q, want %q", buf, "weelp, thingy!\n")
	}
}

func TestMkdirLookupReaddir(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	d, err := fsys.Mkdir(lardfs.RootIno, "etc", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %s", err)
	}
	found, err := fsys.Lookup(lardfs.RootIno, "etc")
	if err != nil {
		t.Fatalf("Lookup: %s", err)
	}
	if found.Ino != d.Ino {
		t.Errorf("lookup returned ino %d, want %d", found.Ino, d.Ino)
	}

	if _, err := fsys.Create(d.Ino, "motd", 0o644, 0, 0); err != nil {
		t.Fatalf("Create: %s", err)
	}
	entries, err := fsys.Readdir(d.Ino)
	if err != nil {
		t.Fatalf("Readdir: %s", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	for _, want := range []string{".", "..", "motd"} {
		if !names[want] {
			t.Errorf("expected %q in readdir output, got %v", want, entries)
		}
	}
}

func TestRmdirRequiresEmpty(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	d, err := fsys.Mkdir(lardfs.RootIno, "etc", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %s", err)
	}
	if _, err := fsys.Create(d.Ino, "motd", 0o644, 0, 0); err != nil {
		t.Fatalf("Create: %s", err)
	}
	err = fsys.Rmdir(lardfs.RootIno, "etc")
	if !errors.Is(err, lardfs.ErrNotEmpty) {
		t.Errorf("expected ErrNotEmpty, got %v", err)
	}

	if err := fsys.Unlink(d.Ino, "motd"); err != nil {
		t.Fatalf("Unlink: %s", err)
	}
	if err := fsys.Rmdir(lardfs.RootIno, "etc"); err != nil {
		t.Errorf("Rmdir on an emptied directory: %s", err)
	}
	if _, err := fsys.Lookup(lardfs.RootIno, "etc"); !errors.Is(err, lardfs.ErrNotFound) {
		t.Errorf("expected ErrNotFound after rmdir, got %v", err)
	}
}

func TestRmdirDefersWipeForOutstandingLookup(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	d, err := fsys.Mkdir(lardfs.RootIno, "etc", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %s", err)
	}
	// Simulate an outstanding kernel dentry reference via Lookup.
	if _, err := fsys.Lookup(lardfs.RootIno, "etc"); err != nil {
		t.Fatalf("Lookup: %s", err)
	}
	if err := fsys.Rmdir(lardfs.RootIno, "etc"); err != nil {
		t.Fatalf("Rmdir: %s", err)
	}
	// The directory is unlinked from its parent but still resolvable by
	// inode number until every outstanding lookup is forgotten.
	if _, err := fsys.Getattr(d.Ino); err != nil {
		t.Errorf("expected directory to remain resolvable before Forget, got %s", err)
	}
	// Forget releases both the Mkdir-implicit and the explicit Lookup
	// reference.
	if err := fsys.Forget(d.Ino, 2); err != nil {
		t.Fatalf("Forget: %s", err)
	}
	if _, err := fsys.Getattr(d.Ino); !errors.Is(err, lardfs.ErrNotFound) {
		t.Errorf("expected directory wiped after final Forget, got %v", err)
	}
}

func TestUnlinkThenCreateReusesInode(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	a, err := fsys.Create(lardfs.RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if err := fsys.Unlink(lardfs.RootIno, "a"); err != nil {
		t.Fatalf("Unlink: %s", err)
	}
	b, err := fsys.Create(lardfs.RootIno, "b", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if b.Ino != a.Ino {
		t.Errorf("expected the freed inode to be reused, got a=%d b=%d", a.Ino, b.Ino)
	}
}

func TestHardLink(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	a, err := fsys.Create(lardfs.RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if _, err := fsys.Write(a.Ino, 0, []byte("payload")); err != nil {
		t.Fatalf("Write: %s", err)
	}
	linked, err := fsys.Link(a.Ino, lardfs.RootIno, "b")
	if err != nil {
		t.Fatalf("Link: %s", err)
	}
	if linked.Ino != a.Ino {
		t.Errorf("expected Link to point at the same inode, got %d vs %d", linked.Ino, a.Ino)
	}
	if linked.LinkCount != 2 {
		t.Errorf("expected link_count 2 after Link, got %d", linked.LinkCount)
	}

	if err := fsys.Unlink(lardfs.RootIno, "a"); err != nil {
		t.Fatalf("Unlink a: %s", err)
	}
	// The content must still be reachable via the surviving name.
	buf := make([]byte, len("payload"))
	if _, err := fsys.Read(a.Ino, 0, buf); err != nil {
		t.Fatalf("Read after unlinking one of two names: %s", err)
	}
	if string(buf) != "payload" {
		t.Errorf("got %q, want %q", buf, "payload")
	}
}

func TestSymlinkReadlink(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	if _, err := fsys.Create(lardfs.RootIno, "real", 0o644, 0, 0); err != nil {
		t.Fatalf("Create: %s", err)
	}
	link, err := fsys.Symlink(lardfs.RootIno, "link", "real", 0, 0)
	if err != nil {
		t.Fatalf("Symlink: %s", err)
	}
	if link.Type != lardfs.TypeSymlink {
		t.Errorf("expected a symlink-typed attr, got %v", link.Type)
	}
	target, err := fsys.Readlink(link.Ino)
	if err != nil {
		t.Fatalf("Readlink: %s", err)
	}
	if target != "real" {
		t.Errorf("got %q, want %q", target, "real")
	}
}

func TestRenameSameDirectory(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	a, err := fsys.Create(lardfs.RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if err := fsys.Rename(lardfs.RootIno, "a", lardfs.RootIno, "b"); err != nil {
		t.Fatalf("Rename: %s", err)
	}
	if _, err := fsys.Lookup(lardfs.RootIno, "a"); !errors.Is(err, lardfs.ErrNotFound) {
		t.Errorf("expected old name gone, got %v", err)
	}
	found, err := fsys.Lookup(lardfs.RootIno, "b")
	if err != nil {
		t.Fatalf("Lookup b: %s", err)
	}
	if found.Ino != a.Ino {
		t.Errorf("expected renamed entry to point at the same inode, got %d vs %d", found.Ino, a.Ino)
	}
}

func TestRenameDirectoryAcrossParentsRewritesDotDot(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	src, err := fsys.Mkdir(lardfs.RootIno, "src", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir src: %s", err)
	}
	dst, err := fsys.Mkdir(lardfs.RootIno, "dst", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir dst: %s", err)
	}
	moved, err := fsys.Mkdir(src.Ino, "moved", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir moved: %s", err)
	}

	if err := fsys.Rename(src.Ino, "moved", dst.Ino, "moved"); err != nil {
		t.Fatalf("Rename: %s", err)
	}

	found, err := fsys.Lookup(dst.Ino, "moved")
	if err != nil {
		t.Fatalf("Lookup moved under dst: %s", err)
	}
	if found.Ino != moved.Ino {
		t.Errorf("expected the same inode after rename, got %d vs %d", found.Ino, moved.Ino)
	}

	entries, err := fsys.Readdir(moved.Ino)
	if err != nil {
		t.Fatalf("Readdir moved: %s", err)
	}
	var dotdot uint64
	for _, e := range entries {
		if e.Name == ".." {
			dotdot = e.Ino
		}
	}
	if dotdot != dst.Ino {
		t.Errorf("expected '..' to now point at dst (%d), got %d", dst.Ino, dotdot)
	}

	if _, err := fsys.Lookup(src.Ino, "moved"); !errors.Is(err, lardfs.ErrNotFound) {
		t.Errorf("expected old name gone from src, got %v", err)
	}
}

func TestNoHoleWritesThroughFacade(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	attr, err := fsys.Create(lardfs.RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if _, err := fsys.Write(attr.Ino, 0, []byte("abc")); err != nil {
		t.Fatalf("Write: %s", err)
	}
	_, err = fsys.Write(attr.Ino, 10, []byte("x"))
	if !errors.Is(err, lardfs.ErrBadOffset) {
		t.Errorf("expected ErrBadOffset for a hole write, got %v", err)
	}
}

func TestSetattr(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	attr, err := fsys.Create(lardfs.RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	perm := uint16(0o600)
	uid := uint32(42)
	updated, err := fsys.Setattr(attr.Ino, lardfs.SetattrRequest{Perm: &perm, UID: &uid})
	if err != nil {
		t.Fatalf("Setattr: %s", err)
	}
	if updated.Perm != 0o600 || updated.UID != 42 {
		t.Errorf("got perm=%o uid=%d, want perm=0600 uid=42", updated.Perm, updated.UID)
	}
}

func TestStatfs(t *testing.T) {
	fsys := newImage(t, 360*1024, 512, 0.1)

	st := fsys.Statfs()
	if st.SSize != 512 {
		t.Errorf("SSize: got %d, want 512", st.SSize)
	}
	if st.Blocks != 648 {
		t.Errorf("Blocks: got %d, want 648", st.Blocks)
	}
	if st.BlocksFree != st.Blocks-1 {
		t.Errorf("expected one sector consumed by the root directory: got %d free of %d", st.BlocksFree, st.Blocks)
	}
}

func TestWrongTypeErrors(t *testing.T) {
	fsys := newImage(t, 64*1024, 512, 0.2)

	attr, err := fsys.Create(lardfs.RootIno, "a", 0o644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	if _, err := fsys.Readdir(attr.Ino); !errors.Is(err, lardfs.ErrWrongType) {
		t.Errorf("expected ErrWrongType reading a regular file as a directory, got %v", err)
	}
	if err := fsys.Open(lardfs.RootIno); !errors.Is(err, lardfs.ErrWrongType) {
		t.Errorf("expected ErrWrongType opening the root directory as a file, got %v", err)
	}
}
