package lardfs_test

import (
	"bytes"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"

	"github.com/lardfs/lardfs"
)

func TestBuilderProgrammaticTree(t *testing.T) {
	b := lardfs.NewBuilder(64*1024, 512, 0.2)
	if err := b.AddDir("etc", 0o755); err != nil {
		t.Fatalf("AddDir: %s", err)
	}
	if err := b.AddFile("etc/motd", 0o644, []byte("hello, world!\n")); err != nil {
		t.Fatalf("AddFile: %s", err)
	}
	if err := b.AddSymlink("etc/alias", "motd"); err != nil {
		t.Fatalf("AddSymlink: %s", err)
	}

	f, err := os.CreateTemp(t.TempDir(), "lardfs-*.img")
	if err != nil {
		t.Fatalf("create temp image: %s", err)
	}
	defer f.Close()

	fsys, err := b.Build(f)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}
	defer fsys.Close()

	etc, err := fsys.Lookup(lardfs.RootIno, "etc")
	if err != nil {
		t.Fatalf("Lookup etc: %s", err)
	}
	motd, err := fsys.Lookup(etc.Ino, "motd")
	if err != nil {
		t.Fatalf("Lookup motd: %s", err)
	}
	buf := make([]byte, motd.Size)
	if _, err := fsys.Read(motd.Ino, 0, buf); err != nil {
		t.Fatalf("Read motd: %s", err)
	}
	if string(buf) != "hello, world!\n" {
		t.Errorf("got %q, want %q", buf, "hello, world!\n")
	}

	alias, err := fsys.Lookup(etc.Ino, "alias")
	if err != nil {
		t.Fatalf("Lookup alias: %s", err)
	}
	target, err := fsys.Readlink(alias.Ino)
	if err != nil {
		t.Fatalf("Readlink alias: %s", err)
	}
	if target != "motd" {
		t.Errorf("got %q, want %q", target, "motd")
	}
}

// symlinkFS adapts an fstest.MapFS with an extra ReadLink method, the
// interface builder.Add expects for staging symlinks from a host tree.
type symlinkFS struct {
	fstest.MapFS
	links map[string]string
}

func (s symlinkFS) ReadLink(name string) (string, error) {
	if target, ok := s.links[name]; ok {
		return target, nil
	}
	return "", os.ErrNotExist
}

func TestBuilderWalkDir(t *testing.T) {
	mapFS := fstest.MapFS{
		"var/big.txt": &fstest.MapFile{Data: bytes.Repeat([]byte("A"), 1337), Mode: 0o644},
	}
	srcFS := symlinkFS{MapFS: mapFS}

	b := lardfs.NewBuilder(64*1024, 512, 0.2)
	b.SetSourceFS(srcFS)
	if err := fs.WalkDir(srcFS, ".", b.Add); err != nil {
		t.Fatalf("walking source tree: %s", err)
	}

	f, err := os.CreateTemp(t.TempDir(), "lardfs-*.img")
	if err != nil {
		t.Fatalf("create temp image: %s", err)
	}
	defer f.Close()

	fsys, err := b.Build(f)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}
	defer fsys.Close()

	varDir, err := fsys.Lookup(lardfs.RootIno, "var")
	if err != nil {
		t.Fatalf("Lookup var: %s", err)
	}
	big, err := fsys.Lookup(varDir.Ino, "big.txt")
	if err != nil {
		t.Fatalf("Lookup big.txt: %s", err)
	}
	if big.Size != 1337 {
		t.Errorf("got size %d, want 1337", big.Size)
	}
}
