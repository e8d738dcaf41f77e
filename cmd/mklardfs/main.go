// Command mklardfs formats a fresh LARDFS image, optionally staging a
// host directory tree onto it in the same pass.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/lardfs/lardfs"
)

func main() {
	var (
		capacity = flag.Int64("capacity", 360*1024, "image capacity in bytes")
		ssize    = flag.Uint("ssize", 512, "sector size in bytes")
		ifactor  = flag.Float64("ifactor", lardfs.DefaultIfactor, "fraction of sectors reserved for inodes+imap")
		out      = flag.String("o", "lardfs.img", "output image path")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [source-dir]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	b := lardfs.NewBuilder(*capacity, uint32(*ssize), *ifactor)

	if flag.NArg() > 0 {
		srcDir := flag.Arg(0)
		srcFS := os.DirFS(srcDir)
		b.SetSourceFS(srcFS)
		if err := fs.WalkDir(srcFS, ".", b.Add); err != nil {
			log.Fatalf("mklardfs: staging %s: %s", srcDir, err)
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("mklardfs: %s", err)
	}
	defer f.Close()

	fsys, err := b.Build(f)
	if err != nil {
		log.Fatalf("mklardfs: %s", err)
	}
	defer fsys.Close()

	st := fsys.Statfs()
	log.Printf("wrote %s: %d bytes, sector size %d, %d/%d inodes free, %d/%d data sectors free",
		*out, *capacity, st.SSize, st.InodesFree, st.Inodes, st.BlocksFree, st.Blocks)
}
