// Command lardfsls inspects a LARDFS image read-only, without
// mounting it.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lardfs/lardfs"
)

const usage = `lardfsls - LARDFS CLI tool

Usage:
  lardfsls ls <image> [<path>]     List files in an image (optionally in a specific path)
  lardfsls cat <image> <file>      Display contents of a file in an image
  lardfsls info <image>            Display information about an image
  lardfsls help                    Show this help message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "ls":
		if len(os.Args) < 3 {
			fmt.Println("Error: missing image path")
			fmt.Println(usage)
			os.Exit(1)
		}
		path := "."
		if len(os.Args) > 3 {
			path = os.Args[3]
		}
		if err := listFiles(os.Args[2], path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "cat":
		if len(os.Args) < 4 {
			fmt.Println("Error: missing image path or target file")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := catFile(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "info":
		if len(os.Args) < 3 {
			fmt.Println("Error: missing image path")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := showInfo(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "help":
		fmt.Println(usage)

	default:
		fmt.Printf("Error: unknown command %q\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func openReadOnly(imagePath string) (*lardfs.Filesystem, func(), error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", imagePath, err)
	}
	fsys, err := lardfs.OpenImage(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open %s: %w", imagePath, err)
	}
	return fsys, func() { fsys.Close() }, nil
}

// resolve walks path segment by segment from the root inode via
// repeated Lookup calls; the façade has no io/fs.FS binding, so this
// is the lister's own path resolver.
func resolve(fsys *lardfs.Filesystem, path string) (*lardfs.Attr, error) {
	ino := lardfs.RootIno
	attr, err := fsys.Getattr(ino)
	if err != nil {
		return nil, err
	}
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return attr, nil
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		attr, err = fsys.Lookup(ino, seg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ino = attr.Ino
	}
	return attr, nil
}

func typeChar(t lardfs.Type) string {
	switch t {
	case lardfs.TypeDirectory:
		return "d"
	case lardfs.TypeSymlink:
		return "l"
	default:
		return "-"
	}
}

func printEntry(name string, attr *lardfs.Attr) {
	size := fmt.Sprintf("%8d", attr.Size)
	if attr.Type == lardfs.TypeDirectory {
		size = "       -"
	}
	fmt.Printf("%s%s %s %s %s\n",
		typeChar(attr.Type), lardfs.ToFileMode(attr.Type, attr.Perm).Perm(),
		size, attr.Mtime.Format("Jan 02 15:04"), name)
}

func listFiles(imagePath, path string) error {
	fsys, closeFn, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer closeFn()

	dirAttr, err := resolve(fsys, path)
	if err != nil {
		return fmt.Errorf("path %q not found: %w", path, err)
	}
	if dirAttr.Type != lardfs.TypeDirectory {
		return fmt.Errorf("%q is not a directory", path)
	}

	entries, err := fsys.Readdir(dirAttr.Ino)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", path, err)
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		attr, err := fsys.Getattr(e.Ino)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stat %q: %s\n", e.Name, err)
			continue
		}
		printEntry(e.Name, attr)
	}
	return nil
}

func catFile(imagePath, path string) error {
	fsys, closeFn, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer closeFn()

	attr, err := resolve(fsys, path)
	if err != nil {
		return fmt.Errorf("file %q not found: %w", path, err)
	}
	if attr.Type == lardfs.TypeDirectory {
		return fmt.Errorf("%q is a directory", path)
	}

	if err := fsys.Open(attr.Ino); err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	buf := make([]byte, attr.Size)
	if len(buf) > 0 {
		if _, err := fsys.Read(attr.Ino, 0, buf); err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func showInfo(imagePath string) error {
	fsys, closeFn, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer closeFn()

	st := fsys.Statfs()

	fmt.Println("LARDFS Image Information")
	fmt.Println("========================")
	fmt.Printf("Sector size:      %d bytes\n", st.SSize)
	fmt.Printf("Data sectors:     %d (%d free)\n", st.Blocks, st.BlocksFree)
	fmt.Printf("Inode slots:      %d (%d free)\n", st.Inodes, st.InodesFree)

	var fileCount, dirCount, symCount int
	countFilesAndDirs(fsys, lardfs.RootIno, &fileCount, &dirCount, &symCount)

	fmt.Println("\nContent Summary")
	fmt.Println("---------------")
	fmt.Printf("Directories:      %d\n", dirCount)
	fmt.Printf("Regular files:    %d\n", fileCount)
	fmt.Printf("Symlinks:         %d\n", symCount)
	return nil
}

func countFilesAndDirs(fsys *lardfs.Filesystem, dirIno uint64, fileCount, dirCount, symCount *int) {
	entries, err := fsys.Readdir(dirIno)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		switch e.Type {
		case lardfs.TypeDirectory:
			*dirCount++
			countFilesAndDirs(fsys, e.Ino, fileCount, dirCount, symCount)
		case lardfs.TypeSymlink:
			*symCount++
		default:
			*fileCount++
		}
	}
}
