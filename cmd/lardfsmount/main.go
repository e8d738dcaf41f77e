//go:build fuse

// Command lardfsmount mounts a LARDFS image as a real filesystem via
// FUSE.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lardfs/lardfs"
)

func main() {
	var debug = flag.Bool("debug", false, "log every FUSE request")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] image mountpoint\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	imagePath, mountpoint := flag.Arg(0), flag.Arg(1)

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		log.Fatalf("lardfsmount: %s", err)
	}
	defer f.Close()

	fsys, err := lardfs.OpenImage(f)
	if err != nil {
		log.Fatalf("lardfsmount: %s", err)
	}
	defer fsys.Close()

	server, err := lardfs.Mount(mountpoint, fsys, *debug)
	if err != nil {
		log.Fatalf("lardfsmount: %s", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("lardfsmount: unmounting %s", mountpoint)
		if err := server.Unmount(); err != nil {
			log.Printf("lardfsmount: unmount: %s", err)
		}
	}()

	log.Printf("lardfsmount: %s mounted at %s", imagePath, mountpoint)
	server.Wait()
}
