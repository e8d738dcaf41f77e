package lardfs

import (
	"os"
	"testing"
)

func TestStoreWriteReadSector(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "lardfs-store-*.img")
	if err != nil {
		t.Fatalf("create temp file: %s", err)
	}
	defer f.Close()

	sbRec := &superblockRecord{Magic: magicBytes, SSize: 512, NSectors: 8, IListP: 1, ImapP: 2, DPoolP: 3}
	s, err := formatStore(f, sbRec)
	if err != nil {
		t.Fatalf("formatStore: %s", err)
	}

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := s.writeSector(3, payload); err != nil {
		t.Fatalf("writeSector: %s", err)
	}
	got, err := s.readSector(3)
	if err != nil {
		t.Fatalf("readSector: %s", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestStoreWriteSectorWrongLength(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "lardfs-store-*.img")
	if err != nil {
		t.Fatalf("create temp file: %s", err)
	}
	defer f.Close()

	sbRec := &superblockRecord{Magic: magicBytes, SSize: 512, NSectors: 8, IListP: 1, ImapP: 2, DPoolP: 3}
	s, err := formatStore(f, sbRec)
	if err != nil {
		t.Fatalf("formatStore: %s", err)
	}
	if err := s.writeSector(0, make([]byte, 10)); err == nil {
		t.Errorf("expected error writing a short sector")
	}
}

func TestFormatStoreTruncatesAndWritesSuperblock(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "lardfs-store-*.img")
	if err != nil {
		t.Fatalf("create temp file: %s", err)
	}
	defer f.Close()

	sbRec := &superblockRecord{Magic: magicBytes, SSize: 512, NSectors: 8, IListP: 1, ImapP: 2, DPoolP: 3}
	s, err := formatStore(f, sbRec)
	if err != nil {
		t.Fatalf("formatStore: %s", err)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %s", err)
	}
	if info.Size() != 8*512 {
		t.Errorf("expected image truncated to %d bytes, got %d", 8*512, info.Size())
	}

	head, err := s.readSector(0)
	if err != nil {
		t.Fatalf("readSector(0): %s", err)
	}
	rec, err := unmarshalSuperblock(head[:superblockSize])
	if err != nil {
		t.Fatalf("unmarshalSuperblock: %s", err)
	}
	if *rec != *sbRec {
		t.Errorf("got %+v, want %+v", rec, sbRec)
	}
}
