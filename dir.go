package lardfs

// DirEntry is a decoded directory entry: an inode number plus a name.
// Entries with Inumber==0 and an empty Name are holes left by Remove,
// skipped by readDir.
type DirEntry struct {
	Inumber uint32
	Name    string
}

// dirEngine layers 32-byte directory entries on top of the file
// engine.
type dirEngine struct {
	fe    *fileEngine
	table *inodeTable
}

func newDirEngine(fe *fileEngine, table *inodeTable) *dirEngine {
	return &dirEngine{fe: fe, table: table}
}

// readDir returns every non-hole entry in parent, in on-disk order.
func (de *dirEngine) readDir(parent *Inode) ([]DirEntry, error) {
	data, err := de.fe.read(parent)
	if err != nil {
		return nil, err
	}
	count := len(data) / dirEntrySize
	out := make([]DirEntry, 0, count)
	for i := 0; i < count; i++ {
		rec, err := unmarshalDirEntry(data[i*dirEntrySize : (i+1)*dirEntrySize])
		if err != nil {
			return nil, err
		}
		if rec.Inumber == 0 && rec.Name == "" {
			continue
		}
		out = append(out, DirEntry{Inumber: rec.Inumber, Name: rec.Name})
	}
	return out, nil
}

// rawEntries returns every slot including holes, for add's first-fit
// scan.
func (de *dirEngine) rawEntries(parent *Inode) ([]DirEntry, error) {
	data, err := de.fe.read(parent)
	if err != nil {
		return nil, err
	}
	count := len(data) / dirEntrySize
	out := make([]DirEntry, count)
	for i := 0; i < count; i++ {
		rec, err := unmarshalDirEntry(data[i*dirEntrySize : (i+1)*dirEntrySize])
		if err != nil {
			return nil, err
		}
		out[i] = DirEntry{Inumber: rec.Inumber, Name: rec.Name}
	}
	return out, nil
}

func validDirName(name string) bool {
	if len(name) == 0 || len(name) > dirNameSize {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return false
		}
	}
	return true
}

// add writes a new entry (childInumber, name) into parent, reusing the
// first empty hole or appending. bumpParentLink is true
// when this entry represents a back-reference to parent from a
// directory (the name-in-parent entry for a new subdirectory, or a
// directory's own "." entry) and false when the back-reference was
// already credited elsewhere (a plain file/symlink entry, or a ".."
// entry, whose credit happened when the subdirectory's name entry was
// written into its parent).
func (de *dirEngine) add(parent *Inode, childInumber uint32, bumpParentLink bool, name string) error {
	if !validDirName(name) {
		return newErr("add", KindNameTooLong)
	}
	entries, err := de.rawEntries(parent)
	if err != nil {
		return err
	}

	payload, err := marshalDirEntry(childInumber, name)
	if err != nil {
		return newErr("add", KindNameTooLong)
	}

	offset := -1
	for i, e := range entries {
		if e.Inumber == 0 && e.Name == "" {
			offset = i * dirEntrySize
			break
		}
	}
	if offset == -1 {
		offset = len(entries) * dirEntrySize
	}

	if err := de.fe.write(parent, uint32(offset), payload); err != nil {
		return err
	}

	if bumpParentLink {
		parent.LinkCount++
		if err := de.table.put(parent); err != nil {
			return err
		}
	}
	return nil
}

// setEntry rewrites the inumber of an existing entry named name in
// dir, leaving the name and link counts untouched. Used by rename to
// repoint a moved directory's ".." entry at its new parent.
func (de *dirEngine) setEntry(dir *Inode, name string, newInumber uint32) error {
	entries, err := de.rawEntries(dir)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.Name == name {
			payload, err := marshalDirEntry(newInumber, name)
			if err != nil {
				return err
			}
			return de.fe.write(dir, uint32(i*dirEntrySize), payload)
		}
	}
	return newErr("setEntry", KindNotFound)
}

// remove zeroes the entry named name in parent and adjusts link
// counts. It does not compact the directory.
func (de *dirEngine) remove(parent *Inode, child *Inode, name string) error {
	entries, err := de.rawEntries(parent)
	if err != nil {
		return err
	}
	found := -1
	for i, e := range entries {
		if e.Name == name {
			found = i
			break
		}
	}
	if found == -1 {
		return newErr("remove", KindNotFound)
	}

	zero := make([]byte, dirEntrySize)
	if err := de.fe.write(parent, uint32(found*dirEntrySize), zero); err != nil {
		return err
	}

	if child.LinkCount > 0 {
		child.LinkCount--
	}
	if err := de.table.put(child); err != nil {
		return err
	}

	if child.IsDir() {
		if parent.LinkCount > 0 {
			parent.LinkCount--
		}
		if err := de.table.put(parent); err != nil {
			return err
		}
	}
	return nil
}

// lookup linearly scans parent for name, case-sensitive.
func (de *dirEngine) lookup(parent *Inode, name string) (uint32, error) {
	entries, err := de.readDir(parent)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Inumber, nil
		}
	}
	return 0, newErr("lookup", KindNotFound)
}

// isEmpty reports whether dir has no entries besides "." and "..".
func (de *dirEngine) isEmpty(dir *Inode) (bool, error) {
	entries, err := de.readDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			return false, nil
		}
	}
	return true, nil
}
