package mbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dhcgn/pst-viewer/native"
)

// FileName is the name readpst gives the mbox file inside each folder directory.
const FileName = "mbox"

// OpenTree opens dir as an archive: every sub-directory is a folder and its
// messages live in the mbox file it contains. cleanup, if not nil, runs on Close.
func OpenTree(dir string, cleanup func() error) (native.Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open mbox tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open mbox tree: %s is not a directory", dir)
	}
	return &tree{root: dir, cleanup: cleanup}, nil
}

type tree struct {
	root    string
	cleanup func() error
}

func (t *tree) Root() (native.Folder, error) {
	return &Folder{dir: t.root}, nil
}

func (t *tree) Close() error {
	if t.cleanup == nil {
		return nil
	}
	return t.cleanup()
}

// Folder is one directory of the tree.
type Folder struct {
	dir string

	subs  []string
	count int
	// loaded tracks which lazy lookups have run.
	subsLoaded, countLoaded bool
}

func (f *Folder) Name() (string, error) {
	return filepath.Base(f.dir), nil
}

func (f *Folder) subDirs() ([]string, error) {
	if f.subsLoaded {
		return f.subs, nil
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", f.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			f.subs = append(f.subs, e.Name())
		}
	}
	sort.Strings(f.subs)
	f.subsLoaded = true
	return f.subs, nil
}

func (f *Folder) SubFolderCount() (int, error) {
	subs, err := f.subDirs()
	return len(subs), err
}

func (f *Folder) SubFolder(i int) (native.Folder, error) {
	subs, err := f.subDirs()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(subs) {
		return nil, fmt.Errorf("sub-folder %d of %s: out of range", i, f.dir)
	}
	return &Folder{dir: filepath.Join(f.dir, subs[i])}, nil
}

func (f *Folder) mboxPath() string {
	return filepath.Join(f.dir, FileName)
}

func (f *Folder) MessageCount() (int, error) {
	if f.countLoaded {
		return f.count, nil
	}
	count, err := CountMessages(f.mboxPath())
	if errors.Is(err, fs.ErrNotExist) {
		count, err = 0, nil
	}
	if err != nil {
		return 0, err
	}
	f.count, f.countLoaded = count, true
	return count, nil
}

func (f *Folder) EachMessage(fn func(i int, m native.Message) error) error {
	err := Read(f.mboxPath(), func(idx int, raw []byte) error {
		msg, err := Parse(raw)
		if err != nil {
			// Positions must stay aligned with Message(i).
			msg = &Message{}
		}
		return fn(idx, msg)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *Folder) Message(i int) (native.Message, error) {
	var (
		found    []byte
		foundIdx = -1
	)
	err := Read(f.mboxPath(), func(idx int, raw []byte) error {
		if idx == i {
			found, foundIdx = raw, idx
			return ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if foundIdx < 0 {
		return nil, fmt.Errorf("message %d of %s: out of range", i, f.dir)
	}
	return Parse(found)
}
