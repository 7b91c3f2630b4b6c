package sources

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	gferrors "github.com/logflow/geoflow/pkg/errors"
)

// Walker enumerates regular files under a root directory.
type Walker struct {
	root   string
	ignore []string
}

// NewWalker validates root and returns a walker for it. A missing,
// non-directory or unreadable root is an AccessError.
//
// Files and directories under any ignore path are left out of the walk,
// as are the ".tmp-" files the writers create. An ignore path that is the
// root or one of its parents is dropped.
func NewWalker(root string, ignore ...string) (*Walker, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, gferrors.AccessError(root, err)
	}
	if !info.IsDir() {
		return nil, gferrors.AccessError(root, fs.ErrInvalid).WithContext("reason", "not a directory")
	}

	f, err := os.Open(root)
	if err != nil {
		return nil, gferrors.AccessError(root, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return nil, gferrors.AccessError(root, err)
	}

	w := &Walker{root: root}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, gferrors.AccessError(root, err)
	}
	for _, p := range ignore {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil || under(absRoot, abs) {
			continue
		}
		w.ignore = append(w.ignore, abs)
	}
	return w, nil
}

// under reports whether path is dir or lies inside it.
func under(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (w *Walker) ignored(path string) bool {
	if strings.Contains(filepath.Base(path), ".tmp-") {
		return true
	}
	if len(w.ignore) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, ig := range w.ignore {
		if under(abs, ig) {
			return true
		}
	}
	return false
}

// Files yields every regular file under the root in lexical order. Entries
// that cannot be read are yielded with a FileUnreadable error and skipped.
// The sequence is lazy; ranging over it again re-walks the tree.
func (w *Walker) Files() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
			if path != w.root && w.ignored(path) {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if err != nil {
				if !yield(path, gferrors.FileUnreadable(path, err)) {
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(path, nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// Listing is the materialized result of a walk.
type Listing struct {
	Files  []string
	Errors []error
}

// Collect walks the tree and returns the files plus the walk errors. A
// positive limit keeps only the first limit files.
func (w *Walker) Collect(limit int) Listing {
	var l Listing
	for path, err := range w.Files() {
		if err != nil {
			l.Errors = append(l.Errors, err)
			continue
		}
		if limit > 0 && len(l.Files) >= limit {
			break
		}
		l.Files = append(l.Files, path)
	}
	return l
}
