// internal/fsutil/atomic.go
//
// Atomic replace-by-rename for files that carry secrets.
//
// Context
// -------
// `WriteFile` writes through `<path>.tmp` created with the caller's mode,
// then renames it over path.  A stale tmp file from an earlier crash is
// removed first.  On any failure the tmp file is removed and path is left
// exactly as it was.  `before` runs between a successful write and the
// rename; the config store uses it to drop its caches.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// Error reports which step of an atomic write failed.
type Error struct {
	Op   string // remove, create, write, rename
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// WriteFile atomically replaces path with the bytes produced by write.
func WriteFile(fsys afero.Fs, path string, perm os.FileMode, write func(io.Writer) error, before func()) error {
	tmp := path + ".tmp"
	if err := fsys.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "remove", Path: tmp, Err: err}
	}
	defer func() {
		if _, statErr := fsys.Stat(tmp); statErr == nil {
			_ = fsys.Remove(tmp)
		}
	}()

	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return &Error{Op: "create", Path: tmp, Err: err}
	}
	writeErr := write(f)
	closeErr := f.Close()
	if writeErr != nil {
		return &Error{Op: "write", Path: tmp, Err: writeErr}
	}
	if closeErr != nil {
		return &Error{Op: "write", Path: tmp, Err: closeErr}
	}

	if before != nil {
		before()
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return &Error{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// WriteBytes is WriteFile for a ready buffer.
func WriteBytes(fsys afero.Fs, path string, perm os.FileMode, data []byte) error {
	return WriteFile(fsys, path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, nil)
}
