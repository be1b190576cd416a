// Package filesys provides the file system seams lazyresolve needs: reading
// the config file and writing it back atomically. Implementations delegate
// to the standard library so callers can be tested against mocks.
package filesys

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lc/lazyresolve/internal/log"
)

// ReadFS is the surface the config loader needs.
type ReadFS interface {
	Open(string) (*os.File, error)
}

// FileOps is what AtomicWrite needs.
type FileOps interface {
	Open(string) (*os.File, error)
	MkdirAll(string, os.FileMode) error
	CreateTemp(string, string) (*os.File, error)
	Rename(string, string) error
	Remove(string) error
	Chmod(string, os.FileMode) error
}

// OS returns a file system implementation that delegates to the standard library.
func OS() OsFS {
	return OsFS{}
}

// OsFS implements ReadFS and FileOps against the local disk.
type OsFS struct{}

func (OsFS) Open(p string) (*os.File, error)              { return os.Open(p) }
func (OsFS) MkdirAll(p string, m os.FileMode) error       { return os.MkdirAll(p, m) }
func (OsFS) CreateTemp(dir, pat string) (*os.File, error) { return os.CreateTemp(dir, pat) }
func (OsFS) Rename(old, newName string) error             { return os.Rename(old, newName) }
func (OsFS) Remove(p string) error                        { return os.Remove(p) }
func (OsFS) Chmod(p string, m os.FileMode) error          { return os.Chmod(p, m) }

var (
	_ ReadFS  = OsFS{}
	_ FileOps = OsFS{}
)

// AtomicWrite atomically persists data to dst with the provided file mode:
//
//  1. temp file in the same dir
//  2. fsync(temp) + close
//  3. chmod(temp, perm)  (so rename doesn't carry 0600 default)
//  4. rename(temp, dst)
//  5. fsync(dir)
func AtomicWrite(ops FileOps, dst string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(dst)
	tmp, err := ops.CreateTemp(dir, ".lazyresolve-*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err == nil {
		err = ops.Chmod(tmp.Name(), perm)
	}
	if err == nil {
		err = ops.Rename(tmp.Name(), dst)
	}
	if err != nil {
		if removeErr := ops.Remove(tmp.Name()); removeErr != nil {
			log.Warn("filesys: failed to remove temp file", "path", tmp.Name(), "error", removeErr)
		}
		return err
	}

	if d, err := ops.Open(dir); err == nil {
		if syncErr := d.Sync(); syncErr != nil {
			log.Warn("filesys: failed to sync directory", "path", dir, "error", syncErr)
		}
		if closeErr := d.Close(); closeErr != nil {
			log.Warn("filesys: failed to close directory", "path", dir, "error", closeErr)
		}
	}
	return nil
}
