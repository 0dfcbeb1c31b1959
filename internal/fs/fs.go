// Package fs collects the filesystem primitives the installer needs beyond
// what the standard library provides directly: a non-overwriting recursive
// copy for populating a shared store entry, directory-emptiness probes, and
// symlink/junction creation for a dependency's link farm entry.
package fs

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var errSrcNotDir = errors.New("source is not a directory")

// CopyDirMerge recursively copies a directory tree into dst without
// overwriting any file that already exists there. This is what the
// installer uses to populate a store entry: the entry may already hold
// content from a prior install of the same locator, and extraction must be
// idempotent rather than clobber it.
func CopyDirMerge(src, dst string) error {
	src = filepath.Clean(src)
	dst = filepath.Clean(dst)

	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return errSrcNotDir
	}

	if err := os.MkdirAll(dst, fi.Mode()); err != nil {
		return errors.Wrapf(err, "cannot mkdir %s", dst)
	}

	entries, err := ioutil.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "cannot read directory %s", src)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := CopyDirMerge(srcPath, dstPath); err != nil {
				return errors.Wrap(err, "copying directory failed")
			}
			continue
		}

		if _, err := os.Lstat(dstPath); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "cannot stat %s", dstPath)
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return errors.Wrap(err, "copying file failed")
		}
	}

	return nil
}

// copyFile copies the contents of the file named src to the file named
// by dst, preserving permissions and symlinks.
func copyFile(src, dst string) (err error) {
	if sym, err := IsSymlink(src); err != nil {
		return errors.Wrap(err, "symlink check failed")
	} else if sym {
		return cloneSymlink(src, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}

	si, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, si.Mode())
}

// cloneSymlink creates a new symlink that points to the resolved path of sl.
func cloneSymlink(sl, dst string) error {
	resolved, err := os.Readlink(sl)
	if err != nil {
		return err
	}
	return os.Symlink(resolved, dst)
}

// IsEmptyDirOrNotExist is true if name is a directory and is empty, or
// doesn't exist. Returns an error when name is a file or on other fs/io
// errors. This is the predicate the installer uses before opportunistically
// removing a directory that emptied out during reconciliation.
func IsEmptyDirOrNotExist(name string) (bool, error) {
	entries, err := ioutil.ReadDir(name)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return len(entries) == 0, nil
}

// IsSymlink determines if the given path is a symbolic link.
func IsSymlink(path string) (bool, error) {
	l, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return l.Mode()&os.ModeSymlink == os.ModeSymlink, nil
}

// SymlinkTargetEquals reports whether path is a symlink whose target equals
// want, tolerating a missing path (returns false, nil).
func SymlinkTargetEquals(path, want string) (bool, error) {
	sym, err := IsSymlink(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !sym {
		return false, nil
	}
	got, err := os.Readlink(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// RemoveIfExists removes path, tolerating its absence.
func RemoveIfExists(path string) error {
	err := os.RemoveAll(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cannot remove %s", path)
	}
	return nil
}

// CreatePackageLink creates the on-disk artifact a dependency edge is
// represented by: a relative symlink on POSIX platforms, or an NTFS
// junction pointing at absTarget on Windows, where an unprivileged process
// cannot reliably create a directory symlink. linkPath's parent is created
// if necessary, and any existing entry at linkPath is removed first.
func CreatePackageLink(linkPath, relTarget, absTarget string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %s", filepath.Dir(linkPath))
	}
	if err := RemoveIfExists(linkPath); err != nil {
		return err
	}
	return createLink(linkPath, relTarget, absTarget)
}
