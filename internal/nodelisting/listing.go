// Package nodelisting enumerates the real, on-disk contents of a package's
// node_modules directory, flattening scoped (@scope/name) entries into
// single composite keys so the installer can diff them against the set of
// dependency edges it is about to attach.
package nodelisting

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Entry describes one child the installer found in a node_modules
// directory, already flattened through any scope directory.
type Entry struct {
	// Key is the composite lookup key: "name" or "scope/name".
	Key string
	// Path is the entry's own path on disk (the scope dir itself, for an
	// empty scope).
	Path string
	// IsSymlink reports whether the entry is a symbolic link, the shape
	// every attached dependency takes.
	IsSymlink bool
}

// List enumerates nmPath's children, flattening scope directories. A
// missing nmPath is not an error: it returns an empty map, matching a
// package that has never had any dependencies attached.
func List(nmPath string) (map[string]Entry, error) {
	result := make(map[string]Entry)

	dirents, err := godirwalk.ReadDirents(nmPath, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, errors.Wrapf(err, "cannot list %s", nmPath)
	}
	dirents.Sort()

	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			// Reserves .store, .bin, etc.
			continue
		}

		entryPath := filepath.Join(nmPath, name)

		if !strings.HasPrefix(name, "@") {
			result[name] = Entry{Key: name, Path: entryPath, IsSymlink: de.IsSymlink()}
			continue
		}

		children, err := godirwalk.ReadDirents(entryPath, nil)
		if err != nil {
			if os.IsNotExist(err) {
				// Scope directory vanished mid-read; not our problem.
				continue
			}
			return nil, errors.Wrapf(err, "cannot list scope %s", entryPath)
		}
		if len(children) == 0 {
			// Expose the empty scope itself so it is eligible for cleanup.
			result[name] = Entry{Key: name, Path: entryPath}
			continue
		}
		for _, child := range children {
			key := name + "/" + child.Name()
			result[key] = Entry{
				Key:       key,
				Path:      filepath.Join(entryPath, child.Name()),
				IsSymlink: child.IsSymlink(),
			}
		}
	}

	return result, nil
}
