// Package storepath implements the pure path algebra of the content-addressed
// store: given a project root and a package locator, where does that
// package's hard-linked content live, and where does its own node_modules
// link farm live. Every function here is total and side-effect free; all
// filesystem mutation happens in the installer package.
package storepath

import (
	"path/filepath"

	"github.com/golang/pnpmlink/locator"
)

// StoreDirName is the directory under node_modules holding the content
// store.
const StoreDirName = ".store"

// NodeModulesRoot returns <projectRoot>/node_modules.
func NodeModulesRoot(projectRoot string) string {
	return filepath.Join(projectRoot, "node_modules")
}

// StoreRoot returns <projectRoot>/node_modules/.store.
func StoreRoot(projectRoot string) string {
	return filepath.Join(NodeModulesRoot(projectRoot), StoreDirName)
}

// VendorPath returns the "node_modules/<ident>" subpath a self-referencing
// package occupies within its own store entry.
func VendorPath(l locator.Locator) string {
	return filepath.Join("node_modules", l.Ident())
}

// PackageLocation computes the on-disk path at which a hard-linked package's
// content is materialised: <store>/<slug>/<prefix>, where prefix is either
// the package's vendor subpath (self-reference enabled) or "." (disabled).
func PackageLocation(l locator.Locator, projectRoot string, createSelfReference bool) string {
	base := filepath.Join(StoreRoot(projectRoot), locator.Slug(l))
	if createSelfReference {
		return filepath.Join(base, VendorPath(l))
	}
	return filepath.Join(base, ".")
}

// StoreEntryRoot returns the slug directory a package path lives under,
// i.e. <store>/<slug>, given PackageLocation's output for that package.
func StoreEntryRoot(projectRoot, pkgPath string) string {
	store := StoreRoot(projectRoot)
	rel, err := filepath.Rel(store, pkgPath)
	if err != nil {
		return ""
	}
	first := rel
	if idx := indexOfSeparator(rel); idx >= 0 {
		first = rel[:idx]
	}
	return filepath.Join(store, first)
}

func indexOfSeparator(p string) int {
	for i, r := range p {
		if r == filepath.Separator {
			return i
		}
	}
	return -1
}

// IsUnderStoreRoot reports whether pkgPath lives inside the project's store
// root (as opposed to, say, a soft-linked workspace path).
func IsUnderStoreRoot(projectRoot, pkgPath string) bool {
	store := StoreRoot(projectRoot)
	rel, err := filepath.Rel(store, pkgPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// LinkFarmDir computes the node_modules directory into which a package's
// own dependency symlinks are written, along with the store entry root that
// should be pruned of stray prior-regime leftovers (empty when the package
// is not a store entry, e.g. a soft-linked workspace).
//
// When pkgPath is inside the store root and ends in the package's own
// vendor suffix (self-reference enabled), the link farm is the store
// entry's inner node_modules, obtained by stripping the vendor suffix;
// otherwise it is pkgPath's own node_modules subdirectory.
func LinkFarmDir(l locator.Locator, projectRoot, pkgPath string) (nmPath string, storeEntryToClean string) {
	suffix := string(filepath.Separator) + VendorPath(l)
	if IsUnderStoreRoot(projectRoot, pkgPath) &&
		len(pkgPath) > len(suffix) && pkgPath[len(pkgPath)-len(suffix):] == suffix {
		storeEntry := pkgPath[:len(pkgPath)-len(suffix)]
		return filepath.Join(storeEntry, "node_modules"), storeEntry
	}
	return filepath.Join(pkgPath, "node_modules"), ""
}
