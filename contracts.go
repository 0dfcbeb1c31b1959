// Package linker implements the core of a pnpm-style content-addressed
// package linker: given a resolved dependency graph, it materialises
// packages into a content-addressed store under node_modules/.store and
// builds per-package symlink farms that reproduce the dependency graph on
// disk. The resolver, fetchers, manifest parsing, host configuration
// system, and logging sink are external collaborators whose contracts are
// expressed as the interfaces in this file.
package linker

import (
	"path/filepath"

	"github.com/golang/pnpmlink/locator"
)

// LinkerName is the identifier this core registers itself under in the
// host's "nodeLinker" configuration key, and the name embedded in the
// custom-data format key so a host running a different linker's core
// naturally ignores this core's persisted state.
const LinkerName = "PnpmInstaller"

// LinkType distinguishes a hard-linked package (extracted once into the
// content-addressed store) from a soft-linked one (a workspace already
// present on disk at some other real path).
type LinkType string

const (
	// SoftLink marks a package that already lives on disk — typically a
	// workspace — and is never copied into the store.
	SoftLink LinkType = "SOFT"
	// HardLink marks a package whose content is extracted into the
	// content-addressed store exactly once.
	HardLink LinkType = "HARD"
)

// Package is a resolved package instance as the host presents it to the
// installer: its identity, how it should be linked, and the dependency
// edges it requires. Dependencies is keyed by descriptor ident — the name
// under which the dependent requires the target, which may differ from the
// target's own ident when the edge is an alias.
type Package struct {
	Locator      locator.Locator
	LinkType     LinkType
	Dependencies map[string]locator.Locator
}

// HasOwnIdent reports whether pkg declares a dependency edge under its own
// ident, which determines whether self-reference is enabled for a
// hard-linked package (§4.1): self-reference is enabled exactly when it is
// not declared, since otherwise the explicit edge and the implicit
// self-reference would collide.
func (pkg Package) HasOwnIdent() bool {
	_, ok := pkg.Dependencies[pkg.Locator.Ident()]
	return ok
}

// FetchResult is a readable filesystem view of a package's content, as
// delivered by the host's fetcher.
type FetchResult struct {
	// Dir is the root of the fetched tree on disk.
	Dir string
	// Prefix is the subpath within Dir at which the package root sits
	// (some fetchers deliver a tree with intermediate wrapper
	// directories, e.g. a tarball's top-level folder).
	Prefix string
	// RealPath is a resolvable real path for the package, used verbatim
	// as a soft-linked package's on-disk location.
	RealPath string
}

// PackageRoot returns the directory within the fetched tree where the
// package's own files (package.json and friends) live.
func (fr FetchResult) PackageRoot() string {
	if fr.Prefix == "" {
		return fr.Dir
	}
	return filepath.Join(fr.Dir, fr.Prefix)
}

// DependencyMeta is host-supplied, per-locator metadata (pinned build
// script overrides, platform constraints, and the like) consulted while
// extracting a package's build directive. Its shape is otherwise owned by
// the host; the core treats it opaquely beyond the fields it reads.
type DependencyMeta struct {
	// BuiltScripts lists lifecycle scripts the host has pre-approved to
	// run for this locator, overriding whatever the manifest declares.
	BuiltScripts []string
}

// Workspace describes a project-tree workspace the host knows about, keyed
// by the locator it resolves to.
type Workspace struct {
	Locator locator.Locator
	Cwd     string
}

// Configuration is the narrow slice of the host's configuration system
// this core needs: a single string lookup.
type Configuration interface {
	Get(key string) (value string, ok bool)
}

// Project is the root host contract: the project's working directory, its
// configuration, and lookups the installer needs while walking the
// dependency graph. It does not own CustomData; NewInstaller starts from
// an empty one and FinaliseInstall returns it so the host controls its
// persistence.
type Project interface {
	Cwd() string
	Configuration() Configuration
	DependencyMeta(l locator.Locator) DependencyMeta
	WorkspaceByLocator(l locator.Locator) (Workspace, bool)
}

// Reporter is the host's logging/reporting sink for warnings that must
// reach the user, as opposed to the installer's own internal diagnostic
// trace (carried by *log.Logger, see installer.go).
type Reporter interface {
	ReportWarning(code, msg string)
}
