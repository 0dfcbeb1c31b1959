// Package locator defines the opaque, totally-ordered package identity used
// throughout the linker: a content hash, a scope/name ident, a version, and
// the virtual/peer-dependency bookkeeping a resolver attaches to workspace
// packages.
package locator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Locator is the resolved identity of a single package instance. Two
// Locators with the same Hash refer to the same on-disk content; a Locator
// with Virtual set is a peer-dependency variant of its NonVirtual
// counterpart.
type Locator struct {
	Scope   string // "" for unscoped idents
	Name    string
	Version string

	// Virtual tags this Locator as a peer-resolution instance. VirtualKey
	// disambiguates distinct peer resolutions of the same ident+version.
	Virtual    bool
	VirtualKey string
}

// Ident formats the package's import name: "@scope/name" or "name".
func (l Locator) Ident() string {
	if l.Scope == "" {
		return l.Name
	}
	return "@" + l.Scope + "/" + l.Name
}

// Hash returns a stable content hash for this Locator, suitable for use as a
// map key or as the input to Slug. It intentionally excludes nothing: two
// Locators that print identically but differ in VirtualKey must hash
// differently, since they occupy distinct store slots.
func (l Locator) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%t\x00%s", l.Scope, l.Name, l.Version, l.Virtual, l.VirtualKey)
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the locator the way it would appear in a lock file or log
// line: "name@version" or "@scope/name@version", with a virtual locator
// suffixed by its disambiguating key.
func (l Locator) String() string {
	s := fmt.Sprintf("%s@%s", l.Ident(), l.Version)
	if l.Virtual {
		s += " (virtual:" + l.VirtualKey + ")"
	}
	return s
}

// Less imposes the total order required by §3: lexical on ident, then
// version, then virtual status and key.
func (l Locator) Less(o Locator) bool {
	if li, oi := l.Ident(), o.Ident(); li != oi {
		return li < oi
	}
	if l.Version != o.Version {
		return l.Version < o.Version
	}
	if l.Virtual != o.Virtual {
		return !l.Virtual
	}
	return l.VirtualKey < o.VirtualKey
}

// Devirtualize returns the non-virtual counterpart of a virtual locator. It
// is a no-op on an already-concrete locator. Per §9, devirtualisation never
// alters Scope/Name/Version, only the virtual flag and key.
func (l Locator) Devirtualize() Locator {
	l.Virtual = false
	l.VirtualKey = ""
	return l
}

// Slug derives the deterministic, filesystem-safe store directory name for
// this locator: the ident and version made path-safe, followed by a short
// disambiguating hash suffix so that two distinct locators never collide
// even if their printable ident+version happens to coincide (e.g. a virtual
// instance versus its non-virtual sibling).
func Slug(l Locator) string {
	safe := strings.NewReplacer("/", "+", "@", "_", ":", "_").Replace(l.Ident())
	h := l.Hash()
	return fmt.Sprintf("%s@%s_%s", safe, sanitizeVersion(l.Version), h[:8])
}

func sanitizeVersion(v string) string {
	if v == "" {
		return "_"
	}
	return strings.NewReplacer("/", "+", ":", "_").Replace(v)
}

// ParseIdent splits an ident string ("@scope/name" or "name") into its
// scope and name parts, mirroring the host's tryParseIdent collaborator
// (§6) for the cases the core needs to reason about locally (e.g. when
// formatting log lines for a descriptor ident that has no backing Locator).
func ParseIdent(ident string) (scope, name string) {
	if !strings.HasPrefix(ident, "@") {
		return "", ident
	}
	rest := strings.TrimPrefix(ident, "@")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", ident
	}
	return parts[0], parts[1]
}
