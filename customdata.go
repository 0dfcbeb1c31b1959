package linker

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/golang/pnpmlink/locator"
)

// customDataFormatVersion is embedded in CustomDataKey so that a host
// persisting state for an incompatible prior version of this core is
// naturally ignored rather than misread (§6).
const customDataFormatVersion = 2

// CustomDataKey returns the key this core's persisted state is filed
// under in the host's installersCustomData bag: a JSON-stringified
// struct carrying the linker name and format version, so a host can
// distinguish this core's state from another linker's at a glance.
func CustomDataKey() string {
	b, err := json.Marshal(struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}{Name: LinkerName, Version: customDataFormatVersion})
	if err != nil {
		// Marshal of a literal struct of strings and ints cannot fail.
		panic(err)
	}
	return string(b)
}

// CustomData is the versioned, serialisable bag of state this core
// persists between installs (§3). It is safe for concurrent use: the
// installer records into it from Materialise and reads it from
// attach-dependencies tasks running under the async action table's
// bounded concurrency.
//
// Per §9, a prior install's CustomData is never rehydrated into an
// in-progress installer — NewInstaller always starts from NewCustomData.
// Loading persisted data is exclusively the resolver's (read-side, §4.7)
// concern.
type CustomData struct {
	mu sync.Mutex

	// packageLocations is keyed by locatorHash; the Locator is retained
	// alongside the path so that Marshal can render it and the store GC can
	// derive its slug, not because the hash alone isn't a sufficient lookup
	// key.
	packageLocations map[string]locationRecord
	locatorByPath    map[string]locator.Locator
}

type locationRecord struct {
	Locator locator.Locator
	Path    string
}

// NewCustomData returns an empty bag, as used at the start of every
// install.
func NewCustomData() *CustomData {
	return &CustomData{
		packageLocations: make(map[string]locationRecord),
		locatorByPath:    make(map[string]locator.Locator),
	}
}

// SetPackageLocation records where l was materialised. Called for both
// soft- and hard-linked packages (§4.4).
func (c *CustomData) SetPackageLocation(l locator.Locator, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packageLocations[l.Hash()] = locationRecord{Locator: l, Path: path}
}

// PackageLocation looks up the path a locatorHash was materialised at.
func (c *CustomData) PackageLocation(locatorHash string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.packageLocations[locatorHash]
	return rec.Path, ok
}

// SetLocatorByPath records that path is owned by l. Per §9, this is only
// ever called for hard-linked packages; a soft link's real path is
// deliberately left unregistered here, so the resolver's upward walk is
// the only way to recover its locator.
func (c *CustomData) SetLocatorByPath(path string, l locator.Locator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locatorByPath[path] = l
}

// LocatorAtPath looks up the locator that owns an exact path.
func (c *CustomData) LocatorAtPath(path string) (locator.Locator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locatorByPath[path]
	return l, ok
}

// storeEntrySlugs returns the set of immediate store-root children
// referenced by any recorded package location, used by finalisation's GC
// sweep (§4.6 step 3).
func (c *CustomData) storeEntrySlugs() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	sep := string(filepath.Separator)
	out := make(map[string]struct{}, len(c.packageLocations))
	for _, rec := range c.packageLocations {
		slug := locator.Slug(rec.Locator)
		// A soft-linked package's real path lies outside any store entry.
		if strings.Contains(rec.Path+sep, sep+slug+sep) {
			out[slug] = struct{}{}
		}
	}
	return out
}

type customDataDocument struct {
	Version          int                    `toml:"version"`
	PackageLocations []packageLocationEntry `toml:"packageLocations"`
	LocatorByPath    []locatorByPathEntry   `toml:"locatorByPath"`
}

type packageLocationEntry struct {
	LocatorHash string `toml:"locatorHash"`
	Locator     string `toml:"locator"`
	Path        string `toml:"path"`
}

type locatorByPathEntry struct {
	Path    string `toml:"path"`
	Locator string `toml:"locator"`
}

// Marshal serialises the bag to TOML. packageLocations entries are sorted
// by locator hash and locatorByPath entries by path, so that repeated
// installs over an unchanged graph produce a byte-identical file.
func (c *CustomData) Marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := customDataDocument{Version: customDataFormatVersion}

	for _, rec := range c.packageLocations {
		doc.PackageLocations = append(doc.PackageLocations, packageLocationEntry{
			LocatorHash: rec.Locator.Hash(),
			Locator:     rec.Locator.String(),
			Path:        rec.Path,
		})
	}
	sort.Slice(doc.PackageLocations, func(i, j int) bool {
		return doc.PackageLocations[i].LocatorHash < doc.PackageLocations[j].LocatorHash
	})

	for path, l := range c.locatorByPath {
		doc.LocatorByPath = append(doc.LocatorByPath, locatorByPathEntry{
			Path:    path,
			Locator: l.String(),
		})
	}
	sort.Slice(doc.LocatorByPath, func(i, j int) bool {
		return doc.LocatorByPath[i].Path < doc.LocatorByPath[j].Path
	})

	b, err := toml.Marshal(doc)
	return b, errors.Wrap(err, "cannot marshal custom data")
}

// LoadCustomData deserialises a previously persisted bag. A version
// mismatch or malformed document is tolerated, not an error: it yields a
// fresh, empty bag, per §6's "tolerate a missing or differently-versioned
// bag by recomputing from the current install."
func LoadCustomData(raw []byte) (*CustomData, error) {
	if len(raw) == 0 {
		return NewCustomData(), nil
	}

	var doc customDataDocument
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return NewCustomData(), nil
	}
	if doc.Version != customDataFormatVersion {
		return NewCustomData(), nil
	}

	cd := NewCustomData()
	for _, e := range doc.PackageLocations {
		l, ok := parseLocatorString(e.Locator)
		if !ok {
			continue
		}
		cd.packageLocations[e.LocatorHash] = locationRecord{Locator: l, Path: e.Path}
	}
	for _, e := range doc.LocatorByPath {
		l, ok := parseLocatorString(e.Locator)
		if !ok {
			continue
		}
		cd.locatorByPath[e.Path] = l
	}
	return cd, nil
}

// parseLocatorString reverses Locator.String for round-tripping through
// persisted state. It is deliberately local to this package rather than a
// method of locator.Locator: the stringified form is this core's own
// on-disk format, not part of the locator algebra's external contract.
func parseLocatorString(s string) (locator.Locator, bool) {
	virtual := false
	virtualKey := ""
	if idx := strings.Index(s, " (virtual:"); idx >= 0 && strings.HasSuffix(s, ")") {
		virtual = true
		virtualKey = s[idx+len(" (virtual:") : len(s)-1]
		s = s[:idx]
	}

	var scope, rest string
	if strings.HasPrefix(s, "@") {
		slashIdx := strings.Index(s, "/")
		if slashIdx < 0 {
			return locator.Locator{}, false
		}
		scope = s[1:slashIdx]
		rest = s[slashIdx+1:]
	} else {
		rest = s
	}

	atIdx := strings.Index(rest, "@")
	if atIdx < 0 {
		return locator.Locator{}, false
	}

	return locator.Locator{
		Scope:      scope,
		Name:       rest[:atIdx],
		Version:    rest[atIdx+1:],
		Virtual:    virtual,
		VirtualKey: virtualKey,
	}, true
}
