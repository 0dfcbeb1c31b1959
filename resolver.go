package linker

import (
	"path/filepath"
	"strings"

	"github.com/golang/pnpmlink/locator"
)

// Resolver is the read-side locator resolver (§4.7): given a previously
// persisted CustomData, it maps a locator to its on-disk location and a
// filesystem path back to the owning locator. A nil data means the host
// has no persisted state for this project — every query then fails with
// ConfigurationError rather than a LookupError, since the distinction
// matters to the caller ("nothing is installed" vs "this wasn't part of
// the installed graph").
type Resolver struct {
	data        *CustomData
	projectPath string
}

// NewResolver builds a Resolver over previously loaded custom data. Pass
// nil for data when the host found no persisted state at all.
func NewResolver(data *CustomData, projectPath string) *Resolver {
	return &Resolver{data: data, projectPath: projectPath}
}

// FindPackageLocation maps l to the path it was materialised at.
func (r *Resolver) FindPackageLocation(l locator.Locator) (string, error) {
	if r.data == nil {
		return "", &ConfigurationError{ProjectPath: r.projectPath}
	}
	path, ok := r.data.PackageLocation(l.Hash())
	if !ok {
		return "", &LookupError{Query: l.String()}
	}
	return path, nil
}

// FindPackageLocator maps path back to the locator that owns it. found is
// false, with a nil error, when no locator matches path — spec's explicit
// "return null", as distinct from a ConfigurationError meaning nothing is
// installed at all.
func (r *Resolver) FindPackageLocator(path string) (l locator.Locator, found bool, err error) {
	if r.data == nil {
		return locator.Locator{}, false, &ConfigurationError{ProjectPath: r.projectPath}
	}

	path = filepath.Clean(path)

	if prefix, ok := nodeModulesPackagePrefix(path); ok {
		if l, ok := r.data.LocatorAtPath(prefix); ok {
			return l, true, nil
		}
	}

	for cur := path; ; {
		if l, ok := r.data.LocatorAtPath(cur); ok {
			return l, true, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return locator.Locator{}, false, nil
		}
		cur = parent
	}
}

// nodeModulesPackagePrefix extracts the ".../node_modules/(@scope/)?name"
// prefix of path, matching against the *last* node_modules segment (the
// innermost one, for a nested tree), mirroring the greedy ".*" in spec
// §4.7's pattern.
func nodeModulesPackagePrefix(path string) (string, bool) {
	parts := strings.Split(path, string(filepath.Separator))

	idx := -1
	for i, p := range parts {
		if p == "node_modules" {
			idx = i
		}
	}
	if idx < 0 || idx+1 >= len(parts) {
		return "", false
	}

	rest := parts[idx+1:]
	prefixParts := append(append([]string{}, parts[:idx+1]...), rest[0])
	if strings.HasPrefix(rest[0], "@") {
		if len(rest) < 2 {
			return "", false
		}
		prefixParts = append(prefixParts, rest[1])
	}
	return strings.Join(prefixParts, string(filepath.Separator)), true
}
