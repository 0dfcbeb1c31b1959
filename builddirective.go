package linker

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// BuildDirective is what a hard-linked package's materialisation extracts
// from its manifest (§4.4 step 5): the lifecycle scripts a subsequent build
// step may run, and whether the tree looks like it needs a native build.
// The distilled spec names this extraction without defining its shape; we
// restore it from the jsInstallUtils.extractBuildScripts/hasBindingGyp
// contract implied by §6's host helpers.
type BuildDirective struct {
	Scripts        map[string]string
	HasNativeBuild bool
}

type packageManifest struct {
	Scripts map[string]string `json:"scripts"`
}

// ExtractBuildDirective reads fr's package manifest (tolerating its
// absence: a missing package.json yields an empty manifest, while one that
// cannot be read or parsed is an error) and checks for a binding.gyp
// alongside it. When dm pins any scripts, only the pinned scripts that the
// manifest declares are kept.
func ExtractBuildDirective(fr FetchResult, dm DependencyMeta) (BuildDirective, error) {
	root := fr.PackageRoot()

	var manifest packageManifest
	raw, err := os.ReadFile(filepath.Join(root, "package.json"))
	switch {
	case err == nil:
		if jerr := json.Unmarshal(raw, &manifest); jerr != nil {
			return BuildDirective{}, errors.Wrapf(jerr, "cannot parse package.json at %s", root)
		}
	case os.IsNotExist(err):
		// No manifest: an empty one, per §4.4 step 5.
	default:
		return BuildDirective{}, errors.Wrapf(err, "cannot read package.json at %s", root)
	}

	_, statErr := os.Stat(filepath.Join(root, "binding.gyp"))
	hasNativeBuild := statErr == nil

	scripts := manifest.Scripts
	if len(dm.BuiltScripts) > 0 {
		scripts = map[string]string{}
		for _, name := range dm.BuiltScripts {
			if v, ok := manifest.Scripts[name]; ok {
				scripts[name] = v
			}
		}
	}

	return BuildDirective{Scripts: scripts, HasNativeBuild: hasNativeBuild}, nil
}
