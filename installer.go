package linker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"
	"golang.org/x/sync/errgroup"

	"github.com/golang/pnpmlink/internal/asyncaction"
	"github.com/golang/pnpmlink/internal/fs"
	"github.com/golang/pnpmlink/internal/nodelisting"
	"github.com/golang/pnpmlink/internal/storepath"
	"github.com/golang/pnpmlink/locator"
	"github.com/golang/pnpmlink/log"
)

// Installer runs the three-phase pipeline (§2): materialise each package,
// attach its dependency link farm, then finalise by garbage-collecting the
// store. Per §5, a single Installer is driven by one cooperative caller —
// the host invokes Materialise once per package and AttachDependencies once
// per dependent, in an order where a dependency's materialisation is always
// scheduled before its dependents' attachment runs; the async action table
// handles the rest of the ordering internally.
type Installer struct {
	project  Project
	reporter Reporter
	logger   *log.Logger

	data  *CustomData
	table *asyncaction.Table
}

// NewInstaller returns an Installer with a fresh, empty CustomData. Per §9,
// prior custom data is never rehydrated here — attachCustomData-equivalent
// behaviour is a deliberate no-op; a resolver (§4.7, resolver.go) is the
// only consumer of previously persisted state. logger may be nil, in which
// case internal trace lines are discarded.
func NewInstaller(project Project, reporter Reporter, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Installer{
		project:  project,
		reporter: reporter,
		logger:   logger,
		data:     NewCustomData(),
		table:    asyncaction.New(),
	}
}

// MaterialiseResult is what Materialise hands back to the host.
type MaterialiseResult struct {
	PackageLocation string
	// BuildDirective is nil for a soft-linked package: extraction only
	// makes sense once a package's manifest has actually been read from
	// a fetched tree, which a workspace already satisfies via its own
	// build tooling, not this core's.
	BuildDirective *BuildDirective
	// Settled tracks the in-flight store write this call scheduled (nil
	// for a soft link, where there is nothing to schedule). The host
	// should Wait on it before releasing fr, per §4.4 step 3's "hold the
	// fetch result alive until this promise settles" — the Go
	// equivalent of that contract is simply not discarding fr until the
	// handle its closure captured has settled.
	Settled *asyncaction.Handle
}

// Materialise implements §4.4: record where pkg lives, and for a
// hard-linked package, schedule the content-addressed store write.
func (in *Installer) Materialise(ctx context.Context, pkg Package, fr FetchResult) (MaterialiseResult, error) {
	switch pkg.LinkType {
	case SoftLink:
		return in.materialiseSoft(pkg, fr), nil
	case HardLink:
		return in.materialiseHard(ctx, pkg, fr)
	default:
		return MaterialiseResult{}, &UnsupportedLinkTypeError{LinkType: pkg.LinkType}
	}
}

func (in *Installer) materialiseSoft(pkg Package, fr FetchResult) MaterialiseResult {
	in.data.SetPackageLocation(pkg.Locator, fr.RealPath)
	in.logger.LogLinkerfln("materialise: %s soft-linked at %s", pkg.Locator, fr.RealPath)
	return MaterialiseResult{PackageLocation: fr.RealPath}
}

func (in *Installer) materialiseHard(ctx context.Context, pkg Package, fr FetchResult) (MaterialiseResult, error) {
	createSelfReference := !pkg.HasOwnIdent()
	pkgPath := storepath.PackageLocation(pkg.Locator, in.project.Cwd(), createSelfReference)

	in.data.SetLocatorByPath(pkgPath, pkg.Locator)
	in.data.SetPackageLocation(pkg.Locator, pkgPath)

	src := fr.PackageRoot()
	handle := in.table.Set(ctx, pkg.Locator.Hash(), func(ctx context.Context) (any, error) {
		if err := os.MkdirAll(pkgPath, 0o755); err != nil {
			return nil, errors.Wrapf(err, "cannot create store entry %s", pkgPath)
		}
		if err := fs.CopyDirMerge(src, pkgPath); err != nil {
			return nil, errors.Wrapf(err, "cannot populate store entry %s", pkgPath)
		}
		in.logger.LogLinkerfln("materialise: %s extracted into %s", pkg.Locator, pkgPath)
		return pkgPath, nil
	})

	buildLocator := pkg.Locator
	if buildLocator.Virtual {
		buildLocator = buildLocator.Devirtualize()
	}
	bd, err := ExtractBuildDirective(fr, in.project.DependencyMeta(buildLocator))
	if err != nil {
		return MaterialiseResult{}, err
	}

	return MaterialiseResult{PackageLocation: pkgPath, BuildDirective: &bd, Settled: handle}, nil
}

// AttachDependencies implements §4.5: build dependent's link farm, gated on
// its own materialisation completing via Table.Reduce. It returns nil when
// the call is skipped outright (host not configured for this linker, or
// dependent is an incompatible virtual workspace instance) — there being
// nothing scheduled for the caller to await.
func (in *Installer) AttachDependencies(ctx context.Context, dependent Package) *asyncaction.Handle {
	if active, _ := in.project.Configuration().Get("nodeLinker"); active != LinkerName {
		return nil
	}
	if !in.isCompatible(dependent.Locator) {
		return nil
	}

	return in.table.Reduce(ctx, dependent.Locator.Hash(), func(ctx context.Context, prev *asyncaction.Handle) (any, error) {
		if _, err := prev.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "materialisation of %s did not complete", dependent.Locator)
		}
		return nil, in.attachDependencies(ctx, dependent)
	})
}

func (in *Installer) attachDependencies(ctx context.Context, dependent Package) error {
	pkgPath, ok := in.data.PackageLocation(dependent.Locator.Hash())
	assertf(ok, "attach-dependencies: %s was not registered by materialise", dependent.Locator)

	nmPath, storeEntryToClean := storepath.LinkFarmDir(dependent.Locator, in.project.Cwd(), pkgPath)

	if storeEntryToClean != "" {
		if err := pruneStoreEntryRegimeLeftovers(storeEntryToClean); err != nil {
			return err
		}
	}

	extraneous, err := nodelisting.List(nmPath)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for descriptor, dependency := range dependent.Dependencies {
		descriptor, dependency := descriptor, dependency
		g.Go(func() error {
			return in.attachEdge(gctx, nmPath, descriptor, dependency, extraneous, &mu)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	mu.Lock()
	delete(extraneous, dependent.Locator.Ident())
	remaining := make([]nodelisting.Entry, 0, len(extraneous))
	for _, e := range extraneous {
		remaining = append(remaining, e)
	}
	mu.Unlock()

	return pruneExtraneous(ctx, nmPath, remaining)
}

func (in *Installer) attachEdge(
	ctx context.Context,
	nmPath string,
	descriptor string,
	dependency locator.Locator,
	extraneous map[string]nodelisting.Entry,
	mu *sync.Mutex,
) error {
	target := dependency
	if !in.isCompatible(target) {
		in.reporter.ReportWarning(
			"PEER_DEPENDENCY_VARIANTS_UNSUPPORTED",
			fmt.Sprintf("peer dependency variants unsupported on workspaces: %s", target),
		)
		target = target.Devirtualize()
	}

	depSrcPath, ok := in.data.PackageLocation(target.Hash())
	assertf(ok, "attach-dependencies: dependency %s (as %q) was not registered", target, descriptor)

	depDstPath := filepath.Join(nmPath, descriptor)
	depLinkPath, err := filepath.Rel(filepath.Dir(depDstPath), depSrcPath)
	if err != nil {
		return errors.Wrapf(err, "cannot compute relative link for %s", descriptor)
	}

	mu.Lock()
	existing, seen := extraneous[descriptor]
	if seen {
		delete(extraneous, descriptor)
	}
	mu.Unlock()

	if seen {
		if existing.IsSymlink {
			if match, err := fs.SymlinkTargetEquals(existing.Path, depLinkPath); err != nil {
				return err
			} else if match {
				return nil // idempotent: already correct.
			}
		}
		if err := fs.RemoveIfExists(existing.Path); err != nil {
			return err
		}
	}

	return fs.CreatePackageLink(depDstPath, depLinkPath, depSrcPath)
}

// pruneStoreEntryRegimeLeftovers implements §4.5 step 3: a store entry
// whose self-reference regime changed between installs may carry stray
// children (an old "." prefix layout alongside a new vendor-path layout,
// or vice versa) left over from before node_modules existed at this
// location; only node_modules itself is ever kept.
func pruneStoreEntryRegimeLeftovers(storeEntry string) error {
	entries, err := os.ReadDir(storeEntry)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "cannot read store entry %s", storeEntry)
	}
	for _, e := range entries {
		if e.Name() == "node_modules" {
			continue
		}
		if err := fs.RemoveIfExists(filepath.Join(storeEntry, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func pruneExtraneous(ctx context.Context, nmPath string, remaining []nodelisting.Entry) error {
	var mu sync.Mutex
	touchedScopes := make(map[string]struct{})

	g, _ := errgroup.WithContext(ctx)
	for _, e := range remaining {
		e := e
		g.Go(func() error {
			if err := fs.RemoveIfExists(e.Path); err != nil {
				return err
			}
			if scope, _, ok := splitScopedKey(e.Key); ok {
				mu.Lock()
				touchedScopes[scope] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for scope := range touchedScopes {
		scopeDir := filepath.Join(nmPath, scope)
		empty, err := fs.IsEmptyDirOrNotExist(scopeDir)
		if err != nil {
			return err
		}
		if empty {
			// Opportunistic: ENOTEMPTY (another entry was concurrently
			// added) and ENOENT are both fine outcomes here.
			os.Remove(scopeDir)
		}
	}
	return nil
}

func splitScopedKey(key string) (scope, name string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func (in *Installer) isCompatible(l locator.Locator) bool {
	if !l.Virtual {
		return true
	}
	_, isWorkspace := in.project.WorkspaceByLocator(l)
	return !isWorkspace
}

// AttachExternalDependents is never implemented by this core (§7): packages
// depending on the project from outside the project tree are a Non-goal.
func (in *Installer) AttachExternalDependents(context.Context, locator.Locator, []string) error {
	return &UnsupportedOperationError{Op: "AttachExternalDependents"}
}

// FinaliseInstall implements §4.6: garbage-collect the store (or remove it
// wholesale if the host switched away from this linker), await every
// outstanding async action, prune an emptied node_modules, and return the
// CustomData for the host to persist.
func (in *Installer) FinaliseInstall(ctx context.Context) (*CustomData, error) {
	storeLocation := storepath.StoreRoot(in.project.Cwd())

	active, _ := in.project.Configuration().Get("nodeLinker")
	if active != LinkerName {
		if err := fs.RemoveIfExists(storeLocation); err != nil {
			return nil, err
		}
	} else if err := in.gcStore(storeLocation); err != nil {
		return nil, err
	}

	in.table.Wait()

	nmRoot := storepath.NodeModulesRoot(in.project.Cwd())
	if empty, err := fs.IsEmptyDirOrNotExist(nmRoot); err == nil && empty {
		os.Remove(nmRoot)
	}

	return in.data, nil
}

// gcStore implements §4.6 step 3. The store is locked for the duration of
// the sweep (github.com/theckman/go-flock) so two installer processes
// racing against the same store cannot interleave their prune.
func (in *Installer) gcStore(storeLocation string) error {
	expected := in.data.storeEntrySlugs()

	if _, err := os.Stat(storeLocation); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "cannot stat store %s", storeLocation)
	}

	lock := flock.NewFlock(filepath.Join(storeLocation, ".lock"))
	if err := lock.Lock(); err != nil {
		return errors.Wrap(err, "cannot acquire store lock")
	}
	defer lock.Unlock()

	entries, err := os.ReadDir(storeLocation)
	if err != nil {
		return errors.Wrapf(err, "cannot read store %s", storeLocation)
	}
	for _, e := range entries {
		if e.Name() == ".lock" {
			continue
		}
		if _, ok := expected[e.Name()]; ok {
			continue
		}
		if err := fs.RemoveIfExists(filepath.Join(storeLocation, e.Name())); err != nil {
			return err
		}
	}

	if empty, err := fs.IsEmptyDirOrNotExist(storeLocation); err == nil && empty {
		os.Remove(storeLocation)
	}
	return nil
}

// PlannedStoreEntry describes one store-root child's fate under a
// hypothetical FinaliseInstall, without mutating disk.
type PlannedStoreEntry struct {
	Slug   string
	Action string // "keep" or "remove"
}

// Plan is an additive dry-run preview: a way to inspect what the next
// FinaliseInstall would change in the store without committing it.
type Plan struct {
	StoreEntries []PlannedStoreEntry
}

// Plan previews what the next FinaliseInstall call would do to the store,
// without mutating the filesystem.
func (in *Installer) Plan(ctx context.Context) (Plan, error) {
	storeLocation := storepath.StoreRoot(in.project.Cwd())

	entries, err := os.ReadDir(storeLocation)
	if err != nil {
		if os.IsNotExist(err) {
			return Plan{}, nil
		}
		return Plan{}, errors.Wrapf(err, "cannot read store %s", storeLocation)
	}

	active, _ := in.project.Configuration().Get("nodeLinker")
	removeAll := active != LinkerName
	expected := in.data.storeEntrySlugs()

	var plan Plan
	for _, e := range entries {
		if e.Name() == ".lock" {
			continue
		}
		action := "keep"
		if _, ok := expected[e.Name()]; removeAll || !ok {
			action = "remove"
		}
		plan.StoreEntries = append(plan.StoreEntries, PlannedStoreEntry{Slug: e.Name(), Action: action})
	}
	return plan, nil
}
