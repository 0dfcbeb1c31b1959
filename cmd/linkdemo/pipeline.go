package main

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	linker "github.com/golang/pnpmlink"
	"github.com/golang/pnpmlink/internal/asyncaction"
	"github.com/golang/pnpmlink/locator"
)

// runResult is what drivePipeline hands back for each descriptor id, so a
// caller (install, plan) can log or persist per-package detail without
// re-deriving it.
type runResult struct {
	id       string
	locator  locator.Locator
	location string
}

// drivePipeline runs §4.4/§4.5 (materialise, then attach) over every
// package in g, in dependency order. It stops short of finalising: the
// caller decides whether to commit (FinaliseInstall) or merely preview
// (Installer.Plan).
func drivePipeline(ctx context.Context, in *linker.Installer, g *graphDescriptor, baseDir string) ([]runResult, error) {
	order, err := topoOrder(g)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]packageEntry, len(g.Packages))
	for _, e := range g.Packages {
		byID[e.ID] = e
	}

	locators := make(map[string]locator.Locator, len(order))
	packages := make(map[string]linker.Package, len(order))
	results := make([]runResult, 0, len(order))

	for _, id := range order {
		entry := byID[id]
		l := entry.locatorOf()
		locators[id] = l

		deps := make(map[string]locator.Locator, len(entry.Deps))
		for importName, depID := range entry.Deps {
			depLocator, ok := locators[depID]
			if !ok {
				return nil, errors.Errorf("package %q depends on %q before it was materialised", id, depID)
			}
			deps[importName] = depLocator
		}

		linkType := linker.LinkType(entry.LinkType)
		pkg := linker.Package{Locator: l, LinkType: linkType, Dependencies: deps}
		packages[id] = pkg

		fetchDir := entry.FetchDir
		if !filepath.IsAbs(fetchDir) {
			fetchDir = filepath.Join(baseDir, fetchDir)
		}
		fr := linker.FetchResult{Dir: fetchDir, RealPath: fetchDir}
		res, err := in.Materialise(ctx, pkg, fr)
		if err != nil {
			return nil, errors.Wrapf(err, "materialise %q", id)
		}
		if res.Settled != nil {
			if _, err := res.Settled.Wait(ctx); err != nil {
				return nil, errors.Wrapf(err, "materialise %q", id)
			}
		}

		results = append(results, runResult{id: id, locator: l, location: res.PackageLocation})
	}

	var handles []*asyncaction.Handle
	for _, id := range order {
		if h := in.AttachDependencies(ctx, packages[id]); h != nil {
			handles = append(handles, h)
		}
	}
	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "attach dependencies")
		}
	}

	return results, nil
}
