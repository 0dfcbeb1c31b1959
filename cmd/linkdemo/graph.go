package main

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/golang/pnpmlink/locator"
)

// graphDescriptor is the demo's stand-in for a host's already-resolved
// dependency graph (§7's "resolution is a host concern" — this CLI plays
// the part of that host). Each entry names where its content can be found
// on disk (fetchDir), as if a fetcher had already run.
type graphDescriptor struct {
	Project  projectSettings `toml:"project"`
	Packages []packageEntry  `toml:"packages"`
}

type projectSettings struct {
	Cwd        string `toml:"cwd"`
	NodeLinker string `toml:"nodeLinker"`
}

type packageEntry struct {
	ID       string            `toml:"id"`
	Scope    string            `toml:"scope"`
	Name     string            `toml:"name"`
	Version  string            `toml:"version"`
	LinkType string            `toml:"linkType"`
	FetchDir string            `toml:"fetchDir"`
	Deps     map[string]string `toml:"dependencies"`
}

func loadGraph(path string) (*graphDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read graph descriptor %s", path)
	}
	var g graphDescriptor
	if err := toml.Unmarshal(raw, &g); err != nil {
		return nil, errors.Wrapf(err, "cannot parse graph descriptor %s", path)
	}
	return &g, nil
}

// locatorOf builds the locator.Locator a packageEntry stands for.
func (e packageEntry) locatorOf() locator.Locator {
	return locator.Locator{Scope: e.Scope, Name: e.Name, Version: e.Version}
}

// topoOrder returns entry ids in an order where every id's dependencies
// precede it, the order Materialise must be driven in (§4.4/§4.5's ordering
// requirement, which the real host satisfies via its own resolution step).
func topoOrder(g *graphDescriptor) ([]string, error) {
	byID := make(map[string]packageEntry, len(g.Packages))
	for _, e := range g.Packages {
		byID[e.ID] = e
	}

	visited := make(map[string]int) // 0=unvisited, 1=visiting, 2=done
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			return errors.Errorf("dependency cycle detected at %q", id)
		}
		visited[id] = 1
		entry, ok := byID[id]
		if !ok {
			return errors.Errorf("dependency %q has no matching package entry", id)
		}
		for _, depID := range entry.Deps {
			if err := visit(depID); err != nil {
				return err
			}
		}
		visited[id] = 2
		order = append(order, id)
		return nil
	}

	for _, e := range g.Packages {
		if err := visit(e.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}
