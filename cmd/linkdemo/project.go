package main

import (
	"github.com/sirupsen/logrus"

	linker "github.com/golang/pnpmlink"
	"github.com/golang/pnpmlink/locator"
)

// demoConfiguration is a flat key/value Configuration backed by the graph
// descriptor's [project] table — the host's real configuration layer
// (Yarn's .yarnrc.yml-equivalent) is out of scope here.
type demoConfiguration struct {
	values map[string]string
}

func (c *demoConfiguration) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// demoProject implements linker.Project over the graph descriptor.
// WorkspaceByLocator never matches: this CLI has nothing corresponding to a
// soft-linked monorepo workspace member beyond the descriptor's own SOFT
// entries, which are exposed purely via their FetchResult and never need a
// Workspace lookup.
type demoProject struct {
	cwd    string
	config *demoConfiguration
}

func newDemoProject(g *graphDescriptor, cwd string) *demoProject {
	values := map[string]string{}
	if g.Project.NodeLinker != "" {
		values["nodeLinker"] = g.Project.NodeLinker
	}
	return &demoProject{cwd: cwd, config: &demoConfiguration{values: values}}
}

func (p *demoProject) Cwd() string { return p.cwd }

func (p *demoProject) Configuration() linker.Configuration { return p.config }

func (p *demoProject) DependencyMeta(locator.Locator) linker.DependencyMeta {
	return linker.DependencyMeta{}
}

func (p *demoProject) WorkspaceByLocator(locator.Locator) (linker.Workspace, bool) {
	return linker.Workspace{}, false
}

// demoReporter relays the installer's warnings through logrus, the way
// open-policy-agent/opa's runtime surfaces plugin warnings through its own
// logrus-backed logger.
type demoReporter struct {
	log *logrus.Logger
}

func (r *demoReporter) ReportWarning(code, msg string) {
	r.log.WithField("code", code).Warn(msg)
}
