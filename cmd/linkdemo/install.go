package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	linker "github.com/golang/pnpmlink"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Materialise and link every package named in the graph descriptor",
	RunE:  runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	configureLogger(cmd)
	graphPath, _ := cmd.Flags().GetString("graph")

	g, err := loadGraph(graphPath)
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(graphPath)
	cwd := g.Project.Cwd
	if cwd == "" || cwd == "." {
		cwd = baseDir
	} else if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(baseDir, cwd)
	}
	project := newDemoProject(g, cwd)
	reporter := &demoReporter{log: logger}
	in := linker.NewInstaller(project, reporter, nil)

	ctx := context.Background()
	results, err := drivePipeline(ctx, in, g, baseDir)
	if err != nil {
		return err
	}
	for _, r := range results {
		logger.WithField("package", r.locator.String()).Infof("linked at %s", r.location)
	}

	data, err := in.FinaliseInstall(ctx)
	if err != nil {
		return errors.Wrap(err, "finalise install")
	}

	raw, err := data.Marshal()
	if err != nil {
		return err
	}
	nmRoot := filepath.Join(project.Cwd(), "node_modules")
	if err := os.MkdirAll(nmRoot, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %s", nmRoot)
	}
	statePath := filepath.Join(nmRoot, ".pnpmlink-state.toml")
	if err := os.WriteFile(statePath, raw, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", statePath)
	}
	logger.Infof("wrote %s", statePath)
	return nil
}
