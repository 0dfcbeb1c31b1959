package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	linker "github.com/golang/pnpmlink"
)

// planCmd still runs materialise/attach (so hard-linked content does land in
// the store) but stops short of FinaliseInstall's prune, previewing which
// store entries that prune would keep or remove.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview what finalising an install would do to the content store, without deleting anything",
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
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
	if _, err := drivePipeline(ctx, in, g, baseDir); err != nil {
		return err
	}

	plan, err := in.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plan.StoreEntries) == 0 {
		logger.Info("store is empty or not yet created")
		return nil
	}
	for _, e := range plan.StoreEntries {
		logger.WithField("action", e.Action).Info(e.Slug)
	}
	return nil
}
