// Command linkdemo drives the linker core end to end against a small,
// already-resolved dependency graph, standing in for the host (a package
// manager's resolver and fetcher) that a real integration would supply.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logger = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "linkdemo",
	Short: "Drive the content-addressed package linker over a graph descriptor",
}

func init() {
	rootCmd.PersistentFlags().String("graph", "graph.toml", "path to the graph descriptor TOML file")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose (debug) logging")
	rootCmd.AddCommand(installCmd, planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogger(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
}
