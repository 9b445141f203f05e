// Package cli implements the fusegraph command-line interface.
//
// This package provides commands for partitioning IR modules into fusion
// groups, rendering debug visualizations of the analysis structures,
// inspecting the operator pattern registry, managing the artifact cache,
// and running the debug HTTP service. The CLI is built using cobra and
// supports verbose logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - partition: Analyze a module and emit the fusion group report
//   - visualize: Render dataflow/dominator/partition views (DOT, SVG, PNG)
//   - patterns: Inspect the operator pattern registry
//   - cache: Manage the artifact cache
//   - serve: Run the debug HTTP service
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
//
// # Example
//
//	import "github.com/matzehuels/fusegraph/internal/cli"
//
//	func main() {
//	    if err := cli.Execute(context.Background()); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fusegraph/pkg/buildinfo"
	"github.com/matzehuels/fusegraph/pkg/config"
)

// Execute runs the fusegraph CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// The function sets up the root command with all subcommands, configures
// logging based on the --verbose flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:          "fusegraph",
		Short:        "Fusegraph partitions deep-learning IR into fusion groups",
		Long:         `Fusegraph analyzes the dataflow of a deep-learning compiler's IR and partitions it into fusable kernel groups, with debug visualizations of every analysis stage.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("fusegraph %s\ncommit: %s\nbuilt: %s\n",
		buildinfo.Version, buildinfo.Commit, buildinfo.Date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a fusegraph.toml config file")

	root.AddCommand(newPartitionCmd(&configPath))
	root.AddCommand(newVisualizeCmd(&configPath))
	root.AddCommand(newPatternsCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))

	return root.ExecuteContext(ctx)
}

// loadConfig loads the config file named by --config, or the defaults when
// the flag is unset.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
