package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fusegraph/pkg/cache"
	"github.com/matzehuels/fusegraph/pkg/config"
	"github.com/matzehuels/fusegraph/pkg/errors"
	pkgio "github.com/matzehuels/fusegraph/pkg/io"
	"github.com/matzehuels/fusegraph/pkg/pipeline"
)

// partitionOpts holds the command-line flags for the partition command.
type partitionOpts struct {
	optLevel     int    // fusion phase gate (0-2)
	maxFuseDepth int    // maximum ops per fused kernel
	output       string // output file path (stdout summary only if empty)
	noCache      bool   // disable caching entirely
	refresh      bool   // bypass cached results
}

// newPartitionCmd creates the partition command.
//
// The command loads a JSON module, runs the fusion analysis, prints a group
// summary, and optionally writes the full report to a file.
func newPartitionCmd(configPath *string) *cobra.Command {
	opts := partitionOpts{optLevel: -1, maxFuseDepth: -1}

	cmd := &cobra.Command{
		Use:   "partition <module.json>",
		Short: "Partition a module's dataflow into fusion groups",
		Long: `Partition a module's dataflow into fusion groups.

The module is a JSON file describing the IR expression (see pkg/io for the
format). The command prints one line per fusion group and can export the
full per-node assignment as JSON.

Examples:
  fusegraph partition model.json
  fusegraph partition model.json --opt-level 1 --max-fuse-depth 16
  fusegraph partition model.json -o report.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartition(cmd, args[0], opts, *configPath)
		},
	}

	cmd.Flags().IntVar(&opts.optLevel, "opt-level", opts.optLevel, "fusion optimization level (0-2, default from config)")
	cmd.Flags().IntVar(&opts.maxFuseDepth, "max-fuse-depth", opts.maxFuseDepth, "maximum ops per fused kernel (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the full report JSON to this file")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "recompute even if a cached result exists")

	return cmd
}

func runPartition(cmd *cobra.Command, input string, opts partitionOpts, configPath string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(input)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", input)
	}

	pOpts := pipeline.Options{
		OptLevel:     cfg.Partitioner.OptLevel,
		MaxFuseDepth: cfg.Partitioner.MaxFuseDepth,
		Refresh:      opts.refresh,
		Logger:       logger,
	}
	if opts.optLevel >= 0 {
		pOpts.OptLevel = opts.optLevel
	}
	if opts.maxFuseDepth >= 0 {
		pOpts.MaxFuseDepth = opts.maxFuseDepth
	}

	runner := pipeline.NewRunner(newCache(ctx, cfg, opts.noCache))
	defer runner.Close()

	prog := newProgress(logger)
	result, err := runner.Execute(ctx, src, pOpts)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Partitioned %d nodes into %d groups",
		result.Stats.NodeCount, result.Stats.GroupCount))

	printSuccess("Partition complete")
	printStats(result.Stats.NodeCount, result.Stats.GroupCount, result.CacheInfo.ReportHit)
	for _, g := range result.Report.Groups {
		label := g.Root
		if g.Anchor != "" {
			label = g.Anchor
		}
		printKeyValue(fmt.Sprintf("group %d", g.ID), fmt.Sprintf("%s · %s · %d nodes", label, g.Pattern, g.NumNodes))
	}

	if opts.output != "" {
		if err := pkgio.ExportReport(result.Report, opts.output); err != nil {
			return err
		}
		printFile(opts.output)
	}
	return nil
}

// newCache builds the cache selected by the config. Backend failures
// degrade to a null cache with a warning rather than failing the analysis.
func newCache(ctx context.Context, cfg *config.Config, disabled bool) cache.Cache {
	if disabled || cfg.Cache.Backend == "none" {
		return cache.NewNullCache()
	}
	switch cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			printWarning("redis cache unavailable, caching disabled: %v", err)
			return cache.NewNullCache()
		}
		return c
	default:
		c, err := cache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			printWarning("file cache unavailable, caching disabled: %v", err)
			return cache.NewNullCache()
		}
		return c
	}
}
