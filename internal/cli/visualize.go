package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/pipeline"
)

// visualizeOpts holds the command-line flags for the visualize command.
type visualizeOpts struct {
	structure  string // which analysis structure to render
	formatsStr string // comma-separated output formats
	output     string // output file or base path
	noCache    bool
	refresh    bool
}

// newVisualizeCmd creates the visualize command for rendering analysis
// structures.
func newVisualizeCmd(configPath *string) *cobra.Command {
	opts := visualizeOpts{structure: pipeline.StructureGroups, formatsStr: pipeline.FormatSVG}

	cmd := &cobra.Command{
		Use:   "visualize <module.json>",
		Short: "Render a debug view of the fusion analysis",
		Long: `Render a debug view of the fusion analysis.

Four structures can be rendered:
  groups       the dataflow graph clustered by fusion group (default)
  dataflow     the indexed forward graph with patterns and edges
  dominators   the post-dominator tree
  dependency   the dependency graph with scope boundaries

Examples:
  fusegraph visualize model.json -o groups.svg
  fusegraph visualize model.json --structure dominators -f png -o dom.png
  fusegraph visualize model.json -f dot,svg -o model`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisualize(cmd, args[0], opts, *configPath)
		},
	}

	cmd.Flags().StringVar(&opts.structure, "structure", opts.structure, "structure to render: groups, dataflow, dominators, dependency")
	cmd.Flags().StringVarP(&opts.formatsStr, "format", "f", opts.formatsStr, "output format(s): svg (default), png, dot (comma-separated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "recompute even if a cached result exists")

	return cmd
}

func runVisualize(cmd *cobra.Command, input string, opts visualizeOpts, configPath string) error {
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

	formats := parseFormats(opts.formatsStr)
	if len(formats) == 0 {
		return errors.New(errors.ErrCodeInvalidFormat, "no output format given")
	}

	pOpts := pipeline.Options{
		OptLevel:     cfg.Partitioner.OptLevel,
		MaxFuseDepth: cfg.Partitioner.MaxFuseDepth,
		Structure:    opts.structure,
		Formats:      formats,
		Refresh:      opts.refresh,
		Logger:       logger,
	}

	runner := pipeline.NewRunner(newCache(ctx, cfg, opts.noCache))
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Rendering %s...", opts.structure))
	spinner.Start()
	result, err := runner.Execute(ctx, src, pOpts)
	if err != nil {
		spinner.StopWithError("Visualization failed")
		return err
	}
	spinner.Stop()

	printSuccess("Rendered %s view", opts.structure)
	printStats(result.Stats.NodeCount, result.Stats.GroupCount, result.CacheInfo.RenderHit)
	return writeArtifacts(input, opts.output, formats, result.Artifacts)
}

// parseFormats splits a comma-separated format list.
func parseFormats(s string) []string {
	var formats []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}

// writeArtifacts writes each rendered format. With one format the output
// path is used verbatim; with several it becomes a base path. An empty
// output derives the base from the input filename.
func writeArtifacts(input, output string, formats []string, artifacts map[string][]byte) error {
	base := output
	if base == "" {
		base = strings.TrimSuffix(input, filepath.Ext(input))
	}
	for _, format := range formats {
		path := base + "." + format
		if output != "" && len(formats) == 1 {
			path = output
		}
		if err := os.WriteFile(path, artifacts[format], 0644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
		}
		printFile(path)
	}
	return nil
}
