package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/fusegraph/pkg/cache"
	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/fusion"
	"github.com/matzehuels/fusegraph/pkg/io"
	"github.com/matzehuels/fusegraph/pkg/observability"
	"github.com/matzehuels/fusegraph/pkg/render"
)

// Runner executes the analysis pipeline with caching.
type Runner struct {
	cache cache.Cache
}

// NewRunner creates a runner. A nil cache disables caching.
func NewRunner(c cache.Cache) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Runner{cache: c}
}

// Close releases the runner's cache resources.
func (r *Runner) Close() error {
	return r.cache.Close()
}

// Execute runs the full pipeline over the raw JSON module in src.
func (r *Runner) Execute(ctx context.Context, src []byte, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	result := &Result{
		RunID:      uuid.NewString(),
		ModuleHash: cache.Hash(src),
		Artifacts:  make(map[string][]byte),
	}

	// stage 1: load
	start := time.Now()
	observability.Pipeline().OnLoadStart(ctx, result.RunID)
	mod, err := io.ReadModule(bytes.NewReader(src))
	result.Stats.LoadTime = time.Since(start)
	if err != nil {
		observability.Pipeline().OnLoadComplete(ctx, result.RunID, 0, result.Stats.LoadTime, err)
		return nil, err
	}
	observability.Pipeline().OnLoadComplete(ctx, result.RunID, len(mod.Names), result.Stats.LoadTime, nil)
	logger.Debugf("loaded module %s (%d nodes)", result.ModuleHash[:12], len(mod.Names))

	// cached run: report plus every requested artifact
	if !opts.Refresh && r.tryCached(ctx, result, opts) {
		logger.Debugf("run %s served from cache", result.RunID)
		return result, nil
	}

	// stage 2: partition
	start = time.Now()
	res := fusion.Analyze(mod.Body, mod.Registry, fusion.Options{
		OptLevel:     opts.OptLevel,
		MaxFuseDepth: opts.MaxFuseDepth,
	})
	observability.Pipeline().OnPartitionStart(ctx, result.RunID, len(res.Graph.PostDFSOrder))
	result.Report = io.BuildReport(res, mod.Names)
	result.Stats.PartitionTime = time.Since(start)
	result.Stats.NodeCount = len(res.Graph.PostDFSOrder)
	result.Stats.GroupCount = len(result.Report.Groups)
	observability.Pipeline().OnPartitionComplete(ctx, result.RunID, result.Stats.GroupCount, result.Stats.PartitionTime, nil)
	logger.Debugf("partitioned %d nodes into %d groups", result.Stats.NodeCount, result.Stats.GroupCount)

	r.storeReport(ctx, result, opts)

	// stage 3: render
	if len(opts.Formats) > 0 {
		start = time.Now()
		observability.Pipeline().OnRenderStart(ctx, result.RunID, opts.Formats)
		err := r.renderAll(ctx, result, opts, res, mod)
		result.Stats.RenderTime = time.Since(start)
		observability.Pipeline().OnRenderComplete(ctx, result.RunID, opts.Formats, result.Stats.RenderTime, err)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// tryCached fills result from the cache. It reports true only when the
// report and every requested artifact were present.
func (r *Runner) tryCached(ctx context.Context, result *Result, opts Options) bool {
	key := cache.ReportKey(result.ModuleHash, opts.OptLevel, opts.MaxFuseDepth)
	data, hit, err := r.cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "report")
		return false
	}
	var report io.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return false
	}
	observability.Cache().OnCacheHit(ctx, "report")

	artifacts := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		akey := cache.ArtifactKey(result.ModuleHash, opts.OptLevel, opts.MaxFuseDepth, opts.Structure, format)
		data, hit, err := r.cache.Get(ctx, akey)
		if err != nil || !hit {
			observability.Cache().OnCacheMiss(ctx, "artifact")
			return false
		}
		observability.Cache().OnCacheHit(ctx, "artifact")
		artifacts[format] = data
	}

	result.Report = &report
	result.Artifacts = artifacts
	result.Stats.NodeCount = len(report.Nodes)
	result.Stats.GroupCount = len(report.Groups)
	result.CacheInfo.ReportHit = true
	result.CacheInfo.RenderHit = len(opts.Formats) > 0
	return true
}

// storeReport writes the report to the cache; failures only log.
func (r *Runner) storeReport(ctx context.Context, result *Result, opts Options) {
	data, err := json.Marshal(result.Report)
	if err != nil {
		return
	}
	key := cache.ReportKey(result.ModuleHash, opts.OptLevel, opts.MaxFuseDepth)
	if err := r.cache.Set(ctx, key, data, DefaultCacheTTL); err != nil {
		opts.Logger.Warnf("cache report: %v", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "report", len(data))
}

// renderAll emits the requested formats of the chosen structure.
func (r *Runner) renderAll(ctx context.Context, result *Result, opts Options, res *fusion.Result, mod *io.Module) error {
	dot, err := structureDOT(opts.Structure, res, mod)
	if err != nil {
		return err
	}

	for _, format := range opts.Formats {
		var data []byte
		var err error
		switch format {
		case FormatDOT:
			data = []byte(dot)
		case FormatSVG:
			data, err = render.RenderSVG(ctx, dot)
		case FormatPNG:
			data, err = render.RenderPNG(ctx, dot)
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "render %s", format)
		}
		result.Artifacts[format] = data

		akey := cache.ArtifactKey(result.ModuleHash, opts.OptLevel, opts.MaxFuseDepth, opts.Structure, format)
		if err := r.cache.Set(ctx, akey, data, DefaultCacheTTL); err != nil {
			opts.Logger.Warnf("cache artifact %s: %v", format, err)
			continue
		}
		observability.Cache().OnCacheSet(ctx, "artifact", len(data))
	}
	return nil
}

// structureDOT builds the DOT view of the requested structure.
func structureDOT(structure string, res *fusion.Result, mod *io.Module) (string, error) {
	labels := render.Labels(mod.Names)
	switch structure {
	case StructureGroups:
		return render.PartitionDOT(res, labels), nil
	case StructureDataflow:
		return render.DataflowDOT(res.Graph, labels), nil
	case StructureDominators:
		return render.DominatorDOT(res.Tree, labels), nil
	case StructureDependency:
		return render.DependencyDOT(fusion.BuildDependencyGraph(mod.Body), labels), nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "unknown structure %q", structure)
	}
}
