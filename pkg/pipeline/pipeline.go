// Package pipeline provides the core analysis pipeline for fusegraph.
//
// This package implements the complete load → partition → render pipeline
// used by both the CLI and the HTTP service. Centralizing the staging
// logic keeps behavior consistent across entry points.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Load: decode the JSON module into an IR expression
//  2. Partition: run the fusion analysis and build the report
//  3. Render: optionally emit DOT/SVG/PNG views of a chosen structure
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(cache)
//	opts := pipeline.Options{
//	    OptLevel:     2,
//	    MaxFuseDepth: 100,
//	    Formats:      []string{"svg"},
//	}
//	result, err := runner.Execute(ctx, moduleJSON, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svg := result.Artifacts["svg"]
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/io"
)

// Default values shared by CLI and service.
const (
	// DefaultOptLevel enables all fusion phases.
	DefaultOptLevel = 2

	// DefaultMaxFuseDepth bounds the ops in one fused kernel.
	DefaultMaxFuseDepth = 100

	// DefaultCacheTTL is how long cached reports and artifacts live.
	DefaultCacheTTL = 24 * time.Hour
)

// Structure names for the render stage.
const (
	StructureGroups     = "groups"
	StructureDataflow   = "dataflow"
	StructureDominators = "dominators"
	StructureDependency = "dependency"
)

// Format constants for rendered artifacts.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPNG = "png"
)

// ValidFormats is the set of supported artifact formats.
var ValidFormats = map[string]bool{
	FormatDOT: true,
	FormatSVG: true,
	FormatPNG: true,
}

// ValidStructures is the set of renderable analysis structures.
var ValidStructures = map[string]bool{
	StructureGroups:     true,
	StructureDataflow:   true,
	StructureDominators: true,
	StructureDependency: true,
}

// Options contains all configuration for one pipeline run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Partition options
	OptLevel     int `json:"opt_level"`
	MaxFuseDepth int `json:"max_fuse_depth"`

	// Render options
	Structure string   `json:"structure,omitempty"`
	Formats   []string `json:"formats,omitempty"`

	// Refresh bypasses the cache for this run.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// ValidateAndSetDefaults checks fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.OptLevel < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "opt_level must be >= 0")
	}
	if o.MaxFuseDepth == 0 {
		o.MaxFuseDepth = DefaultMaxFuseDepth
	}
	if o.MaxFuseDepth < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "max_fuse_depth must be >= 1")
	}
	if o.Structure == "" {
		o.Structure = StructureGroups
	}
	if !ValidStructures[o.Structure] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid structure %q (must be one of: groups, dataflow, dominators, dependency)", o.Structure)
	}
	for _, f := range o.Formats {
		if !ValidFormats[f] {
			return errors.New(errors.ErrCodeInvalidFormat, "invalid format %q (must be one of: dot, svg, png)", f)
		}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	o.validated = true
	return nil
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID uniquely identifies this execution.
	RunID string

	// ModuleHash is the content hash of the input module.
	ModuleHash string

	// Report is the partition report.
	Report *io.Report

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which stages hit the cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	NodeCount     int
	GroupCount    int
	LoadTime      time.Duration
	PartitionTime time.Duration
	RenderTime    time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	ReportHit bool // Whether the report came from cache
	RenderHit bool // Whether all artifacts came from cache
}
