package fusion

import "github.com/matzehuels/fusegraph/pkg/ir"

// Options configures an analysis run.
type Options struct {
	// OptLevel gates the fusion phases: 0 runs only the mandatory anchor
	// phase, 1 adds injective fusion, 2 and above add tuple dissolution.
	OptLevel int

	// MaxFuseDepth is the maximum number of IR nodes in one fused group.
	// A value of 1 disables fusion entirely.
	MaxFuseDepth int
}

// DefaultOptions are the options used by the CLI and service when the
// caller does not override them.
var DefaultOptions = Options{OptLevel: 2, MaxFuseDepth: 100}

// Result bundles the artifacts of a full analysis run over one expression.
type Result struct {
	// Graph is the indexed forward dataflow graph (stage S2).
	Graph *IndexedForwardGraph

	// Tree is the post-dominator tree over Graph (stage S3).
	Tree *DominatorTree

	// Groups is the group assignment aligned to Graph.PostDFSOrder,
	// already canonicalized: Groups[i] is the root group of node i.
	Groups []*Group
}

// Analyze builds the dataflow graph of body, computes its post-dominator
// tree, and partitions it into fusion groups. The returned group slice is
// canonicalized; two nodes share a kernel iff their entries are identical.
func Analyze(body ir.Expr, reg *ir.Registry, opts Options) *Result {
	if body == nil {
		panic("fusion: nil body")
	}
	if reg == nil {
		reg = ir.NewRegistry()
	}
	graph := BuildIndexedForwardGraph(body, reg)
	tree := PostDominate(graph)
	partitioner := NewGraphPartitioner(opts.OptLevel, opts.MaxFuseDepth)
	groups := partitioner.PartitionWith(graph, tree)
	for i, g := range groups {
		groups[i] = g.FindRoot()
	}
	return &Result{
		Graph:  graph,
		Tree:   tree,
		Groups: groups,
	}
}

// GroupOf returns the canonical group of the node with the given post-DFS
// index.
func (r *Result) GroupOf(index int) *Group {
	return r.Groups[index].FindRoot()
}

// SameKernel reports whether the nodes with indexes i and j were assigned
// to the same fusion group.
func (r *Result) SameKernel(i, j int) bool {
	return r.GroupOf(i) == r.GroupOf(j)
}

// KernelCount returns the number of distinct groups in the partition.
func (r *Result) KernelCount() int {
	roots := make(map[*Group]bool, len(r.Groups))
	for _, g := range r.Groups {
		roots[g.FindRoot()] = true
	}
	return len(roots)
}
