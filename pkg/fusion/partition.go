package fusion

import "github.com/matzehuels/fusegraph/pkg/ir"

// Group is a fusion group in the union-find forest. A group with a nil
// Parent is a root; all queries about a group's pattern, anchor, or size
// must go through [Group.FindRoot] first.
type Group struct {
	// Parent is the union-find parent; nil marks a root.
	Parent *Group

	// Pattern is the pattern of the group's root.
	Pattern ir.PatternKind

	// RootRef is the source IR node of the group root.
	RootRef ir.Expr

	// AnchorRef is the single out-elementwise-fusable node inside the
	// group, set only when Pattern is [ir.PatternOutEWiseFusable].
	AnchorRef ir.Expr

	// NumNodes counts the IR nodes absorbed into the group. It is only
	// meaningful on roots.
	NumNodes int

	// Attrs carries optional metadata attached for downstream consumers.
	Attrs map[string]any
}

// FindRoot returns the root of the group, compressing paths on the way:
// after the call, every group between the receiver and the root points at
// the root directly. Implemented iteratively; chains can be long.
func (g *Group) FindRoot() *Group {
	root := g
	for root.Parent != nil {
		root = root.Parent
	}
	for p := g; p != root; {
		parent := p.Parent
		p.Parent = root
		p = parent
	}
	return root
}

// GraphPartitioner partitions an [IndexedForwardGraph] into fusion groups.
//
// Three phases of fusion rules run over the graph in post-DFS order:
//
//   - phase 0 fuses out-elementwise-fusable anchors (conv2d and friends)
//     with their elementwise successors, and elementwise/broadcast chains
//     with injective or reduction sinks;
//   - phase 1 fuses remaining injective producers and tuple nodes along
//     injective paths;
//   - phase 2 folds tuple nodes into their consumers when every consumer
//     is itself fusable.
//
// Phases 1 and 2 are gated by the optimization level, and every commit is
// subject to the maximum fused-size budget.
type GraphPartitioner struct {
	optLevel     int
	maxFuseDepth int
	groups       []*Group
	visited      map[*GraphNode]bool
}

// NewGraphPartitioner creates a partitioner. optLevel gates the fusion
// phases (0 runs phase 0 only, 1 adds phase 1, 2 and above add phase 2).
// maxFuseDepth bounds the number of IR nodes in a single group and must be
// at least 1.
func NewGraphPartitioner(optLevel, maxFuseDepth int) *GraphPartitioner {
	if maxFuseDepth < 1 {
		panic("fusion: maxFuseDepth must be positive")
	}
	return &GraphPartitioner{
		optLevel:     optLevel,
		maxFuseDepth: maxFuseDepth,
		visited:      make(map[*GraphNode]bool),
	}
}

// Partition assigns every node of graph to a group. The returned slice is
// aligned to graph.PostDFSOrder; callers canonicalize each entry with
// [Group.FindRoot]. Two nodes belong to the same kernel iff their groups
// share a root.
func (p *GraphPartitioner) Partition(graph *IndexedForwardGraph) []*Group {
	return p.PartitionWith(graph, PostDominate(graph))
}

// PartitionWith is like [GraphPartitioner.Partition] but reuses an already
// computed post-dominator tree of graph.
func (p *GraphPartitioner) PartitionWith(graph *IndexedForwardGraph, tree *DominatorTree) []*Group {
	p.initGroups(graph)
	for phase := 0; phase <= 2; phase++ {
		if phase > p.optLevel {
			break
		}
		p.runFuse(graph, tree, phase)
	}
	return p.groups
}

// fuseSkip reports whether a node can never initiate a fuse in any phase:
// externally referenced or opaque nodes, nodes with no post-dominator, and
// nodes whose aggregated path to it is opaque.
func (p *GraphPartitioner) fuseSkip(gnode *GraphNode, dom *DomNode) bool {
	if gnode.ExternRef || gnode.Pattern == ir.PatternOpaque {
		return true
	}
	if dom.Parent == nil || dom.Pattern == ir.PatternOpaque {
		return true
	}
	return false
}

// initGroups creates one singleton group per graph node.
func (p *GraphPartitioner) initGroups(graph *IndexedForwardGraph) {
	p.groups = make([]*Group, len(graph.PostDFSOrder))
	for i, gnode := range graph.PostDFSOrder {
		group := &Group{
			Pattern:  gnode.Pattern,
			RootRef:  gnode.Ref,
			NumNodes: 1,
		}
		if gnode.Pattern == ir.PatternOutEWiseFusable {
			group.AnchorRef = gnode.Ref
		}
		p.groups[i] = group
	}
}

// runFuse makes one full pass over the graph applying the rules of the
// given phase. Phase 2 sweeps the graph twice: tuples dissolve into their
// consumers first, then their remaining fields fold into the dissolved
// tuples' groups.
func (p *GraphPartitioner) runFuse(graph *IndexedForwardGraph, tree *DominatorTree, phase int) {
	if phase == 2 {
		p.runTuplePhase(graph, tree)
		return
	}
	for nid, gnode := range graph.PostDFSOrder {
		dom := tree.Nodes[nid]
		if p.fuseSkip(gnode, dom) {
			continue
		}
		domParent := dom.Parent.GNode

		target := p.groups[nid].FindRoot()
		domTarget := p.groups[domParent.Index].FindRoot()
		if target == domTarget {
			continue
		}

		// refuse if too many ops would end up in one kernel
		if p.CountFusedNodesWithNewChild(gnode, domParent) > p.maxFuseDepth {
			continue
		}

		// an externally referenced sink that already owns an anchor cannot
		// take a second one
		if domParent.ExternRef && domTarget.AnchorRef != nil &&
			gnode.Pattern == ir.PatternOutEWiseFusable {
			continue
		}

		// do not fuse into a tuple in the early phases; phase 2 dissolves
		// tuples instead
		if domTarget.Pattern == ir.PatternTuple {
			continue
		}

		switch {
		case target.Pattern == ir.PatternOutEWiseFusable:
			// anchored ops finish fusing in phase 0 so that injective
			// fusion never steals their elementwise successors
			if phase != 0 {
				continue
			}
			if dom.Pattern <= ir.PatternBroadcast {
				fcond := func(kind ir.PatternKind, isSink bool) bool {
					return kind <= ir.PatternBroadcast
				}
				if p.CheckPath(gnode, domParent, fcond) {
					p.CommitFuse(gnode, domParent)
				}
			}

		case target.Pattern <= ir.PatternBroadcast:
			// elementwise/broadcast producers fuse toward injective or
			// reduction sinks; parallel branches must stay injective, and
			// only the sink itself may be a reduction or anchored op
			if dom.Pattern <= ir.PatternInjective || dom.Pattern == ir.PatternCommReduce {
				fcond := func(kind ir.PatternKind, isSink bool) bool {
					if !isSink {
						return kind <= ir.PatternInjective
					}
					return kind <= ir.PatternBroadcast ||
						kind == ir.PatternInjective ||
						kind == ir.PatternCommReduce ||
						kind == ir.PatternOutEWiseFusable
				}
				if p.CheckPath(gnode, domParent, fcond) {
					p.CommitFuse(gnode, domParent)
				}
			}

		case target.Pattern == ir.PatternInjective || target.Pattern == ir.PatternTuple:
			// deferred to phase 1 so anchored fusion settles first
			if phase != 1 {
				continue
			}
			if dom.Pattern <= ir.PatternInjective {
				fcond := func(kind ir.PatternKind, isSink bool) bool {
					return kind <= ir.PatternInjective
				}
				if p.CheckPath(gnode, domParent, fcond) {
					p.CommitFuse(gnode, domParent)
				}
			}
		}
	}
}

// runTuplePhase implements phase 2 in two sweeps.
//
// Sweep one dissolves tuple groups into their consumer: a tuple fuses into
// its post-dominator when no consumer's group is opaque or another tuple,
// intermediate paths are injective, and the sink itself is fusable.
//
// Sweep two folds the remaining producers (tuple fields, projections) into
// tuples that have been dissolved: a node at or below injective whose
// immediate dominator is a tuple node already absorbed by a fusable group
// joins that group.
func (p *GraphPartitioner) runTuplePhase(graph *IndexedForwardGraph, tree *DominatorTree) {
	sinkFusable := func(kind ir.PatternKind) bool {
		return kind != ir.PatternOpaque && kind != ir.PatternTuple
	}
	fcond := func(kind ir.PatternKind, isSink bool) bool {
		if isSink {
			return sinkFusable(kind)
		}
		return kind <= ir.PatternInjective
	}

	// sweep one: dissolve tuples into their consumers
	for nid, gnode := range graph.PostDFSOrder {
		dom := tree.Nodes[nid]
		if p.fuseSkip(gnode, dom) {
			continue
		}
		domParent := dom.Parent.GNode

		target := p.groups[nid].FindRoot()
		domTarget := p.groups[domParent.Index].FindRoot()
		if target == domTarget || target.Pattern != ir.PatternTuple {
			continue
		}
		if !sinkFusable(domTarget.Pattern) {
			continue
		}
		fieldsOK := true
		for _, e := range gnode.Outputs {
			if root := p.groups[e.Node.Index].FindRoot(); !sinkFusable(root.Pattern) {
				fieldsOK = false
				break
			}
		}
		if !fieldsOK {
			continue
		}
		if p.CountFusedNodesWithNewChild(gnode, domParent) > p.maxFuseDepth {
			continue
		}
		if p.CheckPath(gnode, domParent, fcond) {
			p.CommitFuse(gnode, domParent)
		}
	}

	// sweep two: fold fields into dissolved tuples
	for nid, gnode := range graph.PostDFSOrder {
		dom := tree.Nodes[nid]
		if p.fuseSkip(gnode, dom) {
			continue
		}
		domParent := dom.Parent.GNode

		target := p.groups[nid].FindRoot()
		domTarget := p.groups[domParent.Index].FindRoot()
		if target == domTarget || target.Pattern > ir.PatternInjective {
			continue
		}
		// the dominator must be a tuple node whose group has already been
		// taken over by a fusable consumer
		if p.groups[domParent.Index].Pattern != ir.PatternTuple {
			continue
		}
		if !sinkFusable(domTarget.Pattern) {
			continue
		}
		if p.CountFusedNodesWithNewChild(gnode, domParent) > p.maxFuseDepth {
			continue
		}
		if p.CheckPath(gnode, domParent, fcond) {
			p.CommitFuse(gnode, domParent)
		}
	}
}

// CheckPath reports whether every node on every path from src's direct
// successors to sink (sink included, src excluded) satisfies fcond. The
// predicate receives the node's group-root pattern and whether the node is
// the sink. sink must post-dominate src.
func (p *GraphPartitioner) CheckPath(src, sink *GraphNode, fcond func(ir.PatternKind, bool) bool) bool {
	if src.ExternRef {
		panic("fusion: CheckPath from an externally referenced node")
	}
	if src == sink {
		panic("fusion: CheckPath with src == sink")
	}
	clear(p.visited)
	for _, e := range src.Outputs {
		if !p.checkPath(e.Node, sink, fcond) {
			return false
		}
	}
	return true
}

func (p *GraphPartitioner) checkPath(node, sink *GraphNode, fcond func(ir.PatternKind, bool) bool) bool {
	if p.visited[node] {
		return true
	}
	p.visited[node] = true
	root := p.groups[node.Index].FindRoot()
	if !fcond(root.Pattern, node == sink) {
		return false
	}
	if node == sink {
		return true
	}
	for _, e := range node.Outputs {
		if !p.checkPath(e.Node, sink, fcond) {
			return false
		}
	}
	return true
}

// MergeFromTo merges root group child into root group parent, moving the
// anchor (and with it the group pattern) when the child carries one.
func (p *GraphPartitioner) MergeFromTo(child, parent *Group) {
	if child.Parent != nil || parent.Parent != nil {
		panic("fusion: MergeFromTo on non-root groups")
	}
	if child == parent {
		return
	}
	child.Parent = parent
	parent.NumNodes += child.NumNodes
	if child.AnchorRef != nil {
		if parent.AnchorRef != nil {
			panic("fusion: merging two anchored groups")
		}
		parent.AnchorRef = child.AnchorRef
		parent.Pattern = child.Pattern
	}
}

// CommitFuse merges src and every node between src and sink into sink's
// group. It walks the same paths as [GraphPartitioner.CheckPath], which
// must have succeeded beforehand.
func (p *GraphPartitioner) CommitFuse(src, sink *GraphNode) {
	if src == sink {
		panic("fusion: CommitFuse with src == sink")
	}
	target := p.groups[sink.Index]
	clear(p.visited)
	p.commitFuse(src, sink, target)
}

func (p *GraphPartitioner) commitFuse(node, sink *GraphNode, target *Group) {
	if node == sink || p.visited[node] {
		return
	}
	p.visited[node] = true
	p.MergeFromTo(p.groups[node.Index].FindRoot(), target.FindRoot())
	for _, e := range node.Outputs {
		p.commitFuse(e.Node, sink, target)
	}
}

// CountFusedNodesWithNewChild computes the size of the group that would
// result from fusing child into dom_parent's group: the parent group's
// current size plus every group reachable strictly between child and
// dom_parent (child included, dom_parent excluded). Groups already merged
// into the parent contribute nothing, and on diamonds each group is
// counted once.
func (p *GraphPartitioner) CountFusedNodesWithNewChild(child, domParent *GraphNode) int {
	if child == domParent {
		panic("fusion: counting with child == dom_parent")
	}
	target := p.groups[domParent.Index].FindRoot()
	clear(p.visited)
	seen := map[*Group]bool{target: true}
	total := target.NumNodes
	var walk func(n *GraphNode)
	walk = func(n *GraphNode) {
		if n == domParent || p.visited[n] {
			return
		}
		p.visited[n] = true
		if root := p.groups[n.Index].FindRoot(); !seen[root] {
			seen[root] = true
			total += root.NumNodes
		}
		for _, e := range n.Outputs {
			walk(e.Node)
		}
	}
	walk(child)
	return total
}
