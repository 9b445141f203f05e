package fusion

import "github.com/matzehuels/fusegraph/pkg/ir"

// DomNode is a node in the post-dominator tree.
type DomNode struct {
	// GNode is the dataflow node this tree node stands for.
	GNode *GraphNode

	// Parent is the immediate post-dominator, or nil for nodes sitting
	// directly under the implicit super-sink.
	Parent *DomNode

	// Depth is Parent.Depth+1, or 0 when Parent is nil.
	Depth int

	// Pattern aggregates the edge patterns seen along the paths from this
	// node up to its post-dominator (worst pattern wins).
	Pattern ir.PatternKind
}

// DominatorTree represents the post-domination relation of a dataflow
// graph. Nodes is indexed by [GraphNode.Index].
type DominatorTree struct {
	Nodes []*DomNode
}

// PostDominate computes the post-dominator tree of graph in a single pass.
//
// The graph's nodes are in post-DFS order (producers before consumers), so
// iterating from the last node backwards guarantees that every target of a
// node's output edges already has a dominator node when the node itself is
// processed. The immediate post-dominator of a node is then the least
// common ancestor of all of its consumers.
func PostDominate(graph *IndexedForwardGraph) *DominatorTree {
	tree := &DominatorTree{
		Nodes: make([]*DomNode, len(graph.PostDFSOrder)),
	}
	for i := len(graph.PostDFSOrder) - 1; i >= 0; i-- {
		tree.Nodes[i] = tree.getNode(graph.PostDFSOrder[i])
	}
	return tree
}

// getNode converts a dataflow node into its dominator-tree node.
//
// An externally referenced node has an implicit edge to the super-sink, so
// nothing short of the sink post-dominates it: it becomes a root with an
// opaque path pattern. A node with no outputs is unreachable dataflow and
// is treated identically.
func (t *DominatorTree) getNode(gnode *GraphNode) *DomNode {
	node := &DomNode{GNode: gnode}
	if gnode.ExternRef || len(gnode.Outputs) == 0 {
		node.Parent = nil
		node.Depth = 0
		node.Pattern = ir.PatternOpaque
		return node
	}
	pattern := ir.PatternElemWise
	parent := t.leastCommonAncestorEdges(gnode.Outputs, &pattern)
	node.Parent = parent
	if parent != nil {
		node.Depth = parent.Depth + 1
	}
	node.Pattern = pattern
	return node
}

// leastCommonAncestorEdges folds the LCA pairwise, left to right, over a
// node's output edges. For each edge, the edge's own pattern is combined
// into the accumulator before the LCA merge; this order is load-bearing on
// diamonds and must not be changed.
func (t *DominatorTree) leastCommonAncestorEdges(edges []Edge, edgePattern *ir.PatternKind) *DomNode {
	if len(edges) == 0 {
		return nil
	}
	*edgePattern = ir.CombinePattern(*edgePattern, edges[0].Pattern)
	parent := t.domOf(edges[0].Node)
	for _, e := range edges[1:] {
		*edgePattern = ir.CombinePattern(*edgePattern, e.Pattern)
		parent = leastCommonAncestor(parent, t.domOf(e.Node), edgePattern)
	}
	return parent
}

// domOf returns the already-computed dominator node of a consumer.
func (t *DominatorTree) domOf(gnode *GraphNode) *DomNode {
	if gnode.Index >= len(t.Nodes) {
		panic("fusion: consumer index out of range")
	}
	node := t.Nodes[gnode.Index]
	if node == nil {
		panic("fusion: consumer processed before producer in dominator pass")
	}
	return node
}

// leastCommonAncestor climbs both nodes toward the root, folding the
// climbed nodes' path patterns into edgePattern. Reaching the root on
// either side means only the super-sink dominates both, and nil is
// returned.
func leastCommonAncestor(lhs, rhs *DomNode, edgePattern *ir.PatternKind) *DomNode {
	for lhs != rhs {
		if lhs == nil || rhs == nil {
			return nil
		}
		switch {
		case lhs.Depth < rhs.Depth:
			*edgePattern = ir.CombinePattern(*edgePattern, rhs.Pattern)
			rhs = rhs.Parent
		case rhs.Depth < lhs.Depth:
			*edgePattern = ir.CombinePattern(*edgePattern, lhs.Pattern)
			lhs = lhs.Parent
		default:
			*edgePattern = ir.CombinePattern(*edgePattern, lhs.Pattern)
			*edgePattern = ir.CombinePattern(*edgePattern, rhs.Pattern)
			lhs = lhs.Parent
			rhs = rhs.Parent
		}
	}
	return lhs
}
