// Package render emits Graphviz DOT views of the fusion analysis
// structures and rasterizes them to SVG or PNG.
//
// Rendering is a pure traversal over the public analysis interfaces; the
// analysis core itself has no rendering hooks. Four views are available:
//
//   - [DependencyDOT]: the dependency graph with scope-boundary nodes
//   - [DataflowDOT]: the indexed forward graph with patterns and edges
//   - [DominatorDOT]: the post-dominator tree
//   - [PartitionDOT]: the dataflow graph clustered by fusion group
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/matzehuels/fusegraph/pkg/fusion"
	"github.com/matzehuels/fusegraph/pkg/ir"
)

// Labels maps expressions to display names, typically the node ids of the
// source module. Missing entries fall back to [ir.Describe].
type Labels map[ir.Expr]string

func (l Labels) label(e ir.Expr) string {
	if name, ok := l[e]; ok {
		return name
	}
	return ir.Describe(e)
}

// patternColors gives each pattern kind a fill color so the structure of a
// partition is visible at a glance.
var patternColors = map[ir.PatternKind]string{
	ir.PatternElemWise:        "palegreen",
	ir.PatternBroadcast:       "darkseagreen",
	ir.PatternInjective:       "lightblue",
	ir.PatternCommReduce:      "khaki",
	ir.PatternOutEWiseFusable: "lightsalmon",
	ir.PatternTuple:           "plum",
	ir.PatternOpaque:          "lightgrey",
}

// DependencyDOT renders a dependency graph. Scope-boundary nodes are drawn
// dashed, mirroring how subdivider nodes are usually marked in layered
// graph tools.
func DependencyDOT(g *fusion.DependencyGraph, labels Labels) string {
	names := make(map[*fusion.DepNode]string, len(g.PostDFSOrder))
	exprOf := make(map[*fusion.DepNode]ir.Expr, len(g.ExprNode))
	for e, n := range g.ExprNode {
		exprOf[n] = e
	}
	for i, n := range g.PostDFSOrder {
		names[n] = fmt.Sprintf("n%d", i)
	}

	var buf bytes.Buffer
	buf.WriteString("digraph dependency {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white];\n\n")

	for i, n := range g.PostDFSOrder {
		attrs := []string{}
		if e, ok := exprOf[n]; ok {
			attrs = append(attrs, fmt.Sprintf("label=%q", fmt.Sprintf("%s\n#%d", labels.label(e), i)))
		} else {
			attrs = append(attrs, fmt.Sprintf("label=%q", "scope"), "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
		}
		fmt.Fprintf(&buf, "  %s [%s];\n", names[n], strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, n := range g.PostDFSOrder {
		for _, c := range n.Children {
			fmt.Fprintf(&buf, "  %s -> %s;\n", names[c], names[n])
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// DataflowDOT renders an indexed forward graph. Nodes are colored by
// pattern kind; extern-referenced nodes get a bold outline; edges carry
// the consumer's pattern expectation.
func DataflowDOT(g *fusion.IndexedForwardGraph, labels Labels) string {
	var buf bytes.Buffer
	buf.WriteString("digraph dataflow {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\"];\n\n")

	for _, n := range g.PostDFSOrder {
		fmt.Fprintf(&buf, "  n%d [%s];\n", n.Index, strings.Join(gnodeAttrs(n, labels), ", "))
	}

	buf.WriteString("\n")
	for _, n := range g.PostDFSOrder {
		for _, e := range n.Outputs {
			fmt.Fprintf(&buf, "  n%d -> n%d [label=%q];\n", n.Index, e.Node.Index, e.Pattern.String())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// DominatorDOT renders a post-dominator tree. Edges point from each node
// to its immediate post-dominator; roots (nodes under the implicit
// super-sink) have no outgoing edge.
func DominatorDOT(t *fusion.DominatorTree, labels Labels) string {
	var buf bytes.Buffer
	buf.WriteString("digraph postdom {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\"];\n\n")

	for _, n := range t.Nodes {
		label := fmt.Sprintf("%s\ndepth %d, %s", labels.label(n.GNode.Ref), n.Depth, n.Pattern)
		fmt.Fprintf(&buf, "  n%d [label=%q, fillcolor=%s];\n",
			n.GNode.Index, label, patternColors[n.GNode.Pattern])
	}

	buf.WriteString("\n")
	for _, n := range t.Nodes {
		if n.Parent != nil {
			fmt.Fprintf(&buf, "  n%d -> n%d;\n", n.GNode.Index, n.Parent.GNode.Index)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// PartitionDOT renders the dataflow graph with one cluster per fusion
// group. Anchored groups are titled with their anchor's label.
func PartitionDOT(res *fusion.Result, labels Labels) string {
	members := make(map[*fusion.Group][]*fusion.GraphNode)
	var order []*fusion.Group
	for i, n := range res.Graph.PostDFSOrder {
		root := res.GroupOf(i)
		if _, ok := members[root]; !ok {
			order = append(order, root)
		}
		members[root] = append(members[root], n)
	}

	var buf bytes.Buffer
	buf.WriteString("digraph partition {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\"];\n\n")

	for gi, root := range order {
		nodes := members[root]
		if len(nodes) == 1 {
			fmt.Fprintf(&buf, "  n%d [%s];\n", nodes[0].Index, strings.Join(gnodeAttrs(nodes[0], labels), ", "))
			continue
		}
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", gi)
		title := fmt.Sprintf("group %s (%d)", root.Pattern, root.NumNodes)
		if root.AnchorRef != nil {
			title = fmt.Sprintf("group %s (%d)", labels.label(root.AnchorRef), root.NumNodes)
		}
		fmt.Fprintf(&buf, "    label=%q;\n", title)
		buf.WriteString("    style=dashed;\n")
		for _, n := range nodes {
			fmt.Fprintf(&buf, "    n%d [%s];\n", n.Index, strings.Join(gnodeAttrs(n, labels), ", "))
		}
		buf.WriteString("  }\n")
	}

	buf.WriteString("\n")
	for _, n := range res.Graph.PostDFSOrder {
		for _, e := range n.Outputs {
			fmt.Fprintf(&buf, "  n%d -> n%d;\n", n.Index, e.Node.Index)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func gnodeAttrs(n *fusion.GraphNode, labels Labels) []string {
	label := fmt.Sprintf("%s\n%s", labels.label(n.Ref), n.Pattern)
	attrs := []string{
		fmt.Sprintf("label=%q", label),
		fmt.Sprintf("fillcolor=%s", patternColors[n.Pattern]),
	}
	if n.ExternRef {
		attrs = append(attrs, "penwidth=2")
	}
	return attrs
}
