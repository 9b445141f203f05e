package render

import (
	"strings"
	"testing"

	"github.com/matzehuels/fusegraph/pkg/fusion"
	"github.com/matzehuels/fusegraph/pkg/ir"
)

func testResult(t *testing.T) (*fusion.Result, Labels) {
	t.Helper()
	x := &ir.Var{Name: "x"}
	w := &ir.Var{Name: "w"}
	conv := &ir.Call{Op: &ir.Op{Name: "conv2d"}, Args: []ir.Expr{x, w}}
	relu := &ir.Call{Op: &ir.Op{Name: "relu"}, Args: []ir.Expr{conv}}

	res := fusion.Analyze(relu, ir.NewRegistry(), fusion.Options{OptLevel: 2, MaxFuseDepth: 100})
	labels := Labels{x: "x", w: "w", conv: "conv", relu: "act"}
	return res, labels
}

func TestDataflowDOT(t *testing.T) {
	res, labels := testResult(t)
	dot := DataflowDOT(res.Graph, labels)

	if !strings.HasPrefix(dot, "digraph dataflow {") {
		t.Error("missing digraph header")
	}
	for _, want := range []string{"conv", "act", "out_elemwise_fusable", "->"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}

func TestPartitionDOT_ClustersFusedGroups(t *testing.T) {
	res, labels := testResult(t)
	dot := PartitionDOT(res, labels)

	if !strings.Contains(dot, "subgraph cluster_") {
		t.Error("fused group must be rendered as a cluster")
	}
	// the anchored group is titled by its anchor
	if !strings.Contains(dot, "group conv") {
		t.Errorf("cluster title should name the anchor, got:\n%s", dot)
	}
}

func TestDominatorDOT(t *testing.T) {
	res, labels := testResult(t)
	dot := DominatorDOT(res.Tree, labels)

	if !strings.Contains(dot, "depth") {
		t.Error("dominator nodes should display their depth")
	}
	// conv's post-dominator chain ends at the extern-referenced result,
	// which has no parent edge
	lines := strings.Count(dot, "->")
	if lines != len(res.Tree.Nodes)-1 {
		t.Errorf("tree with %d nodes should have %d parent edges, got %d",
			len(res.Tree.Nodes), len(res.Tree.Nodes)-1, lines)
	}
}

func TestDependencyDOT_MarksScopes(t *testing.T) {
	v := &ir.Var{Name: "v"}
	a := &ir.Var{Name: "a"}
	value := &ir.Call{Op: &ir.Op{Name: "relu"}, Args: []ir.Expr{a}}
	let := &ir.Let{Var: v, Value: value, Body: &ir.Call{Op: &ir.Op{Name: "tanh"}, Args: []ir.Expr{v}}}

	g := fusion.BuildDependencyGraph(let)
	dot := DependencyDOT(g, nil)

	if !strings.Contains(dot, "scope") {
		t.Error("scope-boundary nodes must be rendered")
	}
	if !strings.Contains(dot, "dashed") {
		t.Error("scope-boundary nodes must be dashed")
	}
}
