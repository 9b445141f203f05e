package fusion

import (
	"testing"

	"github.com/matzehuels/fusegraph/pkg/ir"
)

func TestPostDominate_Chain(t *testing.T) {
	x := &ir.Var{Name: "x"}
	relu := call("relu", x)
	sigmoid := call("sigmoid", relu)

	g := BuildIndexedForwardGraph(sigmoid, ir.NewRegistry())
	tree := PostDominate(g)

	if len(tree.Nodes) != len(g.PostDFSOrder) {
		t.Fatalf("tree has %d nodes, want %d", len(tree.Nodes), len(g.PostDFSOrder))
	}
	for i, n := range tree.Nodes {
		if n.GNode.Index != i {
			t.Errorf("tree node %d references gnode %d", i, n.GNode.Index)
		}
	}

	root := tree.Nodes[g.NodeMap[sigmoid].Index]
	if root.Parent != nil || root.Depth != 0 || root.Pattern != ir.PatternOpaque {
		t.Error("extern-ref result must sit directly under the super-sink with opaque pattern")
	}

	rn := tree.Nodes[g.NodeMap[relu].Index]
	if rn.Parent != root {
		t.Error("relu's post-dominator must be sigmoid")
	}
	if rn.Depth != 1 {
		t.Errorf("relu depth = %d, want 1", rn.Depth)
	}
	if rn.Pattern != ir.PatternElemWise {
		t.Errorf("relu path pattern = %v, want elemwise", rn.Pattern)
	}
}

func TestPostDominate_Diamond(t *testing.T) {
	x := &ir.Var{Name: "x"}
	left := call("relu", x)
	right := call("tanh", x)
	join := call("add", left, right)

	g := BuildIndexedForwardGraph(join, ir.NewRegistry())
	tree := PostDominate(g)

	joinDom := tree.Nodes[g.NodeMap[join].Index]
	xDom := tree.Nodes[g.NodeMap[x].Index]

	// both branch paths rejoin at add, so add post-dominates x
	if xDom.Parent != joinDom {
		t.Error("diamond source must be post-dominated by the join")
	}
	if xDom.Pattern != ir.PatternElemWise {
		t.Errorf("diamond path pattern = %v, want elemwise", xDom.Pattern)
	}
	if xDom.Depth != joinDom.Depth+1 {
		t.Errorf("depth = %d, want %d", xDom.Depth, joinDom.Depth+1)
	}
}

func TestPostDominate_PatternAggregation(t *testing.T) {
	// one branch carries a reduction edge: the aggregated pattern along
	// the climb must be the worst pattern seen
	x := &ir.Var{Name: "x"}
	left := call("relu", x)
	right := call("sum", x)
	join := call("add", left, right)

	g := BuildIndexedForwardGraph(join, ir.NewRegistry())
	tree := PostDominate(g)

	xDom := tree.Nodes[g.NodeMap[x].Index]
	if xDom.Parent != tree.Nodes[g.NodeMap[join].Index] {
		t.Fatal("join must post-dominate the shared input")
	}
	if xDom.Pattern != ir.PatternCommReduce {
		t.Errorf("aggregated pattern = %v, want comm_reduce", xDom.Pattern)
	}
}

func TestPostDominate_OpaqueEdge(t *testing.T) {
	x := &ir.Var{Name: "x"}
	conv := call("conv2d", x, &ir.Var{Name: "w"})
	custom := call("mystery_op", conv)
	relu := call("relu", custom)

	g := BuildIndexedForwardGraph(relu, ir.NewRegistry())
	tree := PostDominate(g)

	convDom := tree.Nodes[g.NodeMap[conv].Index]
	if convDom.Pattern != ir.PatternOpaque {
		t.Errorf("path through an opaque consumer must aggregate to opaque, got %v", convDom.Pattern)
	}
}

func TestPostDominate_ExternRefIsRoot(t *testing.T) {
	// a let-bound value has consumers but still escapes its scope, so the
	// only thing post-dominating it is the super-sink
	a := &ir.Var{Name: "a"}
	v := &ir.Var{Name: "v"}
	value := call("relu", a)
	let := &ir.Let{Var: v, Value: value, Body: call("sigmoid", v)}

	g := BuildIndexedForwardGraph(let, ir.NewRegistry())
	tree := PostDominate(g)

	vd := tree.Nodes[g.NodeMap[value].Index]
	if len(g.NodeMap[value].Outputs) == 0 {
		t.Fatal("test setup: the bound value should have a consumer")
	}
	if vd.Parent != nil || vd.Pattern != ir.PatternOpaque {
		t.Error("extern-ref node must be a dominator-tree root with opaque pattern")
	}
}

func TestCombinePattern_Laws(t *testing.T) {
	kinds := []ir.PatternKind{
		ir.PatternElemWise, ir.PatternBroadcast, ir.PatternInjective,
		ir.PatternCommReduce, ir.PatternOutEWiseFusable, ir.PatternTuple,
		ir.PatternOpaque,
	}
	for _, a := range kinds {
		if ir.CombinePattern(a, a) != a {
			t.Errorf("combine(%v, %v) not idempotent", a, a)
		}
		for _, b := range kinds {
			if ir.CombinePattern(a, b) != ir.CombinePattern(b, a) {
				t.Errorf("combine(%v, %v) not commutative", a, b)
			}
			for _, c := range kinds {
				l := ir.CombinePattern(a, ir.CombinePattern(b, c))
				r := ir.CombinePattern(ir.CombinePattern(a, b), c)
				if l != r {
					t.Errorf("combine not associative for (%v, %v, %v)", a, b, c)
				}
			}
		}
	}
}
