package fusion

import (
	"testing"

	"github.com/matzehuels/fusegraph/pkg/ir"
)

// analyze runs the full pipeline with default-like options.
func analyze(t *testing.T, body ir.Expr, optLevel, maxFuseDepth int) *Result {
	t.Helper()
	return Analyze(body, ir.NewRegistry(), Options{OptLevel: optLevel, MaxFuseDepth: maxFuseDepth})
}

// groupOf returns the canonical group of an expression's dataflow node.
func groupOf(t *testing.T, r *Result, e ir.Expr) *Group {
	t.Helper()
	n, ok := r.Graph.NodeMap[e]
	if !ok {
		t.Fatalf("no dataflow node for %s", ir.Describe(e))
	}
	return r.GroupOf(n.Index)
}

// checkGroupSizes verifies invariant: every root's NumNodes equals the
// number of nodes assigned to it.
func checkGroupSizes(t *testing.T, r *Result) {
	t.Helper()
	counts := make(map[*Group]int)
	for i := range r.Groups {
		counts[r.GroupOf(i)]++
	}
	for root, n := range counts {
		if root.NumNodes != n {
			t.Errorf("group %s: NumNodes = %d, but %d nodes are assigned to it",
				ir.Describe(root.RootRef), root.NumNodes, n)
		}
	}
}

// checkExternRoots verifies that extern-referenced nodes are group roots.
func checkExternRoots(t *testing.T, r *Result) {
	t.Helper()
	for i, n := range r.Graph.PostDFSOrder {
		if n.ExternRef && r.GroupOf(i).RootRef != n.Ref {
			t.Errorf("extern_ref node %d (%s) is not its group's root", i, ir.Describe(n.Ref))
		}
	}
}

func TestPartition_PointwiseChain(t *testing.T) {
	x := &ir.Var{Name: "x"}
	relu := call("relu", x)
	sigmoid := call("sigmoid", relu)
	tanh := call("tanh", sigmoid)

	r := analyze(t, tanh, 2, 100)

	g := groupOf(t, r, relu)
	if groupOf(t, r, sigmoid) != g || groupOf(t, r, tanh) != g {
		t.Error("elementwise chain must form a single group")
	}
	if g.NumNodes != 3 {
		t.Errorf("group size = %d, want 3", g.NumNodes)
	}
	if g.Pattern != ir.PatternElemWise {
		t.Errorf("group pattern = %v, want elemwise", g.Pattern)
	}
	if g.AnchorRef != nil {
		t.Error("pointwise group must have no anchor")
	}
	if groupOf(t, r, x) == g {
		t.Error("opaque input must stay outside the group")
	}
	checkGroupSizes(t, r)
	checkExternRoots(t, r)
}

func TestPartition_ConvBiasRelu(t *testing.T) {
	x := &ir.Var{Name: "x"}
	w := &ir.Var{Name: "w"}
	b := &ir.Var{Name: "b"}
	conv := call("conv2d", x, w)
	bias := call("bias_add", conv, b)
	relu := call("relu", bias)

	r := analyze(t, relu, 2, 100)

	g := groupOf(t, r, conv)
	if groupOf(t, r, bias) != g || groupOf(t, r, relu) != g {
		t.Fatal("conv2d, bias_add, relu must fuse into one group")
	}
	if g.NumNodes != 3 {
		t.Errorf("group size = %d, want 3", g.NumNodes)
	}
	if g.Pattern != ir.PatternOutEWiseFusable {
		t.Errorf("group pattern = %v, want out_elemwise_fusable", g.Pattern)
	}
	if g.AnchorRef != ir.Expr(conv) {
		t.Error("anchor must be the conv2d node")
	}
	checkGroupSizes(t, r)
	checkExternRoots(t, r)
}

func TestPartition_TwoConvsShareSink(t *testing.T) {
	convA := call("conv2d", &ir.Var{Name: "xa"}, &ir.Var{Name: "wa"})
	reluA := call("relu", convA)
	convB := call("conv2d", &ir.Var{Name: "xb"}, &ir.Var{Name: "wb"})
	reluB := call("relu", convB)
	sum := call("add", reluA, reluB)

	r := analyze(t, sum, 2, 100)

	ga := groupOf(t, r, convA)
	gb := groupOf(t, r, convB)
	if ga == gb {
		t.Fatal("two anchored groups must never merge")
	}
	if groupOf(t, r, reluA) != ga || groupOf(t, r, reluB) != gb {
		t.Error("each relu must fuse with its own conv")
	}
	if ga.AnchorRef != ir.Expr(convA) || gb.AnchorRef != ir.Expr(convB) {
		t.Error("each group keeps its own anchor")
	}

	// the shared sink joins the branch processed first (post-DFS order);
	// it must never bridge the two anchors
	gs := groupOf(t, r, sum)
	if gs != ga {
		t.Error("sink should fuse with the first branch")
	}
	if gb.NumNodes != 2 {
		t.Errorf("second branch group size = %d, want 2", gb.NumNodes)
	}
	checkGroupSizes(t, r)
	checkExternRoots(t, r)
}

func TestPartition_TupleIntoConv(t *testing.T) {
	a := call("reshape", &ir.Var{Name: "a"})
	b := call("reshape", &ir.Var{Name: "b"})
	c := call("reshape", &ir.Var{Name: "c"})
	tup := &ir.Tuple{Fields: []ir.Expr{a, b, c}}
	conv := call("conv2d", tup, &ir.Var{Name: "w"})

	r := analyze(t, conv, 2, 100)

	g := groupOf(t, r, conv)
	if groupOf(t, r, tup) != g {
		t.Error("tuple must dissolve into the conv2d group")
	}
	for _, field := range []ir.Expr{a, b, c} {
		if groupOf(t, r, field) != g {
			t.Errorf("injective field %s must fold into the conv2d group", ir.Describe(field))
		}
	}
	if g.NumNodes != 5 {
		t.Errorf("group size = %d, want 5 (three fields, tuple, conv)", g.NumNodes)
	}
	if g.AnchorRef != ir.Expr(conv) {
		t.Error("anchor must be conv2d")
	}
	checkGroupSizes(t, r)
	checkExternRoots(t, r)
}

func TestPartition_TupleStaysWithoutPhase2(t *testing.T) {
	a := call("reshape", &ir.Var{Name: "a"})
	tup := &ir.Tuple{Fields: []ir.Expr{a}}
	conv := call("conv2d", tup, &ir.Var{Name: "w"})

	r := analyze(t, conv, 1, 100)

	if groupOf(t, r, tup) == groupOf(t, r, conv) {
		t.Error("tuple dissolution requires opt level 2")
	}
}

func TestPartition_TupleIntoConcat(t *testing.T) {
	// the classic inception shape: fields → tuple → concatenate; the tuple
	// is absorbed by the injective concat in phase 1, the fields follow in
	// phase 2
	a := call("reshape", &ir.Var{Name: "a"})
	b := call("reshape", &ir.Var{Name: "b"})
	tup := &ir.Tuple{Fields: []ir.Expr{a, b}}
	concat := call("concatenate", tup)

	r := analyze(t, concat, 2, 100)

	g := groupOf(t, r, concat)
	if groupOf(t, r, tup) != g {
		t.Error("tuple must fuse into concatenate")
	}
	if groupOf(t, r, a) != g || groupOf(t, r, b) != g {
		t.Error("fields must fold into the concatenate group")
	}
	if g.Pattern != ir.PatternInjective {
		t.Errorf("group pattern = %v, want injective", g.Pattern)
	}
	checkGroupSizes(t, r)
}

func TestPartition_OpaqueBarrier(t *testing.T) {
	conv := call("conv2d", &ir.Var{Name: "x"}, &ir.Var{Name: "w"})
	custom := call("mystery_op", conv)
	relu := call("relu", custom)

	r := analyze(t, relu, 2, 100)

	gc := groupOf(t, r, conv)
	gm := groupOf(t, r, custom)
	gr := groupOf(t, r, relu)
	if gc == gm || gm == gr || gc == gr {
		t.Error("no fusion may cross an opaque op")
	}
	checkGroupSizes(t, r)
	checkExternRoots(t, r)
}

func TestPartition_MaxFuseDepth(t *testing.T) {
	x := &ir.Var{Name: "x"}
	ops := make([]*ir.Call, 10)
	prev := ir.Expr(x)
	for i := range ops {
		ops[i] = call("relu", prev)
		prev = ops[i]
	}

	r := analyze(t, prev, 2, 4)

	for _, op := range ops {
		if n := groupOf(t, r, op).NumNodes; n > 4 {
			t.Errorf("group size %d exceeds max fuse depth 4", n)
		}
	}
	// producers fuse greedily front to back: 4 + 4 + 2
	sizes := map[*Group]bool{}
	var got []int
	for _, op := range ops {
		if g := groupOf(t, r, op); !sizes[g] {
			sizes[g] = true
			got = append(got, g.NumNodes)
		}
	}
	want := []int{4, 4, 2}
	if len(got) != len(want) {
		t.Fatalf("chain split into %d groups, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("group %d size = %d, want %d", i, got[i], want[i])
		}
	}
	checkGroupSizes(t, r)
}

func TestPartition_MaxFuseDepthOne(t *testing.T) {
	x := &ir.Var{Name: "x"}
	relu := call("relu", x)
	sigmoid := call("sigmoid", relu)

	r := analyze(t, sigmoid, 2, 1)

	for i := range r.Groups {
		if n := r.GroupOf(i).NumNodes; n != 1 {
			t.Errorf("with max fuse depth 1, every node is its own group; got size %d", n)
		}
	}
}

func TestPartition_OptLevelZero(t *testing.T) {
	// injective chain: phase 1 is disabled at opt level 0
	a := call("reshape", &ir.Var{Name: "a"})
	b := call("transpose", a)

	r := analyze(t, b, 0, 100)
	if groupOf(t, r, a) == groupOf(t, r, b) {
		t.Error("injective fusion must be gated behind opt level 1")
	}

	// but the mandatory anchored phase still runs
	conv := call("conv2d", &ir.Var{Name: "x"}, &ir.Var{Name: "w"})
	relu := call("relu", conv)
	r = analyze(t, relu, 0, 100)
	if groupOf(t, r, conv) != groupOf(t, r, relu) {
		t.Error("anchored fusion runs even at opt level 0")
	}
}

func TestPartition_SingleNode(t *testing.T) {
	x := &ir.Var{Name: "x"}
	r := analyze(t, x, 2, 100)

	if len(r.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(r.Groups))
	}
	g := r.GroupOf(0)
	if g.NumNodes != 1 || g.Pattern != ir.PatternOpaque {
		t.Errorf("single node group: size %d pattern %v", g.NumNodes, g.Pattern)
	}
}

func TestPartition_ElemwiseIntoReduction(t *testing.T) {
	x := &ir.Var{Name: "x"}
	mul := call("multiply", x, x)
	total := call("sum", mul)

	r := analyze(t, total, 2, 100)

	if groupOf(t, r, mul) != groupOf(t, r, total) {
		t.Error("elementwise producer must fuse into its reduction sink")
	}
	checkGroupSizes(t, r)
}

func TestPartition_Idempotent(t *testing.T) {
	conv := call("conv2d", &ir.Var{Name: "x"}, &ir.Var{Name: "w"})
	bias := call("bias_add", conv, &ir.Var{Name: "b"})
	relu := call("relu", bias)
	out := call("sum", relu)

	sig := func(r *Result) []int {
		rootIdx := make(map[*Group]int)
		var s []int
		for i := range r.Groups {
			root := r.GroupOf(i)
			if _, ok := rootIdx[root]; !ok {
				rootIdx[root] = len(rootIdx)
			}
			s = append(s, rootIdx[root])
		}
		return s
	}

	a := sig(analyze(t, out, 2, 100))
	b := sig(analyze(t, out, 2, 100))
	if len(a) != len(b) {
		t.Fatalf("different node counts: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("partition not deterministic at node %d: %v vs %v", i, a, b)
		}
	}
}

func TestFindRoot_PathCompression(t *testing.T) {
	a := &Group{NumNodes: 1}
	b := &Group{Parent: a, NumNodes: 1}
	c := &Group{Parent: b, NumNodes: 1}

	if c.FindRoot() != a {
		t.Fatal("FindRoot must return the chain's root")
	}
	if c.Parent != a || b.Parent != a {
		t.Error("path compression must repoint intermediate groups at the root")
	}
	if a.FindRoot() != a {
		t.Error("FindRoot on a root returns itself")
	}
	if c.FindRoot() != c.FindRoot() {
		t.Error("FindRoot must be idempotent")
	}
}

func TestCountFusedNodes_MatchesCommit(t *testing.T) {
	x := &ir.Var{Name: "x"}
	relu := call("relu", x)
	sigmoid := call("sigmoid", relu)
	tanh := call("tanh", sigmoid)

	g := BuildIndexedForwardGraph(tanh, ir.NewRegistry())
	p := NewGraphPartitioner(2, 100)
	p.initGroups(g)

	src := g.NodeMap[relu]
	sink := g.NodeMap[tanh]
	want := p.CountFusedNodesWithNewChild(src, sink)
	p.CommitFuse(src, sink)
	if got := p.groups[sink.Index].FindRoot().NumNodes; got != want {
		t.Errorf("committed group size = %d, predicted %d", got, want)
	}
}
