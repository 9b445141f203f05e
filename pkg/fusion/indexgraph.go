package fusion

import "github.com/matzehuels/fusegraph/pkg/ir"

// Edge is a forward dataflow edge. Pattern is the consumer's expectation of
// this input: for a call, the call's overall pattern; for tuples and
// projections, injective.
type Edge struct {
	Node    *GraphNode
	Pattern ir.PatternKind
}

// GraphNode is a node in the indexed forward dataflow graph.
type GraphNode struct {
	// Ref is the source IR node (identity pointer).
	Ref ir.Expr

	// Index is the node's position in PostDFSOrder.
	Index int

	// ExternRef reports whether the node's value escapes the analyzed
	// fragment: the overall result, or any value referenced from behind a
	// scope boundary (let bindings, if branches, ref cells). Such nodes
	// are never absorbed into a downstream kernel.
	ExternRef bool

	// Pattern is the node's fusion pattern kind.
	Pattern ir.PatternKind

	// Outputs are the forward edges to this node's consumers.
	Outputs []Edge
}

// IndexedForwardGraph captures the dataflow fragment of an expression.
// Let bindings are collapsed: a let contributes its body's node, and
// let-bound variables alias the node of their bound value. If and match are
// not collapsed; each is an opaque node of its own. Nodes appear in
// post-DFS order, producers before consumers, and Index always equals the
// node's slot in PostDFSOrder.
type IndexedForwardGraph struct {
	NodeMap      map[ir.Expr]*GraphNode
	PostDFSOrder []*GraphNode
}

// BuildIndexedForwardGraph builds the dataflow graph of body, resolving
// operator patterns through reg. The root of body is marked ExternRef.
func BuildIndexedForwardGraph(body ir.Expr, reg *ir.Registry) *IndexedForwardGraph {
	c := &forwardCreator{
		graph: &IndexedForwardGraph{
			NodeMap: make(map[ir.Expr]*GraphNode),
		},
		reg:     reg,
		visited: make(map[ir.Expr]bool),
		bound:   make(map[*ir.Var]ir.Expr),
	}
	c.update(body, nil, ir.PatternOpaque)
	c.visit(body)
	return c.graph
}

type forwardCreator struct {
	graph   *IndexedForwardGraph
	reg     *ir.Registry
	visited map[ir.Expr]bool
	bound   map[*ir.Var]ir.Expr
}

// canonical resolves the dataflow alias of e: a let stands for its body's
// result, and a bound variable stands for its defining expression.
func (c *forwardCreator) canonical(e ir.Expr) ir.Expr {
	for {
		switch t := e.(type) {
		case *ir.Let:
			e = t.Body
		case *ir.Var:
			v, ok := c.bound[t]
			if !ok {
				return e
			}
			e = v
		default:
			return e
		}
	}
}

// update records a consumer edge from e's node to parent. A nil parent
// marks e as externally referenced instead.
func (c *forwardCreator) update(e ir.Expr, parent *GraphNode, pattern ir.PatternKind) {
	e = c.canonical(e)
	node, ok := c.graph.NodeMap[e]
	if !ok {
		node = &GraphNode{Pattern: ir.PatternOpaque}
		c.graph.NodeMap[e] = node
	}
	if parent != nil {
		node.Outputs = append(node.Outputs, Edge{Node: parent, Pattern: pattern})
	} else {
		node.ExternRef = true
	}
}

// addNode assigns e's node its post-DFS index. Re-visits of a shared
// sub-expression keep the first index.
func (c *forwardCreator) addNode(e ir.Expr) {
	node := c.graph.NodeMap[e]
	if node == nil {
		panic("fusion: addNode on expression never referenced by a consumer")
	}
	if node.Ref == nil {
		node.Ref = e
		node.Index = len(c.graph.PostDFSOrder)
		c.graph.PostDFSOrder = append(c.graph.PostDFSOrder, node)
	}
}

func (c *forwardCreator) visit(e ir.Expr) {
	if c.visited[e] {
		return
	}
	c.visited[e] = true

	switch t := e.(type) {
	case *ir.Call:
		node := c.graph.NodeMap[c.canonical(e)]
		pattern := ir.PatternOpaque
		if op, ok := t.Op.(*ir.Op); ok {
			pattern = c.reg.Lookup(op.Name)
		} else {
			// closure call: the callee value flows into the call opaquely
			c.update(t.Op, node, ir.PatternOpaque)
			c.visit(t.Op)
		}
		node.Pattern = pattern
		for _, a := range t.Args {
			c.update(a, node, pattern)
		}
		for _, a := range t.Args {
			c.visit(a)
		}
		c.addNode(e)

	case *ir.Tuple:
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternTuple
		for _, f := range t.Fields {
			c.update(f, node, ir.PatternInjective)
		}
		for _, f := range t.Fields {
			c.visit(f)
		}
		c.addNode(e)

	case *ir.TupleGetItem:
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternInjective
		c.update(t.Tuple, node, ir.PatternInjective)
		c.visit(t.Tuple)
		c.addNode(e)

	case *ir.Let:
		// collapsed: the bound variable aliases the value's node, and the
		// let itself aliases the body's node. The bound value escapes into
		// the let-body scope and must stay a group root.
		c.bound[t.Var] = t.Value
		c.update(t.Value, nil, ir.PatternOpaque)
		c.visit(t.Value)
		c.visit(t.Body)

	case *ir.If:
		// no fusion across conditional evaluation
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternOpaque
		c.update(t.Cond, nil, ir.PatternOpaque)
		c.update(t.Then, nil, ir.PatternOpaque)
		c.update(t.Else, nil, ir.PatternOpaque)
		c.visit(t.Cond)
		c.visit(t.Then)
		c.visit(t.Else)
		c.addNode(e)

	case *ir.Match:
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternOpaque
		c.update(t.Data, nil, ir.PatternOpaque)
		c.visit(t.Data)
		for _, cl := range t.Clauses {
			c.update(cl.Body, nil, ir.PatternOpaque)
			c.visit(cl.Body)
		}
		c.addNode(e)

	case *ir.Function:
		// nested function values are opaque; their params and body belong
		// to an inner scope
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternOpaque
		for _, p := range t.Params {
			c.update(p, nil, ir.PatternOpaque)
			c.visit(p)
		}
		c.update(t.Body, nil, ir.PatternOpaque)
		c.visit(t.Body)
		c.addNode(e)

	case *ir.RefCreate:
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternOpaque
		c.update(t.Value, nil, ir.PatternOpaque)
		c.visit(t.Value)
		c.addNode(e)

	case *ir.RefRead:
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternOpaque
		c.update(t.Ref, nil, ir.PatternOpaque)
		c.visit(t.Ref)
		c.addNode(e)

	case *ir.RefWrite:
		node := c.graph.NodeMap[c.canonical(e)]
		node.Pattern = ir.PatternOpaque
		c.update(t.Ref, nil, ir.PatternOpaque)
		c.update(t.Value, nil, ir.PatternOpaque)
		c.visit(t.Ref)
		c.visit(t.Value)
		c.addNode(e)

	case *ir.Var:
		if _, ok := c.bound[t]; ok {
			return // aliased to its defining expression
		}
		c.addNode(e)

	case *ir.Constant, *ir.Op:
		c.addNode(e)
	}
}
