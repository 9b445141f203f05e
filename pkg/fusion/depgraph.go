package fusion

import "github.com/matzehuels/fusegraph/pkg/ir"

// DepNode is a node in the dependency graph. Children are the nodes this
// node depends on (its operands); Parents are the nodes depending on it.
// A node with NewScope set marks a scope boundary: its subtree's evaluation
// is conditional, delayed, or bound, and code motion must not cross it.
type DepNode struct {
	NewScope bool
	Children []*DepNode
	Parents  []*DepNode
}

// DependencyGraph tracks the inputs and outputs of every sub-expression,
// with dummy scope nodes modeling scope boundaries. PostDFSOrder lists the
// nodes with producers before consumers, which allows reverse traversal.
type DependencyGraph struct {
	// ExprNode maps each distinct sub-expression (by pointer identity) to
	// its node. Let-bound variables alias the node of their bound value.
	ExprNode map[ir.Expr]*DepNode

	// PostDFSOrder holds the nodes in post-order depth-first traversal:
	// a node appears after everything it depends on.
	PostDFSOrder []*DepNode
}

// BuildDependencyGraph traverses the IR from body and records one node per
// distinct sub-expression identity. Shared sub-expressions produce a single
// node with multiple parents.
func BuildDependencyGraph(body ir.Expr) *DependencyGraph {
	c := &depCreator{
		graph: &DependencyGraph{
			ExprNode: make(map[ir.Expr]*DepNode),
		},
		visited:  make(map[ir.Expr]bool),
		appended: make(map[*DepNode]bool),
	}
	c.visit(body)
	return c.graph
}

type depCreator struct {
	graph    *DependencyGraph
	visited  map[ir.Expr]bool
	appended map[*DepNode]bool
}

// node returns the memoized node for e, allocating on first use.
func (c *depCreator) node(e ir.Expr) *DepNode {
	if n, ok := c.graph.ExprNode[e]; ok {
		return n
	}
	n := &DepNode{}
	c.graph.ExprNode[e] = n
	return n
}

// newScope allocates an unmapped scope-boundary node.
func (c *depCreator) newScope() *DepNode {
	return &DepNode{NewScope: true}
}

// link records a dependency edge parent → child.
func (c *depCreator) link(parent, child *DepNode) {
	parent.Children = append(parent.Children, child)
	child.Parents = append(child.Parents, parent)
}

// depend visits the child expression and links its node under parent.
func (c *depCreator) depend(parent *DepNode, child ir.Expr) {
	c.visit(child)
	c.link(parent, c.graph.ExprNode[child])
}

// append adds n to the post-DFS order exactly once. Aliased expressions
// (let-bound variables) share a node that must not be appended twice.
func (c *depCreator) append(n *DepNode) {
	if c.appended[n] {
		return
	}
	c.appended[n] = true
	c.graph.PostDFSOrder = append(c.graph.PostDFSOrder, n)
}

func (c *depCreator) visit(e ir.Expr) {
	n := c.node(e)
	if c.visited[e] {
		return
	}
	c.visited[e] = true

	switch t := e.(type) {
	case *ir.Call:
		c.depend(n, t.Op)
		for _, a := range t.Args {
			c.depend(n, a)
		}
	case *ir.Tuple:
		for _, f := range t.Fields {
			c.depend(n, f)
		}
	case *ir.TupleGetItem:
		c.depend(n, t.Tuple)
	case *ir.Function:
		b := c.newScope()
		c.link(n, b)
		c.depend(b, t.Body)
		c.append(b)
	case *ir.Let:
		c.depend(n, t.Value)
		// references to the bound variable resolve to the value's node
		c.graph.ExprNode[t.Var] = c.graph.ExprNode[t.Value]
		c.visited[t.Var] = true
		b := c.newScope()
		c.link(n, b)
		c.depend(b, t.Body)
		c.append(b)
	case *ir.If:
		c.depend(n, t.Cond)
		then := c.newScope()
		c.link(n, then)
		c.depend(then, t.Then)
		c.append(then)
		els := c.newScope()
		c.link(n, els)
		c.depend(els, t.Else)
		c.append(els)
	case *ir.Match:
		c.depend(n, t.Data)
		for _, cl := range t.Clauses {
			b := c.newScope()
			c.link(n, b)
			c.depend(b, cl.Body)
			c.append(b)
		}
	case *ir.RefCreate:
		c.depend(n, t.Value)
	case *ir.RefRead:
		b := c.newScope()
		c.link(n, b)
		c.depend(b, t.Ref)
		c.append(b)
	case *ir.RefWrite:
		b := c.newScope()
		c.link(n, b)
		c.depend(b, t.Ref)
		c.depend(b, t.Value)
		c.append(b)
	case *ir.Var, *ir.Constant, *ir.Op:
		// leaves: no children
	}

	c.append(n)
}
