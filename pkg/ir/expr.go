package ir

import "fmt"

// Expr is the interface implemented by every IR expression form.
//
// Expressions are compared by pointer identity. Sharing a sub-expression
// between two consumers is expressed by referencing the same pointer, and
// the analysis passes rely on this to build one graph node per distinct
// sub-expression.
type Expr interface {
	isExpr()
}

// Var is a variable reference. A Var is either bound by an enclosing [Let]
// or [Function], or free (an input to the analyzed fragment).
type Var struct {
	Name string
}

// Constant is a literal tensor value. The analysis does not inspect the
// payload; Value is kept only for labeling and serialization.
type Constant struct {
	Value string
}

// Op names a primitive operator. Its fusion pattern is looked up in a
// [Registry]; the IR itself carries no operator metadata.
type Op struct {
	Name string
}

// Call applies an operator (or a first-class function value) to arguments.
type Call struct {
	Op   Expr
	Args []Expr
}

// Function is a function literal with named parameters and a body.
type Function struct {
	Params []*Var
	Body   Expr
}

// Let binds Var to Value inside Body. The let's result is the body's result.
type Let struct {
	Var   *Var
	Value Expr
	Body  Expr
}

// If selects between two branches. Branch evaluation is conditional, so
// branches form scope boundaries for the analysis.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

// Tuple packs several values into one.
type Tuple struct {
	Fields []Expr
}

// TupleGetItem projects field Index out of Tuple.
type TupleGetItem struct {
	Tuple Expr
	Index int
}

// Clause is one arm of a [Match]. The pattern side is opaque to the fusion
// analysis; only the body participates in dataflow.
type Clause struct {
	Pattern string
	Body    Expr
}

// Match scrutinizes Data and evaluates the body of the selected clause.
type Match struct {
	Data    Expr
	Clauses []*Clause
}

// RefCreate allocates a mutable reference cell holding Value.
type RefCreate struct {
	Value Expr
}

// RefRead reads the current value of a reference cell.
type RefRead struct {
	Ref Expr
}

// RefWrite stores Value into a reference cell and yields unit.
type RefWrite struct {
	Ref   Expr
	Value Expr
}

func (*Var) isExpr()          {}
func (*Constant) isExpr()     {}
func (*Op) isExpr()           {}
func (*Call) isExpr()         {}
func (*Function) isExpr()     {}
func (*Let) isExpr()          {}
func (*If) isExpr()           {}
func (*Tuple) isExpr()        {}
func (*TupleGetItem) isExpr() {}
func (*Match) isExpr()        {}
func (*RefCreate) isExpr()    {}
func (*RefRead) isExpr()      {}
func (*RefWrite) isExpr()     {}

// Describe returns a short human-readable label for an expression, used in
// logs, reports, and DOT output. It does not recurse into children.
func Describe(e Expr) string {
	switch t := e.(type) {
	case *Var:
		return "var " + t.Name
	case *Constant:
		return "const " + t.Value
	case *Op:
		return "op " + t.Name
	case *Call:
		if op, ok := t.Op.(*Op); ok {
			return "call " + op.Name
		}
		return "call closure"
	case *Function:
		return fmt.Sprintf("fn/%d", len(t.Params))
	case *Let:
		return "let " + t.Var.Name
	case *If:
		return "if"
	case *Tuple:
		return fmt.Sprintf("tuple/%d", len(t.Fields))
	case *TupleGetItem:
		return fmt.Sprintf("tuple.%d", t.Index)
	case *Match:
		return fmt.Sprintf("match/%d", len(t.Clauses))
	case *RefCreate:
		return "ref"
	case *RefRead:
		return "ref.read"
	case *RefWrite:
		return "ref.write"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
