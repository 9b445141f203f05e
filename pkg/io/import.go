package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/ir"
)

// module mirrors the JSON wire format.
type module struct {
	Nodes    []moduleNode      `json:"nodes"`
	Result   string            `json:"result"`
	Patterns map[string]string `json:"patterns,omitempty"`
}

// moduleNode is one entry in the flat node list. Which fields are read
// depends on Kind; fields that do not apply to the kind are ignored.
type moduleNode struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Op    string `json:"op,omitempty"`    // call
	Value string `json:"value,omitempty"` // const, let, ref_create, ref_write
	Var   string `json:"var,omitempty"`   // let
	Body  string `json:"body,omitempty"`  // let, function
	Cond  string `json:"cond,omitempty"`  // if
	Then  string `json:"then,omitempty"`  // if
	Else  string `json:"else,omitempty"`  // if
	Ref   string `json:"ref,omitempty"`   // ref_read, ref_write
	Data  string `json:"data,omitempty"`  // match
	Tuple string `json:"tuple,omitempty"` // tuple_get
	Index int    `json:"index,omitempty"` // tuple_get

	Args    []string       `json:"args,omitempty"`    // call
	Fields  []string       `json:"fields,omitempty"`  // tuple
	Params  []string       `json:"params,omitempty"`  // function
	Clauses []moduleClause `json:"clauses,omitempty"` // match
}

type moduleClause struct {
	Pattern string `json:"pattern,omitempty"`
	Body    string `json:"body"`
}

// Module is the result of reading a module file: the expression to analyze
// plus a registry with any per-module pattern overrides applied. Names maps
// each constructed expression back to its node id for labeling.
type Module struct {
	Body     ir.Expr
	Registry *ir.Registry
	Names    map[ir.Expr]string
}

// ReadModule decodes a JSON module from r. The returned expression shares
// nodes exactly as the id references in the input do, and the registry
// starts from the builtin operator patterns with the module's overrides
// applied on top.
//
// ReadModule returns an error if the JSON is malformed, a node id is
// duplicated or invalid, a reference points at an undefined id, the node
// graph is cyclic, or a pattern override names an unknown pattern kind.
func ReadModule(r io.Reader) (*Module, error) {
	var m module
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode module")
	}
	if len(m.Nodes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidIR, "module has no nodes")
	}
	if m.Result == "" {
		return nil, errors.New(errors.ErrCodeInvalidIR, "module has no result node")
	}

	byID := make(map[string]*moduleNode, len(m.Nodes))
	for i := range m.Nodes {
		n := &m.Nodes[i]
		if err := errors.ValidateNodeID(n.ID); err != nil {
			return nil, err
		}
		if _, dup := byID[n.ID]; dup {
			return nil, errors.New(errors.ErrCodeInvalidIR, "duplicate node id %q", n.ID)
		}
		byID[n.ID] = n
	}

	b := &moduleBuilder{byID: byID, built: make(map[string]ir.Expr, len(m.Nodes))}
	body, err := b.build(m.Result)
	if err != nil {
		return nil, err
	}

	reg := ir.NewRegistry()
	for op, name := range m.Patterns {
		if err := errors.ValidateOpName(op); err != nil {
			return nil, err
		}
		kind, err := ir.ParsePatternKind(name)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPattern, err, "pattern override for %q", op)
		}
		reg.Register(op, kind)
	}

	names := make(map[ir.Expr]string, len(b.built))
	for id, e := range b.built {
		names[e] = id
	}
	return &Module{Body: body, Registry: reg, Names: names}, nil
}

// ReadModuleFile reads a module from a JSON file at path.
func ReadModuleFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()
	return ReadModule(f)
}

// moduleBuilder memoizes node construction so that id sharing in the input
// becomes pointer sharing in the expression.
type moduleBuilder struct {
	byID     map[string]*moduleNode
	built    map[string]ir.Expr
	building map[string]bool
}

func (b *moduleBuilder) build(id string) (ir.Expr, error) {
	if e, ok := b.built[id]; ok {
		return e, nil
	}
	n, ok := b.byID[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidIR, "reference to undefined node %q", id)
	}
	if b.building == nil {
		b.building = make(map[string]bool)
	}
	if b.building[id] {
		return nil, errors.New(errors.ErrCodeInvalidIR, "node %q is part of a reference cycle", id)
	}
	b.building[id] = true
	defer delete(b.building, id)

	e, err := b.buildNode(n)
	if err != nil {
		return nil, err
	}
	b.built[id] = e
	return e, nil
}

func (b *moduleBuilder) buildNode(n *moduleNode) (ir.Expr, error) {
	switch n.Kind {
	case "var":
		return &ir.Var{Name: n.ID}, nil

	case "const":
		return &ir.Constant{Value: n.Value}, nil

	case "op":
		if err := errors.ValidateOpName(n.Op); err != nil {
			return nil, err
		}
		return &ir.Op{Name: n.Op}, nil

	case "call":
		args, err := b.buildList(n.ID, n.Args)
		if err != nil {
			return nil, err
		}
		var callee ir.Expr
		if n.Op != "" {
			if err := errors.ValidateOpName(n.Op); err != nil {
				return nil, err
			}
			callee = &ir.Op{Name: n.Op}
		} else {
			return nil, errors.New(errors.ErrCodeInvalidIR, "call %q has no op", n.ID)
		}
		return &ir.Call{Op: callee, Args: args}, nil

	case "tuple":
		fields, err := b.buildList(n.ID, n.Fields)
		if err != nil {
			return nil, err
		}
		return &ir.Tuple{Fields: fields}, nil

	case "tuple_get":
		tup, err := b.buildRef(n.ID, "tuple", n.Tuple)
		if err != nil {
			return nil, err
		}
		if n.Index < 0 {
			return nil, errors.New(errors.ErrCodeInvalidIR, "tuple_get %q has negative index", n.ID)
		}
		return &ir.TupleGetItem{Tuple: tup, Index: n.Index}, nil

	case "let":
		value, err := b.buildRef(n.ID, "value", n.Value)
		if err != nil {
			return nil, err
		}
		bound, err := b.buildVar(n.ID, n.Var)
		if err != nil {
			return nil, err
		}
		body, err := b.buildRef(n.ID, "body", n.Body)
		if err != nil {
			return nil, err
		}
		return &ir.Let{Var: bound, Value: value, Body: body}, nil

	case "if":
		cond, err := b.buildRef(n.ID, "cond", n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := b.buildRef(n.ID, "then", n.Then)
		if err != nil {
			return nil, err
		}
		els, err := b.buildRef(n.ID, "else", n.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, Then: then, Else: els}, nil

	case "function":
		params := make([]*ir.Var, len(n.Params))
		for i, p := range n.Params {
			v, err := b.buildVar(n.ID, p)
			if err != nil {
				return nil, err
			}
			params[i] = v
		}
		body, err := b.buildRef(n.ID, "body", n.Body)
		if err != nil {
			return nil, err
		}
		return &ir.Function{Params: params, Body: body}, nil

	case "match":
		data, err := b.buildRef(n.ID, "data", n.Data)
		if err != nil {
			return nil, err
		}
		clauses := make([]*ir.Clause, len(n.Clauses))
		for i, c := range n.Clauses {
			body, err := b.buildRef(n.ID, "clause body", c.Body)
			if err != nil {
				return nil, err
			}
			clauses[i] = &ir.Clause{Pattern: c.Pattern, Body: body}
		}
		return &ir.Match{Data: data, Clauses: clauses}, nil

	case "ref_create":
		value, err := b.buildRef(n.ID, "value", n.Value)
		if err != nil {
			return nil, err
		}
		return &ir.RefCreate{Value: value}, nil

	case "ref_read":
		ref, err := b.buildRef(n.ID, "ref", n.Ref)
		if err != nil {
			return nil, err
		}
		return &ir.RefRead{Ref: ref}, nil

	case "ref_write":
		ref, err := b.buildRef(n.ID, "ref", n.Ref)
		if err != nil {
			return nil, err
		}
		value, err := b.buildRef(n.ID, "value", n.Value)
		if err != nil {
			return nil, err
		}
		return &ir.RefWrite{Ref: ref, Value: value}, nil

	default:
		return nil, errors.New(errors.ErrCodeInvalidIR, "node %q has unknown kind %q", n.ID, n.Kind)
	}
}

func (b *moduleBuilder) buildRef(owner, field, id string) (ir.Expr, error) {
	if id == "" {
		return nil, errors.New(errors.ErrCodeInvalidIR, "node %q is missing %s", owner, field)
	}
	return b.build(id)
}

func (b *moduleBuilder) buildList(owner string, ids []string) ([]ir.Expr, error) {
	out := make([]ir.Expr, len(ids))
	for i, id := range ids {
		e, err := b.buildRef(owner, fmt.Sprintf("element %d", i), id)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (b *moduleBuilder) buildVar(owner, id string) (*ir.Var, error) {
	e, err := b.buildRef(owner, "var", id)
	if err != nil {
		return nil, err
	}
	v, ok := e.(*ir.Var)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidIR, "node %q binds non-variable %q", owner, id)
	}
	return v, nil
}
