// Package ir defines the functional intermediate representation analyzed by
// the fusion passes.
//
// The IR is an expression tree whose leaves are variables, constants, and
// operators, and whose interior nodes are calls, tuples, projections,
// let-bindings, conditionals, and functions. Sub-expressions may be shared:
// two consumers referencing the same *Call pointer reference the same value.
// Identity is therefore pointer identity, never structural equality.
//
// Dispatch over expression forms is done with a type switch on the sealed
// [Expr] interface. There is no inheritance hierarchy; each form is a plain
// struct.
//
// Operator metadata lives in [Registry], which maps operator names to their
// [PatternKind]. Operators without a registered pattern are treated as
// [PatternOpaque] and never fuse.
package ir
