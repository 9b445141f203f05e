// Package io imports IR modules from JSON and exports partition reports.
//
// # Module format
//
// A module is a flat list of nodes referencing each other by id, which
// makes shared sub-expressions explicit:
//
//	{
//	  "nodes": [
//	    {"id": "x", "kind": "var"},
//	    {"id": "w", "kind": "var"},
//	    {"id": "conv", "kind": "call", "op": "conv2d", "args": ["x", "w"]},
//	    {"id": "act", "kind": "call", "op": "relu", "args": ["conv"]}
//	  ],
//	  "result": "act",
//	  "patterns": {"my_op": "elemwise"}
//	}
//
// The optional "patterns" map overrides the builtin operator registry for
// this module only.
//
// # Report format
//
// [BuildReport] flattens an analysis result into a serializable report:
// one entry per dataflow node with its canonical group, and one entry per
// group with its root, pattern, anchor, and size.
package io
