// Package fusion partitions the dataflow of an IR expression into fusion
// groups: maximal connected subgraphs of operators that a code generator
// may lower as a single kernel.
//
// The analysis is layered into four stages:
//
//  1. [BuildDependencyGraph] flattens the expression (including let, if,
//     function bodies, and match arms) into a DAG of uses with explicit
//     scope-boundary markers.
//  2. [BuildIndexedForwardGraph] produces an indexed dataflow graph in
//     post-DFS order, recording each operator node's pattern kind,
//     external-reference status, and forward edges.
//  3. [PostDominate] computes the post-dominator tree of that graph in a
//     single reverse pass using least-common-ancestor walks, aggregating
//     edge patterns along the way.
//  4. [GraphPartitioner.Partition] assigns each indexed node to a group
//     with a union-find structure, applying three phased fusion rules under
//     a maximum fused-size budget.
//
// [Analyze] runs stages 2–4 in order and is the entry point most callers
// want. The partition only labels nodes; rewriting the IR into fused
// functions is left to downstream passes.
//
// The analysis is single-threaded and assumes the expression does not
// mutate while it runs. Invalid input (a cyclic "expression", out-of-range
// indices) is a programmer error and panics rather than returning an error.
package fusion
