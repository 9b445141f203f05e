package ir

import "fmt"

// PatternKind classifies an operator's computation shape for fusion
// compatibility. The ordinal order matters: when patterns are combined
// along a dataflow path, the larger (less fusable) value wins.
type PatternKind int

const (
	// PatternElemWise marks ops whose output element i depends only on
	// element i of each input (relu, add).
	PatternElemWise PatternKind = iota

	// PatternBroadcast marks ops whose output depends on broadcast-aligned
	// input elements (bias_add).
	PatternBroadcast

	// PatternInjective marks one-to-one index remappings (reshape,
	// transpose, concatenate).
	PatternInjective

	// PatternCommReduce marks reductions with a commutative, associative
	// combinator (sum, mean).
	PatternCommReduce

	// PatternOutEWiseFusable marks complex ops that produce elementwise-
	// fusable output (conv2d, dense). Such an op anchors its fusion group.
	PatternOutEWiseFusable

	// PatternTuple marks tuple-packing nodes.
	PatternTuple

	// PatternOpaque marks everything that must not fuse.
	PatternOpaque
)

var patternNames = [...]string{
	PatternElemWise:        "elemwise",
	PatternBroadcast:       "broadcast",
	PatternInjective:       "injective",
	PatternCommReduce:      "comm_reduce",
	PatternOutEWiseFusable: "out_elemwise_fusable",
	PatternTuple:           "tuple",
	PatternOpaque:          "opaque",
}

// String returns the canonical lowercase name of the pattern kind.
func (k PatternKind) String() string {
	if k < 0 || int(k) >= len(patternNames) {
		return fmt.Sprintf("pattern(%d)", int(k))
	}
	return patternNames[k]
}

// ParsePatternKind converts a pattern name (as used in config files and the
// JSON module format) back to its PatternKind.
func ParsePatternKind(s string) (PatternKind, error) {
	for k, name := range patternNames {
		if s == name {
			return PatternKind(k), nil
		}
	}
	return PatternOpaque, fmt.Errorf("unknown pattern kind %q", s)
}

// CombinePattern merges two patterns seen along a dataflow path. The worst
// pattern wins: any path containing an opaque edge is opaque. The operation
// is commutative, associative, and idempotent.
func CombinePattern(a, b PatternKind) PatternKind {
	if a > b {
		return a
	}
	return b
}
