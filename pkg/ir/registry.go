package ir

// Registry maps operator names to their fusion pattern. Lookups for
// unregistered operators return [PatternOpaque], which keeps unknown ops
// out of every fusion group rather than failing the analysis.
//
// A Registry is not safe for concurrent mutation; populate it before
// handing it to the analysis passes.
type Registry struct {
	patterns map[string]PatternKind
}

// builtinPatterns seeds every new registry with the patterns of common
// tensor operators. Config files and module inputs may override any entry.
var builtinPatterns = map[string]PatternKind{
	// elementwise
	"add":      PatternElemWise,
	"subtract": PatternElemWise,
	"multiply": PatternElemWise,
	"divide":   PatternElemWise,
	"negative": PatternElemWise,
	"exp":      PatternElemWise,
	"log":      PatternElemWise,
	"sqrt":     PatternElemWise,
	"relu":     PatternElemWise,
	"sigmoid":  PatternElemWise,
	"tanh":     PatternElemWise,
	"clip":     PatternElemWise,
	"cast":     PatternElemWise,

	// broadcast
	"bias_add":     PatternBroadcast,
	"broadcast_to": PatternBroadcast,
	"where":        PatternBroadcast,

	// injective
	"reshape":       PatternInjective,
	"transpose":     PatternInjective,
	"squeeze":       PatternInjective,
	"expand_dims":   PatternInjective,
	"concatenate":   PatternInjective,
	"strided_slice": PatternInjective,
	"take":          PatternInjective,
	"pad":           PatternInjective,

	// reductions
	"sum":    PatternCommReduce,
	"mean":   PatternCommReduce,
	"max":    PatternCommReduce,
	"min":    PatternCommReduce,
	"prod":   PatternCommReduce,
	"argmax": PatternCommReduce,
	"argmin": PatternCommReduce,

	// anchored complex ops
	"conv1d":           PatternOutEWiseFusable,
	"conv2d":           PatternOutEWiseFusable,
	"conv3d":           PatternOutEWiseFusable,
	"dense":            PatternOutEWiseFusable,
	"matmul":           PatternOutEWiseFusable,
	"batch_matmul":     PatternOutEWiseFusable,
	"conv2d_transpose": PatternOutEWiseFusable,

	// opaque
	"sort":        PatternOpaque,
	"nonzero":     PatternOpaque,
	"device_copy": PatternOpaque,
	"dropout":     PatternOpaque,
}

// NewRegistry returns a registry pre-populated with the builtin operator
// patterns.
func NewRegistry() *Registry {
	m := make(map[string]PatternKind, len(builtinPatterns))
	for name, kind := range builtinPatterns {
		m[name] = kind
	}
	return &Registry{patterns: m}
}

// Register sets (or overrides) the pattern for an operator name.
func (r *Registry) Register(name string, kind PatternKind) {
	r.patterns[name] = kind
}

// Lookup returns the pattern registered for name, or [PatternOpaque] if the
// operator is unknown.
func (r *Registry) Lookup(name string) PatternKind {
	if k, ok := r.patterns[name]; ok {
		return k
	}
	return PatternOpaque
}

// Names returns the registered operator names in unspecified order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	return names
}
