package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/fusegraph/pkg/fusion"
	"github.com/matzehuels/fusegraph/pkg/ir"
)

// Report is the serializable result of a partition run.
type Report struct {
	Nodes  []NodeAssignment `json:"nodes"`
	Groups []GroupSummary   `json:"groups"`
}

// NodeAssignment records the group of one dataflow node.
type NodeAssignment struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	Pattern   string `json:"pattern"`
	ExternRef bool   `json:"extern_ref,omitempty"`
	Group     int    `json:"group"`
}

// GroupSummary describes one fusion group. ID is the post-DFS index of the
// group's root node.
type GroupSummary struct {
	ID       int    `json:"id"`
	Root     string `json:"root"`
	Pattern  string `json:"pattern"`
	Anchor   string `json:"anchor,omitempty"`
	NumNodes int    `json:"num_nodes"`
}

// BuildReport flattens an analysis result into a report. names may be nil;
// when present (from [Module.Names]) it labels nodes with their module ids
// instead of generic descriptions.
func BuildReport(res *fusion.Result, names map[ir.Expr]string) *Report {
	label := func(e ir.Expr) string {
		if name, ok := names[e]; ok {
			return name
		}
		return ir.Describe(e)
	}

	rootID := make(map[*fusion.Group]int)
	report := &Report{
		Nodes: make([]NodeAssignment, len(res.Graph.PostDFSOrder)),
	}
	for i, n := range res.Graph.PostDFSOrder {
		root := res.GroupOf(i)
		id, ok := rootID[root]
		if !ok {
			id = res.Graph.NodeMap[root.RootRef].Index
			rootID[root] = id
			summary := GroupSummary{
				ID:       id,
				Root:     label(root.RootRef),
				Pattern:  root.Pattern.String(),
				NumNodes: root.NumNodes,
			}
			if root.AnchorRef != nil {
				summary.Anchor = label(root.AnchorRef)
			}
			report.Groups = append(report.Groups, summary)
		}
		report.Nodes[i] = NodeAssignment{
			Index:     i,
			Label:     label(n.Ref),
			Pattern:   n.Pattern.String(),
			ExternRef: n.ExternRef,
			Group:     id,
		}
	}
	return report
}

// WriteReport encodes a report as indented JSON and writes it to w.
func WriteReport(r *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ExportReport writes a report to a JSON file at path.
func ExportReport(r *Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteReport(r, f)
}
