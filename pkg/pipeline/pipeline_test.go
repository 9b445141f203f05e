package pipeline

import (
	"context"
	"testing"

	"github.com/matzehuels/fusegraph/pkg/cache"
)

var testModule = []byte(`{
  "nodes": [
    {"id": "x", "kind": "var"},
    {"id": "w", "kind": "var"},
    {"id": "conv", "kind": "call", "op": "conv2d", "args": ["x", "w"]},
    {"id": "act", "kind": "call", "op": "relu", "args": ["conv"]}
  ],
  "result": "act"
}`)

func TestExecute(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	res, err := r.Execute(context.Background(), testModule, Options{OptLevel: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	if res.Stats.NodeCount != 4 {
		t.Errorf("NodeCount = %d, want 4", res.Stats.NodeCount)
	}
	// conv+relu fuse; x and w stay separate
	if res.Stats.GroupCount != 3 {
		t.Errorf("GroupCount = %d, want 3", res.Stats.GroupCount)
	}
	if res.CacheInfo.ReportHit {
		t.Error("first run cannot hit the cache")
	}
}

func TestExecute_CacheHit(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(c)
	defer r.Close()

	ctx := context.Background()
	first, err := r.Execute(ctx, testModule, Options{OptLevel: 2, Formats: []string{FormatDOT}})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.CacheInfo.ReportHit {
		t.Error("first run cannot hit the cache")
	}

	second, err := r.Execute(ctx, testModule, Options{OptLevel: 2, Formats: []string{FormatDOT}})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.CacheInfo.ReportHit || !second.CacheInfo.RenderHit {
		t.Errorf("second run should be fully cached: %+v", second.CacheInfo)
	}
	if string(second.Artifacts[FormatDOT]) != string(first.Artifacts[FormatDOT]) {
		t.Error("cached artifact differs from the original")
	}

	// different options miss the cache
	third, err := r.Execute(ctx, testModule, Options{OptLevel: 1, Formats: []string{FormatDOT}})
	if err != nil {
		t.Fatalf("third Execute: %v", err)
	}
	if third.CacheInfo.ReportHit {
		t.Error("different opt level must not reuse the cached report")
	}
}

func TestExecute_Refresh(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(c)
	defer r.Close()

	ctx := context.Background()
	if _, err := r.Execute(ctx, testModule, Options{OptLevel: 2}); err != nil {
		t.Fatal(err)
	}
	res, err := r.Execute(ctx, testModule, Options{OptLevel: 2, Refresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheInfo.ReportHit {
		t.Error("refresh must bypass the cache")
	}
}

func TestExecute_InvalidModule(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	if _, err := r.Execute(context.Background(), []byte(`{"nodes": []}`), Options{}); err == nil {
		t.Error("invalid module must fail")
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"Defaults", Options{}, false},
		{"NegativeOptLevel", Options{OptLevel: -1}, true},
		{"BadFormat", Options{Formats: []string{"gif"}}, true},
		{"BadStructure", Options{Structure: "spaghetti"}, true},
		{"Full", Options{OptLevel: 2, MaxFuseDepth: 10, Structure: StructureDataflow, Formats: []string{FormatSVG}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.opts.MaxFuseDepth < 1 {
				t.Error("defaults must set a positive max fuse depth")
			}
		})
	}
}
