package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"svg", []string{"svg"}},
		{"svg,png", []string{"svg", "png"}},
		{" dot , svg ", []string{"dot", "svg"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := parseFormats(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parseFormats(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseFormats(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestWriteArtifacts_SingleFormatUsesOutputVerbatim(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "view.svg")
	artifacts := map[string][]byte{"svg": []byte("<svg/>")}

	if err := writeArtifacts("model.json", out, []string{"svg"}, artifacts); err != nil {
		t.Fatalf("writeArtifacts: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != "<svg/>" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteArtifacts_MultipleFormatsUseBase(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "model")
	artifacts := map[string][]byte{
		"dot": []byte("digraph {}"),
		"svg": []byte("<svg/>"),
	}

	if err := writeArtifacts("model.json", base, []string{"dot", "svg"}, artifacts); err != nil {
		t.Fatalf("writeArtifacts: %v", err)
	}
	for _, ext := range []string{".dot", ".svg"} {
		if _, err := os.Stat(base + ext); err != nil {
			t.Errorf("missing artifact %s: %v", ext, err)
		}
	}
}
