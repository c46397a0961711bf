// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/graph"
	"github.com/AleutianAI/CodeAtlas/services/intel/patterns"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
	"github.com/AleutianAI/CodeAtlas/services/intel/signals"
)

func testProject() *project.Project {
	agg := project.NewAggregator("/home/user/demo")
	agg.Add(&ast.ParseResult{
		FilePath: "app/main.py",
		Language: "python",
		Status:   ast.StatusOk,
		Symbols: []*ast.Symbol{{
			ID:            ast.GenerateID("app/main.py", 1, "App"),
			Name:          "App",
			QualifiedName: "App",
			Kind:          ast.SymbolKindClass,
			FilePath:      "app/main.py",
			StartLine:     1,
			EndLine:       10,
			Language:      "python",
		}},
	})
	agg.Add(&ast.ParseResult{
		FilePath: "app/broken.py",
		Language: "python",
		Status:   ast.StatusFailed,
		Errors:   []string{"parse timeout after 5s"},
	})
	return agg.Finish()
}

func TestBuild_MetadataAndSummary(t *testing.T) {
	p := testProject()
	r := Build("/home/user/demo", p, graph.Build(p), nil, nil, nil)

	if r.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %q, got %q", SchemaVersion, r.SchemaVersion)
	}
	if r.Metadata.Root != "demo" {
		t.Errorf("expected base-name root, got %q", r.Metadata.Root)
	}
	if r.Metadata.RunID == "" || r.Metadata.GeneratedAtMilli == 0 {
		t.Error("expected run metadata to be stamped")
	}
	if r.Summary.TotalFiles != 2 {
		t.Errorf("expected 2 files, got %d", r.Summary.TotalFiles)
	}
	if r.Summary.FilesByStatus[ast.StatusOk.String()] != 1 || r.Summary.FilesByStatus[ast.StatusFailed.String()] != 1 {
		t.Errorf("unexpected status counts %v", r.Summary.FilesByStatus)
	}
	if r.Summary.SymbolsByLanguage["python"] != 1 {
		t.Errorf("unexpected language counts %v", r.Summary.SymbolsByLanguage)
	}
}

func TestBuild_FailedFileKeepsReason(t *testing.T) {
	p := testProject()
	r := Build("/home/user/demo", p, nil, nil, nil, nil)

	var failed *FileEntry
	for i := range r.Files {
		if r.Files[i].Path == "app/broken.py" {
			failed = &r.Files[i]
		}
	}
	if failed == nil {
		t.Fatal("expected failed file in report")
	}
	if failed.Reason != "parse timeout after 5s" {
		t.Errorf("expected timeout reason, got %q", failed.Reason)
	}
}

func TestBuild_NoAbsolutePaths(t *testing.T) {
	p := testProject()
	r := Build("/home/user/demo", p, graph.Build(p), nil, nil, nil)

	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "/home/user") {
		t.Error("report leaked an absolute path")
	}
}

func TestCanonical_IdempotentAcrossRuns(t *testing.T) {
	p := testProject()
	matches := []patterns.Match{{Kind: patterns.KindSingleton, Symbol: "App", Confidence: 0.9}}

	first := Build("/home/user/demo", p, graph.Build(p), matches, nil, nil)
	second := Build("/home/user/demo", p, graph.Build(p), matches, nil, nil)

	if first.Metadata.RunID == second.Metadata.RunID {
		t.Error("expected distinct run IDs")
	}
	a, err := first.MarshalCanonical()
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.MarshalCanonical()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected byte-identical canonical reports")
	}
}

func TestBuild_DiagramPrefersSignalFlow(t *testing.T) {
	p := testProject()
	flow := &signals.Flow{
		Edges: []signals.Edge{{From: "player.Player", To: "died", Signal: "died", Kind: ast.SignalEmit}},
	}
	r := Build("/home/user/demo", p, graph.Build(p), nil, nil, flow)

	if len(r.Diagram) != 1 {
		t.Fatalf("expected one diagram edge, got %v", r.Diagram)
	}
	if r.Diagram[0].Label != "emit died" {
		t.Errorf("unexpected label %q", r.Diagram[0].Label)
	}
}
