// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/CodeAtlas/services/intel/arch"
	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/patterns"
	"github.com/AleutianAI/CodeAtlas/services/intel/report"
	"github.com/AleutianAI/CodeAtlas/services/intel/scan"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func run(t *testing.T, opts Options) *report.Report {
	t.Helper()
	eng, err := New(opts, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	r, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return r
}

func fileEntry(r *report.Report, path string) (report.FileEntry, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f, true
		}
	}
	return report.FileEntry{}, false
}

const subjectSource = `class Subject:
    def __init__(self):
        self.handlers = []

    def attach(self, h):
        self.handlers.append(h)

    def detach(self, h):
        self.handlers.remove(h)

    def notify(self):
        for h in self.handlers:
            h()
`

func TestEngine_FullPipeline(t *testing.T) {
	root := writeTree(t, map[string]string{
		"manage.py":                      "#!/usr/bin/env python\n",
		"models/user.py":                 "class User:\n    pass\n",
		"views/home.py":                  "class HomeView:\n    pass\n",
		"controllers/home_controller.py": "class HomeController:\n    pass\n",
		"events/subject.py":              subjectSource,
		"notes.csv":                      "a,b,c\n",
	})

	r := run(t, Options{Root: root, Depth: DepthFull})

	if r.SchemaVersion != report.SchemaVersion {
		t.Errorf("unexpected schema version %q", r.SchemaVersion)
	}
	if r.Summary.TotalFiles != 6 {
		t.Errorf("expected 6 files in report, got %d", r.Summary.TotalFiles)
	}

	skippedEntry, ok := fileEntry(r, "notes.csv")
	if !ok {
		t.Fatal("expected skipped file to be recorded")
	}
	if skippedEntry.Status != ast.StatusSkipped || skippedEntry.Reason == "" {
		t.Errorf("expected skipped status with reason, got %+v", skippedEntry)
	}

	foundObserver := false
	for _, m := range r.PatternMatches {
		if m.Kind == patterns.KindObserver && strings.Contains(m.Symbol, "Subject") {
			foundObserver = true
		}
	}
	if !foundObserver {
		t.Errorf("expected Observer match for Subject, got %v", r.PatternMatches)
	}

	if len(r.ArchitecturalMatches) == 0 || r.ArchitecturalMatches[0].Style != arch.StyleMVC {
		t.Fatalf("expected MVC top-ranked, got %v", r.ArchitecturalMatches)
	}
	if r.ArchitecturalMatches[0].Framework != "Django" {
		t.Errorf("expected Django framework, got %q", r.ArchitecturalMatches[0].Framework)
	}
}

func TestEngine_DependencyCycle(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "import b\n\nclass A:\n    pass\n",
		"b.py": "import c\n\nclass B:\n    pass\n",
		"c.py": "import a\n\nclass C:\n    pass\n",
	})

	r := run(t, Options{Root: root})

	if r.Summary.DependencyCycles != 1 {
		t.Fatalf("expected exactly one cycle, got %d (%v)",
			r.Summary.DependencyCycles, r.DependencyGraph.Cycles)
	}
	cycle := r.DependencyGraph.Cycles[0]
	if len(cycle) != 3 {
		t.Errorf("expected three files in the cycle, got %v", cycle)
	}
}

func TestEngine_MalformedFileDoesNotAbortRun(t *testing.T) {
	root := writeTree(t, map[string]string{
		"good.py":   "class Fine:\n    pass\n",
		"broken.py": "class Broken(:\n    def def def\n",
	})

	r := run(t, Options{Root: root})

	good, ok := fileEntry(r, "good.py")
	if !ok || good.Status != ast.StatusOk {
		t.Errorf("expected good.py parsed ok, got %+v", good)
	}
	broken, ok := fileEntry(r, "broken.py")
	if !ok {
		t.Fatal("expected broken.py in report")
	}
	if broken.Status != ast.StatusPartial && broken.Status != ast.StatusFailed {
		t.Errorf("expected degraded status for broken.py, got %v", broken.Status)
	}
}

func TestEngine_IdempotentReports(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app/main.py":  "class App:\n    pass\n",
		"app/other.py": "import main\n\nclass Other:\n    pass\n",
	})

	first := run(t, Options{Root: root, Depth: DepthFull})
	second := run(t, Options{Root: root, Depth: DepthFull})

	a, err := first.MarshalCanonical()
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.MarshalCanonical()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected byte-identical canonical reports across runs")
	}
}

func TestEngine_CacheDeduplicatesIdenticalContent(t *testing.T) {
	source := "class Shared:\n    pass\n"
	root := writeTree(t, map[string]string{
		"a/shared.py": source,
		"b/shared.py": source,
	})

	eng, err := New(Options{Root: root, Workers: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if eng.cache.Stats().Hits != 1 {
		t.Errorf("expected one cache hit, got %+v", eng.cache.Stats())
	}
	for _, path := range []string{"a/shared.py", "b/shared.py"} {
		entry, ok := fileEntry(r, path)
		if !ok || entry.Symbols != 1 {
			t.Errorf("expected one symbol at %s, got %+v", path, entry)
		}
	}
	for _, sym := range r.Symbols {
		if sym.Name == "Shared" && sym.FilePath != "a/shared.py" && sym.FilePath != "b/shared.py" {
			t.Errorf("cache hit leaked wrong path %s", sym.FilePath)
		}
	}
}

func TestEngine_SurfaceDepthSkipsArchAndSignals(t *testing.T) {
	root := writeTree(t, map[string]string{
		"models/user.py":   "class User:\n    pass\n",
		"views/home.py":    "class HomeView:\n    pass\n",
		"controllers/c.py": "class HomeController:\n    pass\n",
	})

	r := run(t, Options{Root: root, Depth: DepthSurface})

	if len(r.ArchitecturalMatches) != 0 {
		t.Errorf("expected no architectural analysis at surface depth, got %v", r.ArchitecturalMatches)
	}
	if r.SignalFlow != nil {
		t.Error("expected no signal analysis at surface depth")
	}
	for _, f := range r.Files {
		if f.Status == ast.StatusOk {
			t.Errorf("surface depth must not claim exact parses, got ok for %s", f.Path)
		}
	}
}

func TestEngine_SignalFlowAtFullDepth(t *testing.T) {
	root := writeTree(t, map[string]string{
		"player.gd": "class_name Player\n\nsignal died\n\nfunc hit():\n\temit_signal(\"died\")\n",
	})

	r := run(t, Options{Root: root, Depth: DepthFull})

	if r.SignalFlow == nil || len(r.SignalFlow.Signals) != 1 {
		t.Fatalf("expected one signal in flow, got %+v", r.SignalFlow)
	}
	if r.SignalFlow.Signals[0].Name != "died" {
		t.Errorf("expected signal died, got %q", r.SignalFlow.Signals[0].Name)
	}
	if len(r.Diagram) == 0 {
		t.Error("expected diagram edges from signal flow")
	}
}

func TestEngine_InvalidOptions(t *testing.T) {
	if _, err := New(Options{}, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions for missing root, got %v", err)
	}
	if _, err := New(Options{Root: "x", Languages: []string{"cobol"}}, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions for unknown language, got %v", err)
	}
}

func TestEngine_NoParseableFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"data.csv": "a,b\n"})

	eng, err := New(Options{Root: root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background()); !errors.Is(err, scan.ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
}

func TestEngine_Canceled(t *testing.T) {
	root := writeTree(t, map[string]string{"main.py": "class Main:\n    pass\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng, err := New(Options{Root: root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
