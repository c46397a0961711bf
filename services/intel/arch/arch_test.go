// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package arch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/graph"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

func fileWithClass(path, class string) *ast.ParseResult {
	r := &ast.ParseResult{FilePath: path, Language: "python", Status: ast.StatusOk}
	if class != "" {
		r.Symbols = append(r.Symbols, &ast.Symbol{
			ID:            ast.GenerateID(path, 1, class),
			Name:          class,
			QualifiedName: class,
			Kind:          ast.SymbolKindClass,
			FilePath:      path,
			StartLine:     1,
			EndLine:       10,
			Language:      "python",
		})
	}
	return r
}

func buildProject(results ...*ast.ParseResult) *project.Project {
	agg := project.NewAggregator("fixture")
	for _, r := range results {
		agg.Add(r)
	}
	return agg.Finish()
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetect_MVCTopRanked(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "manage.py", "#!/usr/bin/env python\n")

	p := buildProject(
		fileWithClass("models/user.py", "User"),
		fileWithClass("views/home.py", "HomeView"),
		fileWithClass("controllers/home_controller.py", "HomeController"),
	)

	matches := Detect(root, p, nil, DefaultConfig())
	if len(matches) == 0 {
		t.Fatal("expected at least one architectural match")
	}
	top := matches[0]
	if top.Style != StyleMVC {
		t.Fatalf("expected MVC top-ranked, got %s", top.Style)
	}
	if top.Confidence < 0.6 {
		t.Errorf("expected strong confidence, got %.2f", top.Confidence)
	}
	if top.Framework != "Django" {
		t.Errorf("expected Django framework, got %q", top.Framework)
	}
	if len(matches) > DefaultTopN {
		t.Errorf("expected at most %d matches, got %d", DefaultTopN, len(matches))
	}
}

func TestDetect_LayerEdgeEvidence(t *testing.T) {
	controllers := fileWithClass("controllers/home_controller.py", "HomeController")
	controllers.Imports = append(controllers.Imports, ast.Import{
		Path:       "../models/user",
		Kind:       ast.ImportKindImport,
		IsRelative: true,
		Location:   ast.Location{FilePath: "controllers/home_controller.py", StartLine: 1, EndLine: 1},
	})
	p := buildProject(
		fileWithClass("models/user.py", "User"),
		fileWithClass("views/home.py", "HomeView"),
		controllers,
	)
	g := graph.Build(p)

	matches := Detect(t.TempDir(), p, g, DefaultConfig())
	if len(matches) == 0 || matches[0].Style != StyleMVC {
		t.Fatalf("expected MVC match, got %v", matches)
	}
	found := false
	for _, e := range matches[0].Evidence {
		if e == "1 import(s) crossing the expected layer boundary" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected layer-edge evidence, got %v", matches[0].Evidence)
	}
}

func TestDetect_Repository(t *testing.T) {
	p := buildProject(
		fileWithClass("repositories/user_repository.py", "UserRepository"),
		fileWithClass("app/main.py", ""),
	)

	matches := Detect(t.TempDir(), p, nil, DefaultConfig())
	if len(matches) == 0 || matches[0].Style != StyleRepository {
		t.Fatalf("expected Repository match, got %v", matches)
	}
	if matches[0].Confidence < 0.6 {
		t.Errorf("expected confidence >= 0.6, got %.2f", matches[0].Confidence)
	}
}

func TestDetect_LayeredTriad(t *testing.T) {
	p := buildProject(
		fileWithClass("presentation/screen.py", "Screen"),
		fileWithClass("domain/order.py", "Order"),
		fileWithClass("persistence/order_store.py", "OrderStore"),
	)

	matches := Detect(t.TempDir(), p, nil, DefaultConfig())
	found := false
	for _, m := range matches {
		if m.Style == StyleLayered {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Layered among matches, got %v", matches)
	}
}

func TestDetect_GoModFrameworkProbe(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n\ngo 1.22\n\nrequire github.com/gin-gonic/gin v1.10.0\n")

	p := buildProject(
		fileWithClass("models/user.go", "User"),
		fileWithClass("controllers/user_controller.go", "UserController"),
	)

	matches := Detect(root, p, nil, DefaultConfig())
	if len(matches) == 0 || matches[0].Style != StyleMVC {
		t.Fatalf("expected MVC match, got %v", matches)
	}
	if matches[0].Framework != "Gin" {
		t.Errorf("expected Gin framework, got %q", matches[0].Framework)
	}
}

func TestDetect_NoEvidence(t *testing.T) {
	p := buildProject(fileWithClass("pkg/util.py", "Util"))

	matches := Detect(t.TempDir(), p, nil, DefaultConfig())
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %v", matches)
	}
}

func TestDetect_WeightOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{"directories": 0.1, "naming": 0.1}

	p := buildProject(
		fileWithClass("repositories/user_repository.py", "UserRepository"),
	)

	matches := Detect(t.TempDir(), p, nil, cfg)
	if len(matches) != 0 {
		t.Errorf("expected overridden weights to fall below minimum confidence, got %v", matches)
	}
}
