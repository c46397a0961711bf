// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds the project dependency graph from the imports
// extracted during parsing.
//
// Nodes are project files plus one external node per unresolved import
// target. Edges keep their import kind and a Resolved flag; unresolved
// imports are recorded rather than dropped so external dependencies
// stay visible.
package graph

import (
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

// NodeKind distinguishes project files from external import targets.
type NodeKind string

const (
	// NodeFile is a file inside the project.
	NodeFile NodeKind = "file"

	// NodeExternal is an import target not found in the project.
	NodeExternal NodeKind = "external"
)

// Node is one vertex of the dependency graph.
type Node struct {
	// ID is the project-relative file path, or the import path for
	// external nodes.
	ID string `json:"id"`

	// Kind is file or external.
	Kind NodeKind `json:"kind"`

	// Language is the file's language tag, empty for external nodes.
	Language string `json:"language,omitempty"`

	// InDegree counts incoming edges.
	InDegree int `json:"in_degree"`

	// OutDegree counts outgoing edges.
	OutDegree int `json:"out_degree"`

	// HubScore is in-degree plus out-degree.
	HubScore int `json:"hub_score"`
}

// Edge is one import/require/include relationship.
type Edge struct {
	// From is the importing file's node ID.
	From string `json:"from"`

	// To is the imported node ID, a file path when resolved and the
	// raw import path otherwise.
	To string `json:"to"`

	// Kind is the import statement kind.
	Kind ast.ImportKind `json:"kind"`

	// Resolved reports whether To is a project file.
	Resolved bool `json:"resolved"`
}

// Graph is the complete dependency graph, immutable after Build.
type Graph struct {
	// Nodes, sorted by ID.
	Nodes []Node `json:"nodes"`

	// Edges, sorted by (From, To).
	Edges []Edge `json:"edges"`

	// Cycles lists strongly connected components with two or more
	// nodes (or a self-loop), each sorted, the list sorted by first
	// element.
	Cycles [][]string `json:"cycles"`
}

// sourceExtensions are tried when resolving extensionless import paths.
var sourceExtensions = []string{
	".go", ".py", ".js", ".jsx", ".mjs", ".ts", ".tsx", ".rs", ".java",
	".cpp", ".cc", ".h", ".hpp", ".cs", ".rb", ".php", ".kt", ".swift", ".gd",
}

// indexBases are tried for directory imports ("./utils" -> utils/index.js).
var indexBases = []string{"index.js", "index.ts", "__init__.py", "mod.rs"}

// Build derives the dependency graph from the aggregated project.
func Build(p *project.Project) *Graph {
	r := newResolver(p)

	edgeSet := make(map[Edge]struct{})
	nodeLang := make(map[string]string)
	external := make(map[string]struct{})

	for _, f := range p.Files {
		nodeLang[f.FilePath] = f.Language
		for _, imp := range f.Imports {
			target, resolved := r.resolve(f.FilePath, imp)
			if target == "" || target == f.FilePath && !resolved {
				continue
			}
			if !resolved {
				external[target] = struct{}{}
			}
			edgeSet[Edge{From: f.FilePath, To: target, Kind: imp.Kind, Resolved: resolved}] = struct{}{}
		}
	}

	g := &Graph{}
	for e := range edgeSet {
		g.Edges = append(g.Edges, e)
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})

	degreeIn := make(map[string]int)
	degreeOut := make(map[string]int)
	for _, e := range g.Edges {
		degreeOut[e.From]++
		degreeIn[e.To]++
	}

	for _, f := range p.Files {
		g.Nodes = append(g.Nodes, Node{
			ID:        f.FilePath,
			Kind:      NodeFile,
			Language:  f.Language,
			InDegree:  degreeIn[f.FilePath],
			OutDegree: degreeOut[f.FilePath],
			HubScore:  degreeIn[f.FilePath] + degreeOut[f.FilePath],
		})
	}
	for id := range external {
		g.Nodes = append(g.Nodes, Node{
			ID:        id,
			Kind:      NodeExternal,
			InDegree:  degreeIn[id],
			OutDegree: degreeOut[id],
			HubScore:  degreeIn[id] + degreeOut[id],
		})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	g.Cycles = findCycles(g.Edges)
	return g
}

// HubScores returns node IDs sorted by descending hub score, ties by
// ID, limited to project files.
func (g *Graph) HubScores() []Node {
	nodes := make([]Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == NodeFile {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].HubScore != nodes[j].HubScore {
			return nodes[i].HubScore > nodes[j].HubScore
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// resolver maps import paths to project files.
type resolver struct {
	fileSet  map[string]struct{}
	byNoExt  map[string]string // path without extension -> file
	byModule map[string]string // declared module name -> file
	byBase   map[string][]string
}

func newResolver(p *project.Project) *resolver {
	r := &resolver{
		fileSet:  make(map[string]struct{}),
		byNoExt:  make(map[string]string),
		byModule: make(map[string]string),
		byBase:   make(map[string][]string),
	}
	for _, f := range p.Files {
		r.fileSet[f.FilePath] = struct{}{}
		noExt := strings.TrimSuffix(f.FilePath, path.Ext(f.FilePath))
		if _, dup := r.byNoExt[noExt]; !dup {
			r.byNoExt[noExt] = f.FilePath
		}
		if f.Module != "" {
			if _, dup := r.byModule[f.Module]; !dup {
				r.byModule[f.Module] = f.FilePath
			}
		}
		base := path.Base(f.FilePath)
		r.byBase[base] = append(r.byBase[base], f.FilePath)
	}
	return r
}

// resolve returns the edge target for one import. The second return
// reports whether the target is a project file; unresolved imports
// return the cleaned import path as an external target.
func (r *resolver) resolve(fromFile string, imp ast.Import) (string, bool) {
	raw := strings.TrimSpace(imp.Path)
	if raw == "" {
		return "", false
	}

	if imp.IsRelative || strings.HasPrefix(raw, ".") {
		dir := path.Dir(fromFile)
		target := path.Clean(path.Join(dir, raw))
		if hit, ok := r.lookup(target); ok {
			return hit, true
		}
		return raw, false
	}

	// Godot resource paths are project-absolute.
	if strings.HasPrefix(raw, "res://") {
		target := strings.TrimPrefix(raw, "res://")
		if hit, ok := r.lookup(target); ok {
			return hit, true
		}
		return raw, false
	}

	// Dotted module path ("app.models.user").
	if strings.Contains(raw, ".") && !strings.ContainsAny(raw, "/\\") {
		if hit, ok := r.lookup(strings.ReplaceAll(raw, ".", "/")); ok {
			return hit, true
		}
	}

	// Slash path ("pkg/util", "helpers/format.h").
	if hit, ok := r.lookup(raw); ok {
		return hit, true
	}

	// Declared module name.
	if hit, ok := r.byModule[raw]; ok {
		return hit, true
	}

	// Bare include resolved by unique base name ("util.h").
	if files, ok := r.byBase[path.Base(raw)]; ok && len(files) == 1 {
		return files[0], true
	}

	return raw, false
}

// lookup tries a candidate path as-is, with known source extensions,
// and as a directory with index files.
func (r *resolver) lookup(candidate string) (string, bool) {
	candidate = strings.TrimPrefix(path.Clean(candidate), "./")
	if candidate == "" || candidate == "." {
		return "", false
	}
	if _, ok := r.fileSet[candidate]; ok {
		return candidate, true
	}
	if hit, ok := r.byNoExt[candidate]; ok {
		return hit, true
	}
	for _, ext := range sourceExtensions {
		if _, ok := r.fileSet[candidate+ext]; ok {
			return candidate + ext, true
		}
	}
	for _, base := range indexBases {
		idx := candidate + "/" + base
		if _, ok := r.fileSet[idx]; ok {
			return idx, true
		}
	}
	return "", false
}

// findCycles runs Tarjan's SCC algorithm over the edge list and
// returns each component with two or more nodes, plus self-loops.
func findCycles(edges []Edge) [][]string {
	adj := make(map[string][]string)
	selfLoop := make(map[string]bool)
	for _, e := range edges {
		if e.From == e.To {
			selfLoop[e.From] = true
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	// Deterministic traversal order.
	roots := make([]string, 0, len(adj))
	for v := range adj {
		sort.Strings(adj[v])
		roots = append(roots, v)
	}
	sort.Strings(roots)

	index := 0
	stack := make([]string, 0)
	onStack := make(map[string]bool)
	indices := make(map[string]int)
	lowlinks := make(map[string]int)
	var sccs [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				if lowlinks[w] < lowlinks[v] {
					lowlinks[v] = lowlinks[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlinks[v] {
					lowlinks[v] = indices[w]
				}
			}
		}

		if lowlinks[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sort.Strings(scc)
				sccs = append(sccs, scc)
			}
		}
	}

	for _, v := range roots {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}

	for v := range selfLoop {
		sccs = append(sccs, []string{v})
	}

	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}
