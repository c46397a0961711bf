// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report serializes analysis output into the versioned report
// schema.
//
// The schema evolves additively only: consumers must ignore unknown
// fields, and existing field names and meanings never change within a
// major schema version. Array ordering is stable: files and symbols
// sort by path, matches by descending confidence then symbol name, so
// two runs over identical input produce byte-identical reports once
// the metadata block is excluded.
package report

import (
	"encoding/json"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CodeAtlas/services/intel/arch"
	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/graph"
	"github.com/AleutianAI/CodeAtlas/services/intel/patterns"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
	"github.com/AleutianAI/CodeAtlas/services/intel/signals"
)

// SchemaVersion identifies the report schema. Bumped only for
// breaking changes; additions within a version are backward
// compatible.
const SchemaVersion = "1.0"

// Metadata carries the run-scoped fields excluded from the
// determinism contract.
type Metadata struct {
	RunID            string `json:"run_id"`
	GeneratedAtMilli int64  `json:"generated_at_milli"`

	// Root is the base name of the analyzed directory. Never an
	// absolute path.
	Root string `json:"root"`
}

// FileEntry is the per-file record in the report.
type FileEntry struct {
	Path     string          `json:"path"`
	Language string          `json:"language"`
	Status   ast.ParseStatus `json:"status"`
	Symbols  int             `json:"symbols"`
	Reason   string          `json:"reason,omitempty"`
}

// Summary gives callers a completeness picture without walking the
// full report.
type Summary struct {
	TotalFiles        int            `json:"total_files"`
	FilesByStatus     map[string]int `json:"files_by_status"`
	TotalSymbols      int            `json:"total_symbols"`
	SymbolsByLanguage map[string]int `json:"symbols_by_language,omitempty"`
	PatternMatches    int            `json:"pattern_matches"`
	DependencyCycles  int            `json:"dependency_cycles"`
	SignalCount       int            `json:"signal_count"`
}

// DiagramEdge is one edge of the flow diagram, render-ready.
type DiagramEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Report is the complete serialized output of one analysis run.
type Report struct {
	SchemaVersion string   `json:"schema_version"`
	Metadata      Metadata `json:"metadata"`
	Summary       Summary  `json:"summary"`

	Files                []FileEntry      `json:"files"`
	Symbols              []*ast.Symbol    `json:"symbols"`
	DependencyGraph      *graph.Graph     `json:"dependency_graph"`
	PatternMatches       []patterns.Match `json:"pattern_matches"`
	ArchitecturalMatches []arch.Match     `json:"architectural_matches"`
	SignalFlow           *signals.Flow    `json:"signal_flow,omitempty"`
	Diagram              []DiagramEdge    `json:"diagram"`
}

// Build assembles the report from the outputs of every analysis phase.
//
// # Description
//
//	Converts the aggregated project, dependency graph, pattern and
//	architectural matches, and optional signal flow into the stable
//	report schema. All arrays keep the ordering guarantees of their
//	producing phase. The metadata block is stamped with a fresh run ID
//	and the current time.
//
// # Inputs
//
//   - root: the analyzed directory; only its base name enters the report.
//   - p: the aggregated project model.
//   - g: the dependency graph. May be nil for surface-depth runs.
//   - patternMatches, archMatches: analysis results; may be nil.
//   - flow: signal flow output; nil when the analyzer did not run.
//
// # Outputs
//
//   - *Report: never nil.
//
// # Thread Safety
//
//   - Safe for concurrent use; reads only.
func Build(root string, p *project.Project, g *graph.Graph, patternMatches []patterns.Match, archMatches []arch.Match, flow *signals.Flow) *Report {
	r := &Report{
		SchemaVersion: SchemaVersion,
		Metadata: Metadata{
			RunID:            uuid.NewString(),
			GeneratedAtMilli: time.Now().UnixMilli(),
			Root:             filepath.Base(root),
		},
		Symbols:              p.Symbols,
		DependencyGraph:      g,
		PatternMatches:       patternMatches,
		ArchitecturalMatches: archMatches,
		SignalFlow:           flow,
	}

	r.Summary.FilesByStatus = make(map[string]int)
	r.Summary.SymbolsByLanguage = make(map[string]int)
	for _, f := range p.Files {
		entry := FileEntry{
			Path:     f.FilePath,
			Language: f.Language,
			Status:   f.Status,
			Symbols:  len(f.Symbols),
		}
		if len(f.Errors) > 0 {
			entry.Reason = f.Errors[0]
		}
		r.Files = append(r.Files, entry)
		r.Summary.FilesByStatus[f.Status.String()]++
	}
	for _, sym := range p.Symbols {
		r.Summary.SymbolsByLanguage[sym.Language]++
	}
	r.Summary.TotalFiles = len(p.Files)
	r.Summary.TotalSymbols = len(p.Symbols)
	r.Summary.PatternMatches = len(patternMatches)
	if g != nil {
		r.Summary.DependencyCycles = len(g.Cycles)
	}
	if flow != nil {
		r.Summary.SignalCount = len(flow.Signals)
	}

	r.Diagram = buildDiagram(g, flow)
	return r
}

// buildDiagram prefers the event flow edges when signal analysis ran;
// otherwise it falls back to resolved dependency edges.
func buildDiagram(g *graph.Graph, flow *signals.Flow) []DiagramEdge {
	if flow != nil && len(flow.Edges) > 0 {
		edges := make([]DiagramEdge, 0, len(flow.Edges))
		for _, e := range flow.Edges {
			edges = append(edges, DiagramEdge{
				From:  e.From,
				To:    e.To,
				Label: string(e.Kind) + " " + e.Signal,
			})
		}
		return edges
	}
	if g == nil {
		return nil
	}
	var edges []DiagramEdge
	for _, e := range g.Edges {
		if !e.Resolved {
			continue
		}
		edges = append(edges, DiagramEdge{From: e.From, To: e.To, Label: string(e.Kind)})
	}
	return edges
}

// Canonical returns a copy with the metadata block zeroed. Two runs
// over identical input must produce identical canonical reports.
func (r *Report) Canonical() *Report {
	clone := *r
	clone.Metadata = Metadata{}
	return &clone
}

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// MarshalCanonical serializes the canonical form, for idempotence
// checks and content-addressed storage.
func (r *Report) MarshalCanonical() ([]byte, error) {
	return json.Marshal(r.Canonical())
}
