// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package project merges per-file parse results into the whole-project
// model the analyzers consume.
//
// The aggregator is the sole writer of the model: parse workers hand
// results over a channel to one consumer goroutine, and after Finish
// the model is immutable.
package project

import (
	"sort"
	"strings"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
)

// Reference is one symbol-to-symbol reference after resolution.
//
// Unresolved references are retained as dangling (Resolved false)
// rather than dropped.
type Reference struct {
	// FromID is the referencing symbol's ID.
	FromID string `json:"from_id"`

	// Name is the referenced name as written in source.
	Name string `json:"name"`

	// TargetID is the resolved symbol's ID, empty when dangling.
	TargetID string `json:"target_id,omitempty"`

	// Resolved reports whether the target was found in the project.
	Resolved bool `json:"resolved"`
}

// Project is the merged, immutable whole-project model.
type Project struct {
	// Root is the analyzed root directory's base name.
	Root string

	// Files holds one result per discovered file, sorted by path.
	// Skipped and failed files are present with their status.
	Files []*ast.ParseResult

	// Symbols holds every extracted symbol, sorted by file path then
	// start line.
	Symbols []*ast.Symbol

	// References holds all symbol references after best-effort
	// resolution, dangling ones included.
	References []Reference

	// Signals holds every signal event across the project, in file
	// order.
	Signals []ast.SignalEvent

	byID        map[string]*ast.Symbol
	byQualified map[string][]*ast.Symbol
	byName      map[string][]*ast.Symbol
	bySupertype map[string][]*ast.Symbol
	byFile      map[string][]*ast.Symbol
}

// SymbolByID returns the symbol with the given ID.
func (p *Project) SymbolByID(id string) (*ast.Symbol, bool) {
	s, ok := p.byID[id]
	return s, ok
}

// LookupQualified returns the symbols declared under a qualified name.
func (p *Project) LookupQualified(qname string) []*ast.Symbol {
	return p.byQualified[qname]
}

// LookupName returns the symbols declared under a bare name, across
// all files.
func (p *Project) LookupName(name string) []*ast.Symbol {
	return p.byName[name]
}

// Subtypes returns the symbols that list the named type as a
// supertype.
func (p *Project) Subtypes(name string) []*ast.Symbol {
	return p.bySupertype[name]
}

// FileSymbols returns a file's symbols in source order.
func (p *Project) FileSymbols(path string) []*ast.Symbol {
	return p.byFile[path]
}

// Methods returns the methods owned by a symbol, matched on the
// owner's qualified name or bare name.
func (p *Project) Methods(owner *ast.Symbol) []*ast.Symbol {
	var out []*ast.Symbol
	for _, s := range p.byFile[owner.FilePath] {
		if s.Kind != ast.SymbolKindMethod && s.Kind != ast.SymbolKindFunction {
			continue
		}
		if s.Owner == owner.QualifiedName || s.Owner == owner.Name {
			out = append(out, s)
		}
	}
	return out
}

// Aggregator builds a Project from parse results.
//
// Thread Safety:
//
//	NOT safe for concurrent use. Exactly one goroutine consumes
//	results; the worker pool communicates with it over a channel.
type Aggregator struct {
	root    string
	files   []*ast.ParseResult
	project *Project
}

// NewAggregator creates an aggregator for the given root name.
func NewAggregator(root string) *Aggregator {
	return &Aggregator{root: root}
}

// Add merges one parse result into the model under construction.
// Nil results are ignored.
func (a *Aggregator) Add(result *ast.ParseResult) {
	if result == nil {
		return
	}
	a.files = append(a.files, result)
}

// Consume drains a result channel until it closes. This is the
// single-consumer side of the worker handoff.
func (a *Aggregator) Consume(results <-chan *ast.ParseResult) {
	for result := range results {
		a.Add(result)
	}
}

// Finish sorts the model, builds the symbol table, and resolves
// references. The returned Project is immutable; the aggregator must
// not be reused afterwards.
func (a *Aggregator) Finish() *Project {
	p := &Project{
		Root:        a.root,
		Files:       a.files,
		byID:        make(map[string]*ast.Symbol),
		byQualified: make(map[string][]*ast.Symbol),
		byName:      make(map[string][]*ast.Symbol),
		bySupertype: make(map[string][]*ast.Symbol),
		byFile:      make(map[string][]*ast.Symbol),
	}

	sort.Slice(p.Files, func(i, j int) bool {
		return p.Files[i].FilePath < p.Files[j].FilePath
	})

	for _, f := range p.Files {
		for _, sym := range f.Symbols {
			if sym == nil {
				continue
			}
			p.Symbols = append(p.Symbols, sym)
			p.byID[sym.ID] = sym
			p.byQualified[sym.QualifiedName] = append(p.byQualified[sym.QualifiedName], sym)
			p.byName[sym.Name] = append(p.byName[sym.Name], sym)
			p.byFile[sym.FilePath] = append(p.byFile[sym.FilePath], sym)
			for _, super := range sym.Supertypes {
				p.bySupertype[super] = append(p.bySupertype[super], sym)
			}
		}
		p.Signals = append(p.Signals, f.Signals...)
	}

	sort.Slice(p.Symbols, func(i, j int) bool {
		if p.Symbols[i].FilePath != p.Symbols[j].FilePath {
			return p.Symbols[i].FilePath < p.Symbols[j].FilePath
		}
		return p.Symbols[i].StartLine < p.Symbols[j].StartLine
	})

	p.resolveReferences()

	a.files = nil
	a.project = p
	return p
}

// resolveReferences binds each symbol reference to a declared symbol
// where possible. Resolution is best-effort and deliberately local
// first: a name declared in the same file wins over a unique global
// match.
func (p *Project) resolveReferences() {
	for _, sym := range p.Symbols {
		for _, name := range sym.References {
			ref := Reference{FromID: sym.ID, Name: name}
			if target := p.resolveName(name, sym.FilePath); target != nil {
				ref.TargetID = target.ID
				ref.Resolved = true
			}
			p.References = append(p.References, ref)
		}
	}
}

func (p *Project) resolveName(name, fromFile string) *ast.Symbol {
	// Same-file declaration.
	for _, s := range p.byFile[fromFile] {
		if s.Name == name {
			return s
		}
	}

	// Exact qualified name.
	if candidates := p.byQualified[name]; len(candidates) > 0 {
		return candidates[0]
	}

	// Trailing segment of a qualified reference ("pkg.Type" -> "Type").
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		if target := p.uniqueByName(name[idx+1:]); target != nil {
			return target
		}
	}

	return p.uniqueByName(name)
}

// uniqueByName returns the single project-wide declaration of a bare
// name, or nil when the name is undeclared or ambiguous.
func (p *Project) uniqueByName(name string) *ast.Symbol {
	candidates := p.byName[name]
	if len(candidates) == 1 {
		return candidates[0]
	}
	return nil
}
