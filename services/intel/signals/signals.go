// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package signals analyzes event-driven codebases.
//
// It consumes the signal constructs extracted during parsing
// (declarations, connections, emissions) and builds an event flow
// graph: signal nodes linked to the symbols that declare, connect to,
// or emit them. On top of the graph it classifies the three event
// topologies (EventBus, Observer, EventChain) and produces per-signal
// reference documentation plus a diagram-ready edge list.
package signals

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

// NodeKind distinguishes signal nodes from symbol nodes.
type NodeKind string

const (
	NodeSignal NodeKind = "signal"
	NodeSymbol NodeKind = "symbol"
)

// Node is one vertex of the event flow graph.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
}

// Edge is one diagram-ready edge of the event flow graph.
//
// Declarations and emissions point from the symbol to the signal;
// connections point from the signal to the handler, with the
// subscribing symbol recorded on the edge.
type Edge struct {
	From      string              `json:"from"`
	To        string              `json:"to"`
	Signal    string              `json:"signal"`
	Kind      ast.SignalEventKind `json:"kind"`
	Connector string              `json:"connector,omitempty"`
}

// ConnectionSite documents one subscription to a signal.
type ConnectionSite struct {
	Site    string `json:"site"`
	Source  string `json:"source"`
	Handler string `json:"handler,omitempty"`
}

// SignalDoc is the per-signal reference documentation.
type SignalDoc struct {
	Name        string           `json:"name"`
	Params      []string         `json:"params,omitempty"`
	Declaration string           `json:"declaration,omitempty"`
	Connections []ConnectionSite `json:"connections,omitempty"`
	Emissions   []string         `json:"emissions,omitempty"`
}

// PatternKind names a detected event topology.
type PatternKind string

const (
	PatternEventBus   PatternKind = "EventBus"
	PatternObserver   PatternKind = "Observer"
	PatternEventChain PatternKind = "EventChain"
)

// Match is one detected event topology.
type Match struct {
	Kind       PatternKind `json:"kind"`
	Subject    string      `json:"subject"`
	Confidence float64     `json:"confidence"`
	Evidence   []string    `json:"evidence"`
}

// Flow is the complete output of the analyzer.
type Flow struct {
	Nodes   []Node      `json:"nodes"`
	Edges   []Edge      `json:"edges"`
	Signals []SignalDoc `json:"signals"`
	Matches []Match     `json:"matches"`

	// Density is distinct signals per analyzed file.
	Density float64 `json:"density"`

	// FanOut is average connections per signal.
	FanOut float64 `json:"fan_out"`
}

// Default topology thresholds.
const (
	DefaultBusFanOut        = 10
	DefaultObserverHandlers = 3
	DefaultChainDepth       = 2

	DefaultBusConfidence      = 0.90
	DefaultObserverConfidence = 0.85
	DefaultChainConfidence    = 0.80
)

// Config tunes topology classification. The zero value uses defaults.
type Config struct {
	BusFanOut        int `yaml:"bus_fan_out" validate:"omitempty,gte=2"`
	ObserverHandlers int `yaml:"observer_handlers" validate:"omitempty,gte=2"`
	ChainDepth       int `yaml:"chain_depth" validate:"omitempty,gte=2"`

	BusConfidence      float64 `yaml:"bus_confidence" validate:"omitempty,gt=0,lte=1"`
	ObserverConfidence float64 `yaml:"observer_confidence" validate:"omitempty,gt=0,lte=1"`
	ChainConfidence    float64 `yaml:"chain_confidence" validate:"omitempty,gt=0,lte=1"`
}

// DefaultConfig returns the built-in topology thresholds.
func DefaultConfig() Config {
	return Config{
		BusFanOut:          DefaultBusFanOut,
		ObserverHandlers:   DefaultObserverHandlers,
		ChainDepth:         DefaultChainDepth,
		BusConfidence:      DefaultBusConfidence,
		ObserverConfidence: DefaultObserverConfidence,
		ChainConfidence:    DefaultChainConfidence,
	}
}

func (c Config) busFanOut() int {
	if c.BusFanOut <= 0 {
		return DefaultBusFanOut
	}
	return c.BusFanOut
}

func (c Config) observerHandlers() int {
	if c.ObserverHandlers <= 0 {
		return DefaultObserverHandlers
	}
	return c.ObserverHandlers
}

func (c Config) chainDepth() int {
	if c.ChainDepth <= 0 {
		return DefaultChainDepth
	}
	return c.ChainDepth
}

func (c Config) confidence(kind PatternKind) float64 {
	switch kind {
	case PatternEventBus:
		if c.BusConfidence > 0 {
			return c.BusConfidence
		}
		return DefaultBusConfidence
	case PatternObserver:
		if c.ObserverConfidence > 0 {
			return c.ObserverConfidence
		}
		return DefaultObserverConfidence
	default:
		if c.ChainConfidence > 0 {
			return c.ChainConfidence
		}
		return DefaultChainConfidence
	}
}

// signalIndex groups the raw events by signal name.
type signalIndex struct {
	declares map[string][]ast.SignalEvent
	connects map[string][]ast.SignalEvent
	emits    map[string][]ast.SignalEvent
	names    []string
}

func indexEvents(events []ast.SignalEvent) *signalIndex {
	idx := &signalIndex{
		declares: make(map[string][]ast.SignalEvent),
		connects: make(map[string][]ast.SignalEvent),
		emits:    make(map[string][]ast.SignalEvent),
	}
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.Name == "" {
			continue
		}
		if !seen[ev.Name] {
			seen[ev.Name] = true
			idx.names = append(idx.names, ev.Name)
		}
		switch ev.Kind {
		case ast.SignalDeclare:
			idx.declares[ev.Name] = append(idx.declares[ev.Name], ev)
		case ast.SignalConnect:
			idx.connects[ev.Name] = append(idx.connects[ev.Name], ev)
		case ast.SignalEmit:
			idx.emits[ev.Name] = append(idx.emits[ev.Name], ev)
		}
	}
	sort.Strings(idx.names)
	return idx
}

// Analyze builds the event flow graph for the project.
//
// # Description
//
//	Aggregates the signal constructs of every parsed file, builds the
//	flow graph and per-signal documentation, computes density and
//	fan-out, and classifies EventBus, Observer, and EventChain
//	topologies against the configured thresholds. Output ordering is
//	deterministic for identical input.
//
// # Inputs
//
//   - p: the aggregated project model.
//   - cfg: topology thresholds; zero value uses defaults.
//
// # Outputs
//
//   - *Flow: never nil; empty when the project has no signal constructs.
//
// # Thread Safety
//
//   - Safe for concurrent use; reads only.
func Analyze(p *project.Project, cfg Config) *Flow {
	flow := &Flow{}
	idx := indexEvents(p.Signals)
	if len(idx.names) == 0 {
		return flow
	}

	nodeSet := make(map[string]NodeKind)
	edgeSet := make(map[string]bool)
	addNode := func(id string, kind NodeKind) {
		if id == "" {
			return
		}
		if _, ok := nodeSet[id]; !ok {
			nodeSet[id] = kind
		}
	}
	addEdge := func(e Edge) {
		key := e.From + "\x00" + e.To + "\x00" + e.Signal + "\x00" + string(e.Kind)
		if e.From == "" || e.To == "" || edgeSet[key] {
			return
		}
		edgeSet[key] = true
		flow.Edges = append(flow.Edges, e)
	}

	totalConnections := 0
	for _, name := range idx.names {
		addNode(name, NodeSignal)
		doc := SignalDoc{Name: name}

		for _, ev := range idx.declares[name] {
			addNode(ev.Owner, NodeSymbol)
			addEdge(Edge{From: ev.Owner, To: name, Signal: name, Kind: ast.SignalDeclare})
			if doc.Declaration == "" {
				doc.Declaration = ev.Location.String()
			}
			if len(doc.Params) == 0 {
				doc.Params = ev.Params
			}
		}
		for _, ev := range idx.connects[name] {
			totalConnections++
			addNode(ev.Owner, NodeSymbol)
			target := ev.Handler
			if target == "" {
				target = ev.Owner
			}
			addNode(target, NodeSymbol)
			addEdge(Edge{From: name, To: target, Signal: name, Kind: ast.SignalConnect, Connector: ev.Owner})
			doc.Connections = append(doc.Connections, ConnectionSite{
				Site:    ev.Location.String(),
				Source:  ev.Owner,
				Handler: ev.Handler,
			})
		}
		for _, ev := range idx.emits[name] {
			addNode(ev.Owner, NodeSymbol)
			addEdge(Edge{From: ev.Owner, To: name, Signal: name, Kind: ast.SignalEmit})
			doc.Emissions = append(doc.Emissions, ev.Location.String())
		}

		sort.Slice(doc.Connections, func(i, j int) bool { return doc.Connections[i].Site < doc.Connections[j].Site })
		sort.Strings(doc.Emissions)
		flow.Signals = append(flow.Signals, doc)
	}

	for id, kind := range nodeSet {
		flow.Nodes = append(flow.Nodes, Node{ID: id, Kind: kind})
	}
	sort.Slice(flow.Nodes, func(i, j int) bool { return flow.Nodes[i].ID < flow.Nodes[j].ID })
	sort.Slice(flow.Edges, func(i, j int) bool {
		a, b := flow.Edges[i], flow.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})

	if n := len(p.Files); n > 0 {
		flow.Density = round2(float64(len(idx.names)) / float64(n))
	}
	flow.FanOut = round2(float64(totalConnections) / float64(len(idx.names)))

	flow.Matches = classify(idx, cfg)
	return flow
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// classify detects the three event topologies.
func classify(idx *signalIndex, cfg Config) []Match {
	var matches []Match

	// EventBus: one hub symbol routing many distinct signals.
	hubSignals := make(map[string]map[string]bool)
	for _, name := range idx.names {
		for _, ev := range append(idx.connects[name], idx.emits[name]...) {
			owner := ownerClass(ev.Owner)
			if owner == "" {
				continue
			}
			if hubSignals[owner] == nil {
				hubSignals[owner] = make(map[string]bool)
			}
			hubSignals[owner][name] = true
		}
	}
	hubs := make([]string, 0, len(hubSignals))
	for hub := range hubSignals {
		hubs = append(hubs, hub)
	}
	sort.Strings(hubs)
	for _, hub := range hubs {
		if count := len(hubSignals[hub]); count >= cfg.busFanOut() {
			matches = append(matches, Match{
				Kind:       PatternEventBus,
				Subject:    hub,
				Confidence: cfg.confidence(PatternEventBus),
				Evidence: []string{
					fmt.Sprintf("%d distinct signals routed through %s", count, hub),
				},
			})
		}
	}

	// Observer: one signal with several independent subscribers.
	for _, name := range idx.names {
		subscribers := make(map[string]bool)
		for _, ev := range idx.connects[name] {
			if owner := ownerClass(ev.Owner); owner != "" {
				subscribers[owner] = true
			}
		}
		if len(subscribers) >= cfg.observerHandlers() {
			matches = append(matches, Match{
				Kind:       PatternObserver,
				Subject:    name,
				Confidence: cfg.confidence(PatternObserver),
				Evidence: []string{
					fmt.Sprintf("%d distinct symbols connect to %s", len(subscribers), name),
				},
			})
		}
	}

	// EventChain: a handler of one signal emits another.
	emitsBySymbol := make(map[string]map[string]bool)
	for _, name := range idx.names {
		for _, ev := range idx.emits[name] {
			for _, key := range symbolKeys(ev.Owner) {
				if emitsBySymbol[key] == nil {
					emitsBySymbol[key] = make(map[string]bool)
				}
				emitsBySymbol[key][name] = true
			}
		}
	}
	depths := make(map[string]int)
	var chainDepth func(name string, visiting map[string]bool) int
	chainDepth = func(name string, visiting map[string]bool) int {
		if d, ok := depths[name]; ok {
			return d
		}
		if visiting[name] {
			return 1
		}
		visiting[name] = true
		defer delete(visiting, name)

		depth := 1
		for _, conn := range idx.connects[name] {
			handler := conn.Handler
			if handler == "" {
				continue
			}
			for next := range emitsBySymbol[handler] {
				if next == name {
					continue
				}
				if d := 1 + chainDepth(next, visiting); d > depth {
					depth = d
				}
			}
		}
		depths[name] = depth
		return depth
	}
	for _, name := range idx.names {
		if d := chainDepth(name, map[string]bool{}); d >= cfg.chainDepth() {
			matches = append(matches, Match{
				Kind:       PatternEventChain,
				Subject:    name,
				Confidence: cfg.confidence(PatternEventChain),
				Evidence: []string{
					fmt.Sprintf("cascade of depth %d starting at %s", d, name),
				},
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].Kind != matches[j].Kind {
			return matches[i].Kind < matches[j].Kind
		}
		return matches[i].Subject < matches[j].Subject
	})
	return matches
}

// ownerClass reduces a qualified owner to its enclosing class when the
// owner is a method ("worker.Worker.process" -> "worker.Worker"),
// falling back to the owner itself.
func ownerClass(owner string) string {
	if owner == "" {
		return ""
	}
	parts := strings.Split(owner, ".")
	if len(parts) >= 2 {
		// Methods are lowercase by convention in most of the
		// supported languages; a trailing lowercase segment after a
		// capitalized one is treated as a method name.
		last := parts[len(parts)-1]
		prev := parts[len(parts)-2]
		if isLowerStart(last) && !isLowerStart(prev) {
			return strings.Join(parts[:len(parts)-1], ".")
		}
	}
	return owner
}

func isLowerStart(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c >= 'a' && c <= 'z' || c == '_'
}

// symbolKeys returns the lookup keys under which an emitting owner can
// be matched against a connection's handler name: the full qualified
// name and its trailing segment.
func symbolKeys(owner string) []string {
	if owner == "" {
		return nil
	}
	keys := []string{owner}
	if i := strings.LastIndex(owner, "."); i >= 0 {
		keys = append(keys, owner[i+1:])
	}
	return keys
}
