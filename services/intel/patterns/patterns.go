// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns recognizes design patterns over symbol shape.
//
// Each pattern has a rule set producing weighted evidence; summed and
// clamped weights become a confidence in [0,1]. Matches below the
// threshold are dropped, and finalization keeps at most one match per
// symbol - ties at maximum confidence are all retained.
package patterns

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

// Kind enumerates the ten recognized design patterns.
type Kind string

const (
	KindSingleton      Kind = "Singleton"
	KindFactory        Kind = "Factory"
	KindBuilder        Kind = "Builder"
	KindObserver       Kind = "Observer"
	KindStrategy       Kind = "Strategy"
	KindDecorator      Kind = "Decorator"
	KindAdapter        Kind = "Adapter"
	KindFacade         Kind = "Facade"
	KindCommand        Kind = "Command"
	KindTemplateMethod Kind = "Template Method"
)

// Kinds lists all pattern kinds in evaluation order.
var Kinds = []Kind{
	KindSingleton, KindFactory, KindBuilder, KindObserver, KindStrategy,
	KindDecorator, KindAdapter, KindFacade, KindCommand, KindTemplateMethod,
}

// Match is one recognized pattern instance.
type Match struct {
	// Kind is the pattern kind.
	Kind Kind `json:"kind"`

	// SymbolID identifies the matched symbol.
	SymbolID string `json:"symbol_id"`

	// Symbol is the matched symbol's qualified name.
	Symbol string `json:"symbol"`

	// FilePath is the declaring file, project-relative.
	FilePath string `json:"file_path"`

	// Line is the symbol's start line.
	Line int `json:"line"`

	// Confidence is the clamped evidence sum in [0,1].
	Confidence float64 `json:"confidence"`

	// Evidence lists the human-readable reasons behind the match.
	Evidence []string `json:"evidence"`
}

// Config holds the tunable recognition parameters.
//
// Weight keys are "<pattern>.<rule>" (e.g. "singleton.private_constructor");
// unknown keys are ignored, missing keys fall back to defaults. The
// exact constants are heuristic and deliberately configuration, not
// code.
type Config struct {
	// Threshold drops matches below this confidence. Default 0.6.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`

	// Weights overrides individual rule weights.
	Weights map[string]float64 `yaml:"weights"`
}

// DefaultThreshold is the recommended minimum confidence.
const DefaultThreshold = 0.6

// defaultWeights holds the built-in rule weights.
var defaultWeights = map[string]float64{
	"singleton.private_constructor": 0.3,
	"singleton.static_accessor":     0.4,
	"singleton.no_subtypes":         0.2,

	"factory.name":             0.4,
	"factory.creator_methods":  0.3,
	"factory.multiple_targets": 0.2,

	"builder.name":        0.4,
	"builder.build":       0.3,
	"builder.fluent_sets": 0.2,

	"observer.subscribe": 0.35,
	"observer.notify":    0.35,
	"observer.detach":    0.2,

	"strategy.interface_impls": 0.4,
	"strategy.name":            0.3,
	"strategy.common_method":   0.2,

	"decorator.wraps_supertype": 0.5,
	"decorator.name":            0.3,

	"adapter.name":       0.4,
	"adapter.translates": 0.3,

	"facade.name":    0.4,
	"facade.spans":   0.3,
	"facade.shallow": 0.1,

	"command.execute": 0.35,
	"command.name":    0.3,
	"command.family":  0.2,

	"template.abstract_mix":  0.4,
	"template.concrete_call": 0.3,
	"template.name":          0.1,
}

// DefaultConfig returns the built-in recognition parameters.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// weight returns the configured or default weight for a rule key.
func (c Config) weight(key string) float64 {
	if w, ok := c.Weights[key]; ok {
		return w
	}
	return defaultWeights[key]
}

// threshold returns the configured threshold, defaulting when unset.
func (c Config) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultThreshold
	}
	return c.Threshold
}

// evidence is one weighted signal accumulated by a rule set.
type evidence struct {
	reason string
	weight float64
}

// Detect runs all pattern rule sets over the project and returns the
// deduplicated matches, sorted by descending confidence then symbol
// name.
func Detect(p *project.Project, cfg Config) []Match {
	var raw []Match
	for _, sym := range p.Symbols {
		for _, kind := range Kinds {
			rule := rules[kind]
			if rule == nil {
				continue
			}
			ev := rule(p, sym, cfg)
			if len(ev) == 0 {
				continue
			}
			conf := 0.0
			reasons := make([]string, 0, len(ev))
			for _, e := range ev {
				if e.weight <= 0 {
					continue
				}
				conf += e.weight
				reasons = append(reasons, e.reason)
			}
			conf = math.Min(1.0, math.Max(0.0, conf))
			if conf < cfg.threshold() || len(reasons) == 0 {
				continue
			}
			raw = append(raw, Match{
				Kind:       kind,
				SymbolID:   sym.ID,
				Symbol:     sym.QualifiedName,
				FilePath:   sym.FilePath,
				Line:       sym.StartLine,
				Confidence: round2(conf),
				Evidence:   reasons,
			})
		}
	}
	return finalize(raw)
}

// finalize applies the dedup invariant: at most one match per symbol,
// except ties at maximum confidence, which are all kept.
func finalize(raw []Match) []Match {
	best := make(map[string]float64)
	for _, m := range raw {
		if m.Confidence > best[m.SymbolID] {
			best[m.SymbolID] = m.Confidence
		}
	}

	matches := make([]Match, 0, len(raw))
	for _, m := range raw {
		if m.Confidence == best[m.SymbolID] {
			matches = append(matches, m)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].Symbol != matches[j].Symbol {
			return matches[i].Symbol < matches[j].Symbol
		}
		return matches[i].Kind < matches[j].Kind
	})
	return matches
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func reasonf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
