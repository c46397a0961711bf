// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"strings"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

// ruleFunc evaluates one pattern's evidence rules for one symbol.
type ruleFunc func(p *project.Project, sym *ast.Symbol, cfg Config) []evidence

// rules binds each pattern kind to its rule set.
var rules = map[Kind]ruleFunc{
	KindSingleton:      singletonRules,
	KindFactory:        factoryRules,
	KindBuilder:        builderRules,
	KindObserver:       observerRules,
	KindStrategy:       strategyRules,
	KindDecorator:      decoratorRules,
	KindAdapter:        adapterRules,
	KindFacade:         facadeRules,
	KindCommand:        commandRules,
	KindTemplateMethod: templateMethodRules,
}

// constructorNames are the language-normalized constructor spellings.
var constructorNames = map[string]bool{
	"__init__":    true,
	"constructor": true,
	"init":        true,
	"initialize":  true,
	"new":         true,
}

// accessorNames are conventional singleton accessor spellings.
var accessorNames = []string{
	"getinstance", "get_instance", "instance", "shared", "default",
	"singleton", "current",
}

func isClassLike(sym *ast.Symbol) bool {
	return sym.Kind == ast.SymbolKindClass || sym.Kind == ast.SymbolKindInterface
}

func nameHas(name string, fragment string) bool {
	return strings.Contains(strings.ToLower(name), fragment)
}

func isConstructor(owner, method *ast.Symbol) bool {
	lower := strings.ToLower(method.Name)
	return constructorNames[lower] || method.Name == owner.Name
}

// singletonRules: private constructor, static accessor returning the
// same type, no subclasses.
func singletonRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass {
		return nil
	}

	var ev []evidence
	methods := p.Methods(sym)

	hasAccessor := false
	for _, m := range methods {
		if isConstructor(sym, m) && m.Modifiers.Private {
			ev = append(ev, evidence{
				reason: "private constructor",
				weight: cfg.weight("singleton.private_constructor"),
			})
			break
		}
	}
	for _, m := range methods {
		if !m.Modifiers.Static {
			continue
		}
		lower := strings.ToLower(m.Name)
		for _, accessor := range accessorNames {
			if lower == accessor || strings.HasPrefix(lower, accessor) {
				if strings.Contains(m.Signature, sym.Name) || referencesName(m, sym.Name) {
					hasAccessor = true
				}
			}
		}
	}
	if hasAccessor {
		ev = append(ev, evidence{
			reason: reasonf("static accessor returning %s", sym.Name),
			weight: cfg.weight("singleton.static_accessor"),
		})
	}

	// Only meaningful alongside stronger evidence.
	if len(ev) > 0 && len(p.Subtypes(sym.Name)) == 0 {
		ev = append(ev, evidence{
			reason: "no other class lists it as supertype",
			weight: cfg.weight("singleton.no_subtypes"),
		})
	}
	return ev
}

func referencesName(sym *ast.Symbol, name string) bool {
	for _, r := range sym.References {
		if r == name {
			return true
		}
	}
	return false
}

// creatorPrefixes are method-name prefixes indicating object creation.
var creatorPrefixes = []string{"create", "make", "new", "build", "produce", "spawn"}

func factoryRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if !isClassLike(sym) {
		return nil
	}

	var ev []evidence
	if nameHas(sym.Name, "factory") {
		ev = append(ev, evidence{
			reason: "name contains Factory",
			weight: cfg.weight("factory.name"),
		})
	}

	methods := p.Methods(sym)
	creators := 0
	created := map[string]bool{}
	for _, m := range methods {
		lower := strings.ToLower(m.Name)
		for _, prefix := range creatorPrefixes {
			if strings.HasPrefix(lower, prefix) {
				creators++
				for _, r := range m.References {
					if targets := p.LookupName(r); len(targets) > 0 &&
						targets[0].Kind == ast.SymbolKindClass {
						created[r] = true
					}
				}
				break
			}
		}
	}
	if creators > 0 {
		ev = append(ev, evidence{
			reason: reasonf("%d creator method(s)", creators),
			weight: cfg.weight("factory.creator_methods"),
		})
	}
	if len(created) >= 2 {
		ev = append(ev, evidence{
			reason: reasonf("instantiates %d distinct product classes", len(created)),
			weight: cfg.weight("factory.multiple_targets"),
		})
	}
	return ev
}

func builderRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass {
		return nil
	}

	var ev []evidence
	if nameHas(sym.Name, "builder") {
		ev = append(ev, evidence{
			reason: "name contains Builder",
			weight: cfg.weight("builder.name"),
		})
	}

	methods := p.Methods(sym)
	fluent := 0
	hasBuild := false
	for _, m := range methods {
		lower := strings.ToLower(m.Name)
		if lower == "build" || lower == "finish" || lower == "result" {
			hasBuild = true
		}
		if strings.HasPrefix(lower, "with") || strings.HasPrefix(lower, "set") ||
			strings.HasPrefix(lower, "add") {
			fluent++
		}
	}
	if hasBuild {
		ev = append(ev, evidence{
			reason: "terminal build method",
			weight: cfg.weight("builder.build"),
		})
	}
	if fluent >= 3 {
		ev = append(ev, evidence{
			reason: reasonf("%d chainable configuration methods", fluent),
			weight: cfg.weight("builder.fluent_sets"),
		})
	}
	return ev
}

var subscribeNames = []string{"subscribe", "attach", "addlistener", "add_listener", "addobserver", "add_observer", "register", "on"}
var notifyNames = []string{"notify", "publish", "emit", "fire", "dispatch", "broadcast"}
var detachNames = []string{"unsubscribe", "detach", "removelistener", "remove_listener", "removeobserver", "remove_observer", "unregister", "off"}

func hasMethodNamed(methods []*ast.Symbol, names []string) (string, bool) {
	for _, m := range methods {
		lower := strings.ToLower(m.Name)
		for _, n := range names {
			if lower == n || strings.HasPrefix(lower, n+"_") {
				return m.Name, true
			}
		}
	}
	return "", false
}

func observerRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass {
		return nil
	}

	methods := p.Methods(sym)
	var ev []evidence
	if name, ok := hasMethodNamed(methods, subscribeNames); ok {
		ev = append(ev, evidence{
			reason: reasonf("subscription method %s", name),
			weight: cfg.weight("observer.subscribe"),
		})
	}
	if name, ok := hasMethodNamed(methods, notifyNames); ok {
		ev = append(ev, evidence{
			reason: reasonf("notification method %s", name),
			weight: cfg.weight("observer.notify"),
		})
	}
	if len(ev) < 2 {
		// Subscription or notification alone is not an observer subject.
		return nil
	}
	if name, ok := hasMethodNamed(methods, detachNames); ok {
		ev = append(ev, evidence{
			reason: reasonf("detach method %s", name),
			weight: cfg.weight("observer.detach"),
		})
	}
	return ev
}

var strategyHints = []string{"strategy", "policy"}

func strategyRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindInterface && !sym.Modifiers.Abstract {
		return nil
	}

	impls := p.Subtypes(sym.Name)
	if len(impls) < 2 {
		return nil
	}

	var ev []evidence
	ev = append(ev, evidence{
		reason: reasonf("interface with %d interchangeable implementations", len(impls)),
		weight: cfg.weight("strategy.interface_impls"),
	})

	for _, hint := range strategyHints {
		if nameHas(sym.Name, hint) {
			ev = append(ev, evidence{
				reason: "name suggests a strategy role",
				weight: cfg.weight("strategy.name"),
			})
			break
		}
	}

	if common := commonMethodName(p, impls); common != "" {
		ev = append(ev, evidence{
			reason: reasonf("implementations share method %s", common),
			weight: cfg.weight("strategy.common_method"),
		})
	}
	return ev
}

// commonMethodName returns a method name shared by every implementation.
func commonMethodName(p *project.Project, impls []*ast.Symbol) string {
	counts := map[string]int{}
	for _, impl := range impls {
		seen := map[string]bool{}
		for _, m := range p.Methods(impl) {
			if isConstructor(impl, m) || seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			counts[m.Name]++
		}
	}
	best := ""
	for name, n := range counts {
		if n == len(impls) && (best == "" || name < best) {
			best = name
		}
	}
	return best
}

func decoratorRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass || len(sym.Supertypes) == 0 {
		return nil
	}

	var ev []evidence
	wraps := ""
	for _, super := range sym.Supertypes {
		if referencesClass(p, sym, super) {
			wraps = super
			break
		}
	}
	if wraps != "" {
		ev = append(ev, evidence{
			reason: reasonf("implements %s and wraps another %s", wraps, wraps),
			weight: cfg.weight("decorator.wraps_supertype"),
		})
	}
	if nameHas(sym.Name, "decorator") || nameHas(sym.Name, "wrapper") {
		ev = append(ev, evidence{
			reason: "name contains Decorator/Wrapper",
			weight: cfg.weight("decorator.name"),
		})
	}
	return ev
}

// referencesClass reports whether the class or its methods reference
// the named type.
func referencesClass(p *project.Project, sym *ast.Symbol, name string) bool {
	if referencesName(sym, name) {
		return true
	}
	for _, m := range p.Methods(sym) {
		if referencesName(m, name) {
			return true
		}
	}
	return false
}

func adapterRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass {
		return nil
	}

	var ev []evidence
	if nameHas(sym.Name, "adapter") {
		ev = append(ev, evidence{
			reason: "name contains Adapter",
			weight: cfg.weight("adapter.name"),
		})
	}
	if len(ev) == 0 {
		// Without the naming signal the structural rule is too noisy.
		return nil
	}

	if len(sym.Supertypes) > 0 {
		for _, m := range p.Methods(sym) {
			for _, r := range m.References {
				if contains(sym.Supertypes, r) {
					continue
				}
				if targets := p.LookupName(r); len(targets) > 0 &&
					targets[0].Kind == ast.SymbolKindClass && targets[0].ID != sym.ID {
					ev = append(ev, evidence{
						reason: reasonf("translates %s calls to %s", sym.Supertypes[0], r),
						weight: cfg.weight("adapter.translates"),
					})
					return ev
				}
			}
		}
	}
	return ev
}

func facadeRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass {
		return nil
	}

	var ev []evidence
	if nameHas(sym.Name, "facade") {
		ev = append(ev, evidence{
			reason: "name contains Facade",
			weight: cfg.weight("facade.name"),
		})
	}

	// A facade front-ends several project classes.
	spanned := map[string]bool{}
	methods := p.Methods(sym)
	for _, m := range methods {
		for _, r := range m.References {
			if targets := p.LookupName(r); len(targets) > 0 &&
				targets[0].Kind == ast.SymbolKindClass && targets[0].ID != sym.ID {
				spanned[r] = true
			}
		}
	}
	if len(spanned) >= 4 {
		ev = append(ev, evidence{
			reason: reasonf("fronts %d distinct subsystem classes", len(spanned)),
			weight: cfg.weight("facade.spans"),
		})
	}
	if len(ev) == 0 {
		return nil
	}
	if len(methods) > 0 && len(sym.Supertypes) == 0 {
		ev = append(ev, evidence{
			reason: "flat public surface with no inheritance",
			weight: cfg.weight("facade.shallow"),
		})
	}
	return ev
}

var executeNames = []string{"execute", "run", "invoke", "apply", "perform", "undo"}

func commandRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass {
		return nil
	}

	var ev []evidence
	methods := p.Methods(sym)
	if name, ok := hasMethodNamed(methods, executeNames); ok {
		ev = append(ev, evidence{
			reason: reasonf("execution method %s", name),
			weight: cfg.weight("command.execute"),
		})
	}
	if nameHas(sym.Name, "command") || nameHas(sym.Name, "action") {
		ev = append(ev, evidence{
			reason: "name contains Command/Action",
			weight: cfg.weight("command.name"),
		})
	}
	if len(ev) < 2 {
		return nil
	}

	// Sibling commands implementing the same supertype strengthen the
	// reading.
	for _, super := range sym.Supertypes {
		if len(p.Subtypes(super)) >= 2 {
			ev = append(ev, evidence{
				reason: reasonf("one of %d commands implementing %s", len(p.Subtypes(super)), super),
				weight: cfg.weight("command.family"),
			})
			break
		}
	}
	return ev
}

func templateMethodRules(p *project.Project, sym *ast.Symbol, cfg Config) []evidence {
	if sym.Kind != ast.SymbolKindClass || !sym.Modifiers.Abstract {
		return nil
	}

	methods := p.Methods(sym)
	var abstract, concrete []*ast.Symbol
	for _, m := range methods {
		if m.Modifiers.Abstract {
			abstract = append(abstract, m)
		} else {
			concrete = append(concrete, m)
		}
	}
	if len(abstract) == 0 || len(concrete) == 0 {
		return nil
	}

	ev := []evidence{{
		reason: reasonf("abstract class mixing %d abstract and %d concrete methods", len(abstract), len(concrete)),
		weight: cfg.weight("template.abstract_mix"),
	}}

	for _, c := range concrete {
		for _, a := range abstract {
			if referencesName(c, a.Name) {
				ev = append(ev, evidence{
					reason: reasonf("%s drives abstract step %s", c.Name, a.Name),
					weight: cfg.weight("template.concrete_call"),
				})
				return ev
			}
		}
	}

	if nameHas(sym.Name, "base") || nameHas(sym.Name, "abstract") || nameHas(sym.Name, "template") {
		ev = append(ev, evidence{
			reason: "base-class naming",
			weight: cfg.weight("template.name"),
		})
	}
	return ev
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
