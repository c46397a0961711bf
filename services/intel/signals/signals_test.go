// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signals

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

func event(kind ast.SignalEventKind, name, owner, handler, file string, line int) ast.SignalEvent {
	return ast.SignalEvent{
		Kind:     kind,
		Name:     name,
		Owner:    owner,
		Handler:  handler,
		Location: ast.Location{FilePath: file, StartLine: line, EndLine: line},
	}
}

func signalProject(files map[string][]ast.SignalEvent) *project.Project {
	agg := project.NewAggregator("fixture")
	for path, events := range files {
		agg.Add(&ast.ParseResult{
			FilePath: path,
			Language: "gdscript",
			Status:   ast.StatusOk,
			Signals:  events,
		})
	}
	return agg.Finish()
}

func findMatch(matches []Match, kind PatternKind) (Match, bool) {
	for _, m := range matches {
		if m.Kind == kind {
			return m, true
		}
	}
	return Match{}, false
}

func TestAnalyze_EmptyProject(t *testing.T) {
	flow := Analyze(signalProject(nil), DefaultConfig())
	if len(flow.Nodes) != 0 || len(flow.Matches) != 0 {
		t.Errorf("expected empty flow, got %+v", flow)
	}
}

func TestAnalyze_EventBusHub(t *testing.T) {
	events := []ast.SignalEvent{
		event(ast.SignalDeclare, "boot", "bus.EventBus", "", "bus.gd", 1),
	}
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("topic_%02d", i)
		events = append(events,
			event(ast.SignalConnect, name, "bus.EventBus.route", "on_"+name, "bus.gd", 10+i),
			event(ast.SignalEmit, name, "bus.EventBus.route", "", "bus.gd", 40+i),
		)
	}
	flow := Analyze(signalProject(map[string][]ast.SignalEvent{"bus.gd": events}), DefaultConfig())

	m, ok := findMatch(flow.Matches, PatternEventBus)
	if !ok {
		t.Fatalf("expected EventBus match, got %v", flow.Matches)
	}
	if m.Confidence < 0.85 {
		t.Errorf("expected confidence >= 0.85, got %.2f", m.Confidence)
	}
	if m.Subject != "bus.EventBus" {
		t.Errorf("expected hub bus.EventBus, got %q", m.Subject)
	}
}

func TestAnalyze_ObserverFanOut(t *testing.T) {
	p := signalProject(map[string][]ast.SignalEvent{
		"player.gd": {
			event(ast.SignalDeclare, "died", "player.Player", "", "player.gd", 3),
			event(ast.SignalEmit, "died", "player.Player.take_damage", "", "player.gd", 20),
		},
		"ui.gd": {
			event(ast.SignalConnect, "died", "ui.HealthBar.setup", "on_player_died", "ui.gd", 5),
		},
		"audio.gd": {
			event(ast.SignalConnect, "died", "audio.AudioManager.setup", "play_death_sound", "audio.gd", 7),
		},
		"score.gd": {
			event(ast.SignalConnect, "died", "score.ScoreBoard.setup", "finalize_score", "score.gd", 9),
		},
	})
	flow := Analyze(p, DefaultConfig())

	m, ok := findMatch(flow.Matches, PatternObserver)
	if !ok {
		t.Fatalf("expected Observer match, got %v", flow.Matches)
	}
	if m.Subject != "died" {
		t.Errorf("expected subject died, got %q", m.Subject)
	}
	if _, bus := findMatch(flow.Matches, PatternEventBus); bus {
		t.Error("three subscribers must not qualify as an EventBus")
	}
}

func TestAnalyze_EventChainCascade(t *testing.T) {
	p := signalProject(map[string][]ast.SignalEvent{
		"door.gd": {
			event(ast.SignalDeclare, "opened", "door.Door", "", "door.gd", 2),
			event(ast.SignalConnect, "opened", "alarm.Alarm.setup", "on_door_opened", "door.gd", 8),
		},
		"alarm.gd": {
			event(ast.SignalDeclare, "triggered", "alarm.Alarm", "", "alarm.gd", 2),
			event(ast.SignalEmit, "triggered", "alarm.Alarm.on_door_opened", "", "alarm.gd", 12),
		},
	})
	flow := Analyze(p, DefaultConfig())

	m, ok := findMatch(flow.Matches, PatternEventChain)
	if !ok {
		t.Fatalf("expected EventChain match, got %v", flow.Matches)
	}
	if m.Subject != "opened" {
		t.Errorf("expected cascade rooted at opened, got %q", m.Subject)
	}
	if m.Confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %.2f", m.Confidence)
	}
}

func TestAnalyze_SignalDocs(t *testing.T) {
	p := signalProject(map[string][]ast.SignalEvent{
		"player.gd": {
			{
				Kind: ast.SignalDeclare, Name: "health_changed", Owner: "player.Player",
				Params:   []string{"old", "new"},
				Location: ast.Location{FilePath: "player.gd", StartLine: 4, EndLine: 4},
			},
			event(ast.SignalEmit, "health_changed", "player.Player.heal", "", "player.gd", 22),
		},
		"ui.gd": {
			event(ast.SignalConnect, "health_changed", "ui.HealthBar.setup", "on_health_changed", "ui.gd", 6),
		},
	})
	flow := Analyze(p, DefaultConfig())

	if len(flow.Signals) != 1 {
		t.Fatalf("expected one signal doc, got %d", len(flow.Signals))
	}
	doc := flow.Signals[0]
	if doc.Declaration != "player.gd:4" {
		t.Errorf("expected declaration site player.gd:4, got %q", doc.Declaration)
	}
	if len(doc.Params) != 2 || doc.Params[0] != "old" {
		t.Errorf("expected params [old new], got %v", doc.Params)
	}
	if len(doc.Connections) != 1 || doc.Connections[0].Handler != "on_health_changed" {
		t.Errorf("unexpected connections %v", doc.Connections)
	}
	if len(doc.Emissions) != 1 || doc.Emissions[0] != "player.gd:22" {
		t.Errorf("unexpected emissions %v", doc.Emissions)
	}

	// Density: one signal across two files.
	if flow.Density != 0.5 {
		t.Errorf("expected density 0.5, got %v", flow.Density)
	}
	if flow.FanOut != 1 {
		t.Errorf("expected fan-out 1, got %v", flow.FanOut)
	}
}

func TestAnalyze_GraphShape(t *testing.T) {
	p := signalProject(map[string][]ast.SignalEvent{
		"player.gd": {
			event(ast.SignalDeclare, "died", "player.Player", "", "player.gd", 3),
			event(ast.SignalEmit, "died", "player.Player.hit", "", "player.gd", 9),
		},
		"ui.gd": {
			event(ast.SignalConnect, "died", "ui.HealthBar.setup", "on_player_died", "ui.gd", 5),
		},
	})
	flow := Analyze(p, DefaultConfig())

	var kinds []ast.SignalEventKind
	for _, e := range flow.Edges {
		if e.Signal != "died" {
			t.Errorf("unexpected edge signal %q", e.Signal)
		}
		kinds = append(kinds, e.Kind)
	}
	if len(flow.Edges) != 3 {
		t.Fatalf("expected declare+connect+emit edges, got %v", flow.Edges)
	}
	hasSignalNode := false
	for _, n := range flow.Nodes {
		if n.ID == "died" && n.Kind == NodeSignal {
			hasSignalNode = true
		}
	}
	if !hasSignalNode {
		t.Errorf("expected a signal node for died, got %v (edge kinds %v)", flow.Nodes, kinds)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	build := func() *Flow {
		return Analyze(signalProject(map[string][]ast.SignalEvent{
			"a.gd": {
				event(ast.SignalDeclare, "alpha", "a.A", "", "a.gd", 1),
				event(ast.SignalConnect, "alpha", "b.B.setup", "on_alpha", "a.gd", 2),
			},
			"b.gd": {
				event(ast.SignalDeclare, "beta", "b.B", "", "b.gd", 1),
				event(ast.SignalEmit, "beta", "b.B.on_alpha", "", "b.gd", 2),
			},
		}), DefaultConfig())
	}
	if !reflect.DeepEqual(build(), build()) {
		t.Error("expected identical flows across runs")
	}
}
