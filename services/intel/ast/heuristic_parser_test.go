package ast

import (
	"context"
	"testing"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

const (
	testPHPSource = `<?php
namespace App\Http;

use App\Models\User;
require_once 'legacy/bootstrap.php';

interface Renderer {
    public function render();
}

abstract class Controller {
    protected function json($data) {
        return encode($data);
    }
}

class UserController extends Controller implements Renderer {
    public function render() {
        return view('users');
    }

    private static function cacheKey($id) {
        return "user:" . $id;
    }
}
`

	testKotlinSource = `package com.example.feed

import com.example.feed.model.Item
import kotlinx.coroutines.flow.Flow

interface ItemRepository {
    suspend fun items(): Flow<Item>
}

class FeedViewModel(private val repo: ItemRepository) : ViewModel() {
    fun refresh() {
        load()
    }

    private fun load() {
    }
}
`

	testSwiftSource = `import SwiftUI

protocol Togglable {
    func toggle()
}

class Switch: Togglable {
    private var on = false

    func toggle() {
        on.toggle()
    }
}

struct SettingsView {
    func body() {
    }
}
`

	testGDScriptSource = `extends "res://actors/actor.gd"
class_name Player

signal health_changed(old, new)
signal died

var health = 100

func take_damage(amount):
	var old = health
	health -= amount
	emit_signal("health_changed", old, health)
	if health <= 0:
		emit_signal("died")

func _ready():
	connect("died", self, "_on_died")

func _on_died():
	queue_free()

class Inventory:
	func add(item):
		pass
`

	testGoSurface = `package server

import (
	"context"
	"net/http"
)

type Server struct {
	addr string
}

func New(addr string) *Server {
	return &Server{addr: addr}
}
`
)

func mustHeuristicParser(t *testing.T, lang classify.Language) *HeuristicParser {
	t.Helper()
	parser, err := NewHeuristicParser(lang)
	if err != nil {
		t.Fatalf("NewHeuristicParser(%s): %v", lang, err)
	}
	return parser
}

func TestHeuristicParser_UnknownLanguage(t *testing.T) {
	if _, err := NewHeuristicParser(classify.LangUnknown); err == nil {
		t.Fatal("expected ErrNoParser for unknown language")
	}
}

func TestHeuristicParser_StatusIsNeverOk(t *testing.T) {
	parser := mustHeuristicParser(t, classify.LangPHP)

	result, err := parser.Parse(context.Background(), []byte(testPHPSource), "app/UserController.php")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status == StatusOk {
		t.Error("heuristic results must not claim an exact parse")
	}
}

func TestHeuristicParser_PHP(t *testing.T) {
	parser := mustHeuristicParser(t, classify.LangPHP)

	result, err := parser.Parse(context.Background(), []byte(testPHPSource), "app/UserController.php")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Module != `App\Http` {
		t.Errorf("expected namespace module, got %q", result.Module)
	}

	t.Run("interface and classes", func(t *testing.T) {
		renderer := findSymbol(result.Symbols, "Renderer")
		if renderer == nil {
			t.Fatal("Renderer symbol not found")
		}
		if renderer.Kind != SymbolKindInterface {
			t.Errorf("expected interface kind, got %s", renderer.Kind)
		}

		ctrl := findSymbol(result.Symbols, "UserController")
		if ctrl == nil {
			t.Fatal("UserController symbol not found")
		}
		want := map[string]bool{"Controller": false, "Renderer": false}
		for _, s := range ctrl.Supertypes {
			if _, ok := want[s]; ok {
				want[s] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected supertype %s, got %v", name, ctrl.Supertypes)
			}
		}
	})

	t.Run("methods with modifiers", func(t *testing.T) {
		cacheKey := findSymbol(result.Symbols, "cacheKey")
		if cacheKey == nil {
			t.Fatal("cacheKey symbol not found")
		}
		if cacheKey.Kind != SymbolKindMethod {
			t.Errorf("expected method kind, got %s", cacheKey.Kind)
		}
		if !cacheKey.Modifiers.Private {
			t.Error("expected private modifier")
		}
		if !cacheKey.Modifiers.Static {
			t.Error("expected static modifier")
		}
		if cacheKey.Owner == "" {
			t.Error("expected method owner")
		}
	})

	t.Run("use and require imports", func(t *testing.T) {
		use := findImport(result.Imports, `App\Models\User`)
		if use == nil {
			t.Fatalf("use import not found in %v", result.Imports)
		}
		if use.Kind != ImportKindImport {
			t.Errorf("expected import kind, got %s", use.Kind)
		}
		req := findImport(result.Imports, "legacy/bootstrap.php")
		if req == nil {
			t.Fatal("require_once import not found")
		}
		if req.Kind != ImportKindRequire {
			t.Errorf("expected require kind, got %s", req.Kind)
		}
	})
}

func TestHeuristicParser_Kotlin(t *testing.T) {
	parser := mustHeuristicParser(t, classify.LangKotlin)

	result, err := parser.Parse(context.Background(), []byte(testKotlinSource), "feed/FeedViewModel.kt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Module != "com.example.feed" {
		t.Errorf("expected module 'com.example.feed', got %q", result.Module)
	}

	vm := findSymbol(result.Symbols, "FeedViewModel")
	if vm == nil {
		t.Fatal("FeedViewModel symbol not found")
	}
	found := false
	for _, s := range vm.Supertypes {
		if s == "ViewModel" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected supertype ViewModel, got %v", vm.Supertypes)
	}

	repo := findSymbol(result.Symbols, "ItemRepository")
	if repo == nil {
		t.Fatal("ItemRepository symbol not found")
	}
	if repo.Kind != SymbolKindInterface {
		t.Errorf("expected interface kind, got %s", repo.Kind)
	}

	refresh := findSymbol(result.Symbols, "refresh")
	if refresh == nil {
		t.Fatal("refresh symbol not found")
	}
	if refresh.Kind != SymbolKindMethod {
		t.Errorf("expected method kind, got %s", refresh.Kind)
	}
	if !hasReference(refresh.References, "load") {
		t.Errorf("expected call reference to load, got %v", refresh.References)
	}
}

func TestHeuristicParser_Swift(t *testing.T) {
	parser := mustHeuristicParser(t, classify.LangSwift)

	result, err := parser.Parse(context.Background(), []byte(testSwiftSource), "Sources/Switch.swift")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	togglable := findSymbol(result.Symbols, "Togglable")
	if togglable == nil {
		t.Fatal("Togglable symbol not found")
	}
	if togglable.Kind != SymbolKindInterface {
		t.Errorf("expected protocol to be interface, got %s", togglable.Kind)
	}

	sw := findSymbol(result.Symbols, "Switch")
	if sw == nil {
		t.Fatal("Switch symbol not found")
	}
	if len(sw.Supertypes) != 1 || sw.Supertypes[0] != "Togglable" {
		t.Errorf("expected supertypes [Togglable], got %v", sw.Supertypes)
	}

	settings := findSymbol(result.Symbols, "SettingsView")
	if settings == nil {
		t.Fatal("SettingsView struct not found")
	}

	if findImport(result.Imports, "SwiftUI") == nil {
		t.Error("SwiftUI import not found")
	}
}

func TestHeuristicParser_GDScript(t *testing.T) {
	parser := mustHeuristicParser(t, classify.LangGDScript)

	result, err := parser.Parse(context.Background(), []byte(testGDScriptSource), "actors/player.gd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Module != "Player" {
		t.Errorf("expected class_name module 'Player', got %q", result.Module)
	}

	t.Run("functions and inner classes", func(t *testing.T) {
		takeDamage := findSymbol(result.Symbols, "take_damage")
		if takeDamage == nil {
			t.Fatal("take_damage symbol not found")
		}
		inv := findSymbol(result.Symbols, "Inventory")
		if inv == nil {
			t.Fatal("Inventory inner class not found")
		}
		add := findSymbol(result.Symbols, "add")
		if add == nil {
			t.Fatal("add symbol not found")
		}
		if add.Owner == "" {
			t.Error("expected inner-class method to carry owner")
		}
	})

	t.Run("script extends recorded as import", func(t *testing.T) {
		ext := findImport(result.Imports, "res://actors/actor.gd")
		if ext == nil {
			t.Fatalf("extends path not recorded, imports: %v", result.Imports)
		}
	})

	t.Run("signal events", func(t *testing.T) {
		counts := map[SignalEventKind]int{}
		names := map[string]bool{}
		for _, ev := range result.Signals {
			counts[ev.Kind]++
			names[ev.Name] = true
		}
		if counts[SignalDeclare] != 2 {
			t.Errorf("expected 2 declarations, got %d", counts[SignalDeclare])
		}
		if counts[SignalEmit] != 2 {
			t.Errorf("expected 2 emits, got %d", counts[SignalEmit])
		}
		if counts[SignalConnect] != 1 {
			t.Errorf("expected 1 connect, got %d", counts[SignalConnect])
		}
		if !names["health_changed"] || !names["died"] {
			t.Errorf("expected health_changed and died signals, got %v", names)
		}
	})
}

func TestHeuristicParser_GoSurfaceFallback(t *testing.T) {
	parser := mustHeuristicParser(t, classify.LangGo)

	result, err := parser.Parse(context.Background(), []byte(testGoSurface), "server/server.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Module != "server" {
		t.Errorf("expected module 'server', got %q", result.Module)
	}

	srv := findSymbol(result.Symbols, "Server")
	if srv == nil {
		t.Fatal("Server struct not found")
	}
	if srv.Kind != SymbolKindClass {
		t.Errorf("expected class kind, got %s", srv.Kind)
	}

	if findImport(result.Imports, "net/http") == nil {
		t.Errorf("import block entry not found, imports: %v", result.Imports)
	}
	if findImport(result.Imports, "context") == nil {
		t.Error("context import not found")
	}
}
