package ast

import (
	"context"
	"strings"
	"testing"
)

const (
	testPySimple = `import os
from collections import OrderedDict
from . import siblings

class Animal:
    def speak(self):
        return "..."

    def _digest(self):
        pass

class Dog(Animal):
    def speak(self):
        return "woof"

    @staticmethod
    def species():
        return "canis"

def main():
    dog = Dog()
    print(dog.speak())
`

	testPyAbstract = `from abc import ABC, abstractmethod

class Repository(ABC):
    @abstractmethod
    def get(self, key):
        ...

class Protocolish(Protocol):
    def close(self):
        ...
`

	testPyQt = `from PyQt5.QtCore import QObject, pyqtSignal

class Worker(QObject):
    finished = pyqtSignal()
    progress = pyqtSignal(int)

    def run(self):
        self.progress.emit(10)
        self.finished.emit()

class Window:
    def __init__(self, worker):
        worker.progress.connect(self.on_progress)
        worker.finished.connect(self.on_done)

    def on_progress(self, value):
        pass

    def on_done(self):
        pass
`

	testPyBroken = `class Ok:
    def fine(self):
        return 1

def broken(:
    pass
`
)

func TestPythonParser_Parse_Simple(t *testing.T) {
	parser := NewPythonParser()

	result, err := parser.Parse(context.Background(), []byte(testPySimple), "app/zoo.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Module != "app.zoo" {
		t.Errorf("expected module 'app.zoo', got %q", result.Module)
	}

	t.Run("classes and inheritance", func(t *testing.T) {
		dog := findSymbol(result.Symbols, "Dog")
		if dog == nil {
			t.Fatal("Dog symbol not found")
		}
		if dog.Kind != SymbolKindClass {
			t.Errorf("expected class kind, got %s", dog.Kind)
		}
		if len(dog.Supertypes) != 1 || dog.Supertypes[0] != "Animal" {
			t.Errorf("expected supertypes [Animal], got %v", dog.Supertypes)
		}
	})

	t.Run("methods carry owner and modifiers", func(t *testing.T) {
		var digest *Symbol
		for _, s := range result.Symbols {
			if s.Name == "_digest" {
				digest = s
			}
		}
		if digest == nil {
			t.Fatal("_digest symbol not found")
		}
		if digest.Kind != SymbolKindMethod {
			t.Errorf("expected method kind, got %s", digest.Kind)
		}
		if !digest.Modifiers.Private {
			t.Error("expected underscore method to be private")
		}

		species := findSymbol(result.Symbols, "species")
		if species == nil {
			t.Fatal("species symbol not found")
		}
		if !species.Modifiers.Static {
			t.Error("expected @staticmethod to set Static")
		}
	})

	t.Run("module level function", func(t *testing.T) {
		mainFn := findSymbol(result.Symbols, "main")
		if mainFn == nil {
			t.Fatal("main symbol not found")
		}
		if mainFn.Kind != SymbolKindFunction {
			t.Errorf("expected function kind, got %s", mainFn.Kind)
		}
		if !hasReference(mainFn.References, "Dog") {
			t.Errorf("expected reference to Dog, got %v", mainFn.References)
		}
	})

	t.Run("imports", func(t *testing.T) {
		if findImport(result.Imports, "os") == nil {
			t.Error("expected import of os")
		}
		collections := findImport(result.Imports, "collections")
		if collections == nil {
			t.Fatal("expected from-import of collections")
		}
		relative := findImport(result.Imports, ".")
		if relative == nil {
			t.Fatal("expected relative import")
		}
		if !relative.IsRelative {
			t.Error("expected relative import to be flagged relative")
		}
	})
}

func TestPythonParser_Parse_AbstractClasses(t *testing.T) {
	parser := NewPythonParser()

	result, err := parser.Parse(context.Background(), []byte(testPyAbstract), "repo.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo := findSymbol(result.Symbols, "Repository")
	if repo == nil {
		t.Fatal("Repository symbol not found")
	}
	if repo.Kind != SymbolKindInterface {
		t.Errorf("expected ABC subclass to be interface, got %s", repo.Kind)
	}
	if !repo.Modifiers.Abstract {
		t.Error("expected ABC subclass to be abstract")
	}

	get := findSymbol(result.Symbols, "get")
	if get == nil {
		t.Fatal("get symbol not found")
	}
	if !get.Modifiers.Abstract {
		t.Error("expected @abstractmethod to set Abstract")
	}

	proto := findSymbol(result.Symbols, "Protocolish")
	if proto == nil {
		t.Fatal("Protocolish symbol not found")
	}
	if proto.Kind != SymbolKindInterface {
		t.Errorf("expected Protocol subclass to be interface, got %s", proto.Kind)
	}
}

func TestPythonParser_Parse_QtSignals(t *testing.T) {
	parser := NewPythonParser()

	result, err := parser.Parse(context.Background(), []byte(testPyQt), "worker.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts := map[SignalEventKind]int{}
	for _, ev := range result.Signals {
		counts[ev.Kind]++
	}
	if counts[SignalDeclare] != 2 {
		t.Errorf("expected 2 signal declarations, got %d", counts[SignalDeclare])
	}
	if counts[SignalConnect] != 2 {
		t.Errorf("expected 2 connects, got %d", counts[SignalConnect])
	}
	if counts[SignalEmit] != 2 {
		t.Errorf("expected 2 emits, got %d", counts[SignalEmit])
	}

	for _, ev := range result.Signals {
		if ev.Kind == SignalDeclare && ev.Name == "finished" {
			if ev.Owner != "worker.Worker" {
				t.Errorf("expected declaration owner 'worker.Worker', got %q", ev.Owner)
			}
		}
		if ev.Kind == SignalConnect && ev.Name == "progress" {
			if ev.Handler != "on_progress" {
				t.Errorf("expected handler 'on_progress', got %q", ev.Handler)
			}
		}
	}
}

func TestPythonParser_Parse_SyntaxError(t *testing.T) {
	parser := NewPythonParser()

	result, err := parser.Parse(context.Background(), []byte(testPyBroken), "broken.py")
	if err != nil {
		t.Fatalf("syntax errors must not fail the parse, got: %v", err)
	}
	if result.Status != StatusPartial {
		t.Errorf("expected partial status, got %s", result.Status)
	}
	if findSymbol(result.Symbols, "Ok") == nil {
		t.Error("expected Ok class to survive the broken declaration")
	}
}

func TestPythonParser_Rebind_RequalifiesModule(t *testing.T) {
	const source = `class Shared:
    loaded = pyqtSignal()

    def helper(self):
        self.loaded.emit()
`
	parser := NewPythonParser()

	result, err := parser.Parse(context.Background(), []byte(source), "a/shared.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clone := result.Rebind("b/shared.py")

	if clone.Module != "b.shared" {
		t.Errorf("expected rebound module 'b.shared', got %q", clone.Module)
	}
	shared := findSymbol(clone.Symbols, "Shared")
	if shared == nil {
		t.Fatal("Shared symbol not found in rebound result")
	}
	if shared.QualifiedName != "b.shared.Shared" {
		t.Errorf("expected requalified name 'b.shared.Shared', got %q", shared.QualifiedName)
	}
	helper := findSymbol(clone.Symbols, "helper")
	if helper == nil {
		t.Fatal("helper symbol not found in rebound result")
	}
	if helper.Owner != "b.shared.Shared" {
		t.Errorf("expected requalified owner 'b.shared.Shared', got %q", helper.Owner)
	}
	if helper.QualifiedName != "b.shared.Shared.helper" {
		t.Errorf("expected requalified name 'b.shared.Shared.helper', got %q", helper.QualifiedName)
	}
	for _, ev := range clone.Signals {
		if ev.Owner != "" && !strings.HasPrefix(ev.Owner, "b.shared.") {
			t.Errorf("expected requalified signal owner, got %q", ev.Owner)
		}
	}
	if result.Module != "a.shared" || findSymbol(result.Symbols, "Shared").QualifiedName != "a.shared.Shared" {
		t.Error("rebind must not mutate the cached original")
	}
}
