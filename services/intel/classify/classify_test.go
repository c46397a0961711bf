// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import "testing"

func TestClassify_Extensions(t *testing.T) {
	tests := []struct {
		path     string
		wantLang Language
		wantStra Strategy
	}{
		{"main.go", LangGo, StrategyExact},
		{"app/models/user.py", LangPython, StrategyExact},
		{"src/index.js", LangJavaScript, StrategyExact},
		{"src/App.tsx", LangTypeScript, StrategyExact},
		{"lib.rs", LangRust, StrategyExact},
		{"Main.java", LangJava, StrategyExact},
		{"engine.cpp", LangCpp, StrategyExact},
		{"Program.cs", LangCSharp, StrategyExact},
		{"app.rb", LangRuby, StrategyExact},
		{"index.php", LangPHP, StrategyHeuristic},
		{"Main.kt", LangKotlin, StrategyHeuristic},
		{"View.swift", LangSwift, StrategyHeuristic},
		{"player.gd", LangGDScript, StrategyHeuristic},
		{"README.md", LangUnknown, StrategyNone},
		{"data.bin", LangUnknown, StrategyNone},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := Classify(tt.path, nil)
			if got.Language != tt.wantLang {
				t.Errorf("language = %v, want %v", got.Language, tt.wantLang)
			}
			if got.Strategy != tt.wantStra {
				t.Errorf("strategy = %v, want %v", got.Strategy, tt.wantStra)
			}
			if got.Reason == "" {
				t.Error("reason must never be empty")
			}
		})
	}
}

func TestClassify_Shebang(t *testing.T) {
	tests := []struct {
		name string
		head string
		want Language
	}{
		{"python", "#!/usr/bin/env python3\nimport os\n", LangPython},
		{"node", "#!/usr/bin/env node\n", LangJavaScript},
		{"ruby", "#!/usr/bin/ruby -w\n", LangRuby},
		{"php", "#!/usr/bin/php\n", LangPHP},
		{"shell", "#!/bin/sh\n", LangUnknown},
		{"no shebang", "plain text file\n", LangUnknown},
		{"empty", "", LangUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("runme", []byte(tt.head))
			if got.Language != tt.want {
				t.Errorf("language = %v, want %v", got.Language, tt.want)
			}
		})
	}
}

func TestClassify_AmbiguousHeader(t *testing.T) {
	t.Run("cpp header", func(t *testing.T) {
		head := []byte("#pragma once\n\nnamespace engine {\nclass Renderer {\npublic:\n")
		got := Classify("renderer.h", head)
		if got.Language != LangCpp {
			t.Errorf("language = %v, want %v", got.Language, LangCpp)
		}
	})

	t.Run("plain c header excluded", func(t *testing.T) {
		head := []byte("#ifndef UTIL_H\n#define UTIL_H\nint add(int a, int b);\n#endif\n")
		got := Classify("util.h", head)
		if got.Language != LangUnknown {
			t.Errorf("language = %v, want %v", got.Language, LangUnknown)
		}
	})
}

func TestParseLanguage_RoundTrip(t *testing.T) {
	for lang := LangGo; lang < NumLanguages; lang++ {
		if got := ParseLanguage(lang.String()); got != lang {
			t.Errorf("ParseLanguage(%q) = %v, want %v", lang.String(), got, lang)
		}
	}

	if got := ParseLanguage("fortran"); got != LangUnknown {
		t.Errorf("ParseLanguage(fortran) = %v, want LangUnknown", got)
	}
}

func TestHasExactParser(t *testing.T) {
	if !HasExactParser(LangGo) {
		t.Error("Go must have an exact parser")
	}
	if HasExactParser(LangGDScript) {
		t.Error("GDScript must use the heuristic strategy")
	}
	if HasExactParser(LangUnknown) {
		t.Error("unknown language must not have a parser")
	}
}
