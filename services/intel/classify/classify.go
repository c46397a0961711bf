// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify maps source files to a language tag and a parsing
// strategy.
//
// Classification is a two-step process: an O(1) extension lookup first,
// then shallow content sniffing (shebang lines, marker tokens) as a
// tie-break for ambiguous extensions. The classifier never reads file
// content itself - callers supply the first bytes of the file - so the
// cost per file is constant regardless of file size.
package classify

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Language is the closed set of languages the engine understands.
//
// Files classified as LangUnknown are excluded from structural analysis
// and recorded in the report with a reason.
type Language int

const (
	// LangUnknown indicates a file that could not be classified.
	LangUnknown Language = iota

	// LangGo is Go source.
	LangGo

	// LangPython is Python source.
	LangPython

	// LangJavaScript is JavaScript source (including JSX).
	LangJavaScript

	// LangTypeScript is TypeScript source (including TSX).
	LangTypeScript

	// LangRust is Rust source.
	LangRust

	// LangJava is Java source.
	LangJava

	// LangCpp is C++ source (headers and translation units).
	LangCpp

	// LangCSharp is C# source.
	LangCSharp

	// LangRuby is Ruby source.
	LangRuby

	// LangPHP is PHP source.
	LangPHP

	// LangKotlin is Kotlin source.
	LangKotlin

	// LangSwift is Swift source.
	LangSwift

	// LangGDScript is Godot GDScript source.
	LangGDScript

	// NumLanguages is the total number of language tags (for array sizing).
	NumLanguages
)

// languageNames maps Language values to their string representations.
var languageNames = map[Language]string{
	LangUnknown:    "unknown",
	LangGo:         "go",
	LangPython:     "python",
	LangJavaScript: "javascript",
	LangTypeScript: "typescript",
	LangRust:       "rust",
	LangJava:       "java",
	LangCpp:        "cpp",
	LangCSharp:     "csharp",
	LangRuby:       "ruby",
	LangPHP:        "php",
	LangKotlin:     "kotlin",
	LangSwift:      "swift",
	LangGDScript:   "gdscript",
}

// String returns the string representation of the Language.
func (l Language) String() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLanguage converts a string to a Language.
//
// Returns LangUnknown if the string is not recognized. Accepts common
// aliases ("js", "ts", "c++", "golang").
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "go", "golang":
		return LangGo
	case "python", "py":
		return LangPython
	case "javascript", "js", "jsx":
		return LangJavaScript
	case "typescript", "ts", "tsx":
		return LangTypeScript
	case "rust", "rs":
		return LangRust
	case "java":
		return LangJava
	case "cpp", "c++", "cxx", "cc":
		return LangCpp
	case "csharp", "c#", "cs":
		return LangCSharp
	case "ruby", "rb":
		return LangRuby
	case "php":
		return LangPHP
	case "kotlin", "kt":
		return LangKotlin
	case "swift":
		return LangSwift
	case "gdscript", "gd":
		return LangGDScript
	default:
		return LangUnknown
	}
}

// Strategy selects how a file is parsed.
type Strategy int

const (
	// StrategyNone indicates the file is not parsed (unknown language).
	StrategyNone Strategy = iota

	// StrategyExact uses a full-fidelity tree-sitter parser.
	StrategyExact

	// StrategyHeuristic uses the regex/line-scanning tokenizer.
	StrategyHeuristic
)

// String returns the string representation of the Strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyHeuristic:
		return "heuristic"
	default:
		return "none"
	}
}

// Classification is the result of classifying a single file.
type Classification struct {
	// Language is the detected language tag.
	Language Language

	// Strategy is the parsing strategy selected for the language.
	// StrategyNone when the language is unknown.
	Strategy Strategy

	// Reason explains the classification for the report. For
	// LangUnknown this is the exclusion reason, so every skipped
	// file leaves a trace.
	Reason string
}

// MaxSniffBytes is the maximum number of head bytes the classifier
// inspects during content sniffing. Callers never need to read more
// than this from disk.
const MaxSniffBytes = 512

// extensionTable maps file extensions to languages for the unambiguous
// cases. Ambiguous extensions (".h") are resolved by sniffHead.
var extensionTable = map[string]Language{
	".go":    LangGo,
	".py":    LangPython,
	".pyw":   LangPython,
	".js":    LangJavaScript,
	".jsx":   LangJavaScript,
	".mjs":   LangJavaScript,
	".cjs":   LangJavaScript,
	".ts":    LangTypeScript,
	".tsx":   LangTypeScript,
	".mts":   LangTypeScript,
	".rs":    LangRust,
	".java":  LangJava,
	".cpp":   LangCpp,
	".cxx":   LangCpp,
	".cc":    LangCpp,
	".hpp":   LangCpp,
	".hh":    LangCpp,
	".cs":    LangCSharp,
	".rb":    LangRuby,
	".rake":  LangRuby,
	".php":   LangPHP,
	".kt":    LangKotlin,
	".kts":   LangKotlin,
	".swift": LangSwift,
	".gd":    LangGDScript,
}

// exactLanguages holds the languages with a full-fidelity tree-sitter
// grammar wired in. Everything else in the closed enum parses in
// heuristic mode.
var exactLanguages = map[Language]bool{
	LangGo:         true,
	LangPython:     true,
	LangJavaScript: true,
	LangTypeScript: true,
	LangRust:       true,
	LangJava:       true,
	LangCpp:        true,
	LangCSharp:     true,
	LangRuby:       true,
}

// HasExactParser reports whether a full-fidelity parser exists for the
// language.
func HasExactParser(l Language) bool {
	return exactLanguages[l]
}

// Classify determines the language and parsing strategy for a file.
//
// Inputs:
//   - path: File path (only the base name and extension are inspected).
//   - head: The first bytes of the file, at most MaxSniffBytes. May be
//     nil or shorter when the file is smaller. Never the whole file.
//
// Outputs:
//   - Classification: Language, strategy, and a reason string. Language
//     is LangUnknown (with Strategy StrategyNone) for unclassifiable
//     files.
//
// Classification runs extension lookup first, then
// shebang/marker sniffing for extensionless and ambiguous files.
func Classify(path string, head []byte) Classification {
	ext := strings.ToLower(filepath.Ext(path))

	// ".h" is shared between C and C++; treat as C++ only when C++
	// markers appear in the head bytes.
	if ext == ".h" {
		if looksLikeCpp(head) {
			return classified(LangCpp, "extension .h with C++ markers")
		}
		return Classification{
			Language: LangUnknown,
			Strategy: StrategyNone,
			Reason:   "extension .h without C++ markers",
		}
	}

	if lang, ok := extensionTable[ext]; ok {
		return classified(lang, "extension "+ext)
	}

	if ext == "" {
		if lang := sniffShebang(head); lang != LangUnknown {
			return classified(lang, "shebang line")
		}
	}

	reason := "unrecognized extension " + ext
	if ext == "" {
		reason = "no extension and no recognized shebang"
	}
	return Classification{Language: LangUnknown, Strategy: StrategyNone, Reason: reason}
}

// classified builds a Classification with the strategy implied by the
// language's available tooling.
func classified(lang Language, reason string) Classification {
	strategy := StrategyHeuristic
	if exactLanguages[lang] {
		strategy = StrategyExact
	}
	return Classification{Language: lang, Strategy: strategy, Reason: reason}
}

// sniffShebang inspects a "#!..." first line for a known interpreter.
func sniffShebang(head []byte) Language {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return LangUnknown
	}

	line := head
	if idx := bytes.IndexByte(head, '\n'); idx >= 0 {
		line = head[:idx]
	}
	shebang := string(line)

	switch {
	case strings.Contains(shebang, "python"):
		return LangPython
	case strings.Contains(shebang, "node"):
		return LangJavaScript
	case strings.Contains(shebang, "ruby"):
		return LangRuby
	case strings.Contains(shebang, "php"):
		return LangPHP
	}
	return LangUnknown
}

// cppMarkers are tokens that only appear in C++ headers, never plain C.
var cppMarkers = [][]byte{
	[]byte("class "),
	[]byte("namespace "),
	[]byte("template<"),
	[]byte("template <"),
	[]byte("std::"),
	[]byte("#include <iostream>"),
	[]byte("#include <string>"),
	[]byte("public:"),
	[]byte("Q_OBJECT"),
}

// looksLikeCpp reports whether the head bytes contain a C++ marker token.
func looksLikeCpp(head []byte) bool {
	for _, marker := range cppMarkers {
		if bytes.Contains(head, marker) {
			return true
		}
	}
	return false
}
