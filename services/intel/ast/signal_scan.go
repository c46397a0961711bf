package ast

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// signalIdioms maps a language to the line patterns that declare,
// connect, and emit signals in that ecosystem. The scanner is
// line-based on purpose: signal idioms are call-shaped and survive in
// files whose tree-sitter parse partially failed.
type signalIdioms struct {
	declare []*regexp.Regexp
	connect []*regexp.Regexp
	emit    []*regexp.Regexp
}

var (
	// GDScript: signal declarations, connect("sig", target, "handler")
	// and sig.connect(handler), emit_signal("sig") and sig.emit().
	gdscriptIdioms = signalIdioms{
		declare: []*regexp.Regexp{
			regexp.MustCompile(`^\s*signal\s+(\w+)\s*(?:\(([^)]*)\))?`),
		},
		connect: []*regexp.Regexp{
			regexp.MustCompile(`\bconnect\(\s*["'](\w+)["']\s*,[^,]*,\s*["'](\w+)["']`),
			regexp.MustCompile(`\b(\w+)\.connect\(\s*(\w+)`),
			regexp.MustCompile(`\bconnect\(\s*["'](\w+)["']\s*,\s*(\w+)\s*\)`),
		},
		emit: []*regexp.Regexp{
			regexp.MustCompile(`\bemit_signal\(\s*["'](\w+)["']`),
			regexp.MustCompile(`\b(\w+)\.emit\(`),
		},
	}

	// Qt for Python: pyqtSignal/Signal attribute declarations,
	// sig.connect(handler), sig.emit(args).
	qtPythonIdioms = signalIdioms{
		declare: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(\w+)\s*(?::[^=]+)?=\s*(?:QtCore\.)?(?:pyqtSignal|Signal)\s*\(([^)]*)\)?`),
		},
		connect: []*regexp.Regexp{
			regexp.MustCompile(`\b(\w+)\.connect\(\s*(?:self\.)?(\w+)`),
		},
		emit: []*regexp.Regexp{
			regexp.MustCompile(`\b(\w+)\.emit\(`),
		},
	}

	// Node/browser event emitters: .on("evt", handler),
	// .addEventListener("evt", handler), .emit("evt"), .dispatchEvent.
	emitterIdioms = signalIdioms{
		connect: []*regexp.Regexp{
			regexp.MustCompile(`\.(?:on|once|addListener|addEventListener|subscribe)\(\s*["'](\w[\w.:-]*)["']\s*,\s*(?:this\.)?(\w+)?`),
		},
		emit: []*regexp.Regexp{
			regexp.MustCompile(`\.(?:emit|dispatchEvent|publish|trigger)\(\s*["'](\w[\w.:-]*)["']`),
		},
	}

	// Go channel-bus style: bus.Publish("evt", ...) and
	// bus.Subscribe("evt", handler).
	goBusIdioms = signalIdioms{
		connect: []*regexp.Regexp{
			regexp.MustCompile(`\.(?:Subscribe|On|AddListener|Handle)\(\s*"(\w[\w.:-]*)"\s*,\s*(\w+)?`),
		},
		emit: []*regexp.Regexp{
			regexp.MustCompile(`\.(?:Publish|Emit|Dispatch|Fire)\(\s*"(\w[\w.:-]*)"`),
		},
	}
)

// idiomsFor returns the signal idiom tables to scan for a language,
// most specific first. Python gets both generic emitter and Qt
// idioms; the emitter table leads because its string-named patterns
// are stricter than Qt's attribute patterns.
func idiomsFor(lang classify.Language) []signalIdioms {
	switch lang {
	case classify.LangGDScript:
		return []signalIdioms{gdscriptIdioms}
	case classify.LangPython:
		return []signalIdioms{emitterIdioms, qtPythonIdioms}
	case classify.LangGo:
		return []signalIdioms{goBusIdioms}
	case classify.LangJavaScript, classify.LangTypeScript, classify.LangRuby,
		classify.LangPHP, classify.LangKotlin, classify.LangSwift,
		classify.LangJava, classify.LangCSharp, classify.LangCpp, classify.LangRust:
		return []signalIdioms{emitterIdioms}
	default:
		return nil
	}
}

// ScanSignals extracts signal/event declarations, connections, and
// emissions from source text.
//
// # Description
//
//	Runs the language's idiom tables over each source line and builds
//	SignalEvent records. Owner attribution uses the innermost symbol
//	whose line range encloses the event line, so callers should pass
//	the symbols already extracted from the same file.
//
// Inputs:
//   - lang: source language, selects the idiom tables
//   - content: raw file content
//   - filePath: project-relative path recorded on event locations
//   - symbols: symbols extracted from the same file, for ownership
//
// Outputs:
//   - []SignalEvent: events in source order, nil when the language has
//     no signal idioms or nothing matched
func ScanSignals(lang classify.Language, content []byte, filePath string, symbols []*Symbol) []SignalEvent {
	tables := idiomsFor(lang)
	if len(tables) == 0 {
		return nil
	}

	var events []SignalEvent
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if isCommentLine(lang, line) {
			continue
		}
		lineNo := i + 1
		loc := Location{FilePath: filePath, StartLine: lineNo, EndLine: lineNo}
		owner := enclosingSymbol(symbols, lineNo)

		if m := firstMatch(tables, line, pickDeclare); m != nil {
			ev := SignalEvent{
				Kind:     SignalDeclare,
				Name:     m[1],
				Owner:    owner,
				Location: loc,
			}
			if len(m) > 2 && m[2] != "" {
				ev.Params = splitParams(m[2])
			}
			events = append(events, ev)
		}
		if m := firstMatch(tables, line, pickConnect); m != nil {
			ev := SignalEvent{
				Kind:     SignalConnect,
				Name:     m[1],
				Owner:    owner,
				Location: loc,
			}
			if len(m) > 2 {
				ev.Handler = m[2]
			}
			events = append(events, ev)
		}
		if m := firstMatch(tables, line, pickEmit); m != nil {
			events = append(events, SignalEvent{
				Kind:     SignalEmit,
				Name:     m[1],
				Owner:    owner,
				Location: loc,
			})
		}
	}
	return events
}

func pickDeclare(t signalIdioms) []*regexp.Regexp { return t.declare }
func pickConnect(t signalIdioms) []*regexp.Regexp { return t.connect }
func pickEmit(t signalIdioms) []*regexp.Regexp    { return t.emit }

// firstMatch runs one event kind's patterns over a line. First match
// wins, so a line yields at most one event per kind even when a
// language scans overlapping tables.
func firstMatch(tables []signalIdioms, line string, pick func(signalIdioms) []*regexp.Regexp) []string {
	for _, t := range tables {
		for _, re := range pick(t) {
			if m := re.FindStringSubmatch(line); m != nil {
				return m
			}
		}
	}
	return nil
}

// enclosingSymbol returns the qualified name of the innermost symbol
// whose line range contains the given line.
func enclosingSymbol(symbols []*Symbol, line int) string {
	var best *Symbol
	for _, sym := range symbols {
		if sym.StartLine > line || sym.EndLine < line {
			continue
		}
		if best == nil || sym.EndLine-sym.StartLine < best.EndLine-best.StartLine {
			best = sym
		}
	}
	if best == nil {
		return ""
	}
	return best.QualifiedName
}

// isCommentLine filters full-line comments to avoid phantom events
// from commented-out code.
func isCommentLine(lang classify.Language, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch lang {
	case classify.LangPython, classify.LangGDScript, classify.LangRuby:
		return strings.HasPrefix(trimmed, "#")
	default:
		return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") ||
			strings.HasPrefix(trimmed, "/*")
	}
}

// splitParams splits a declaration's parameter list into names.
func splitParams(raw string) []string {
	parts := strings.Split(raw, ",")
	params := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if idx := strings.IndexAny(name, ": "); idx > 0 {
			name = name[:idx]
		}
		if name != "" {
			params = append(params, name)
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
