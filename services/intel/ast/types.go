// Package ast provides types and interfaces for language-agnostic
// structural parsing.
//
// This package defines the normalized Structural Model used throughout
// the CodeAtlas intelligence engine: symbols, imports, and signal events
// extracted from source files of any supported language. All parser
// implementations (exact tree-sitter parsers and the heuristic line
// scanner) produce output conforming to these types.
//
// Design principles:
//   - Language-agnostic: types work for any supported language
//   - Timestamps as int64 UnixMilli per project conventions
//   - No map[string]interface{} - concrete types only
//   - Parse failures degrade, they never abort
package ast

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// ParseStatus describes how completely a file was parsed.
type ParseStatus int

const (
	// StatusOk indicates a clean parse with no salvage required.
	StatusOk ParseStatus = iota

	// StatusPartial indicates syntax errors were encountered and only
	// salvaged symbols are present.
	StatusPartial

	// StatusFailed indicates zero symbols could be extracted.
	StatusFailed

	// StatusSkipped indicates the file was excluded before parsing
	// (unknown language). Informational, not an error.
	StatusSkipped
)

// statusNames maps ParseStatus values to their wire representations.
var statusNames = map[ParseStatus]string{
	StatusOk:      "ok",
	StatusPartial: "partial_failure",
	StatusFailed:  "failed",
	StatusSkipped: "skipped",
}

// String returns the string representation of the ParseStatus.
func (s ParseStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes the status as a JSON string for readability
// and forward compatibility.
func (s ParseStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// SymbolKind represents the type of code symbol extracted from source.
//
// Each kind maps to a common programming construct that exists across
// multiple languages. Language-specific constructs are mapped to the
// closest general kind (e.g., a Rust trait maps to Interface, a Go
// struct maps to Class).
type SymbolKind int

const (
	// SymbolKindUnknown indicates an unrecognized symbol.
	SymbolKindUnknown SymbolKind = iota

	// SymbolKindModule represents a package, module, or namespace.
	SymbolKindModule

	// SymbolKindClass represents a class, struct, or other composite type.
	SymbolKindClass

	// SymbolKindInterface represents an interface, trait, or protocol.
	SymbolKindInterface

	// SymbolKindFunction represents a standalone function.
	SymbolKindFunction

	// SymbolKindMethod represents a function attached to a type/class.
	SymbolKindMethod
)

// symbolKindNames maps SymbolKind values to their string representations.
var symbolKindNames = map[SymbolKind]string{
	SymbolKindUnknown:   "unknown",
	SymbolKindModule:    "module",
	SymbolKindClass:     "class",
	SymbolKindInterface: "interface",
	SymbolKindFunction:  "function",
	SymbolKindMethod:    "method",
}

// String returns the string representation of the SymbolKind.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes the kind as a JSON string (e.g., "function").
func (k SymbolKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Modifiers are language-normalized symbol modifiers.
//
// Each parser maps its language's visibility and dispatch rules onto
// these three booleans (e.g., a lowercase Go identifier or an
// underscore-prefixed Python name both set Private).
type Modifiers struct {
	// Static indicates the symbol does not require an instance.
	Static bool `json:"static,omitempty"`

	// Private indicates the symbol is not visible outside its
	// declaring scope by the language's own rules.
	Private bool `json:"private,omitempty"`

	// Abstract indicates the symbol declares a contract without an
	// implementation (abstract class/method, interface method).
	Abstract bool `json:"abstract,omitempty"`
}

// Location represents a line range within a source file.
//
// Line numbers are 1-indexed, matching editor conventions.
type Location struct {
	// FilePath is the path to the source file, relative to project root.
	FilePath string `json:"file_path"`

	// StartLine is the 1-indexed line where the construct starts.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed line where the construct ends.
	EndLine int `json:"end_line"`
}

// String returns "file_path:start_line".
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.FilePath, l.StartLine)
}

// Symbol represents a code symbol extracted from structural parsing.
//
// Symbols are the nodes of every later analysis: the project symbol
// table, the pattern recognizer, and the signal flow analyzer all
// operate on this shape. A Symbol is immutable once its owning
// ParseResult has been handed to the aggregator.
type Symbol struct {
	// ID is a unique identifier for this symbol within a run.
	// Format: "file_path:start_line:name"
	ID string `json:"id"`

	// Name is the symbol's identifier as it appears in source code.
	Name string `json:"name"`

	// QualifiedName is the project-unique dotted name:
	// module.owner.name, with empty segments omitted.
	QualifiedName string `json:"qualified_name"`

	// Kind indicates what type of symbol this is.
	Kind SymbolKind `json:"kind"`

	// FilePath is the declaring file, relative to project root.
	FilePath string `json:"file_path"`

	// StartLine is the 1-indexed line where the definition starts.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed line where the definition ends.
	EndLine int `json:"end_line"`

	// Owner is the qualified name of the owning symbol (the class a
	// method belongs to, the module a class belongs to). Empty for
	// top-level symbols.
	Owner string `json:"owner,omitempty"`

	// Signature is the declaration text, single line, without body.
	Signature string `json:"signature,omitempty"`

	// References lists names this symbol calls or instantiates.
	// Best effort; unresolved names are kept (dangling references).
	References []string `json:"references,omitempty"`

	// Supertypes lists names this symbol extends or implements.
	Supertypes []string `json:"supertypes,omitempty"`

	// Modifiers are the language-normalized modifier booleans.
	Modifiers Modifiers `json:"modifiers"`

	// Language is the source language tag ("go", "python", ...).
	Language string `json:"language"`
}

// Location returns the symbol's position as a Location.
func (s *Symbol) Location() Location {
	return Location{FilePath: s.FilePath, StartLine: s.StartLine, EndLine: s.EndLine}
}

// Validate checks the Symbol's field invariants.
//
// Returns nil if valid, or a ValidationError describing the first
// invalid field. FilePath must be project-relative: absolute paths and
// traversal sequences are rejected here so they can never leak into a
// report.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}
	if s.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}
	if strings.Contains(s.FilePath, "..") {
		return ValidationError{Field: "FilePath", Message: "must not contain path traversal (..)"}
	}
	if strings.HasPrefix(s.FilePath, "/") {
		return ValidationError{Field: "FilePath", Message: "must be project-relative, not absolute"}
	}
	if s.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}
	if s.EndLine < s.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}
	if s.Language == "" {
		return ValidationError{Field: "Language", Message: "must not be empty"}
	}
	return nil
}

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ImportKind categorizes how a dependency is pulled in.
type ImportKind string

const (
	// ImportKindImport is a language-level import statement.
	ImportKindImport ImportKind = "import"

	// ImportKindRequire is a require/require_relative/preload call.
	ImportKindRequire ImportKind = "require"

	// ImportKindInclude is a preprocessor or source include.
	ImportKindInclude ImportKind = "include"
)

// Import represents a dependency statement in source code.
type Import struct {
	// Path is the import path or module name as written in source.
	Path string `json:"path"`

	// Alias is the local alias if the import is aliased.
	Alias string `json:"alias,omitempty"`

	// Kind categorizes the statement (import/require/include).
	Kind ImportKind `json:"kind"`

	// IsRelative indicates a relative import ("./util", "from . import").
	IsRelative bool `json:"is_relative,omitempty"`

	// Location is where the statement appears.
	Location Location `json:"location"`
}

// SignalEventKind distinguishes the three signal constructs the
// flow analyzer consumes.
type SignalEventKind string

const (
	// SignalDeclare is a signal declaration.
	SignalDeclare SignalEventKind = "declare"

	// SignalConnect links a signal to a handler.
	SignalConnect SignalEventKind = "connect"

	// SignalEmit triggers a signal.
	SignalEmit SignalEventKind = "emit"
)

// SignalEvent is one signal construct found in a file.
//
// The signal flow analyzer aggregates these across the project into
// the event flow graph.
type SignalEvent struct {
	// Kind is declare, connect, or emit.
	Kind SignalEventKind `json:"kind"`

	// Name is the signal name.
	Name string `json:"name"`

	// Owner is the qualified name of the enclosing symbol, or the
	// file path when the construct is at top level.
	Owner string `json:"owner"`

	// Handler is the handler method name for connections.
	Handler string `json:"handler,omitempty"`

	// Params lists declared parameter names (declarations only).
	Params []string `json:"params,omitempty"`

	// Location is the construct's position.
	Location Location `json:"location"`
}

// ParseResult contains the output of parsing a single source file.
//
// A ParseResult is produced by exactly one worker and handed to the
// aggregator; it is never mutated afterwards.
type ParseResult struct {
	// FilePath is the parsed file, relative to project root.
	FilePath string `json:"file_path"`

	// Language is the language tag of the file.
	Language string `json:"language"`

	// Status records how completely the file parsed.
	Status ParseStatus `json:"status"`

	// Module is the package/module name declared in the file.
	// May be empty for languages without module declarations.
	Module string `json:"module,omitempty"`

	// pathModule records that Module was derived from the file path
	// rather than declared in source. Rebind recomputes such modules
	// for the new path.
	pathModule bool

	// Symbols contains all symbols extracted, in source order.
	Symbols []*Symbol `json:"symbols"`

	// Imports lists all dependency statements.
	Imports []Import `json:"imports"`

	// Signals lists signal declarations, connections, and emissions.
	Signals []SignalEvent `json:"signals,omitempty"`

	// Errors contains non-fatal parse errors. A non-empty list with
	// symbols present means StatusPartial.
	Errors []string `json:"errors,omitempty"`

	// Hash is the SHA-256 of the file content at parse time. Keys the
	// run-scoped parse cache.
	Hash string `json:"hash"`

	// RawSize is the file size in bytes.
	RawSize int64 `json:"raw_size"`

	// ParsedAtMilli is the UnixMilli timestamp when parsing completed.
	ParsedAtMilli int64 `json:"parsed_at_milli"`
}

// SetParsedAt sets ParsedAtMilli to the current time.
func (r *ParseResult) SetParsedAt() {
	r.ParsedAtMilli = time.Now().UnixMilli()
}

// Finalize derives the parse status from the extraction outcome and
// stamps the timestamp. Called by every parser as its last step.
func (r *ParseResult) Finalize() {
	switch {
	case len(r.Errors) == 0:
		r.Status = StatusOk
	case len(r.Symbols) > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusFailed
	}
	r.SetParsedAt()
}

// Validate checks the ParseResult's field invariants, including all
// contained symbols.
func (r *ParseResult) Validate() error {
	if r.FilePath == "" {
		return ValidationError{Field: "FilePath", Message: "must not be empty"}
	}
	if strings.Contains(r.FilePath, "..") {
		return ValidationError{Field: "FilePath", Message: "must not contain path traversal (..)"}
	}
	if r.Language == "" {
		return ValidationError{Field: "Language", Message: "must not be empty"}
	}
	for i, sym := range r.Symbols {
		if sym == nil {
			continue
		}
		if err := sym.Validate(); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("Symbols[%d]", i),
				Message: err.Error(),
			}
		}
	}
	for i, imp := range r.Imports {
		if imp.Path == "" {
			return ValidationError{
				Field:   fmt.Sprintf("Imports[%d].Path", i),
				Message: "must not be empty",
			}
		}
	}
	return nil
}

// Rebind returns a deep copy of the result bound to a different file
// path, regenerating symbol IDs and locations. Path-derived modules
// are recomputed for the new path, and qualified names and owners
// carrying the old module prefix are rewritten to match. Used on
// cache hits when identical content appears at multiple paths.
func (r *ParseResult) Rebind(filePath string) *ParseResult {
	clone := *r
	clone.FilePath = filePath

	oldModule := r.Module
	if r.pathModule {
		clone.Module = moduleFromPath(filePath)
	}
	requalify := func(qname string) string {
		if !r.pathModule || oldModule == "" || clone.Module == oldModule {
			return qname
		}
		if qname == oldModule {
			return clone.Module
		}
		if strings.HasPrefix(qname, oldModule+".") {
			return clone.Module + qname[len(oldModule):]
		}
		return qname
	}

	clone.Symbols = make([]*Symbol, len(r.Symbols))
	for i, sym := range r.Symbols {
		if sym == nil {
			continue
		}
		s := *sym
		s.FilePath = filePath
		s.ID = GenerateID(filePath, s.StartLine, s.Name)
		s.QualifiedName = requalify(s.QualifiedName)
		s.Owner = requalify(s.Owner)
		s.References = append([]string(nil), sym.References...)
		s.Supertypes = append([]string(nil), sym.Supertypes...)
		clone.Symbols[i] = &s
	}

	clone.Imports = make([]Import, len(r.Imports))
	for i, imp := range r.Imports {
		imp.Location.FilePath = filePath
		clone.Imports[i] = imp
	}

	clone.Signals = make([]SignalEvent, len(r.Signals))
	for i, ev := range r.Signals {
		ev.Location.FilePath = filePath
		ev.Owner = requalify(ev.Owner)
		ev.Params = append([]string(nil), ev.Params...)
		clone.Signals[i] = ev
	}

	clone.Errors = append([]string(nil), r.Errors...)
	return &clone
}

// moduleFromPath derives a dotted module name from a project-relative
// file path: "app/models/user.py" -> "app.models.user".
func moduleFromPath(filePath string) string {
	path := filePath
	if idx := strings.LastIndexByte(path, '.'); idx > 0 {
		path = path[:idx]
	}
	path = strings.TrimSuffix(path, "/__init__")
	return strings.ReplaceAll(path, "/", ".")
}

// GenerateID creates a unique identifier for a symbol.
//
// Format: "file_path:start_line:name". Unique within a project run and
// human-readable for debugging. Callers must pass project-relative
// paths; ID generation performs no validation of its own.
func GenerateID(filePath string, startLine int, name string) string {
	return fmt.Sprintf("%s:%d:%s", filePath, startLine, name)
}

// QualifyName builds the dotted qualified name from module, owner, and
// symbol name, omitting empty segments. Owner is assumed to already be
// qualified.
func QualifyName(module, owner, name string) string {
	if owner != "" {
		return owner + "." + name
	}
	if module != "" {
		return module + "." + name
	}
	return name
}

// languageName is a small convenience bridging classify.Language into
// the string tags stored on symbols.
func languageName(l classify.Language) string {
	return l.String()
}
