package ast

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// Sentinel errors returned by parsers.
//
// A parser error is always local to one file: the engine records it on
// the file's status and the run continues (spec resilience contract).
var (
	// ErrFileTooLarge indicates the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrNoParser indicates no parser exists for the classification.
	ErrNoParser = errors.New("no parser for language")
)

// Size limits shared by all parsers.
const (
	// DefaultMaxFileSize is the maximum file size parsers accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the size above which parsers log a warning (1MB).
	WarnFileSize = 1024 * 1024
)

// Parser converts file content into a ParseResult.
//
// Implementations are safe for concurrent use: each Parse call creates
// its own parser internals. A Parse error is a complete failure for
// that file only; partial extraction outcomes are reported through
// ParseResult.Status, not through the error return.
type Parser interface {
	// Parse extracts the structural model from content.
	//
	// ctx is checked before and after the expensive parse step.
	// filePath must be project-relative with forward slashes.
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)

	// Language returns the language this parser handles.
	Language() classify.Language
}

// New returns the parser selected by a classification.
//
// This is the tagged-variant dispatch point: each language resolves to
// its own strategy (a dedicated exact parser, the grammar-table exact
// parser, or the heuristic line scanner) at classification time, so no
// per-file dynamic dispatch happens during the parse phase.
//
// Returns ErrNoParser for StrategyNone (unknown language).
func New(c classify.Classification) (Parser, error) {
	switch c.Strategy {
	case classify.StrategyExact:
		switch c.Language {
		case classify.LangGo:
			return NewGoParser(), nil
		case classify.LangPython:
			return NewPythonParser(), nil
		default:
			p, err := NewGrammarParser(c.Language)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	case classify.StrategyHeuristic:
		return NewHeuristicParser(c.Language)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoParser, c.Language)
	}
}
