// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intel orchestrates a full analysis run: file discovery,
// parallel structural parsing, project aggregation, and the graph,
// pattern, architectural, and signal analyzers, serialized into one
// versioned report.
package intel

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/CodeAtlas/services/intel/cache"
	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// Depth controls how much analysis a run performs.
type Depth string

const (
	// DepthSurface uses heuristic parsing only and skips the
	// architectural and signal analyzers.
	DepthSurface Depth = "surface"

	// DepthDeep uses best-available parsing and runs the architectural
	// detector; the signal analyzer runs only when signal constructs
	// were found.
	DepthDeep Depth = "deep"

	// DepthFull runs everything.
	DepthFull Depth = "full"
)

// ErrInvalidOptions wraps option validation failures.
var ErrInvalidOptions = errors.New("intel: invalid options")

// ParseDepth converts a CLI string to a Depth.
func ParseDepth(s string) (Depth, error) {
	switch Depth(s) {
	case DepthSurface, DepthDeep, DepthFull:
		return Depth(s), nil
	case "":
		return DepthDeep, nil
	default:
		return "", fmt.Errorf("%w: depth %q (want surface, deep, or full)", ErrInvalidOptions, s)
	}
}

// DefaultFileTimeout bounds a single file's parse time.
const DefaultFileTimeout = 10 * time.Second

// Options configures one analysis run.
type Options struct {
	// Root is the directory to analyze.
	Root string `validate:"required"`

	// Include restricts discovery to matching paths. Empty means all.
	Include []string

	// Exclude drops matching paths.
	Exclude []string

	// Languages restricts analysis to the listed language tags
	// ("go", "python", ...). Empty means all supported languages.
	Languages []string

	// Depth selects the analysis depth. Defaults to DepthDeep.
	Depth Depth `validate:"omitempty,oneof=surface deep full"`

	// Workers sizes the parse pool. Defaults to GOMAXPROCS.
	Workers int `validate:"omitempty,gte=1,lte=256"`

	// FileTimeout bounds one file's parse time. Defaults to
	// DefaultFileTimeout. A file exceeding the budget is marked failed
	// with a timeout reason and the run continues.
	FileTimeout time.Duration `validate:"omitempty,gt=0"`

	// CacheSize caps the run-scoped parse cache. Defaults to
	// cache.DefaultCapacity.
	CacheSize int `validate:"omitempty,gte=1"`

	// Config carries the analyzer tuning knobs.
	Config Config
}

var validate = validator.New()

// Validate checks the options and applies defaults in place.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	for _, l := range o.Languages {
		if classify.ParseLanguage(l) == classify.LangUnknown {
			return fmt.Errorf("%w: unsupported language %q", ErrInvalidOptions, l)
		}
	}
	if o.Depth == "" {
		o.Depth = DepthDeep
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.FileTimeout <= 0 {
		o.FileTimeout = DefaultFileTimeout
	}
	if o.CacheSize <= 0 {
		o.CacheSize = cache.DefaultCapacity
	}
	return nil
}

// languageTags converts the configured language strings to tags.
func (o *Options) languageTags() []classify.Language {
	tags := make([]classify.Language, 0, len(o.Languages))
	for _, l := range o.Languages {
		tags = append(tags, classify.ParseLanguage(l))
	}
	return tags
}
