// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan discovers the source files an analysis run will parse.
//
// The walker honors .gitignore, skips VCS and dependency directories,
// applies include/exclude glob patterns and the language allow-list,
// and classifies each candidate from its extension plus a small head
// probe. Discovery is deliberately forgiving: unreadable files are
// logged and skipped, and only an invalid root or an empty result set
// fails the run.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// Sentinel errors for discovery.
var (
	// ErrInvalidRoot indicates the root path does not exist or is not
	// a directory.
	ErrInvalidRoot = errors.New("scan: invalid root directory")

	// ErrNoFiles indicates discovery found no parseable source files.
	ErrNoFiles = errors.New("scan: no source files discovered")
)

// File is one discovered source file.
type File struct {
	// Path is the project-relative path, forward slashes.
	Path string

	// AbsPath is the absolute path on disk, for reading.
	AbsPath string

	// Size is the file size in bytes.
	Size int64

	// Classification is the language decision for the file.
	Classification classify.Classification
}

// Options controls discovery.
type Options struct {
	// Include restricts discovery to paths matching any pattern.
	// Empty means everything.
	Include []string

	// Exclude drops paths matching any pattern.
	Exclude []string

	// Languages restricts discovery to the listed languages. Empty
	// means all supported languages.
	Languages []classify.Language

	// IncludeUnknown keeps files with no recognized language in the
	// result set so callers can record them as skipped. Such files
	// carry a StrategyNone classification and are never parsed.
	IncludeUnknown bool
}

// skipDirs are directories never worth descending into.
var skipDirs = map[string]struct{}{
	"node_modules":  {},
	"__pycache__":   {},
	"vendor":        {},
	"venv":          {},
	".venv":         {},
	"build":         {},
	"dist":          {},
	"target":        {},
	"bin":           {},
	"obj":           {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
	".ruff_cache":   {},
	"egg-info":      {},
}

// Discover walks root and returns the classified source files, sorted
// by project-relative path.
//
// # Description
//
//	Walks the tree once. Directory-level filters (skip list, dot dirs,
//	gitignore) prune whole subtrees; file-level filters apply the
//	include/exclude patterns and the language allow-list, then read a
//	head probe for ambiguous classification.
//
// Inputs:
//   - ctx: cancellation; checked between directory entries
//   - root: project root directory
//   - opts: discovery options
//
// Outputs:
//   - []File: discovered files, sorted by Path
//   - error: ErrInvalidRoot, ErrNoFiles, or a context error
func Discover(ctx context.Context, root string, opts Options) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}

	gi := loadGitignore(root)
	langSet := make(map[classify.Language]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = struct{}{}
	}

	var files []File

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Debug("skipping unreadable entry", slog.String("path", path), slog.Any("error", err))
			return nil
		}

		name := d.Name()
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if !matchesPatterns(rel, opts.Include, true) {
			return nil
		}
		if matchesPatterns(rel, opts.Exclude, false) {
			return nil
		}

		c := classifyFile(path, rel)
		if c.Language == classify.LangUnknown {
			if !opts.IncludeUnknown {
				return nil
			}
		} else if len(langSet) > 0 {
			if _, ok := langSet[c.Language]; !ok {
				return nil
			}
		}

		fi, statErr := d.Info()
		if statErr != nil {
			slog.Debug("skipping unstatable file", slog.String("path", rel), slog.Any("error", statErr))
			return nil
		}

		files = append(files, File{
			Path:           rel,
			AbsPath:        path,
			Size:           fi.Size(),
			Classification: c,
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: root %s", ErrNoFiles, root)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// classifyFile classifies one file, reading a head probe only when the
// extension alone cannot decide (".h" and extensionless files).
func classifyFile(absPath, rel string) classify.Classification {
	ext := strings.ToLower(filepath.Ext(rel))
	if ext != "" && ext != ".h" {
		return classify.Classify(rel, nil)
	}

	head := make([]byte, classify.MaxSniffBytes)
	f, err := os.Open(absPath)
	if err != nil {
		slog.Debug("head probe failed", slog.String("path", rel), slog.Any("error", err))
		return classify.Classify(rel, nil)
	}
	defer f.Close()

	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return classify.Classify(rel, nil)
	}
	return classify.Classify(rel, head[:n])
}

// matchesPatterns reports whether rel matches any pattern. Patterns
// match against the full relative path, the base name, and as a
// directory prefix ("src/" or "src").
func matchesPatterns(rel string, patterns []string, emptyMeans bool) bool {
	if len(patterns) == 0 {
		return emptyMeans
	}
	base := filepath.Base(rel)
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		prefix := strings.TrimSuffix(p, "/")
		if prefix != "" && (rel == prefix || strings.HasPrefix(rel, prefix+"/")) {
			return true
		}
	}
	return false
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
