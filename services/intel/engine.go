// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CodeAtlas/pkg/logging"
	"github.com/AleutianAI/CodeAtlas/services/intel/arch"
	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/cache"
	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
	"github.com/AleutianAI/CodeAtlas/services/intel/graph"
	"github.com/AleutianAI/CodeAtlas/services/intel/patterns"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
	"github.com/AleutianAI/CodeAtlas/services/intel/report"
	"github.com/AleutianAI/CodeAtlas/services/intel/scan"
	"github.com/AleutianAI/CodeAtlas/services/intel/signals"
	"github.com/AleutianAI/CodeAtlas/services/intel/telemetry"
)

var engineTracer = otel.Tracer("codeatlas.engine")

// Engine runs one analysis over a source tree.
//
// An Engine is cheap to construct and single-use: the parse cache it
// owns is scoped to one run. All mutable state during the parse phase
// is confined to the worker producing it; results cross to the
// aggregator over a channel and the aggregator is the sole writer of
// the project model.
type Engine struct {
	opts  Options
	log   *logging.Logger
	cache *cache.ParseCache
}

// New creates an Engine for the given options.
//
// # Description
//
//	Validates the options (applying defaults in place) and allocates
//	the run-scoped parse cache.
//
// # Inputs
//
//   - opts: run configuration. Root is required.
//   - log: destination for run progress. nil falls back to the default
//     stderr logger.
//
// # Outputs
//
//   - *Engine: ready to Run.
//   - error: ErrInvalidOptions when validation fails.
//
// # Thread Safety
//
//   - An Engine must not be shared across concurrent Run calls.
func New(opts Options, log *logging.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Default()
	}
	c, err := cache.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return &Engine{opts: opts, log: log, cache: c}, nil
}

// Run executes the full analysis pipeline.
//
// # Description
//
//	Phases: discover -> parse (worker pool) -> aggregate -> dependency
//	graph -> pattern recognition -> architectural detection (depth >=
//	deep) -> signal flow (depth full, or deep when signal constructs
//	were found) -> report. Per-file parse errors and timeouts degrade
//	the file's status and never abort the run. Cancellation is checked
//	between files and between phases; when the context is canceled
//	mid-run, the report built from all completed phases is returned
//	alongside the context error.
//
// # Inputs
//
//   - ctx: cancellation for the whole run.
//
// # Outputs
//
//   - *report.Report: the serialized analysis. Non-nil even on
//     cancellation once the aggregation phase has completed.
//   - error: fatal errors only (invalid root, no parseable files,
//     cancellation).
//
// # Thread Safety
//
//   - Not safe for concurrent use.
func (e *Engine) Run(ctx context.Context) (*report.Report, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Run",
		trace.WithAttributes(
			attribute.String("intel.root", e.opts.Root),
			attribute.String("intel.depth", string(e.opts.Depth)),
		))
	defer span.End()
	started := time.Now()
	log := telemetry.LoggerWithTrace(ctx, e.log)

	files, err := scan.Discover(ctx, e.opts.Root, scan.Options{
		Include:        e.opts.Include,
		Exclude:        e.opts.Exclude,
		Languages:      e.opts.languageTags(),
		IncludeUnknown: true,
	})
	if err != nil {
		return nil, err
	}

	var parseable, skipped []scan.File
	for _, f := range files {
		if f.Classification.Strategy == classify.StrategyNone {
			skipped = append(skipped, f)
		} else {
			parseable = append(parseable, f)
		}
	}
	if len(parseable) == 0 {
		return nil, fmt.Errorf("%w: root %s", scan.ErrNoFiles, e.opts.Root)
	}
	log.Info("discovery complete",
		"files", len(parseable), "skipped", len(skipped), "depth", string(e.opts.Depth))

	p, err := e.parsePhase(ctx, parseable, skipped)
	if err != nil {
		return nil, err
	}

	var (
		g           *graph.Graph
		patternHits []patterns.Match
		archHits    []arch.Match
		flow        *signals.Flow
	)
	finish := func(runErr error) (*report.Report, error) {
		r := report.Build(e.opts.Root, p, g, patternHits, archHits, flow)
		span.SetAttributes(
			attribute.Int("intel.files", len(r.Files)),
			attribute.Int("intel.symbols", len(r.Symbols)),
			attribute.Int("intel.pattern_matches", len(r.PatternMatches)),
		)
		log.Info("analysis complete",
			"files", len(r.Files),
			"symbols", len(r.Symbols),
			"duration", time.Since(started).Round(time.Millisecond).String())
		return r, runErr
	}

	g = e.graphPhase(ctx, p)
	if ctx.Err() != nil {
		return finish(ctx.Err())
	}

	patternHits = e.patternPhase(ctx, p)
	if ctx.Err() != nil {
		return finish(ctx.Err())
	}

	if e.opts.Depth != DepthSurface {
		archHits = e.archPhase(ctx, p, g)
		if ctx.Err() != nil {
			return finish(ctx.Err())
		}
	}

	if e.opts.Depth == DepthFull || (e.opts.Depth == DepthDeep && len(p.Signals) > 0) {
		flow = e.signalPhase(ctx, p)
		if ctx.Err() != nil {
			return finish(ctx.Err())
		}
	}

	return finish(nil)
}

// parsePhase fans the files out to the worker pool and aggregates the
// results. Skipped files are recorded before the pool starts so the
// aggregator remains the single writer.
func (e *Engine) parsePhase(ctx context.Context, parseable, skipped []scan.File) (*project.Project, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.parse",
		trace.WithAttributes(attribute.Int("intel.file_count", len(parseable))))
	defer span.End()

	agg := project.NewAggregator(e.opts.Root)
	for _, f := range skipped {
		agg.Add(skippedResult(f))
	}

	results := make(chan *ast.ParseResult, e.opts.Workers)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg.Consume(results)
	}()

	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(e.opts.Workers)
	for _, f := range parseable {
		file := f
		pool.Go(func() error {
			if err := poolCtx.Err(); err != nil {
				return err
			}
			results <- e.parseFile(poolCtx, file)
			return nil
		})
	}
	poolErr := pool.Wait()
	close(results)
	<-aggDone

	if poolErr != nil {
		return nil, poolErr
	}
	stats := e.cache.Stats()
	span.SetAttributes(
		attribute.Int64("intel.cache_hits", stats.Hits),
		attribute.Int64("intel.cache_misses", stats.Misses),
	)
	telemetry.LoggerWithPhase(ctx, e.log, "parse").Debug("parse pool drained",
		"files", len(parseable), "cache_hits", stats.Hits, "cache_misses", stats.Misses)
	return agg.Finish(), nil
}

// parseFile parses one file under the per-file timeout. Every failure
// mode degrades to a ParseResult; the run never aborts on a single
// file.
func (e *Engine) parseFile(ctx context.Context, file scan.File) *ast.ParseResult {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return failedResult(file, fmt.Sprintf("read failed: %v", err))
	}

	hash := cache.HashContent(content)
	if cached, ok := e.cache.Get(hash); ok {
		return cached.Rebind(file.Path)
	}

	c := file.Classification
	if e.opts.Depth == DepthSurface {
		// Surface depth trades fidelity for speed: every language goes
		// through the line scanner.
		c.Strategy = classify.StrategyHeuristic
	}
	parser, err := ast.New(c)
	if err != nil {
		return failedResult(file, fmt.Sprintf("no parser: %v", err))
	}

	parseCtx, cancel := context.WithTimeout(ctx, e.opts.FileTimeout)
	defer cancel()

	started := time.Now()
	result, err := parser.Parse(parseCtx, content, file.Path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(parseCtx.Err(), context.DeadlineExceeded) {
			result = failedResult(file, fmt.Sprintf("parse timeout after %s", e.opts.FileTimeout))
		} else {
			result = failedResult(file, err.Error())
		}
	}
	result.Hash = hash
	result.RawSize = file.Size
	ast.RecordParse(ctx, c.Language.String(), time.Since(started), len(result.Symbols), result.Status)

	if result.Status != ast.StatusFailed {
		e.cache.Put(hash, result)
	}
	return result
}

func (e *Engine) graphPhase(ctx context.Context, p *project.Project) *graph.Graph {
	_, span := engineTracer.Start(ctx, "Engine.graph")
	defer span.End()
	g := graph.Build(p)
	span.SetAttributes(
		attribute.Int("intel.graph_nodes", len(g.Nodes)),
		attribute.Int("intel.graph_cycles", len(g.Cycles)),
	)
	return g
}

func (e *Engine) patternPhase(ctx context.Context, p *project.Project) []patterns.Match {
	_, span := engineTracer.Start(ctx, "Engine.patterns")
	defer span.End()
	hits := patterns.Detect(p, e.opts.Config.Patterns)
	span.SetAttributes(attribute.Int("intel.pattern_matches", len(hits)))
	return hits
}

func (e *Engine) archPhase(ctx context.Context, p *project.Project, g *graph.Graph) []arch.Match {
	_, span := engineTracer.Start(ctx, "Engine.arch")
	defer span.End()
	hits := arch.Detect(e.opts.Root, p, g, e.opts.Config.Arch)
	span.SetAttributes(attribute.Int("intel.arch_matches", len(hits)))
	return hits
}

func (e *Engine) signalPhase(ctx context.Context, p *project.Project) *signals.Flow {
	_, span := engineTracer.Start(ctx, "Engine.signals")
	defer span.End()
	flow := signals.Analyze(p, e.opts.Config.Signals)
	span.SetAttributes(attribute.Int("intel.signals", len(flow.Signals)))
	return flow
}

// skippedResult records an excluded file so the report keeps a trace
// of it.
func skippedResult(file scan.File) *ast.ParseResult {
	r := &ast.ParseResult{
		FilePath: file.Path,
		Language: file.Classification.Language.String(),
		Status:   ast.StatusSkipped,
		Errors:   []string{file.Classification.Reason},
		RawSize:  file.Size,
	}
	r.SetParsedAt()
	return r
}

func failedResult(file scan.File, reason string) *ast.ParseResult {
	r := &ast.ParseResult{
		FilePath: file.Path,
		Language: file.Classification.Language.String(),
		Status:   ast.StatusFailed,
		Errors:   []string{reason},
		RawSize:  file.Size,
	}
	r.SetParsedAt()
	return r
}
