// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry provides helpers that correlate structured logs
// with OpenTelemetry trace context.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CodeAtlas/pkg/logging"
)

// LoggerWithTrace returns a logger with trace context injected.
//
// # Description
//
//	Extracts trace_id and span_id from the context and adds them as
//	structured log fields, so log lines can be correlated with the
//	trace of the analysis run that produced them.
//
// Inputs:
//   - ctx: Context containing span context. May be nil or carry no
//     active span.
//   - logger: Base logger to enhance. Must not be nil.
//
// Outputs:
//   - *logging.Logger: Logger with trace_id and span_id fields added.
//     Returns the original logger when no valid span context exists.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *logging.Logger) *logging.Logger {
	if ctx == nil {
		return logger
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}

	return logger.With(
		"trace_id", spanCtx.TraceID().String(),
		"span_id", spanCtx.SpanID().String(),
	)
}

// LoggerWithPhase returns a logger with trace context and the analysis
// phase name, for distinguishing log entries from different pipeline
// phases within one run.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithPhase(ctx context.Context, logger *logging.Logger, phase string) *logging.Logger {
	return LoggerWithTrace(ctx, logger).With("phase", phase)
}
