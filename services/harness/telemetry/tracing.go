// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
)

// WithTrace returns a child logger carrying the active span's trace_id and
// span_id, so log lines correlate with traces in the backend. When the
// context has no valid span, the logger is returned unchanged.
//
//	logger := telemetry.WithTrace(ctx, deps.Logger)
//	logger.Info("crash reported", "crash_id", report.ID)
func WithTrace(ctx context.Context, logger *logging.Logger) *logging.Logger {
	if logger == nil {
		logger = logging.Default()
	}
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
