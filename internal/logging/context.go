package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	runIDKey contextKey = iota
	mountKey
	stageKey
)

// WithRunID tags ctx with the batch run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithMount tags ctx with the upload mount currently processed.
func WithMount(ctx context.Context, mount string) context.Context {
	return context.WithValue(ctx, mountKey, mount)
}

// WithStage tags ctx with the pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldRunID, v))
	}
	if v, ok := ctx.Value(mountKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldMount, v))
	}
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldStage, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
