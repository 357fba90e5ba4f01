package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{ name string }

var (
	projectKey     = contextKey{FieldProjectID}
	operationKey   = contextKey{FieldOperation}
	correlationKey = contextKey{FieldCorrelationID}
)

// contextKeys lists the values WithContext copies onto a logger, in order.
var contextKeys = []contextKey{projectKey, operationKey, correlationKey}

// WithProjectID records the project an operation works on.
func WithProjectID(ctx context.Context, id string) context.Context {
	return withValue(ctx, projectKey, id)
}

// WithOperation records the running operation, e.g. "export" or "import".
func WithOperation(ctx context.Context, op string) context.Context {
	return withValue(ctx, operationKey, op)
}

// WithCorrelationID records an id shared by every line of one CLI invocation.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withValue(ctx, correlationKey, id)
}

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

// WithContext returns logger tagged with the project, operation and
// correlation id stored on ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			args = append(args, slog.String(key.name, v))
		}
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
