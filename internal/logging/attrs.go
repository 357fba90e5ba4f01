package logging

import (
	"log/slog"
	"time"
)

// Keys shared by every coursekit log line.
const (
	FieldComponent     = "component"
	FieldProjectID     = "project_id"
	FieldMediaID       = "media_id"
	FieldOperation     = "operation"
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a line for filtering, e.g. "media_stored".
	FieldEventType = "event_type"
	// FieldErrorHint is the next step a user can take after a warning.
	FieldErrorHint = "error_hint"
	// FieldImpact says what the user loses when a warning fires.
	FieldImpact = "impact"
)

type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func Uint64(key string, value uint64) Attr { return slog.Uint64(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// ProjectID tags a line with a project identifier.
func ProjectID(id string) Attr { return slog.String(FieldProjectID, id) }

// MediaID tags a line with a media descriptor identifier.
func MediaID(id string) Attr { return slog.String(FieldMediaID, id) }

// Error records err under "error". A nil error is written as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attrs to the variadic form slog's logging methods take.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return args
}
