package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRunID     contextKey = "run_id"
	keyProcessor contextKey = "processor"
)

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithProcessorName records which processor hook is currently executing.
func WithProcessorName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyProcessor, name)
}

// ProcessorName extracts the executing processor name from context.
func ProcessorName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyProcessor).(string)
	return v, ok && v != ""
}
