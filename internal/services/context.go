package services

import "context"

type contextKey int

const (
	itemKeyKey contextKey = iota
	stageKey
	requestIDKey
)

// WithItemKey stamps ctx with the canonical video key being processed. Blank
// keys leave ctx unchanged.
func WithItemKey(ctx context.Context, key string) context.Context {
	return withValue(ctx, itemKeyKey, key)
}

// ItemKeyFromContext returns the video key stamped by WithItemKey.
func ItemKeyFromContext(ctx context.Context) (string, bool) {
	return value(ctx, itemKeyKey)
}

// WithStage stamps ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage stamped by WithStage.
func StageFromContext(ctx context.Context) (string, bool) {
	return value(ctx, stageKey)
}

// WithRequestID stamps ctx with the batch run id used to correlate log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the run id stamped by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return value(ctx, requestIDKey)
}

func withValue(ctx context.Context, key contextKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}
