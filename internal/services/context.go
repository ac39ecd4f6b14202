package services

import "context"

type contextKey string

const (
	packIDKey        contextKey = "pack_id"
	stickerIDKey     contextKey = "sticker_id"
	stageKey         contextKey = "stage"
	correlationIDKey contextKey = "correlation_id"
)

// WithPackID annotates context with the sticker pack identifier.
func WithPackID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, packIDKey, id)
}

// PackIDFromContext extracts the pack identifier if present.
func PackIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(packIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStickerID annotates context with the sticker identifier being processed.
func WithStickerID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, stickerIDKey, id)
}

// StickerIDFromContext extracts the sticker identifier if present.
func StickerIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stickerIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCorrelationID annotates context with a correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
