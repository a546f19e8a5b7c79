package domain

import "context"

type ctxKey string

const (
	userCtxKey   ctxKey = "user_id"
	threadCtxKey ctxKey = "thread_id"
)

// ContextWithUser returns a new context carrying the user ID.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey, userID)
}

// UserFromContext extracts the user ID from the context.
// Returns empty string if not set.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithThread returns a new context carrying the thread ID (ULID).
func ContextWithThread(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadCtxKey, threadID)
}

// ThreadFromContext extracts the thread ID from the context.
// Returns empty string if not set.
func ThreadFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadCtxKey).(string); ok {
		return v
	}
	return ""
}
