package context

import "context"

type ctxKey string

const (
	requestIDKey   ctxKey = "request_id"
	workspaceIDKey ctxKey = "workspace_id"
	eventIDKey     ctxKey = "event_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, id)
}

func WorkspaceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, workspaceIDKey)
}

// WithEventID tags the context with the provider event being handled.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey, id)
}

func EventIDFromContext(ctx context.Context) string {
	return stringValue(ctx, eventIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
