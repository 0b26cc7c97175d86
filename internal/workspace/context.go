package workspace

import (
	"context"

	"github.com/smallbiznis/partnerpay/internal/workspace/domain"
)

type workspaceKey struct{}

// WithWorkspace stores the resolved workspace on the request context.
func WithWorkspace(ctx context.Context, ws *domain.Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey{}, ws)
}

func FromContext(ctx context.Context) (*domain.Workspace, bool) {
	if ctx == nil {
		return nil, false
	}
	ws, ok := ctx.Value(workspaceKey{}).(*domain.Workspace)
	return ws, ok && ws != nil
}
