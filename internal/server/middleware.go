package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/partnerpay/internal/observability/context"
	"github.com/smallbiznis/partnerpay/internal/workspace"
	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
)

// HeaderWorkspace carries the workspace resolved by the upstream gateway.
const HeaderWorkspace = "X-Workspace-Id"

func (s *Server) WorkspaceRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := strings.TrimSpace(c.GetHeader(HeaderWorkspace))
		if workspaceID == "" {
			AbortWithError(c, workspacedomain.ErrMissingWorkspace)
			return
		}

		ws, err := s.workspaces.Get(c.Request.Context(), workspaceID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithWorkspaceID(c.Request.Context(), ws.ID)
		c.Request = c.Request.WithContext(workspace.WithWorkspace(ctx, ws))
		c.Next()
	}
}

func workspaceFrom(c *gin.Context) (*workspacedomain.Workspace, error) {
	ws, ok := workspace.FromContext(c.Request.Context())
	if !ok {
		return nil, workspacedomain.ErrMissingWorkspace
	}
	return ws, nil
}
