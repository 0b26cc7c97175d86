package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetFolder(c *gin.Context) {
	ws, err := workspaceFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	folder, err := s.folderSvc.Get(c.Request.Context(), ws, c.Param("folderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, folder)
}
