package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	embeddomain "github.com/smallbiznis/partnerpay/internal/embedtoken/domain"
)

func (s *Server) CreateEmbedToken(c *gin.Context) {
	ws, err := workspaceFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req embeddomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	token, err := s.embedSvc.Create(c.Request.Context(), ws, req)
	if err != nil {
		var limited *embeddomain.RateLimitError
		if errors.As(err, &limited) {
			seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, token)
}

func (s *Server) GetEmbedSession(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	session, err := s.embedSvc.Resolve(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
