package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// authorizeOrgAction checks the session user against the org-scoped
// policy before any work happens on the request.
func (s *Server) authorizeOrgAction(c *gin.Context, orgID snowflake.ID, object string, action string) error {
	if s.authzSvc == nil {
		return ErrForbidden
	}
	userID, ok := s.userIDFromSession(c)
	if !ok {
		return ErrUnauthorized
	}
	actor := fmt.Sprintf("user:%s", userID.String())
	return s.authzSvc.Authorize(c.Request.Context(), actor, orgID.String(), strings.TrimSpace(object), strings.TrimSpace(action))
}
