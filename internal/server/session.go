package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	obscontext "github.com/smallbiznis/bizboard/internal/observability/context"
)

const sessionUserKey = "session_user_id"

// RequireSession resolves the session cookie and stores the user id on the
// request context. Unauthenticated requests are rejected here so handlers
// can assume a user.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(s.cfg.SessionCookieName)
		if err != nil || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(sessionUserKey, userID)
		ctx := obscontext.WithActor(c.Request.Context(), "user", userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) userIDFromSession(c *gin.Context) (snowflake.ID, bool) {
	raw, ok := c.Get(sessionUserKey)
	if !ok {
		return 0, false
	}
	userID, ok := raw.(snowflake.ID)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

// orgIDFromRequest resolves the acting organization. An explicit
// X-Org-Id header wins; otherwise the user's organization is used.
func (s *Server) orgIDFromRequest(c *gin.Context) (snowflake.ID, error) {
	if raw := strings.TrimSpace(c.GetHeader("X-Org-Id")); raw != "" {
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			return 0, newValidationError("org_id", "invalid_org_id", "org id is not valid")
		}
		return orgID, nil
	}

	userID, ok := s.userIDFromSession(c)
	if !ok {
		return 0, ErrUnauthorized
	}
	org, err := s.organizationSvc.ResolveByUser(c.Request.Context(), userID)
	if err != nil {
		return 0, billingdomain.ErrOrganizationNotFound
	}
	return org.ID, nil
}
