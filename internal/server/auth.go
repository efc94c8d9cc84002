package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	authdomain "github.com/smallbiznis/bizboard/internal/auth/domain"
	"github.com/smallbiznis/bizboard/internal/auth/password"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		AbortWithError(c, newValidationError("email", "required", "email and password are required"))
		return
	}

	var user authdomain.User
	err := s.db.WithContext(c.Request.Context()).
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			AbortWithError(c, authdomain.ErrInvalidCredentials)
			return
		}
		AbortWithError(c, err)
		return
	}
	if user.PasswordHash == nil {
		AbortWithError(c, authdomain.ErrInvalidCredentials)
		return
	}
	ok, err := password.Verify(req.Password, *user.PasswordHash)
	if err != nil || !ok {
		AbortWithError(c, authdomain.ErrInvalidCredentials)
		return
	}

	session, err := s.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.SessionCookieName, session.Token, int(s.cfg.SessionTTL.Seconds()), "/", "", s.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{
		"user_id":      user.ID.String(),
		"display_name": user.DisplayName,
	})
}

func (s *Server) Logout(c *gin.Context) {
	token, err := c.Cookie(s.cfg.SessionCookieName)
	if err == nil && token != "" {
		if err := s.sessions.Revoke(c.Request.Context(), token); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	c.SetCookie(s.cfg.SessionCookieName, "", -1, "/", "", s.cfg.IsProduction(), true)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var user authdomain.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error; err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, user)
}
