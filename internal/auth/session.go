// Package auth resolves browser sessions for the web tier. The billing
// engine treats authentication as an external collaborator that yields an
// authorized user or an error.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	authdomain "github.com/smallbiznis/bizboard/internal/auth/domain"
	"github.com/smallbiznis/bizboard/internal/cache"
	"github.com/smallbiznis/bizboard/internal/clock"
	"github.com/smallbiznis/bizboard/internal/config"
)

const sessionCacheTTL = 30 * time.Second

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
}

// Sessions persists and resolves session tokens, holding validated
// lookups in a short-lived cache.
type Sessions struct {
	db    *gorm.DB
	log   *zap.Logger
	ttl   time.Duration
	clock clock.Clock
	cache *cache.TTLCache[string, snowflake.ID]
}

func NewSessions(p Params) *Sessions {
	return &Sessions{
		db:    p.DB,
		log:   p.Log.Named("auth.sessions"),
		ttl:   p.Cfg.SessionTTL,
		clock: p.Clock,
		cache: cache.NewTTLCache[string, snowflake.ID](),
	}
}

// Create issues a session token for the user.
func (s *Sessions) Create(ctx context.Context, userID snowflake.ID) (*authdomain.Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	session := &authdomain.Session{
		Token:     hex.EncodeToString(raw),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// Resolve maps a session token to a user id.
func (s *Sessions) Resolve(ctx context.Context, token string) (snowflake.ID, error) {
	if token == "" {
		return 0, authdomain.ErrSessionNotFound
	}
	if userID, ok := s.cache.Get(token); ok {
		return userID, nil
	}

	var session authdomain.Session
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, authdomain.ErrSessionNotFound
		}
		return 0, err
	}
	if s.clock.Now().After(session.ExpiresAt) {
		return 0, authdomain.ErrSessionExpired
	}

	s.cache.Set(token, session.UserID, sessionCacheTTL)
	return session.UserID, nil
}

// Revoke deletes a session and drops it from the cache.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	s.cache.Delete(token)
	return s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&authdomain.Session{}).Error
}

var Module = fx.Module("auth",
	fx.Provide(NewSessions),
)
