package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.Enforcer
}

func NewService(db *gorm.DB, log *zap.Logger, enforcer *casbin.Enforcer) Service {
	return &ServiceImpl{
		db:       db,
		log:      log.Named("authorization.service"),
		enforcer: enforcer,
	}
}

// Authorize resolves the actor's role within the organization and checks
// it against the enforcer. Membership is scoped per organization, so an
// admin of one tenant holds nothing in another.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	if strings.TrimSpace(orgID) == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if actor == "system" {
		return nil
	}
	userID, ok := strings.CutPrefix(actor, "user:")
	if !ok {
		return ErrInvalidActor
	}

	role, err := s.memberRole(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return ErrForbidden
	}

	allowed, err := s.enforcer.Enforce(role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("actor", actor),
			zap.String("org_id", orgID),
			zap.String("action", action))
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) memberRole(ctx context.Context, orgID, userID string) (string, error) {
	var role string
	err := s.db.WithContext(ctx).
		Table("organization_members").
		Select("role").
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Limit(1).
		Scan(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(role)), nil
}
