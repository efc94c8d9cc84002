package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/billing/policy"
	organizationdomain "github.com/smallbiznis/bizboard/internal/organization/domain"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	BillingRepo billingdomain.Repository
	Policy      *policy.Policy
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	billingRepo billingdomain.Repository
	policy      *policy.Policy
}

func NewService(p Params) organizationdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("organization.service"),
		genID:       p.GenID,
		billingRepo: p.BillingRepo,
		policy:      p.Policy,
	}
}

// Create inserts the organization, its owner membership, and the default
// free-plan billing record in one transaction.
func (s *Service) Create(ctx context.Context, userID snowflake.ID, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, error) {
	if userID == 0 {
		return nil, organizationdomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, organizationdomain.ErrInvalidName
	}

	now := time.Now().UTC()
	org := &organizationdomain.Organization{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         slugify(name),
		BillingEmail: strings.ToLower(strings.TrimSpace(req.BillingEmail)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(org).Error; err != nil {
			return err
		}
		member := &organizationdomain.Member{
			ID:        s.genID.Generate(),
			OrgID:     org.ID,
			UserID:    userID,
			Role:      organizationdomain.RoleOwner,
			CreatedAt: now,
		}
		return tx.WithContext(ctx).Create(member).Error
	})
	if err != nil {
		return nil, err
	}

	rate := s.policy.CommissionRateFor(billingdomain.PlanFree)
	if _, err := s.billingRepo.Ensure(ctx, org.ID, rate); err != nil {
		s.log.Error("default billing record creation failed",
			zap.String("org_id", org.ID.String()), zap.Error(err))
		return nil, err
	}
	return org, nil
}

func (s *Service) ResolveByUser(ctx context.Context, userID snowflake.ID) (*organizationdomain.Organization, error) {
	if userID == 0 {
		return nil, organizationdomain.ErrInvalidUser
	}

	var org organizationdomain.Organization
	err := s.db.WithContext(ctx).
		Table("organizations").
		Select("organizations.*").
		Joins("JOIN organization_members ON organization_members.org_id = organizations.id").
		Where("organization_members.user_id = ?", userID).
		Order("organization_members.created_at DESC").
		First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organizationdomain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *Service) Get(ctx context.Context, orgID snowflake.ID) (*organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := s.db.WithContext(ctx).Where("id = ?", orgID).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organizationdomain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
