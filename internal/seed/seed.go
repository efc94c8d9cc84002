package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	authdomain "github.com/smallbiznis/bizboard/internal/auth/domain"
	"github.com/smallbiznis/bizboard/internal/auth/password"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	organizationdomain "github.com/smallbiznis/bizboard/internal/organization/domain"
)

const (
	defaultOrgName       = "Main"
	defaultOrgSlug       = "main"
	defaultAdminEmail    = "admin@bizboard.local"
	defaultAdminPassword = "admin"
	defaultAdminDisplay  = "Bizboard Admin"
)

// EnsureMainOrg seeds the default organization for startup bootstrap. The
// commission rate comes from the policy layer so seeded records match the
// configured free-plan rate.
func EnsureMainOrg(db *gorm.DB, commissionRate decimal.Decimal) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureMainOrgTx(ctx, tx, node, commissionRate)
		return err
	})
}

// EnsureMainOrgAndAdmin seeds the default organization and admin user for
// self-hosted mode.
func EnsureMainOrgAndAdmin(db *gorm.DB, commissionRate decimal.Decimal) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureMainOrgTx(ctx, tx, node, commissionRate)
		if err != nil {
			return err
		}

		var user authdomain.User
		err = tx.WithContext(ctx).
			Where("email = ?", strings.ToLower(defaultAdminEmail)).
			First(&user).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			hashed, err := password.Hash(defaultAdminPassword)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			user = authdomain.User{
				ID:           node.Generate(),
				Email:        strings.ToLower(defaultAdminEmail),
				DisplayName:  defaultAdminDisplay,
				PasswordHash: &hashed,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
				return err
			}
		}

		var member organizationdomain.Member
		err = tx.WithContext(ctx).
			Where("org_id = ? AND user_id = ?", org.ID, user.ID).
			First(&member).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			member = organizationdomain.Member{
				ID:        node.Generate(),
				OrgID:     org.ID,
				UserID:    user.ID,
				Role:      organizationdomain.RoleOwner,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func ensureMainOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, commissionRate decimal.Decimal) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return org, ensureBillingRecordTx(ctx, tx, org.ID, commissionRate)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}
	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:           node.Generate(),
		Name:         defaultOrgName,
		Slug:         defaultOrgSlug,
		BillingEmail: strings.ToLower(defaultAdminEmail),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, ensureBillingRecordTx(ctx, tx, org.ID, commissionRate)
}

// ensureBillingRecordTx backfills the free-plan billing record every tenant
// must have.
func ensureBillingRecordTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, commissionRate decimal.Decimal) error {
	var record billingdomain.BillingRecord
	err := tx.WithContext(ctx).Where("org_id = ?", orgID).First(&record).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	now := time.Now().UTC()
	record = billingdomain.BillingRecord{
		OrgID:          orgID,
		Plan:           billingdomain.PlanFree,
		PlanStatus:     billingdomain.PlanStatusActive,
		CommissionRate: commissionRate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return tx.WithContext(ctx).Create(&record).Error
}
