// Package repository persists billing records and activation history.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
)

type Repository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func New(db *gorm.DB, genID *snowflake.Node) *Repository {
	return &Repository{db: db, genID: genID}
}

// Provide exposes the concrete repository behind the domain interface.
func Provide(db *gorm.DB, genID *snowflake.Node) billingdomain.Repository {
	return New(db, genID)
}

var _ billingdomain.Repository = (*Repository)(nil)

func (r *Repository) Get(ctx context.Context, orgID snowflake.ID) (*billingdomain.BillingRecord, error) {
	var record billingdomain.BillingRecord
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billingdomain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *Repository) Ensure(ctx context.Context, orgID snowflake.ID, commissionRate decimal.Decimal) (*billingdomain.BillingRecord, error) {
	return r.ensure(ctx, r.db, orgID, commissionRate)
}

func (r *Repository) ensure(ctx context.Context, db *gorm.DB, orgID snowflake.ID, rate decimal.Decimal) (*billingdomain.BillingRecord, error) {
	record, err := r.Get(ctx, orgID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, billingdomain.ErrOrganizationNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := billingdomain.BillingRecord{
		OrgID:          orgID,
		Plan:           billingdomain.PlanFree,
		PlanStatus:     billingdomain.PlanStatusActive,
		CommissionRate: rate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(&fresh).Error; err != nil {
		// Lost the insert race to a concurrent creator; read theirs.
		if existing, getErr := r.Get(ctx, orgID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return &fresh, nil
}

func (r *Repository) SetCustomerID(ctx context.Context, orgID snowflake.ID, customerID string) error {
	result := r.db.WithContext(ctx).
		Model(&billingdomain.BillingRecord{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			"processor_customer_id": customerID,
			"updated_at":            time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return billingdomain.ErrOrganizationNotFound
	}
	return nil
}

// ApplyPlanChange performs the compare-and-set transition and appends the
// activation history row in the same transaction. A record that no longer
// matches the expected plan/subscription pair yields ErrConflict, which
// protects against the race with the payment-events collaborator.
func (r *Repository) ApplyPlanChange(ctx context.Context, change billingdomain.PlanChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.WithContext(ctx).
			Model(&billingdomain.BillingRecord{}).
			Where("org_id = ? AND plan = ?", change.OrgID, change.ExpectedPlan)
		if change.ExpectedSubscriptionID == nil {
			query = query.Where("processor_subscription_id IS NULL")
		} else {
			query = query.Where("processor_subscription_id = ?", *change.ExpectedSubscriptionID)
		}

		result := query.Updates(map[string]any{
			"plan":                      change.NewPlan,
			"plan_status":               change.NewStatus,
			"commission_rate":           change.CommissionRate,
			"processor_subscription_id": change.SubscriptionID,
			"current_period_end":        change.CurrentPeriodEnd,
			"updated_at":                time.Now().UTC(),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return billingdomain.ErrConflict
		}

		if !change.RecordHistory {
			return nil
		}
		subscriptionID := ""
		if change.SubscriptionID != nil {
			subscriptionID = *change.SubscriptionID
		}
		history := billingdomain.SubscriptionHistory{
			ID:                      r.genID.Generate(),
			OrgID:                   change.OrgID,
			Plan:                    change.NewPlan,
			Status:                  change.NewStatus,
			ProcessorSubscriptionID: subscriptionID,
			CreatedAt:               time.Now().UTC(),
		}
		return tx.WithContext(ctx).Create(&history).Error
	})
}

func (r *Repository) SetPlanStatus(ctx context.Context, orgID snowflake.ID, status billingdomain.PlanStatus) error {
	result := r.db.WithContext(ctx).
		Model(&billingdomain.BillingRecord{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			"plan_status": status,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return billingdomain.ErrOrganizationNotFound
	}
	return nil
}

// Heal resets the record to the free-plan baseline. Repeated invocations
// settle on identical state, so a second heal after the reference is
// already cleared is a harmless rewrite.
func (r *Repository) Heal(ctx context.Context, orgID snowflake.ID, commissionRate decimal.Decimal) (*billingdomain.BillingRecord, error) {
	result := r.db.WithContext(ctx).
		Model(&billingdomain.BillingRecord{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			"plan":                      billingdomain.PlanFree,
			"plan_status":               billingdomain.PlanStatusActive,
			"commission_rate":           commissionRate,
			"processor_subscription_id": nil,
			"current_period_end":        nil,
			"updated_at":                time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, billingdomain.ErrOrganizationNotFound
	}
	return r.Get(ctx, orgID)
}

func (r *Repository) HasHistory(ctx context.Context, orgID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&billingdomain.SubscriptionHistory{}).
		Where("org_id = ?", orgID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) ListHistory(ctx context.Context, orgID snowflake.ID) ([]billingdomain.SubscriptionHistory, error) {
	var rows []billingdomain.SubscriptionHistory
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
