// Package domain contains tenant organization models and the resolver
// contract used by the billing engine.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role values for organization membership.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Organization is the billed tenant entity. Its billing record is created
// alongside it and owned by the billing engine.
type Organization struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	Slug         string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	BillingEmail string       `gorm:"type:text" json:"billing_email"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Member links a user to an organization with a role.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

var (
	ErrNotFound    = errors.New("organization_not_found")
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidUser = errors.New("invalid_user")
)

// CreateOrganizationRequest carries new-tenant details.
type CreateOrganizationRequest struct {
	Name         string
	BillingEmail string
}

// Service creates organizations and resolves the owning organization for
// an authenticated user.
type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*Organization, error)

	// ResolveByUser returns the organization the user belongs to, or
	// ErrNotFound. Users with multiple memberships resolve to the most
	// recently joined organization.
	ResolveByUser(ctx context.Context, userID snowflake.ID) (*Organization, error)

	Get(ctx context.Context, orgID snowflake.ID) (*Organization, error)
}
