package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service records audit events. Implementations must never fail a caller's
// business operation over a missing optional field.
type Service interface {
	AuditLog(ctx context.Context, orgID *snowflake.ID, actorID string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
}
