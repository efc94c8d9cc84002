// Package events stores billing lifecycle events in a transactional
// outbox so downstream consumers (notifications, analytics) observe every
// transition exactly once.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is one billing lifecycle fact headed for the outbox. DedupeKey,
// when set, collapses repeated publishes of the same fact per tenant.
type Event struct {
	OrgID     snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

func (e Event) validate() error {
	if e.OrgID == 0 {
		return errors.New("event requires an org id")
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("event requires a type")
	}
	return nil
}

// Outbox writes rows to billing_events. Rows start unpublished; the
// dispatcher marks them after delivery.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{db: db, genID: genID}
}

// Publish stores an event on the default connection.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	return o.publish(ctx, o.db, event)
}

// PublishTx stores an event inside an existing transaction, so the event
// commits or rolls back with the state change it describes.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("publish requires a transaction")
	}
	return o.publish(ctx, tx, event)
}

func (o *Outbox) publish(ctx context.Context, db *gorm.DB, event Event) error {
	if o == nil || db == nil || o.genID == nil {
		return errors.New("outbox is not configured")
	}
	if err := event.validate(); err != nil {
		return err
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	// NULL dedupe keys never collide with each other, so unkeyed events
	// always insert.
	var dedupe any
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		dedupe = key
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, org_id, event_type, payload, dedupe_key, published, created_at)
		 VALUES (?, ?, ?, ?, ?, false, ?)
		 ON CONFLICT (org_id, dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		event.OrgID,
		strings.TrimSpace(event.Type),
		payload,
		dedupe,
		time.Now().UTC(),
	).Error
}
