package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	dispatchInterval  = 15 * time.Second
	dispatchBatchSize = 100
)

type pendingEvent struct {
	ID        snowflake.ID
	OrgID     snowflake.ID
	EventType string
	Payload   datatypes.JSONMap
}

// Dispatcher drains the outbox in the background. Rows are claimed with
// row locks so multiple replicas never deliver the same event twice.
type Dispatcher struct {
	db  *gorm.DB
	log *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func NewDispatcher(db *gorm.DB, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:   db,
		log:  log.Named("events.dispatcher"),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run starts the dispatch loop under the fx lifecycle.
func Run(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go d.loop()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(d.stop)
			select {
			case <-d.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if err := d.DispatchPending(context.Background()); err != nil {
				d.log.Warn("outbox dispatch pass failed", zap.Error(err))
			}
		}
	}
}

// DispatchPending claims one batch of unpublished events, delivers them
// and marks them published in the same transaction.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []pendingEvent
		err := tx.Raw(
			`SELECT id, org_id, event_type, payload
			 FROM billing_events
			 WHERE published = false
			 ORDER BY id
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			dispatchBatchSize,
		).Scan(&pending).Error
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(pending))
		for _, event := range pending {
			d.deliver(event)
			ids = append(ids, event.ID)
		}

		return tx.Exec(`UPDATE billing_events SET published = true WHERE id IN ?`, ids).Error
	})
}

// deliver hands an event to downstream consumers. The log stream is the
// delivery channel; log shippers fan it out from there.
func (d *Dispatcher) deliver(event pendingEvent) {
	d.log.Info("billing event",
		zap.String("event_id", event.ID.String()),
		zap.String("org_id", event.OrgID.String()),
		zap.String("event_type", event.EventType),
		zap.Any("payload", map[string]any(event.Payload)),
	)
}
