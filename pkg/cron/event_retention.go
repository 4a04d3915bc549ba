package cron

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultEventRetention = 30 * 24 * time.Hour

type EventPruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// EventRetention drops processed-event ids older than the retention.
// The processor stops redelivering long before that.
type EventRetention struct {
	store     EventPruner
	retention time.Duration
	now       func() time.Time
}

func NewEventRetention(store EventPruner, retention time.Duration) *EventRetention {
	if retention <= 0 {
		retention = DefaultEventRetention
	}
	return &EventRetention{store: store, retention: retention, now: time.Now}
}

func (j *EventRetention) Name() string { return "event-retention" }

func (j *EventRetention) Run(ctx context.Context) error {
	removed, err := j.store.PruneEvents(ctx, j.now().Add(-j.retention))
	if err != nil {
		return err
	}
	log.Info().Int64("removed", removed).Msg("Pruned processed webhook events")
	return nil
}
