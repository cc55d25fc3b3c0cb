// Package service holds the catalog and user use cases. Each mutation commits
// to the durable store first; cache invalidation, file cleanup, events and
// search indexing follow and never run on the request's cancellation.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/events"
	"github.com/Skotchmaster/online_catalog/internal/logging"
	"github.com/Skotchmaster/online_catalog/internal/models"
)

const defaultSideEffectTimeout = 5 * time.Second

// Indexer mirrors products into the search backend.
type Indexer interface {
	Index(ctx context.Context, p *models.Product) error
	Remove(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, from, size int) (int64, []models.Product, error)
}

// sideEffects runs post-commit work whose failure is logged, never returned.
type sideEffects struct {
	events  events.Publisher
	timeout time.Duration
}

func newSideEffects(pub events.Publisher, timeout time.Duration) sideEffects {
	if pub == nil {
		pub = events.Nop{}
	}
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	return sideEffects{events: pub, timeout: timeout}
}

func (s sideEffects) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func (s sideEffects) publish(ctx context.Context, topic string, ev events.Event) {
	ctx, cancel := s.detach(ctx)
	defer cancel()
	if err := s.events.Publish(ctx, topic, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed",
			"topic", topic, "type", ev.Type, "entity_id", ev.EntityID, "error", err)
	}
}
