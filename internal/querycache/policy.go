package querycache

import (
	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/metrics"
)

// BindBus subscribes the cache's invalidation rules to the event bus:
//
//   - EntityUpdated: all entity namespaces for that id go stale (debounced)
//   - FollowChanged: both participants' follow-count entries go stale
//   - VisibilityChanged(visible): stale entries refetch, except protected
//     namespaces
//
// Returns an unsubscribe function for all three rules.
func (c *Cache) BindBus(bus *events.Bus) func() {
	unsubEntity := bus.Subscribe(events.EntityUpdated{}.EventName(), func(ev events.Event) {
		e := ev.(events.EntityUpdated)
		c.InvalidateEntity(e.EntityID)
	})

	unsubFollow := bus.Subscribe(events.FollowChanged{}.EventName(), func(ev events.Event) {
		e := ev.(events.FollowChanged)
		c.Invalidate(Key{Namespace: NamespaceFollowCounts, ID: e.FollowerID})
		c.Invalidate(Key{Namespace: NamespaceFollowCounts, ID: e.FolloweeID})
		metrics.Get().CacheInvalidations.WithLabelValues("follow").Inc()
	})

	unsubVisibility := bus.Subscribe(events.VisibilityChanged{}.EventName(), func(ev events.Event) {
		e := ev.(events.VisibilityChanged)
		if e.Visible {
			c.RefetchStale()
		}
	})

	return func() {
		unsubEntity()
		unsubFollow()
		unsubVisibility()
	}
}
