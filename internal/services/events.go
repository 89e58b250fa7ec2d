package services

import (
	"context"

	"fintrack/internal/amqp"
	applog "fintrack/internal/log"
)

// changeNotifier runs the after-write hooks shared by every mutating service.
// Both hooks are optional.
type changeNotifier struct {
	publisher   EventPublisher
	invalidator Invalidator
}

// committed purges derived data and publishes the change. A failed publish is
// logged and swallowed: the row is already stored and the export worker's
// sweep picks it up.
func (n changeNotifier) committed(ctx context.Context, entity, action string, id, version int64) {
	if n.invalidator != nil {
		n.invalidator.Invalidate()
	}
	if n.publisher == nil {
		return
	}

	ev := amqp.NewEvent(entity, action, id, version)
	if err := n.publisher.PublishChange(ctx, ev); err != nil {
		applog.FromContext(ctx).WithComponent(applog.ComponentAMQP).WarnContext(ctx, "Failed to publish change event",
			"entity", entity,
			"action", action,
			"entity_id", id,
			"error", err)
	}
}
