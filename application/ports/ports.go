package ports

import "swiftbase/domain/events"

// EventPublisher fans committed document changes out to realtime subscribers.
// Implementations must not block the caller; the query service publishes on
// the request path after its transaction commits.
type EventPublisher interface {
	PublishChange(event events.ChangeEvent)
}

// NopPublisher discards events. Used where no realtime hub is wired, such as
// the migration command and tests.
type NopPublisher struct{}

func (NopPublisher) PublishChange(events.ChangeEvent) {}
