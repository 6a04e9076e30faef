package eventstream

import "context"

// Publisher publishes graph events to an event stream backend. Publishing
// is best-effort from the service's point of view: a failed publish is
// logged, never rolled back.
type Publisher interface {
	Publish(ctx context.Context, event *GraphEvent) error
	Close() error
}
