package events

import "context"

type Publisher interface {
	Publish(ctx context.Context, channel string, n Notification) error
}

// Stream delivers change notifications for the given channels, in the order
// the underlying transport emits them, until ctx is done. Delivery for one
// Subscribe call is single-threaded: the handler is never invoked
// concurrently with itself.
type Stream interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, n Notification)) error
}
