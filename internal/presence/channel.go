package presence

import "context"

// Metadata is the free-form payload a session announces alongside its key.
type Metadata map[string]string

// Snapshot maps each presence key to the metadata of every session tracked
// under it. The live viewer count of a topic is the number of distinct keys.
type Snapshot map[string][]Metadata

func (s Snapshot) DistinctKeys() int {
	return len(s)
}

// Channel is one attachment to a topic's presence channel.
//
// Lifecycle: Join returns immediately; Subscribed is closed once the
// transport acknowledges the subscription; Track announces a session; every
// membership change produces a fresh Snapshot on Sync. Close is terminal.
type Channel interface {
	Subscribed() <-chan struct{}
	Sync() <-chan Snapshot
	Track(ctx context.Context, key string, meta Metadata) error
	Untrack(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

type Joiner interface {
	Join(ctx context.Context, topic string) (Channel, error)
}
