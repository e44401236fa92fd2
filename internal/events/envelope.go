package events

import "time"

// Tables whose mutations flow through the change stream.
const (
	TableVotes = "votes"
	TablePolls = "polls"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Notification is the change-stream envelope. It deliberately carries no row
// payload: consumers re-read authoritative state, so partial or batched
// upstream payloads cannot skew derived views.
type Notification struct {
	Table      string    `json:"table"`
	Kind       Kind      `json:"kind"`
	TopicKey   string    `json:"topic_key"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Channel naming scheme
const (
	ChannelPrefixPoll = "channel:poll:"
	ChannelFeed       = "channel:polls:feed"
)

// PollChannel is the per-poll topic carrying vote mutations and the poll
// row's own update/delete notifications.
func PollChannel(pollID string) string {
	return ChannelPrefixPoll + pollID
}
