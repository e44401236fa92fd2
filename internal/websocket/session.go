package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"pollpulse/internal/engine"
	"pollpulse/internal/transport/httpdto"
	"pollpulse/pkg/logger"
)

// controlMessage is what observers send to manage their subscriptions.
type controlMessage struct {
	Action   string `json:"action"` // subscribe | unsubscribe
	Stream   string `json:"stream"` // tally | presence | feed
	PollID   string `json:"poll_id,omitempty"`
	Filter   string `json:"filter,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Search   string `json:"search,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// frame is what the server pushes for every update.
type frame struct {
	Stream string      `json:"stream"`
	PollID string      `json:"poll_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

const (
	streamTally    = "tally"
	streamPresence = "presence"
	streamFeed     = "feed"
)

// session owns one connection's engine handles. Teardown releases every
// refcount before returning, so a disconnect frees shared channels
// synchronously.
type session struct {
	client   *Client
	tallies  *engine.TallyAggregator
	presence *engine.PresenceTracker
	feeds    *engine.FeedSynchronizer
	log      *logger.Logger

	mu           sync.Mutex
	tallySubs    map[uuid.UUID]*engine.TallySubscription
	presenceSubs map[uuid.UUID]*engine.PresenceHandle
	feedSub      *engine.FeedSubscription
	wg           sync.WaitGroup
}

func newSession(client *Client, tallies *engine.TallyAggregator, presence *engine.PresenceTracker, feeds *engine.FeedSynchronizer, log *logger.Logger) *session {
	return &session{
		client:       client,
		tallies:      tallies,
		presence:     presence,
		feeds:        feeds,
		log:          log,
		tallySubs:    make(map[uuid.UUID]*engine.TallySubscription),
		presenceSubs: make(map[uuid.UUID]*engine.PresenceHandle),
	}
}

func (s *session) handle(ctx context.Context, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", "malformed control message")
		return
	}

	switch msg.Action {
	case "subscribe":
		s.subscribe(ctx, msg)
	case "unsubscribe":
		s.unsubscribe(ctx, msg)
	default:
		s.sendError(msg.Stream, "unknown action")
	}
}

func (s *session) subscribe(ctx context.Context, msg controlMessage) {
	switch msg.Stream {
	case streamTally:
		pollID, err := uuid.Parse(msg.PollID)
		if err != nil {
			s.sendError(streamTally, "invalid poll id")
			return
		}
		s.mu.Lock()
		if _, exists := s.tallySubs[pollID]; exists {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		sub, err := s.tallies.Subscribe(ctx, pollID)
		if err != nil {
			s.sendError(streamTally, err.Error())
			return
		}
		s.mu.Lock()
		s.tallySubs[pollID] = sub
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for tally := range sub.Updates() {
				s.send(frame{Stream: streamTally, PollID: pollID.String(), Data: httpdto.FromTally(tally)})
			}
		}()

	case streamPresence:
		pollID, err := uuid.Parse(msg.PollID)
		if err != nil {
			s.sendError(streamPresence, "invalid poll id")
			return
		}
		if s.client.VoterID == "" {
			s.sendError(streamPresence, "presence requires a voter identity")
			return
		}
		s.mu.Lock()
		if _, exists := s.presenceSubs[pollID]; exists {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		handle, err := s.presence.Join(ctx, pollID, s.client.VoterID)
		if err != nil {
			s.sendError(streamPresence, err.Error())
			return
		}
		s.mu.Lock()
		s.presenceSubs[pollID] = handle
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for count := range handle.Updates() {
				s.send(frame{Stream: streamPresence, PollID: pollID.String(), Data: count})
			}
		}()

	case streamFeed:
		s.mu.Lock()
		if s.feedSub != nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		view := engine.FeedView{
			Filter:   msg.Filter,
			Sort:     msg.Sort,
			Search:   msg.Search,
			Page:     msg.Page,
			PageSize: msg.PageSize,
		}
		sub, err := s.feeds.Subscribe(ctx, view, s.client.VoterID)
		if err != nil {
			s.sendError(streamFeed, err.Error())
			return
		}
		s.mu.Lock()
		s.feedSub = sub
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for window := range sub.Updates() {
				s.send(frame{Stream: streamFeed, Data: httpdto.FromPollSlice(window)})
			}
		}()

	default:
		s.sendError(msg.Stream, "unknown stream")
	}
}

func (s *session) unsubscribe(ctx context.Context, msg controlMessage) {
	switch msg.Stream {
	case streamTally:
		pollID, err := uuid.Parse(msg.PollID)
		if err != nil {
			return
		}
		s.mu.Lock()
		sub := s.tallySubs[pollID]
		delete(s.tallySubs, pollID)
		s.mu.Unlock()
		if sub != nil {
			s.tallies.Cancel(sub)
		}
	case streamPresence:
		pollID, err := uuid.Parse(msg.PollID)
		if err != nil {
			return
		}
		s.mu.Lock()
		handle := s.presenceSubs[pollID]
		delete(s.presenceSubs, pollID)
		s.mu.Unlock()
		if handle != nil {
			s.presence.Leave(ctx, handle)
		}
	case streamFeed:
		s.mu.Lock()
		sub := s.feedSub
		s.feedSub = nil
		s.mu.Unlock()
		if sub != nil {
			s.feeds.Cancel(sub)
		}
	}
}

// teardown cancels every handle and waits for the pump goroutines to drain.
func (s *session) teardown(ctx context.Context) {
	s.mu.Lock()
	tallySubs := s.tallySubs
	presenceSubs := s.presenceSubs
	feedSub := s.feedSub
	s.tallySubs = make(map[uuid.UUID]*engine.TallySubscription)
	s.presenceSubs = make(map[uuid.UUID]*engine.PresenceHandle)
	s.feedSub = nil
	s.mu.Unlock()

	for _, sub := range tallySubs {
		s.tallies.Cancel(sub)
	}
	for _, handle := range presenceSubs {
		s.presence.Leave(ctx, handle)
	}
	if feedSub != nil {
		s.feeds.Cancel(feedSub)
	}
	s.wg.Wait()
}

func (s *session) send(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.log.Errorf("marshal frame: %v", err)
		return
	}
	s.client.SendMessage(data)
}

func (s *session) sendError(stream, msg string) {
	s.send(frame{Stream: stream, Error: msg})
}
