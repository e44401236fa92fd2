package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/events"
	"pollpulse/internal/repository"
	pollpulse_errors "pollpulse/pkg/errors"
	"pollpulse/pkg/logger"
)

// FeedView is the subscriber's current listing context. Live insertions are
// admitted only into the unrestricted first page; any narrower view sees new
// polls on the next re-query instead.
type FeedView struct {
	Filter   string
	Sort     string
	Search   string
	Page     int
	PageSize int
}

// Admits reports whether a newly created poll may be merged into this view.
func (v FeedView) Admits() bool {
	return v.Page == 1 && v.Search == "" && v.Filter == repository.FilterAll
}

// FeedSubscription streams the visible poll window as creations (and
// deletions) arrive.
type FeedSubscription struct {
	updates chan []poll.Poll
	cancel  context.CancelFunc

	mu      sync.Mutex
	view    FeedView
	visible []poll.Poll
}

func (s *FeedSubscription) Updates() <-chan []poll.Poll {
	return s.updates
}

// FeedSynchronizer keeps paginated poll listings live-updated from the
// poll-creation stream without disturbing the subscriber's page, search, or
// filter context.
type FeedSynchronizer struct {
	polls    repository.PollRepository
	stream   events.Stream
	log      *logger.Logger
	pageSize int
}

func NewFeedSynchronizer(polls repository.PollRepository, stream events.Stream, log *logger.Logger, defaultPageSize int) *FeedSynchronizer {
	if defaultPageSize < 1 {
		defaultPageSize = 12
	}
	return &FeedSynchronizer{polls: polls, stream: stream, log: log, pageSize: defaultPageSize}
}

// Subscribe seeds the visible window from the repository, then attaches to
// the feed channel. A failed seed read fails fast and attaches nothing.
func (f *FeedSynchronizer) Subscribe(ctx context.Context, view FeedView, voterID string) (*FeedSubscription, error) {
	if view.Page < 1 {
		view.Page = 1
	}
	if view.PageSize < 1 {
		view.PageSize = f.pageSize
	}
	if view.Filter == "" {
		view.Filter = repository.FilterAll
	}

	seed, _, err := f.polls.List(ctx, repository.FeedQuery{
		Filter:    view.Filter,
		Sort:      view.Sort,
		Search:    view.Search,
		Page:      view.Page,
		PageSize:  view.PageSize,
		CreatedBy: voterID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pollpulse_errors.ErrLoadFailed, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &FeedSubscription{
		updates: make(chan []poll.Poll, 4),
		cancel:  cancel,
		view:    view,
		visible: seed,
	}
	sub.emit()

	go func() {
		err := f.stream.Subscribe(subCtx, []string{events.ChannelFeed}, func(_ string, n events.Notification) {
			f.apply(subCtx, sub, n)
		})
		if err != nil && subCtx.Err() == nil {
			f.log.Errorf("feed stream ended: %v", err)
		}
	}()
	return sub, nil
}

// Cancel stops delivery and releases the stream attachment.
func (f *FeedSynchronizer) Cancel(sub *FeedSubscription) {
	sub.cancel()
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.updates != nil {
		close(sub.updates)
		sub.updates = nil
	}
}

func (f *FeedSynchronizer) apply(ctx context.Context, sub *FeedSubscription, n events.Notification) {
	if n.Table != events.TablePolls {
		return
	}
	id, err := uuid.Parse(n.TopicKey)
	if err != nil {
		return
	}

	switch n.Kind {
	case events.KindDelete:
		sub.remove(id)
	case events.KindInsert:
		sub.mu.Lock()
		admits := sub.view.Admits()
		sub.mu.Unlock()
		if !admits {
			// Narrowed view: suppressed, the subscriber re-queries to see it.
			return
		}
		// The notification payload is not trusted; read the poll back.
		p, err := f.polls.GetByID(ctx, id)
		if err != nil {
			f.log.Warnf("feed: poll %s from creation event: %v", id, err)
			return
		}
		sub.insert(p)
	}
}

// insert prepends the poll and truncates the window to the page size. A
// duplicate id is a no-op.
func (s *FeedSubscription) insert(p poll.Poll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.visible {
		if existing.ID == p.ID {
			return
		}
	}
	s.visible = append([]poll.Poll{p}, s.visible...)
	if len(s.visible) > s.view.PageSize {
		s.visible = s.visible[:s.view.PageSize]
	}
	s.emitLocked()
}

func (s *FeedSubscription) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.visible {
		if existing.ID == id {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			s.emitLocked()
			return
		}
	}
}

func (s *FeedSubscription) emit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked()
}

// emitLocked delivers a copy of the visible window, discarding the oldest
// buffered one when the observer lags.
func (s *FeedSubscription) emitLocked() {
	if s.updates == nil {
		return
	}
	window := make([]poll.Poll, len(s.visible))
	copy(window, s.visible)
	for {
		select {
		case s.updates <- window:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
