package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/events"
	"pollpulse/internal/repository"
	pollpulse_errors "pollpulse/pkg/errors"
	"pollpulse/pkg/logger"
)

// Tally is the derived per-option vote count for one poll. It is a cache,
// never a source of truth: every value is reconstructable from the vote set.
type Tally struct {
	PollID     uuid.UUID      `json:"poll_id"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
	ComputedAt time.Time      `json:"computed_at"`
}

// Percentages returns count/total as a percentage per option, rounded to two
// decimal places, all zero when no votes exist. Presentation only; not part
// of the engine's invariant state.
func (t Tally) Percentages() map[string]float64 {
	percents := make(map[string]float64, len(t.Counts))
	for option, count := range t.Counts {
		if t.Total == 0 {
			percents[option] = 0
			continue
		}
		p := float64(count) / float64(t.Total) * 100
		percents[option] = math.Round(p*100) / 100
	}
	return percents
}

// ComputeTally reduces a vote snapshot into counts. Every declared option is
// present, zero-voted ones included; each vote contributes one unit per
// selected option.
func ComputeTally(p poll.Poll, votes []poll.Vote) Tally {
	counts := make(map[string]int, len(p.Options))
	for _, option := range p.Options {
		counts[option] = 0
	}
	total := 0
	for _, v := range votes {
		for _, selected := range v.SelectedOptions {
			if _, declared := counts[selected]; !declared {
				// A vote row referencing a label the poll no longer declares
				// is skipped rather than invented as a new option.
				continue
			}
			counts[selected]++
			total++
		}
	}
	return Tally{PollID: p.ID, Counts: counts, Total: total, ComputedAt: time.Now()}
}

// TallySubscription is one observer's handle on a live tally.
type TallySubscription struct {
	pollID  uuid.UUID
	updates chan Tally
}

// Updates yields the seeded tally followed by every recomputed one. The
// channel closes when the subscription is cancelled or the poll is deleted.
func (s *TallySubscription) Updates() <-chan Tally {
	return s.updates
}

// TallyAggregator maintains live tallies, one refcounted stream attachment
// per poll regardless of observer count.
type TallyAggregator struct {
	polls     repository.PollRepository
	votes     repository.VoteStore
	stream    events.Stream
	log       *logger.Logger
	reconcile time.Duration

	mu     sync.Mutex
	topics map[uuid.UUID]*tallyTopic
}

type tallyTopic struct {
	refs    int
	last    Tally
	subs    map[*TallySubscription]struct{}
	trigger chan struct{}
	cancel  context.CancelFunc
}

func NewTallyAggregator(polls repository.PollRepository, votes repository.VoteStore, stream events.Stream, log *logger.Logger, reconcile time.Duration) *TallyAggregator {
	if reconcile <= 0 {
		reconcile = 30 * time.Second
	}
	return &TallyAggregator{
		polls:     polls,
		votes:     votes,
		stream:    stream,
		log:       log,
		reconcile: reconcile,
		topics:    make(map[uuid.UUID]*tallyTopic),
	}
}

// Snapshot computes a point-in-time tally without opening a subscription.
func (a *TallyAggregator) Snapshot(ctx context.Context, pollID uuid.UUID) (Tally, error) {
	return a.compute(ctx, pollID)
}

// Subscribe seeds a tally from the vote store and attaches to the poll's
// change stream. The attachment is shared: later subscribers for the same
// poll join the existing one. A failed seed read fails fast and attaches
// nothing.
func (a *TallyAggregator) Subscribe(ctx context.Context, pollID uuid.UUID) (*TallySubscription, error) {
	a.mu.Lock()
	if t, ok := a.topics[pollID]; ok {
		sub := a.join(t, pollID)
		a.mu.Unlock()
		return sub, nil
	}
	a.mu.Unlock()

	seed, err := a.compute(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pollpulse_errors.ErrLoadFailed, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Another subscriber may have attached while we were seeding.
	if t, ok := a.topics[pollID]; ok {
		return a.join(t, pollID), nil
	}

	topicCtx, cancel := context.WithCancel(context.Background())
	t := &tallyTopic{
		last:    seed,
		subs:    make(map[*TallySubscription]struct{}),
		trigger: make(chan struct{}, 1),
		cancel:  cancel,
	}
	a.topics[pollID] = t
	sub := a.join(t, pollID)

	go a.attach(topicCtx, pollID, t)
	go a.work(topicCtx, pollID, t)
	return sub, nil
}

// join must be called with a.mu held.
func (a *TallyAggregator) join(t *tallyTopic, pollID uuid.UUID) *TallySubscription {
	sub := &TallySubscription{pollID: pollID, updates: make(chan Tally, 8)}
	t.refs++
	t.subs[sub] = struct{}{}
	sub.updates <- t.last
	return sub
}

// Cancel detaches the observer. When it was the last one, the underlying
// stream attachment is released. No update is delivered after Cancel returns.
func (a *TallyAggregator) Cancel(sub *TallySubscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.topics[sub.pollID]
	if !ok {
		return
	}
	if _, attached := t.subs[sub]; !attached {
		return
	}
	delete(t.subs, sub)
	close(sub.updates)
	t.refs--
	if t.refs == 0 {
		t.cancel()
		delete(a.topics, sub.pollID)
	}
}

func (a *TallyAggregator) attach(ctx context.Context, pollID uuid.UUID, t *tallyTopic) {
	channel := events.PollChannel(pollID.String())
	err := a.stream.Subscribe(ctx, []string{channel}, func(_ string, n events.Notification) {
		if n.Table == events.TablePolls && n.Kind == events.KindDelete {
			a.drop(pollID)
			return
		}
		// Kind and payload granularity are irrelevant: recompute from the
		// authoritative vote set either way.
		select {
		case t.trigger <- struct{}{}:
		default:
		}
	})
	if err != nil && ctx.Err() == nil {
		a.log.Errorf("tally stream for poll %s ended: %v", pollID, err)
	}
}

// work is the topic's single recompute loop; shared topic state is only
// mutated from here and from the registry lock.
func (a *TallyAggregator) work(ctx context.Context, pollID uuid.UUID, t *tallyTopic) {
	ticker := time.NewTicker(a.reconcile)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.trigger:
		case <-ticker.C:
			// Fallback reconcile: a dropped notification cannot leave the
			// tally stale past one interval.
		}

		tally, err := a.compute(ctx, pollID)
		if err != nil {
			// Transient read failure: keep serving the last-known-good
			// tally and retry on the next trigger or tick.
			a.log.Warnf("tally recompute for poll %s: %v: %v", pollID, pollpulse_errors.ErrStreamTransient, err)
			continue
		}
		a.broadcast(pollID, t, tally)
	}
}

func (a *TallyAggregator) broadcast(pollID uuid.UUID, t *tallyTopic, tally Tally) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.topics[pollID] != t {
		return
	}
	t.last = tally
	for sub := range t.subs {
		deliverTally(sub.updates, tally)
	}
}

// deliverTally never blocks: when the observer lags, the oldest buffered
// value is discarded in favor of the latest.
func deliverTally(ch chan Tally, tally Tally) {
	for {
		select {
		case ch <- tally:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// drop stops tracking a deleted poll and ends every observer's stream.
func (a *TallyAggregator) drop(pollID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.topics[pollID]
	if !ok {
		return
	}
	t.cancel()
	for sub := range t.subs {
		delete(t.subs, sub)
		close(sub.updates)
	}
	delete(a.topics, pollID)
}

func (a *TallyAggregator) compute(ctx context.Context, pollID uuid.UUID) (Tally, error) {
	p, err := a.polls.GetByID(ctx, pollID)
	if err != nil {
		return Tally{}, err
	}
	votes, err := a.votes.ListVotes(ctx, pollID)
	if err != nil {
		return Tally{}, err
	}
	return ComputeTally(p, votes), nil
}
