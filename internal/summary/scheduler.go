// Package summary compiles periodic digests of unreported messages.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
	"github.com/DJ-Powehi/telegram-secretary/internal/summarize"
)

// Sink delivers digests to the monitored user. A failed send leaves all
// selected messages unmarked for the next tick.
type Sink interface {
	SendDigest(ctx context.Context, d *model.Digest) error
}

// Scheduler owns one recurring digest task per monitored user with an
// explicit start/stop lifecycle.
type Scheduler struct {
	store      storage.Storage
	sink       Sink
	summarizer summarize.Summarizer

	minScore        int
	defaultInterval int
	defaultMax      int

	log *slog.Logger
	now func() time.Time

	mu    sync.Mutex
	tasks map[int64]*task
}

type task struct {
	userID int64
	cancel context.CancelFunc

	// running guards against overlapping ticks: a tick due while the
	// previous one is still in flight is skipped, never queued.
	running atomic.Bool

	mu          sync.Mutex
	startedAt   time.Time
	lastSuccess time.Time
}

// New creates a Scheduler. minScore is the digest eligibility floor;
// defaultInterval (hours) and defaultMax apply to users without a
// preference row.
func New(store storage.Storage, sink Sink, summarizer summarize.Summarizer, minScore, defaultInterval, defaultMax int, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:           store,
		sink:            sink,
		summarizer:      summarizer,
		minScore:        minScore,
		defaultInterval: defaultInterval,
		defaultMax:      defaultMax,
		log:             log,
		now:             time.Now,
		tasks:           make(map[int64]*task),
	}
}

// SetNow overrides the clock (useful for testing windows and quiet hours).
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

// StartUser begins the recurring digest task for a user. The selection
// window never reaches back before this call.
func (s *Scheduler) StartUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[userID]; ok {
		return fmt.Errorf("summary task for user %d already started", userID)
	}

	tctx, cancel := context.WithCancel(ctx)
	t := &task{
		userID:    userID,
		cancel:    cancel,
		startedAt: s.now(),
	}
	s.tasks[userID] = t

	interval := time.Duration(s.prefsFor(ctx, userID).SummaryIntervalHours) * time.Hour
	go s.run(tctx, t, interval)

	s.log.Info("summary task started", "user_id", userID, "interval", interval)
	return nil
}

// StopUser cancels the recurring task for a user.
func (s *Scheduler) StopUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[userID]; ok {
		t.cancel()
		delete(s.tasks, userID)
	}
}

// Stop cancels all tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		t.cancel()
		delete(s.tasks, id)
	}
}

// RunTick triggers one digest tick for a user immediately, outside the
// recurring cadence. Used by the manual /summary command and by tests.
func (s *Scheduler) RunTick(ctx context.Context, userID int64) error {
	s.mu.Lock()
	t, ok := s.tasks[userID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no summary task for user %d", userID)
	}
	return s.tick(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, t *task, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx, t); err != nil {
				s.log.Error("summary tick", "user_id", t.userID, "error", err)
			}
			// Interval edits apply from the next tick onward.
			if next := time.Duration(s.prefsFor(ctx, t.userID).SummaryIntervalHours) * time.Hour; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, t *task) error {
	if !t.running.CompareAndSwap(false, true) {
		s.log.Warn("summary tick still running, skipping", "user_id", t.userID)
		return nil
	}
	defer t.running.Store(false)

	prefs := s.prefsFor(ctx, t.userID)

	// The window end is taken right before the candidate query; rows
	// created after it fall into the next window (the query filters on
	// creation time).
	now := s.now()
	if prefs.InQuietHours(now) {
		s.log.Info("quiet hours active, skipping summary tick", "user_id", t.userID)
		return nil
	}

	t.mu.Lock()
	since := t.lastSuccess
	if since.IsZero() {
		since = t.startedAt
	}
	t.mu.Unlock()

	msgs, err := s.store.ListDigestCandidates(ctx, t.userID, since, s.minScore, prefs.MaxMessagesPerSummary)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	total, conversations, err := s.store.CountMessagesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	items := make([]model.DigestItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, model.DigestItem{
			Message:      m,
			TopicSummary: s.topicFor(ctx, m),
		})
	}

	digest := &model.Digest{
		UserID:             t.userID,
		IntervalHours:      prefs.SummaryIntervalHours,
		TotalMessages:      total,
		TotalConversations: conversations,
		Items:              items,
	}
	if err := s.sink.SendDigest(ctx, digest); err != nil {
		// Nothing is marked: the same set stays eligible for next tick.
		return fmt.Errorf("send digest: %w", err)
	}

	if len(items) > 0 {
		ids := make([]int64, len(items))
		for i, it := range items {
			ids[i] = it.Message.ID
		}
		// Marking must not be torn by shutdown once the digest went out.
		if err := s.store.MarkIncludedInSummary(context.WithoutCancel(ctx), ids, now); err != nil {
			return fmt.Errorf("mark included in summary: %w", err)
		}
	}

	t.mu.Lock()
	t.lastSuccess = now
	t.mu.Unlock()

	s.log.Info("digest sent", "user_id", t.userID, "selected", len(items), "total", total)
	return nil
}

// topicFor returns the message's stored topic summary, requesting one
// from the enrichment collaborator when missing. Enrichment failure
// never blocks the digest; the topic is simply left unset.
func (s *Scheduler) topicFor(ctx context.Context, m model.Message) string {
	if m.TopicSummary != "" {
		return m.TopicSummary
	}
	topic, err := s.summarizer.Summarize(ctx, m.Text)
	if err != nil {
		if !errors.Is(err, summarize.ErrUnavailable) {
			s.log.Debug("topic summary failed", "message_id", m.ID, "error", err)
		}
		return ""
	}
	if err := s.store.SetTopicSummary(ctx, m.ID, topic); err != nil {
		s.log.Error("store topic summary", "message_id", m.ID, "error", err)
	}
	return topic
}

func (s *Scheduler) prefsFor(ctx context.Context, userID int64) *model.UserPreferences {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("load preferences", "user_id", userID, "error", err)
		}
		return &model.UserPreferences{
			UserID:                userID,
			SummaryIntervalHours:  s.defaultInterval,
			MaxMessagesPerSummary: s.defaultMax,
		}
	}
	return prefs
}
