// Package ingest turns the raw inbound message stream into scored ledger records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/score"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

// Source produces the inbound message stream. The channel closes when
// the source shuts down.
type Source interface {
	Events() <-chan model.IncomingMessageEvent
}

// Dispatcher is invoked synchronously for every newly persisted message.
type Dispatcher interface {
	ConsiderWarning(ctx context.Context, m *model.Message) error
}

const (
	insertRetries    = 3
	insertRetryDelay = 100 * time.Millisecond
)

// Pipeline consumes events, scores them against the current
// high-priority snapshot, persists them idempotently, and hands new
// records to the warning dispatcher before moving on.
type Pipeline struct {
	store         storage.Storage
	dispatcher    Dispatcher
	ownerUsername string
	log           *slog.Logger

	mu           sync.RWMutex
	highPriority map[int64]struct{}
}

// New creates a Pipeline. ownerUsername, when set, strengthens mention
// detection for direct mentions of the monitored user.
func New(store storage.Storage, dispatcher Dispatcher, ownerUsername string, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:         store,
		dispatcher:    dispatcher,
		ownerUsername: ownerUsername,
		log:           log,
		highPriority:  make(map[int64]struct{}),
	}
}

// RefreshHighPriority reloads the high-priority sender snapshot. Scores
// computed before a refresh are not revisited.
func (p *Pipeline) RefreshHighPriority(ctx context.Context) error {
	users, err := p.store.ListHighPriorityUsers(ctx)
	if err != nil {
		return fmt.Errorf("list high priority users: %w", err)
	}
	snapshot := make(map[int64]struct{}, len(users))
	for _, u := range users {
		snapshot[u.SenderID] = struct{}{}
	}
	p.mu.Lock()
	p.highPriority = snapshot
	p.mu.Unlock()
	p.log.Info("refreshed high priority users", "count", len(snapshot))
	return nil
}

// Run consumes events until ctx is cancelled or the source closes. An
// in-flight event is finished, including its warning check, before the
// loop observes cancellation.
func (p *Pipeline) Run(ctx context.Context, src Source) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			// A dequeued event runs to completion, warning check
			// included, even when shutdown begins mid-write.
			if err := p.Ingest(context.WithoutCancel(ctx), ev); err != nil {
				p.log.Error("ingest event",
					"conversation_id", ev.ConversationID,
					"source_message_id", ev.SourceMessageID,
					"error", err,
				)
			}
		}
	}
}

// Ingest processes one event: exactly one ledger row is created per
// (conversation, source message) pair; duplicates are a no-op. After a
// successful write the warning dispatcher runs synchronously.
func (p *Pipeline) Ingest(ctx context.Context, ev model.IncomingMessageEvent) error {
	m := &model.Message{
		SourceMessageID:   ev.SourceMessageID,
		ConversationID:    ev.ConversationID,
		ConversationTitle: ev.ConversationTitle,
		ConversationKind:  ev.ConversationKind,
		SenderID:          ev.SenderID,
		SenderName:        ev.SenderName,
		Text:              ev.Text,
		Length:            utf8.RuneCountInString(ev.Text),
		HasMention:        score.DetectMention(ev.Text, p.ownerUsername),
		IsQuestion:        score.DetectQuestion(ev.Text),
		ReceivedAt:        ev.ReceivedAt,
	}
	m.PriorityScore = score.Score(*m, p.isHighPriority(ev.SenderID))

	var created bool
	backoff := retry.WithMaxRetries(insertRetries, retry.NewExponential(insertRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		created, err = p.store.InsertMessage(ctx, m)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// Retries exhausted: the event is dropped, surfaced loudly.
		return fmt.Errorf("persist message after retries: %w", err)
	}
	if !created {
		p.log.Debug("duplicate event ignored",
			"conversation_id", ev.ConversationID,
			"source_message_id", ev.SourceMessageID,
		)
		return nil
	}

	// Never log message content, only its size.
	p.log.Debug("message captured",
		"message_id", m.ID,
		"conversation_id", m.ConversationID,
		"score", m.PriorityScore,
		"text_len", m.Length,
	)

	if err := p.dispatcher.ConsiderWarning(ctx, m); err != nil {
		return fmt.Errorf("consider warning: %w", err)
	}
	return nil
}

func (p *Pipeline) isHighPriority(senderID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.highPriority[senderID]
	return ok
}
