// Package warn decides whether a captured message triggers an immediate alert.
package warn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

// Notifier delivers warning alerts to the monitored user.
type Notifier interface {
	SendWarning(ctx context.Context, m *model.Message) error
}

// Dispatcher evaluates messages against the warning policy and enforces
// at-most-once delivery per message.
type Dispatcher struct {
	store     storage.Storage
	notifier  Notifier
	userID    int64
	threshold int
	log       *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// New creates a Dispatcher for the given recipient and score threshold.
func New(store storage.Storage, notifier Notifier, userID int64, threshold int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		notifier:  notifier,
		userID:    userID,
		threshold: threshold,
		log:       log,
		now:       time.Now,
		locks:     make(map[int64]*lockEntry),
	}
}

// SetNow overrides the clock (useful for testing quiet hours).
func (d *Dispatcher) SetNow(now func() time.Time) {
	d.now = now
}

// ConsiderWarning emits at most one alert for the message. It fires only
// when the score meets the threshold, the message has not been warned,
// the conversation is not excluded, and the current time is outside the
// recipient's quiet hours. A message suppressed by quiet hours is never
// retroactively warned. The warning flag is set only after a confirmed
// send; the whole check-send-set sequence is serialized per message.
func (d *Dispatcher) ConsiderWarning(ctx context.Context, m *model.Message) error {
	if m.PriorityScore < d.threshold {
		return nil
	}

	release := d.acquire(m.ID)
	defer release()

	// Fresh read so a claim by a concurrent evaluation is respected.
	current, err := d.store.GetMessage(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if current.WarningSent {
		return nil
	}

	prefs, err := d.store.GetPreferences(ctx, d.userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load preferences: %w", err)
	}
	if prefs.IsExcluded(current.ConversationID) {
		return nil
	}

	now := d.now()
	if prefs.InQuietHours(now) {
		d.log.Debug("warning suppressed by quiet hours", "message_id", current.ID)
		return nil
	}

	if err := d.notifier.SendWarning(ctx, current); err != nil {
		return fmt.Errorf("send warning: %w", err)
	}

	// The flag write must not be torn by shutdown once the alert went out.
	claimed, err := d.store.MarkWarningSent(context.WithoutCancel(ctx), current.ID, now)
	if err != nil {
		return fmt.Errorf("mark warning sent: %w", err)
	}
	if !claimed {
		d.log.Warn("warning already claimed elsewhere", "message_id", current.ID)
		return nil
	}

	at := now.UTC()
	m.WarningSent = true
	m.WarningSentAt = &at
	d.log.Info("warning sent", "message_id", current.ID, "score", current.PriorityScore)
	return nil
}

func (d *Dispatcher) acquire(id int64) func() {
	d.mu.Lock()
	e, ok := d.locks[id]
	if !ok {
		e = &lockEntry{}
		d.locks[id] = e
	}
	e.refs++
	d.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		d.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(d.locks, id)
		}
		d.mu.Unlock()
	}
}
