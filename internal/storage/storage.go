// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// InsertMessage persists a new message. It reports false without
	// error when a row for the same (conversation, source message) pair
	// already exists, making duplicate delivery a no-op.
	InsertMessage(ctx context.Context, m *model.Message) (bool, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)

	// MarkWarningSent flips warning_sent false to true. It reports false
	// when the message was already marked, so concurrent callers resolve
	// to exactly one winner.
	MarkWarningSent(ctx context.Context, id int64, at time.Time) (bool, error)
	SetTopicSummary(ctx context.Context, id int64, topic string) error
	// MarkIncludedInSummary marks all given messages in one transaction.
	MarkIncludedInSummary(ctx context.Context, ids []int64, at time.Time) error
	ApplyLabel(ctx context.Context, id int64, label model.Label, at time.Time) error

	// ListDigestCandidates and CountMessagesSince window on row-creation
	// time, so a message persisted mid-tick always lands in a later
	// window regardless of its receive time.
	ListDigestCandidates(ctx context.Context, userID int64, since time.Time, minScore, limit int) ([]model.Message, error)
	CountMessagesSince(ctx context.Context, since time.Time) (messages, conversations int, err error)
	Stats(ctx context.Context) (model.Stats, error)

	GetPreferences(ctx context.Context, userID int64) (*model.UserPreferences, error)
	SavePreferences(ctx context.Context, p *model.UserPreferences) error
	AddExcludedConversation(ctx context.Context, userID, conversationID int64) error
	RemoveExcludedConversation(ctx context.Context, userID, conversationID int64) error

	AddHighPriorityUser(ctx context.Context, u *model.HighPriorityUser) error
	RemoveHighPriorityUser(ctx context.Context, senderID int64) error
	ListHighPriorityUsers(ctx context.Context) ([]model.HighPriorityUser, error)

	Close() error
}
