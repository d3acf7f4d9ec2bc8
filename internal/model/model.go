// Package model defines the domain types used across the application.
package model

import "time"

// ConversationKind classifies the chat a message arrived in.
type ConversationKind string

// Supported conversation kinds.
const (
	KindDirect     ConversationKind = "direct"
	KindGroup      ConversationKind = "group"
	KindSupergroup ConversationKind = "supergroup"
	KindChannel    ConversationKind = "channel"
)

// Label is a human-assigned priority classification.
type Label string

// Supported labels. The empty string means the message is unlabeled.
const (
	LabelHigh   Label = "high"
	LabelMedium Label = "medium"
	LabelLow    Label = "low"
)

// Valid reports whether l is one of the accepted labels.
func (l Label) Valid() bool {
	switch l {
	case LabelHigh, LabelMedium, LabelLow:
		return true
	}
	return false
}

// IncomingMessageEvent is one raw message produced by the capture source.
// Delivery is at-least-once; (ConversationID, SourceMessageID) identifies
// the event for deduplication.
type IncomingMessageEvent struct {
	SourceMessageID   int64
	ConversationID    int64
	ConversationTitle string
	ConversationKind  ConversationKind
	SenderID          int64
	SenderName        string
	Text              string
	ReceivedAt        time.Time
}

// Message is the ledger record of one captured inbound message.
type Message struct {
	ID                int64
	SourceMessageID   int64
	ConversationID    int64
	ConversationTitle string
	ConversationKind  ConversationKind
	SenderID          int64
	SenderName        string
	Text              string
	Length            int
	HasMention        bool
	IsQuestion        bool
	PriorityScore     int
	TopicSummary      string
	Label             Label
	LabeledAt         *time.Time
	WarningSent       bool
	WarningSentAt     *time.Time
	IncludedInSummary bool
	SummarySentAt     *time.Time
	ReceivedAt        time.Time
	CreatedAt         time.Time
}

// HighPriorityUser marks a sender whose messages get a scoring boost.
type HighPriorityUser struct {
	SenderID    int64
	DisplayName string
	Notes       string
	CreatedAt   time.Time
}

// QuietWindow is a time-of-day window during which warnings and summary
// ticks are suppressed. Start and End are minutes since midnight; the
// window wraps midnight when Start > End.
type QuietWindow struct {
	Start int
	End   int
}

// Contains reports whether t falls inside the window.
func (w QuietWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	switch {
	case w.Start < w.End:
		return m >= w.Start && m < w.End
	case w.Start > w.End:
		return m >= w.Start || m < w.End
	default:
		return false
	}
}

// String formats the window as "HH:MM-HH:MM".
func (w QuietWindow) String() string {
	format := func(m int) string {
		return time.Date(0, 1, 1, m/60, m%60, 0, 0, time.UTC).Format("15:04")
	}
	return format(w.Start) + "-" + format(w.End)
}

// UserPreferences holds the per-user triage configuration.
type UserPreferences struct {
	UserID                int64
	SummaryIntervalHours  int
	MaxMessagesPerSummary int
	ExcludedConversations []int64
	QuietHours            *QuietWindow
}

// IsExcluded reports whether a conversation is excluded from warnings
// and digests.
func (p *UserPreferences) IsExcluded(conversationID int64) bool {
	if p == nil {
		return false
	}
	for _, id := range p.ExcludedConversations {
		if id == conversationID {
			return true
		}
	}
	return false
}

// InQuietHours reports whether t is inside the configured quiet window.
// Returns false when no quiet hours are set.
func (p *UserPreferences) InQuietHours(t time.Time) bool {
	if p == nil || p.QuietHours == nil {
		return false
	}
	return p.QuietHours.Contains(t)
}

// DigestItem pairs a selected message with its optional topic summary.
type DigestItem struct {
	Message      Message
	TopicSummary string
}

// Digest is one periodic notification bundling selected messages.
type Digest struct {
	UserID             int64
	IntervalHours      int
	TotalMessages      int
	TotalConversations int
	Items              []DigestItem
}

// Stats summarizes the state of the message ledger.
type Stats struct {
	Total       int
	Last24Hours int
	Labeled     int
	High        int
	Medium      int
	Low         int
}
