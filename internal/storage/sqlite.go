package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertMessage inserts a message, populating its ID. CreatedAt is
// stamped with the current time unless already set. A duplicate
// (conversation_id, source_message_id) pair is ignored and reported as
// not created.
func (s *SQLite) InsertMessage(ctx context.Context, m *model.Message) (bool, error) {
	created := m.CreatedAt.UTC()
	if m.CreatedAt.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (
		     source_message_id, conversation_id, conversation_title, conversation_kind,
		     sender_id, sender_name, text, length, has_mention, is_question,
		     priority_score, topic_summary, received_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SourceMessageID, m.ConversationID, m.ConversationTitle, string(m.ConversationKind),
		m.SenderID, m.SenderName, m.Text, m.Length, boolToInt(m.HasMention), boolToInt(m.IsQuestion),
		m.PriorityScore, nullString(m.TopicSummary),
		m.ReceivedAt.UTC().Format(timeLayout), created.Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	m.CreatedAt, _ = time.Parse(timeLayout, created.Format(timeLayout))
	return true, nil
}

// GetMessage returns a single message by its ID.
func (s *SQLite) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, selectMessage+` WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// MarkWarningSent flips the warning flag for a message that has not been
// warned yet. The conditional update is the linearization point for
// at-most-once warning delivery.
func (s *SQLite) MarkWarningSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET warning_sent = 1, warning_sent_at = ?
		 WHERE id = ? AND warning_sent = 0`,
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark warning sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetTopicSummary stores the enrichment result for a message.
func (s *SQLite) SetTopicSummary(ctx context.Context, id int64, topic string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET topic_summary = ? WHERE id = ?`, topic, id,
	)
	if err != nil {
		return fmt.Errorf("set topic summary: %w", err)
	}
	return nil
}

// MarkIncludedInSummary marks all given messages as reported in a single
// transaction, so a digest is never partially recorded.
func (s *SQLite) MarkIncludedInSummary(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := at.UTC().Format(timeLayout)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET included_in_summary = 1, summary_sent_at = ?
			 WHERE id = ? AND included_in_summary = 0`,
			stamp, id,
		); err != nil {
			return fmt.Errorf("mark included in summary: %w", err)
		}
	}
	return tx.Commit()
}

// ApplyLabel overwrites the label of a message; the last write wins.
func (s *SQLite) ApplyLabel(ctx context.Context, id int64, label model.Label, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET label = ?, labeled_at = ? WHERE id = ?`,
		string(label), at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("apply label: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListDigestCandidates returns unreported messages at or above minScore
// captured since the given time, excluding the user's muted conversations,
// ordered by score descending with older messages first among equals.
// The window filters on created_at, not received_at: a row persisted while
// a digest tick is running carries a creation stamp past the tick's window
// end, so it is always covered by a later window even when its receive
// time predates it.
func (s *SQLite) ListDigestCandidates(ctx context.Context, userID int64, since time.Time, minScore, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMessage+`
		 WHERE included_in_summary = 0
		   AND priority_score >= ?
		   AND created_at >= ?
		   AND conversation_id NOT IN (
		       SELECT conversation_id FROM excluded_conversations WHERE user_id = ?)
		 ORDER BY priority_score DESC, received_at ASC
		 LIMIT ?`,
		minScore, since.UTC().Format(timeLayout), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query digest candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// CountMessagesSince returns the number of messages and distinct
// conversations captured since the given time, on the same created_at
// window as ListDigestCandidates.
func (s *SQLite) CountMessagesSince(ctx context.Context, since time.Time) (int, int, error) {
	var messages, conversations int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT conversation_id)
		 FROM messages WHERE created_at >= ?`,
		since.UTC().Format(timeLayout),
	).Scan(&messages, &conversations)
	if err != nil {
		return 0, 0, fmt.Errorf("count messages: %w", err)
	}
	return messages, conversations, nil
}

// Stats returns ledger totals and the label breakdown.
func (s *SQLite) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN label IS NOT NULL THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN label = 'high' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN label = 'medium' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN label = 'low' THEN 1 ELSE 0 END), 0)
		 FROM messages`,
	).Scan(&st.Total, &st.Labeled, &st.High, &st.Medium, &st.Low)
	if err != nil {
		return model.Stats{}, fmt.Errorf("query stats: %w", err)
	}

	dayAgo := time.Now().UTC().Add(-24 * time.Hour).Format(timeLayout)
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE received_at >= ?`, dayAgo,
	).Scan(&st.Last24Hours)
	if err != nil {
		return model.Stats{}, fmt.Errorf("query recent count: %w", err)
	}
	return st, nil
}

// GetPreferences returns the preferences for a user, including the
// excluded-conversation set.
func (s *SQLite) GetPreferences(ctx context.Context, userID int64) (*model.UserPreferences, error) {
	var p model.UserPreferences
	var quietStart, quietEnd sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, summary_interval_hours, max_messages_per_summary,
		        quiet_hours_start, quiet_hours_end
		 FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.SummaryIntervalHours, &p.MaxMessagesPerSummary, &quietStart, &quietEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preferences for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	if quietStart.Valid && quietEnd.Valid {
		p.QuietHours = &model.QuietWindow{Start: int(quietStart.Int64), End: int(quietEnd.Int64)}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id FROM excluded_conversations WHERE user_id = ? ORDER BY conversation_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query excluded conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan excluded conversation: %w", err)
		}
		p.ExcludedConversations = append(p.ExcludedConversations, id)
	}
	return &p, rows.Err()
}

// SavePreferences inserts or updates the preference row for a user.
// The excluded-conversation set is managed separately.
func (s *SQLite) SavePreferences(ctx context.Context, p *model.UserPreferences) error {
	var quietStart, quietEnd any
	if p.QuietHours != nil {
		quietStart, quietEnd = p.QuietHours.Start, p.QuietHours.End
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (
		     user_id, summary_interval_hours, max_messages_per_summary,
		     quiet_hours_start, quiet_hours_end)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     summary_interval_hours = excluded.summary_interval_hours,
		     max_messages_per_summary = excluded.max_messages_per_summary,
		     quiet_hours_start = excluded.quiet_hours_start,
		     quiet_hours_end = excluded.quiet_hours_end`,
		p.UserID, p.SummaryIntervalHours, p.MaxMessagesPerSummary, quietStart, quietEnd,
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// AddExcludedConversation mutes a conversation for a user.
func (s *SQLite) AddExcludedConversation(ctx context.Context, userID, conversationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO excluded_conversations (user_id, conversation_id) VALUES (?, ?)`,
		userID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("add excluded conversation: %w", err)
	}
	return nil
}

// RemoveExcludedConversation unmutes a conversation for a user.
func (s *SQLite) RemoveExcludedConversation(ctx context.Context, userID, conversationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM excluded_conversations WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("remove excluded conversation: %w", err)
	}
	return nil
}

// AddHighPriorityUser registers a sender for the scoring boost,
// overwriting any previous entry.
func (s *SQLite) AddHighPriorityUser(ctx context.Context, u *model.HighPriorityUser) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO high_priority_users (sender_id, display_name, notes, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(sender_id) DO UPDATE SET
		     display_name = excluded.display_name,
		     notes = excluded.notes`,
		u.SenderID, u.DisplayName, u.Notes, now,
	)
	if err != nil {
		return fmt.Errorf("add high priority user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// RemoveHighPriorityUser deletes a sender from the high-priority table.
func (s *SQLite) RemoveHighPriorityUser(ctx context.Context, senderID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM high_priority_users WHERE sender_id = ?`, senderID,
	)
	if err != nil {
		return fmt.Errorf("remove high priority user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("high priority user %d: %w", senderID, ErrNotFound)
	}
	return nil
}

// ListHighPriorityUsers returns all registered high-priority senders.
func (s *SQLite) ListHighPriorityUsers(ctx context.Context) ([]model.HighPriorityUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_id, display_name, notes, created_at
		 FROM high_priority_users ORDER BY sender_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query high priority users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.HighPriorityUser
	for rows.Next() {
		var u model.HighPriorityUser
		var created string
		if err := rows.Scan(&u.SenderID, &u.DisplayName, &u.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan high priority user: %w", err)
		}
		u.CreatedAt, _ = time.Parse(timeLayout, created)
		users = append(users, u)
	}
	return users, rows.Err()
}

const selectMessage = `SELECT id, source_message_id, conversation_id, conversation_title,
       conversation_kind, sender_id, sender_name, text, length, has_mention, is_question,
       priority_score, topic_summary, label, labeled_at, warning_sent, warning_sent_at,
       included_in_summary, summary_sent_at, received_at, created_at
  FROM messages`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (*model.Message, error) {
	var m model.Message
	var kind string
	var hasMention, isQuestion, warningSent, included int
	var topic, label, labeledAt, warnedAt, summaryAt sql.NullString
	var received, created string

	err := row.Scan(
		&m.ID, &m.SourceMessageID, &m.ConversationID, &m.ConversationTitle,
		&kind, &m.SenderID, &m.SenderName, &m.Text, &m.Length, &hasMention, &isQuestion,
		&m.PriorityScore, &topic, &label, &labeledAt, &warningSent, &warnedAt,
		&included, &summaryAt, &received, &created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	m.ConversationKind = model.ConversationKind(kind)
	m.HasMention = hasMention == 1
	m.IsQuestion = isQuestion == 1
	m.WarningSent = warningSent == 1
	m.IncludedInSummary = included == 1
	m.TopicSummary = topic.String
	m.Label = model.Label(label.String)
	m.LabeledAt = parseNullTime(labeledAt)
	m.WarningSentAt = parseNullTime(warnedAt)
	m.SummarySentAt = parseNullTime(summaryAt)
	m.ReceivedAt, _ = time.Parse(timeLayout, received)
	m.CreatedAt, _ = time.Parse(timeLayout, created)
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
