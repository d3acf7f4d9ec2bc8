package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
	"github.com/DJ-Powehi/telegram-secretary/internal/summarize"
)

const testUserID = int64(7)

type mockSink struct {
	mu      sync.Mutex
	digests []*model.Digest
	err     error
	onSend  func()
}

func (s *mockSink) SendDigest(_ context.Context, d *model.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.digests = append(s.digests, d)
	if s.onSend != nil {
		s.onSend()
	}
	return nil
}

func (s *mockSink) last(t *testing.T) *model.Digest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.digests) == 0 {
		t.Fatal("no digest was sent")
	}
	return s.digests[len(s.digests)-1]
}

type mockSummarizer struct {
	topic string
	err   error
}

func (m *mockSummarizer) Summarize(context.Context, string) (string, error) {
	return m.topic, m.err
}

func newTestScheduler(t *testing.T) (*Scheduler, *storage.SQLite, *mockSink) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sink := &mockSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(store, sink, summarize.Disabled{}, 1, 4, 15, log)
	return s, store, sink
}

func startAt(t *testing.T, s *Scheduler, at time.Time) {
	t.Helper()
	s.SetNow(func() time.Time { return at })
	if err := s.StartUser(context.Background(), testUserID); err != nil {
		t.Fatalf("start user: %v", err)
	}
	t.Cleanup(s.Stop)
}

func insertScored(t *testing.T, store *storage.SQLite, source int64, score int, received time.Time) *model.Message {
	t.Helper()
	m := &model.Message{
		SourceMessageID: source,
		ConversationID:  10,
		SenderID:        42,
		Text:            "hello",
		Length:          5,
		PriorityScore:   score,
		ReceivedAt:      received,
		CreatedAt:       received,
	}
	if _, err := store.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return m
}

func TestTickSelectsAndMarks(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)

	prefs := &model.UserPreferences{UserID: testUserID, SummaryIntervalHours: 4, MaxMessagesPerSummary: 2}
	if err := store.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("save prefs: %v", err)
	}

	m1 := insertScored(t, store, 1, 5, start.Add(time.Minute))
	m2 := insertScored(t, store, 2, 5, start.Add(2*time.Minute))
	m3 := insertScored(t, store, 3, 2, start.Add(3*time.Minute))

	tickAt := start.Add(4 * time.Hour)
	s.SetNow(func() time.Time { return tickAt })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("tick: %v", err)
	}

	d := sink.last(t)
	var sources []int64
	for _, it := range d.Items {
		sources = append(sources, it.Message.SourceMessageID)
	}
	// Highest score first, older first among equals, capped at two.
	if diff := cmp.Diff([]int64{1, 2}, sources); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if d.TotalMessages != 3 || d.TotalConversations != 1 {
		t.Errorf("totals = (%d, %d), want (3, 1)", d.TotalMessages, d.TotalConversations)
	}

	for _, m := range []*model.Message{m1, m2} {
		got, err := store.GetMessage(ctx, m.ID)
		if err != nil {
			t.Fatalf("get %d: %v", m.ID, err)
		}
		if !got.IncludedInSummary {
			t.Errorf("message %d not marked after digest", m.ID)
		}
	}
	got3, err := store.GetMessage(ctx, m3.ID)
	if err != nil {
		t.Fatalf("get %d: %v", m3.ID, err)
	}
	if got3.IncludedInSummary {
		t.Error("unselected message marked")
	}

	// The next tick picks up the leftover from its new window start.
	s.SetNow(func() time.Time { return tickAt.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	d = sink.last(t)
	if len(d.Items) != 0 {
		t.Errorf("second digest selected %d items, want 0 (leftover is outside the window)", len(d.Items))
	}
}

func TestTickWindowNeverBeforeStart(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// Captured before the task started; must never surface.
	insertScored(t, store, 1, 9, start.Add(-time.Hour))
	startAt(t, s, start)

	s.SetNow(func() time.Time { return start.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if d := sink.last(t); len(d.Items) != 0 {
		t.Errorf("digest selected %d pre-start items, want 0", len(d.Items))
	}
}

func TestTickSendFailureLeavesUnmarked(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)
	m := insertScored(t, store, 1, 5, start.Add(time.Minute))

	sink.err = errors.New("telegram unavailable")
	s.SetNow(func() time.Time { return start.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err == nil {
		t.Fatal("expected error from failed send")
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IncludedInSummary {
		t.Fatal("message marked despite failed send")
	}

	// The window did not advance, so the same message is re-offered.
	sink.err = nil
	s.SetNow(func() time.Time { return start.Add(8 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("retry tick: %v", err)
	}
	d := sink.last(t)
	if len(d.Items) != 1 || d.Items[0].Message.ID != m.ID {
		t.Errorf("retry digest did not re-offer the unsent message")
	}
}

func TestTickQuietHoursSkipped(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)

	prefs := &model.UserPreferences{
		UserID:                testUserID,
		SummaryIntervalHours:  4,
		MaxMessagesPerSummary: 15,
		QuietHours:            &model.QuietWindow{Start: 22 * 60, End: 6 * 60},
	}
	if err := store.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("save prefs: %v", err)
	}
	m := insertScored(t, store, 1, 5, start.Add(time.Minute))

	// A tick at 23:00 is swallowed whole, with nothing deferred or marked.
	s.SetNow(func() time.Time { return time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("quiet tick: %v", err)
	}
	sink.mu.Lock()
	sent := len(sink.digests)
	sink.mu.Unlock()
	if sent != 0 {
		t.Fatal("digest sent during quiet hours")
	}

	// The next daytime tick still covers the whole window since start.
	s.SetNow(func() time.Time { return time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("daytime tick: %v", err)
	}
	d := sink.last(t)
	if len(d.Items) != 1 || d.Items[0].Message.ID != m.ID {
		t.Error("message captured before quiet tick was lost")
	}
}

func TestTickEmptyWindow(t *testing.T) {
	ctx := context.Background()
	s, _, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)

	s.SetNow(func() time.Time { return start.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// An empty window still produces a digest so the sink can report it.
	d := sink.last(t)
	if len(d.Items) != 0 || d.TotalMessages != 0 {
		t.Errorf("empty window digest = %d items, %d total", len(d.Items), d.TotalMessages)
	}
}

func TestTickTopicEnrichment(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)
	s.summarizer = &mockSummarizer{topic: "project deadline"}

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)
	m := insertScored(t, store, 1, 5, start.Add(time.Minute))

	s.SetNow(func() time.Time { return start.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("tick: %v", err)
	}

	d := sink.last(t)
	if len(d.Items) != 1 {
		t.Fatalf("digest has %d items, want 1", len(d.Items))
	}
	if diff := cmp.Diff("project deadline", d.Items[0].TopicSummary); diff != "" {
		t.Errorf("topic mismatch (-want +got):\n%s", diff)
	}

	// The topic is persisted so the next enrichment is a cache hit.
	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TopicSummary != "project deadline" {
		t.Errorf("stored topic = %q", got.TopicSummary)
	}
}

func TestTickSummarizerUnavailable(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)
	insertScored(t, store, 1, 5, start.Add(time.Minute))

	s.SetNow(func() time.Time { return start.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Enrichment being unavailable degrades to an empty topic, never an
	// error.
	d := sink.last(t)
	if len(d.Items) != 1 || d.Items[0].TopicSummary != "" {
		t.Errorf("digest items = %+v, want one item with empty topic", d.Items)
	}
}

func TestStartUserTwice(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	startAt(t, s, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	if err := s.StartUser(context.Background(), testUserID); err == nil {
		t.Error("second StartUser should fail")
	}
}

func TestRunTickWithoutTask(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if err := s.RunTick(context.Background(), testUserID); err == nil {
		t.Error("RunTick without a started task should fail")
	}
}

func TestTickOverlapSkipped(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t)
	startAt(t, s, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	s.mu.Lock()
	tk := s.tasks[testUserID]
	s.mu.Unlock()

	// Simulate a tick still in flight; the overlapping one is a no-op.
	tk.running.Store(true)
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("overlapping tick: %v", err)
	}
	tk.running.Store(false)
}

func TestTickPicksUpMessagePersistedMidTick(t *testing.T) {
	ctx := context.Background()
	s, store, sink := newTestScheduler(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	startAt(t, s, start)

	insertScored(t, store, 1, 5, start.Add(time.Minute))

	// While the first digest is being sent, a new message lands whose
	// receive time sits just inside the closing window. Its creation
	// stamp is past the candidate query, so the next window owns it.
	tick1 := start.Add(4 * time.Hour)
	sink.onSend = func() {
		late := &model.Message{
			SourceMessageID: 2,
			ConversationID:  10,
			SenderID:        42,
			Text:            "hello",
			Length:          5,
			PriorityScore:   5,
			ReceivedAt:      tick1.Add(-time.Minute),
			CreatedAt:       tick1.Add(time.Second),
		}
		if _, err := store.InsertMessage(context.Background(), late); err != nil {
			t.Errorf("insert during send: %v", err)
		}
	}

	s.SetNow(func() time.Time { return tick1 })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	sink.onSend = nil

	s.SetNow(func() time.Time { return tick1.Add(4 * time.Hour) })
	if err := s.RunTick(ctx, testUserID); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	d := sink.last(t)
	if len(d.Items) != 1 || d.Items[0].Message.SourceMessageID != 2 {
		t.Fatalf("second digest missed the message persisted mid-tick: %+v", d.Items)
	}
}
