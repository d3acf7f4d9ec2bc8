package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := New(store)
	h.now = func() time.Time {
		return time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	}
	return h, store
}

func insertMessage(t *testing.T, store *storage.SQLite) *model.Message {
	t.Helper()
	m := &model.Message{
		SourceMessageID: 1,
		ConversationID:  10,
		SenderID:        42,
		Text:            "ping",
		Length:          4,
		ReceivedAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, err := store.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return m
}

func TestApplyLabel(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandler(t)
	m := insertMessage(t, store)

	if err := h.ApplyLabel(ctx, m.ID, model.LabelHigh); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(model.LabelHigh, got.Label); diff != "" {
		t.Errorf("label mismatch (-want +got):\n%s", diff)
	}
	wantAt := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	if got.LabeledAt == nil || !got.LabeledAt.Equal(wantAt) {
		t.Errorf("labeled_at = %v, want %v", got.LabeledAt, wantAt)
	}
}

func TestApplyLabelRelabel(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandler(t)
	m := insertMessage(t, store)

	if err := h.ApplyLabel(ctx, m.ID, model.LabelHigh); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := h.ApplyLabel(ctx, m.ID, model.LabelMedium); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(model.LabelMedium, got.Label); diff != "" {
		t.Errorf("relabel mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyLabelInvalid(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandler(t)
	m := insertMessage(t, store)

	if err := h.ApplyLabel(ctx, m.ID, model.Label("urgent")); err == nil {
		t.Fatal("expected error for unknown label")
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "" || got.LabeledAt != nil {
		t.Errorf("invalid label mutated the message: label=%q labeledAt=%v", got.Label, got.LabeledAt)
	}
}

func TestApplyLabelUnknownMessage(t *testing.T) {
	h, _ := newTestHandler(t)
	err := h.ApplyLabel(context.Background(), 404, model.LabelLow)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want storage.ErrNotFound", err)
	}
}
