package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DJ-Powehi/telegram-secretary/internal/config"
	"github.com/DJ-Powehi/telegram-secretary/internal/feedback"
	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

const ownerID = int64(7)

type mockAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
	err  error
}

func (a *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return tgbotapi.Message{}, a.err
	}
	a.sent = append(a.sent, c)
	return tgbotapi.Message{}, nil
}

func (a *mockAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (a *mockAPI) StopReceivingUpdates() {}

// sentTexts returns the text of every message and edit sent so far.
func (a *mockAPI) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var texts []string
	for _, c := range a.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			texts = append(texts, v.Text)
		case tgbotapi.EditMessageTextConfig:
			texts = append(texts, v.Text)
		}
	}
	return texts
}

func newTestBot(t *testing.T) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &mockAPI{}
	b := &Bot{
		api:      api,
		store:    store,
		cfg:      &config.Config{ClientUserID: ownerID},
		feedback: feedback.New(store),
		events:   make(chan model.IncomingMessageEvent, 8),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, store
}

func insertTestMessage(t *testing.T, store *storage.SQLite) *model.Message {
	t.Helper()
	m := &model.Message{
		SourceMessageID: 1,
		ConversationID:  10,
		SenderID:        42,
		SenderName:      "Alice",
		Text:            "ping",
		Length:          4,
		PriorityScore:   6,
		ReceivedAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, err := store.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return m
}

func labelCallback(from int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{
			MessageID: 55,
			Chat:      &tgbotapi.Chat{ID: from},
			Text:      "original card",
		},
		Data: data,
	}
}

func TestHandleCallbackAppliesLabel(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	m := insertTestMessage(t, store)

	data := "label:" + strconv.FormatInt(m.ID, 10) + ":high"
	b.handleCallback(ctx, labelCallback(ownerID, data))

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != model.LabelHigh {
		t.Errorf("label = %q, want high", got.Label)
	}

	// The original card is edited with a confirmation.
	var edited bool
	for _, text := range api.sentTexts() {
		if strings.Contains(text, "original card") && strings.Contains(text, "Marked as high priority") {
			edited = true
		}
	}
	if !edited {
		t.Errorf("no confirmation edit sent; texts: %q", api.sentTexts())
	}
}

func TestHandleCallbackUnknownMessage(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t)

	b.handleCallback(ctx, labelCallback(ownerID, "label:404:low"))

	var replied bool
	for _, text := range api.sentTexts() {
		if strings.Contains(text, "Message 404 not found") {
			replied = true
		}
	}
	if !replied {
		t.Errorf("missing not-found reply; texts: %q", api.sentTexts())
	}
}

func TestHandleCallbackIgnoresStrangers(t *testing.T) {
	ctx := context.Background()
	b, _, store := newTestBot(t)
	m := insertTestMessage(t, store)

	data := "label:" + strconv.FormatInt(m.ID, 10) + ":high"
	b.handleCallback(ctx, labelCallback(ownerID+1, data))

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "" {
		t.Errorf("stranger's callback applied a label: %q", got.Label)
	}
}

func TestHandleCallbackWithoutMessage(t *testing.T) {
	ctx := context.Background()
	b, _, store := newTestBot(t)
	m := insertTestMessage(t, store)

	// Telegram drops the message from callbacks older than 48 hours.
	cb := &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: ownerID},
		Data: "label:" + strconv.FormatInt(m.ID, 10) + ":high",
	}
	b.handleCallback(ctx, cb)

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "" {
		t.Errorf("callback without message applied a label: %q", got.Label)
	}
}

func TestHandleCallbackMalformedData(t *testing.T) {
	ctx := context.Background()
	b, _, store := newTestBot(t)
	m := insertTestMessage(t, store)

	for _, data := range []string{"", "label:", "label:abc:high", "other:1:high"} {
		b.handleCallback(ctx, labelCallback(ownerID, data))
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "" {
		t.Errorf("malformed callback applied a label: %q", got.Label)
	}
}

func TestSendDigest(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t)

	d := &model.Digest{
		UserID:             ownerID,
		IntervalHours:      4,
		TotalMessages:      2,
		TotalConversations: 1,
		Items: []model.DigestItem{
			{Message: *sampleMessage()},
			{Message: *sampleMessage(), TopicSummary: "release review"},
		},
	}
	if err := b.SendDigest(ctx, d); err != nil {
		t.Fatalf("send digest: %v", err)
	}

	// Header, one card per item, footer.
	texts := api.sentTexts()
	if len(texts) != 4 {
		t.Fatalf("sent %d messages, want 4: %q", len(texts), texts)
	}
	if !strings.Contains(texts[0], "Summary of the last 4 hours") {
		t.Errorf("header wrong: %q", texts[0])
	}
	if !strings.Contains(texts[3], "Label guide") {
		t.Errorf("footer wrong: %q", texts[3])
	}
}

func TestSendDigestEmpty(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t)

	d := &model.Digest{UserID: ownerID, IntervalHours: 4}
	if err := b.SendDigest(ctx, d); err != nil {
		t.Fatalf("send empty digest: %v", err)
	}

	texts := api.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "No new messages received") {
		t.Errorf("empty digest texts: %q", texts)
	}
}

func TestSendWarningFailure(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	m := insertTestMessage(t, store)

	api.err = errors.New("telegram unavailable")
	if err := b.SendWarning(ctx, m); err == nil {
		t.Error("expected error when the API send fails")
	}
}

