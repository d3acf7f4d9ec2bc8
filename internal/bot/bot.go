package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DJ-Powehi/telegram-secretary/internal/config"
	"github.com/DJ-Powehi/telegram-secretary/internal/feedback"
	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type summaryTrigger interface {
	RunTick(ctx context.Context, userID int64) error
}

type snapshotRefresher interface {
	RefreshHighPriority(ctx context.Context) error
}

// Bot is the Telegram surface of the secretary: it captures inbound
// messages for the ingestion pipeline, handles the reviewer's commands
// and label buttons, and delivers warnings and digests.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	cfg       *config.Config
	feedback  *feedback.Handler
	summaries summaryTrigger
	refresher snapshotRefresher
	events    chan model.IncomingMessageEvent
	log       *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, fb *feedback.Handler, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:      api,
		store:    store,
		cfg:      cfg,
		feedback: fb,
		events:   make(chan model.IncomingMessageEvent, 64),
		log:      log,
	}, nil
}

// SetSummaryTrigger wires the manual /summary command to the scheduler.
func (b *Bot) SetSummaryTrigger(t summaryTrigger) {
	b.summaries = t
}

// SetSnapshotRefresher wires /vip edits to the ingestion pipeline's
// high-priority snapshot.
func (b *Bot) SetSnapshotRefresher(r snapshotRefresher) {
	b.refresher = r
}

// Events exposes the captured inbound message stream consumed by the
// ingestion pipeline. The channel closes when Run returns.
func (b *Bot) Events() <-chan model.IncomingMessageEvent {
	return b.events
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			close(b.events)
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil {
				continue
			}
			if update.Message.IsCommand() {
				if update.Message.From == nil || update.Message.From.ID != b.cfg.ClientUserID {
					b.reply(update.Message.Chat.ID, "Sorry, this bot is private and only responds to its owner.")
					continue
				}
				b.handleCommand(ctx, update.Message)
				continue
			}
			b.capture(ctx, update.Message)
		}
	}
}

// capture converts a non-command message into an inbound event for the
// ingestion pipeline. Messages from the monitored user and messages
// without text are not triaged.
func (b *Bot) capture(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID == b.cfg.ClientUserID {
		return
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	ev := model.IncomingMessageEvent{
		SourceMessageID:   int64(msg.MessageID),
		ConversationID:    msg.Chat.ID,
		ConversationTitle: chatTitle(msg.Chat),
		ConversationKind:  conversationKind(msg.Chat),
		SenderID:          msg.From.ID,
		SenderName:        senderName(msg.From),
		Text:              text,
		ReceivedAt:        time.Unix(int64(msg.Date), 0).UTC(),
	}

	select {
	case b.events <- ev:
	case <-ctx.Done():
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "summary":
		b.handleSummary(ctx, chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	case "settings":
		b.handleSettings(ctx, chatID)
	case "vip":
		b.handleVIP(ctx, chatID, args)
	case "exclude":
		b.handleExclude(ctx, chatID, args)
	case "unexclude":
		b.handleUnexclude(ctx, chatID, args)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case "quiet":
		b.handleQuiet(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func chatTitle(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}

func senderName(from *tgbotapi.User) string {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.UserName
	}
	return name
}

func conversationKind(chat *tgbotapi.Chat) model.ConversationKind {
	switch {
	case chat.IsPrivate():
		return model.KindDirect
	case chat.IsSuperGroup():
		return model.KindSupergroup
	case chat.IsChannel():
		return model.KindChannel
	default:
		return model.KindGroup
	}
}
