package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, fmt.Sprintf(`Telegram Secretary

I capture your incoming messages, warn you immediately about important
ones, and send a digest of the rest every %d hours. Label each message
with the buttons so I learn what matters to you.

Use /help for the full command reference.`, b.cfg.SummaryIntervalHours))
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/summary — compile and send a digest now
/stats — message and label statistics
/settings — current triage settings

VIP senders (scoring boost):
/vip add <user_id> [name] — register a high-priority sender
/vip remove <user_id> — unregister
/vip list — show registered senders

Preferences:
/exclude <conversation_id> — mute a conversation
/unexclude <conversation_id> — unmute it
/interval <hours> — set the digest cadence (1-168)
/quiet <HH:MM-HH:MM> — set quiet hours (wraps midnight)
/quiet off — clear quiet hours`)
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64) {
	if b.summaries == nil {
		b.reply(chatID, "Summaries are not running.")
		return
	}
	b.reply(chatID, "Generating summary...")
	if err := b.summaries.RunTick(ctx, b.cfg.ClientUserID); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to generate summary: %v", err))
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(stats))
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64) {
	prefs := b.currentPreferences(ctx)
	b.reply(chatID, FormatSettings(prefs, b.cfg.WarningThresholdScore, b.cfg.MinPriorityScore))
}

func (b *Bot) handleVIP(ctx context.Context, chatID int64, args string) {
	sub, rest, err := ParseVIPArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	switch sub {
	case "add":
		id, name, err := ParseVIPAddArgs(rest)
		if err != nil {
			b.reply(chatID, err.Error())
			return
		}
		u := &model.HighPriorityUser{SenderID: id, DisplayName: name}
		if err := b.store.AddHighPriorityUser(ctx, u); err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.refreshSnapshot(ctx)
		b.reply(chatID, fmt.Sprintf("Sender %d registered as high priority.", id))
	case "remove":
		id, err := ParseIDArg(rest)
		if err != nil {
			b.reply(chatID, "Usage: /vip remove <user_id>")
			return
		}
		if err := b.store.RemoveHighPriorityUser(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				b.reply(chatID, fmt.Sprintf("Sender %d is not registered.", id))
				return
			}
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.refreshSnapshot(ctx)
		b.reply(chatID, fmt.Sprintf("Sender %d removed from high priority.", id))
	case "list":
		users, err := b.store.ListHighPriorityUsers(ctx)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, FormatHighPriorityList(users))
	}
}

func (b *Bot) handleExclude(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /exclude <conversation_id>")
		return
	}
	if err := b.store.AddExcludedConversation(ctx, b.cfg.ClientUserID, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Conversation %d excluded from warnings and digests.", id))
}

func (b *Bot) handleUnexclude(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unexclude <conversation_id>")
		return
	}
	if err := b.store.RemoveExcludedConversation(ctx, b.cfg.ClientUserID, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Conversation %d is no longer excluded.", id))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	hours, err := ParseIntervalArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	prefs := b.currentPreferences(ctx)
	prefs.SummaryIntervalHours = hours
	if err := b.store.SavePreferences(ctx, prefs); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Digest interval set to %d hours. Applies from the next tick.", hours))
}

func (b *Bot) handleQuiet(ctx context.Context, chatID int64, args string) {
	prefs := b.currentPreferences(ctx)

	if args == "off" {
		prefs.QuietHours = nil
		if err := b.store.SavePreferences(ctx, prefs); err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, "Quiet hours cleared.")
		return
	}

	window, err := model.ParseQuietWindow(args)
	if err != nil {
		b.reply(chatID, "Usage: /quiet <HH:MM-HH:MM> or /quiet off")
		return
	}
	prefs.QuietHours = window
	if err := b.store.SavePreferences(ctx, prefs); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Quiet hours set to %s.", window))
}

// currentPreferences loads the owner's preference row, falling back to
// configured defaults when none exists yet.
func (b *Bot) currentPreferences(ctx context.Context) *model.UserPreferences {
	prefs, err := b.store.GetPreferences(ctx, b.cfg.ClientUserID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("load preferences", "error", err)
		}
		return b.cfg.DefaultPreferences()
	}
	return prefs
}

func (b *Bot) refreshSnapshot(ctx context.Context) {
	if b.refresher == nil {
		return
	}
	if err := b.refresher.RefreshHighPriority(ctx); err != nil {
		b.log.Error("refresh high priority snapshot", "error", err)
	}
}
