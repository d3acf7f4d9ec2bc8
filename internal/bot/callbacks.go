package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
)

const labelCallbackPrefix = "label"

// labelKeyboard builds the classification buttons attached to warning
// and digest cards. Callback data format: "label:{message_id}:{label}".
func labelKeyboard(messageID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔴 High", fmt.Sprintf("%s:%d:%s", labelCallbackPrefix, messageID, model.LabelHigh)),
			tgbotapi.NewInlineKeyboardButtonData("🟡 Medium", fmt.Sprintf("%s:%d:%s", labelCallbackPrefix, messageID, model.LabelMedium)),
			tgbotapi.NewInlineKeyboardButtonData("🟢 Low", fmt.Sprintf("%s:%d:%s", labelCallbackPrefix, messageID, model.LabelLow)),
		),
	)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	if cb.From == nil || cb.From.ID != b.cfg.ClientUserID {
		return
	}
	// Telegram omits the message on callbacks older than 48 hours.
	if cb.Message == nil {
		return
	}

	parts := strings.SplitN(cb.Data, ":", 3)
	if len(parts) != 3 || parts[0] != labelCallbackPrefix {
		return
	}
	messageID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}
	label := model.Label(parts[2])

	chatID := cb.Message.Chat.ID
	if err := b.feedback.ApplyLabel(ctx, messageID, label); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Message %d not found.", messageID))
			return
		}
		b.log.Error("apply label", "message_id", messageID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error applying label: %v", err))
		return
	}

	b.log.Info("message labeled", "message_id", messageID, "label", label)

	// Replace the buttons with a confirmation on the original card.
	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID,
		cb.Message.Text+"\n\n"+FormatLabelConfirmation(label))
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("edit labeled message", "message_id", messageID, "error", err)
	}
}
