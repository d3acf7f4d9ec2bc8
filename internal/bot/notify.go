package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
)

// SendWarning delivers a real-time alert with label buttons. The error
// is returned so the dispatcher only marks the message after a
// confirmed send.
func (b *Bot) SendWarning(ctx context.Context, m *model.Message) error {
	msg := tgbotapi.NewMessage(b.cfg.ClientUserID, FormatWarning(m))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = labelKeyboard(m.ID)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send warning: %w", err)
	}
	return nil
}

// SendDigest delivers a digest as a header, one card with label buttons
// per selected message, and a footer. Any send failure aborts the digest
// so the scheduler retries the whole set on its next tick.
func (b *Bot) SendDigest(ctx context.Context, d *model.Digest) error {
	if len(d.Items) == 0 {
		msg := tgbotapi.NewMessage(d.UserID, FormatEmptyDigest(d))
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("send empty digest: %w", err)
		}
		return nil
	}

	header := tgbotapi.NewMessage(d.UserID, FormatDigestHeader(d))
	if _, err := b.api.Send(header); err != nil {
		return fmt.Errorf("send digest header: %w", err)
	}

	for i, item := range d.Items {
		card := tgbotapi.NewMessage(d.UserID, FormatMessageCard(item, i+1))
		card.DisableWebPagePreview = true
		card.ReplyMarkup = labelKeyboard(item.Message.ID)
		if _, err := b.api.Send(card); err != nil {
			return fmt.Errorf("send digest card %d: %w", i+1, err)
		}
	}

	footer := tgbotapi.NewMessage(d.UserID, FormatDigestFooter())
	if _, err := b.api.Send(footer); err != nil {
		return fmt.Errorf("send digest footer: %w", err)
	}
	return nil
}
