package bot

import (
	"fmt"
	"strings"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
)

const cardDivider = "━━━━━━━━━━━━━━━━━━━━"

// FormatWarning formats the real-time alert for a high-priority message.
func FormatWarning(m *model.Message) string {
	var b strings.Builder
	b.WriteString("🚨 IMPORTANT MESSAGE ALERT\n\n")
	fmt.Fprintf(&b, "👤 %s\n", senderLabel(m))
	b.WriteString(chatLine(m) + "\n")
	if m.TopicSummary != "" {
		fmt.Fprintf(&b, "🏷 Topic: %s\n", m.TopicSummary)
	}
	fmt.Fprintf(&b, "📝 %q\n", truncate(m.Text, 200))
	if line := indicatorLine(m); line != "" {
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "📈 Priority score: %d\n", m.PriorityScore)
	fmt.Fprintf(&b, "⏰ %s\n\n", m.ReceivedAt.Format("15:04 - 02/01"))
	b.WriteString("Please classify this message:")
	return b.String()
}

// FormatDigestHeader formats the opening message of a digest.
func FormatDigestHeader(d *model.Digest) string {
	return fmt.Sprintf(
		"📊 Summary of the last %d hours\n\nYou received %d messages in %d conversations.\nTop %d messages by priority score:\n\n%s",
		d.IntervalHours, d.TotalMessages, d.TotalConversations, len(d.Items), cardDivider,
	)
}

// FormatMessageCard formats one selected message within a digest.
func FormatMessageCard(item model.DigestItem, index int) string {
	m := item.Message
	var b strings.Builder
	fmt.Fprintf(&b, "%d. 👤 %s\n", index, senderLabel(&m))
	b.WriteString(chatLine(&m) + "\n")
	if item.TopicSummary != "" {
		fmt.Fprintf(&b, "🏷 Topic: %s\n", item.TopicSummary)
	}
	fmt.Fprintf(&b, "📝 %q\n", truncate(m.Text, 150))
	if line := indicatorLine(&m); line != "" {
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "📈 Score: %d\n", m.PriorityScore)
	fmt.Fprintf(&b, "⏰ %s", m.ReceivedAt.Format("15:04"))
	return b.String()
}

// FormatDigestFooter formats the closing message of a digest.
func FormatDigestFooter() string {
	return cardDivider + `

Label guide:
🔴 High — needs immediate attention
🟡 Medium — moderate importance
🟢 Low — can wait or ignore

Tap the buttons above to classify each message.`
}

// FormatEmptyDigest formats the note sent when no messages need attention.
func FormatEmptyDigest(d *model.Digest) string {
	if d.TotalMessages == 0 {
		return fmt.Sprintf("📊 Summary of the last %d hours\n\nNo new messages received. Enjoy the quiet!", d.IntervalHours)
	}
	return fmt.Sprintf(
		"📊 Summary of the last %d hours\n\nYou received %d messages, but none need your attention right now.",
		d.IntervalHours, d.TotalMessages,
	)
}

// FormatLabelConfirmation formats the edit appended after labeling.
func FormatLabelConfirmation(label model.Label) string {
	return fmt.Sprintf("%s Marked as %s priority", priorityEmoji(label), label)
}

// FormatStats formats the /stats reply.
func FormatStats(st model.Stats) string {
	var b strings.Builder
	b.WriteString("📊 Message statistics\n\n")
	fmt.Fprintf(&b, "Total messages: %d\n", st.Total)
	fmt.Fprintf(&b, "Last 24 hours: %d\n", st.Last24Hours)
	fmt.Fprintf(&b, "Labeled: %d\n\n", st.Labeled)
	b.WriteString("Label breakdown:\n")
	fmt.Fprintf(&b, "🔴 High: %d\n", st.High)
	fmt.Fprintf(&b, "🟡 Medium: %d\n", st.Medium)
	fmt.Fprintf(&b, "🟢 Low: %d\n", st.Low)
	fmt.Fprintf(&b, "⚪ Unlabeled: %d", st.Total-st.Labeled)
	return b.String()
}

// FormatSettings formats the /settings reply.
func FormatSettings(p *model.UserPreferences, warningThreshold, minScore int) string {
	var b strings.Builder
	b.WriteString("⚙️ Current settings\n\n")
	fmt.Fprintf(&b, "Summary interval: every %d hours\n", p.SummaryIntervalHours)
	fmt.Fprintf(&b, "Max messages per summary: %d\n", p.MaxMessagesPerSummary)
	fmt.Fprintf(&b, "Warning threshold score: %d\n", warningThreshold)
	fmt.Fprintf(&b, "Minimum digest score: %d\n", minScore)
	if p.QuietHours != nil {
		fmt.Fprintf(&b, "Quiet hours: %s\n", p.QuietHours)
	} else {
		b.WriteString("Quiet hours: not set\n")
	}
	if len(p.ExcludedConversations) == 0 {
		b.WriteString("Excluded conversations: none")
	} else {
		ids := make([]string, len(p.ExcludedConversations))
		for i, id := range p.ExcludedConversations {
			ids[i] = fmt.Sprintf("%d", id)
		}
		fmt.Fprintf(&b, "Excluded conversations: %s", strings.Join(ids, ", "))
	}
	return b.String()
}

// FormatHighPriorityList formats the /vip list reply.
func FormatHighPriorityList(users []model.HighPriorityUser) string {
	if len(users) == 0 {
		return "No high-priority senders registered. Use /vip add <user_id> [name]."
	}
	var b strings.Builder
	b.WriteString("High-priority senders:\n")
	for _, u := range users {
		name := u.DisplayName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "\n%d — %s", u.SenderID, name)
		if u.Notes != "" {
			fmt.Fprintf(&b, " (%s)", u.Notes)
		}
	}
	return b.String()
}

func priorityEmoji(label model.Label) string {
	switch label {
	case model.LabelHigh:
		return "🔴"
	case model.LabelMedium:
		return "🟡"
	case model.LabelLow:
		return "🟢"
	}
	return "⚪"
}

func senderLabel(m *model.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return fmt.Sprintf("User %d", m.SenderID)
}

func chatLine(m *model.Message) string {
	if m.ConversationKind == model.KindDirect {
		return "💬 Private chat"
	}
	title := m.ConversationTitle
	if title == "" {
		title = "Unknown group"
	}
	return "💬 " + title
}

func indicatorLine(m *model.Message) string {
	var indicators []string
	if m.HasMention {
		indicators = append(indicators, "📢 Mention")
	}
	if m.IsQuestion {
		indicators = append(indicators, "❓ Question")
	}
	if len(indicators) == 0 {
		return ""
	}
	return "📌 " + strings.Join(indicators, " | ")
}

func truncate(text string, limit int) string {
	if text == "" {
		return "[no text]"
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
