// Package score implements the priority scoring rules for captured messages.
package score

import (
	"regexp"
	"strings"

	"github.com/DJ-Powehi/telegram-secretary/internal/model"
)

// Score weights. The total is the unweighted sum of all matching terms.
const (
	ScoreMention          = 3
	ScoreQuestion         = 2
	ScoreLongMessage      = 1
	ScoreHighPriorityUser = 2

	// LongMessageLength is the character count above which a message
	// earns the long-message term.
	LongMessageLength = 100
)

var mentionRe = regexp.MustCompile(`@\w+`)

// Question openers checked when the text does not end with a question
// mark. Includes the Portuguese set the service was originally tuned for.
var questionStarters = []string{
	"what", "when", "where", "why", "how", "who", "which",
	"is ", "are ", "do ", "does ", "can ", "could ", "would ", "will ",
	"should ", "have ", "has ", "did ",
	"que ", "qual ", "quem ", "quando ", "onde ", "como ", "por que",
	"você ", "vocês ",
}

// Score computes the priority score for a message. It is deterministic
// and performs no I/O; the high-priority decision is supplied by the
// caller from its snapshot of the registered senders.
func Score(m model.Message, isHighPriorityUser bool) int {
	total := 0
	if m.HasMention {
		total += ScoreMention
	}
	if m.IsQuestion {
		total += ScoreQuestion
	}
	if m.Length > LongMessageLength {
		total += ScoreLongMessage
	}
	if isHighPriorityUser {
		total += ScoreHighPriorityUser
	}
	return total
}

// DetectMention reports whether text contains an @mention. When username
// is non-empty, a direct mention of that user also counts.
func DetectMention(text, username string) bool {
	if text == "" {
		return false
	}
	if username != "" && strings.Contains(strings.ToLower(text), "@"+strings.ToLower(username)) {
		return true
	}
	return mentionRe.MatchString(text)
}

// DetectQuestion reports whether text looks like a question: it ends
// with a question mark or starts with a common question word.
func DetectQuestion(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, starter := range questionStarters {
		if strings.HasPrefix(lower, starter) {
			return true
		}
	}
	return false
}
