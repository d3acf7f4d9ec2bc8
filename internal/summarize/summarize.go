// Package summarize provides the optional topic-summary enrichment.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable is returned when no topic summary can be produced.
// Callers treat it as a degraded result, never as a failure.
var ErrUnavailable = errors.New("topic summary unavailable")

// Summarizer produces a short topic label for a message text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Disabled is the always-unavailable variant used when no enrichment
// backend is configured.
type Disabled struct{}

// Summarize always reports ErrUnavailable.
func (Disabled) Summarize(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

const (
	defaultModel   = "gpt-4o-mini"
	requestTimeout = 5 * time.Second
	minTextLength  = 10
	maxTextLength  = 500
)

const topicPrompt = `Summarize this message in EXACTLY 3 words. Be specific about the topic.

Message: %q

Reply with ONLY 3 words, nothing else. Example: "Meeting schedule request" or "Project deadline reminder"

3-word summary:`

// OpenAI summarizes messages through an OpenAI-compatible chat API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a summarizer for the given API key and model.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Summarize requests a short topic label with a bounded wait. Very short
// texts are not worth a call and report ErrUnavailable immediately.
func (o *OpenAI) Summarize(ctx context.Context, text string) (string, error) {
	if len(text) < minTextLength {
		return "", ErrUnavailable
	}
	text = clampText(text, maxTextLength)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(topicPrompt, text)},
		},
		Temperature: 0.3,
		MaxTokens:   20,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrUnavailable
	}

	words := strings.Fields(strings.TrimSpace(resp.Choices[0].Message.Content))
	if len(words) == 0 {
		return "", ErrUnavailable
	}
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " "), nil
}

// clampText limits text to limit runes without splitting a UTF-8
// sequence.
func clampText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
