// Package summary condenses a conversation into a short episode text.
package summary

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/chunker"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/config"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/model"
)

// Generator produces a condensed summary of conversation messages.
type Generator interface {
	Summarize(ctx context.Context, messages []model.Message) (string, error)
}

const systemPrompt = `You condense a conversation between a user and an assistant into a short episode memory.
Write at most four sentences in the third person about the user. Keep concrete facts, preferences,
decisions and open follow-ups. Leave out greetings and small talk.`

const mergePrompt = `You are given partial summaries of one conversation, in order. Merge them into a single
episode memory of at most four sentences in the third person about the user.`

// OpenAIGenerator summarizes with an OpenAI-compatible chat model. Transcripts
// longer than one chunk are summarized per chunk and the partials merged.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	chunks chunker.Options
}

// NewOpenAIGenerator creates a chat-completion backed generator.
func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model, chunks: chunker.DefaultOptions()}
}

func (g *OpenAIGenerator) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to summarize")
	}
	chunks := chunker.Chunk(transcript(messages), g.chunks)
	if len(chunks) == 1 {
		return g.complete(ctx, systemPrompt, chunks[0].Text)
	}

	partials := make([]string, 0, len(chunks))
	for i, c := range chunks {
		p, err := g.complete(ctx, systemPrompt, c.Text)
		if err != nil {
			return "", fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		partials = append(partials, p)
	}
	return g.complete(ctx, mergePrompt, strings.Join(partials, "\n\n"))
}

func (g *OpenAIGenerator) complete(ctx context.Context, prompt, content string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty summary")
	}
	return text, nil
}

// ExtractiveGenerator builds a summary from the user's own messages without
// calling a model. Used when no chat provider is configured.
type ExtractiveGenerator struct {
	// MaxChars bounds the summary length.
	MaxChars int
}

func (g *ExtractiveGenerator) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	limit := g.MaxChars
	if limit <= 0 {
		limit = 600
	}

	var parts []string
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		if s := strings.Join(strings.Fields(m.Content), " "); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no user messages to summarize")
	}

	text := fmt.Sprintf("Conversation of %d messages. The user said: %s", len(messages), strings.Join(parts, " | "))
	if len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text, nil
}

func transcript(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
	}
	return b.String()
}

// New creates the generator selected by cfg.Provider: "extractive" (default) or "openai".
func New(cfg config.SummaryConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "extractive":
		return &ExtractiveGenerator{}, nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai summary provider needs an api key")
		}
		return NewOpenAIGenerator(cfg.BaseURL, key, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown summary provider %q (valid: extractive, openai)", cfg.Provider)
	}
}
