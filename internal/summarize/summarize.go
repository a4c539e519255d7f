package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const summaryPrompt = `You are an expert at condensing narrated texts. Write a short summary of the passage below, suitable for reading aloud in under one minute.

Requirements:
- Plain prose only, no markdown, no headings, no bullet points
- Preserve the tone and register of the original
- Cover the main events or arguments in order
- Keep it under 150 words

Passage:
---
%s
---`

// Summarizer condenses a transcript into a short narration-ready text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Gemini summarizes through the Gemini API. Multiple API keys are rotated
// when one hits its quota.
type Gemini struct {
	model string
	keys  []string
	log   zerolog.Logger

	mu      sync.Mutex
	current int
}

// NewGemini builds a summarizer over one or more API keys.
func NewGemini(model string, apiKeys []string, log zerolog.Logger) (*Gemini, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no Gemini API keys configured")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		model: model,
		keys:  apiKeys,
		log:   log.With().Str("component", "summarize").Logger(),
	}, nil
}

// Summarize sends the transcript to Gemini. On a 429 or quota error the next
// key is tried; any other error is returned immediately.
func (g *Gemini) Summarize(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf(summaryPrompt, transcript)

	var lastErr error
	for range g.keys {
		key, idx := g.nextKey()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			g.rotate()
			continue
		}

		result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			if isQuotaError(err) {
				g.log.Warn().Int("key", idx+1).Msg("rate limited, rotating key")
				g.rotate()
				lastErr = err
				continue
			}
			return "", fmt.Errorf("generate content: %w", err)
		}

		text := extractText(result)
		if text == "" {
			return "", fmt.Errorf("empty response from Gemini")
		}
		return strings.TrimSpace(text), nil
	}

	return "", fmt.Errorf("all API keys exhausted: %w", lastErr)
}

func (g *Gemini) nextKey() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[g.current], g.current
}

func (g *Gemini) rotate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = (g.current + 1) % len(g.keys)
}

func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func extractText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range result.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text
}
