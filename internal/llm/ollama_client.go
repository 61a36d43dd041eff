package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/csheth/studydesk/internal/logger"
)

type ollamaClient struct {
	host    string
	model   string
	client  *http.Client
	log     logger.Logger
	limiter *Limiter
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *ollamaClient) Name() string {
	return fmt.Sprintf("Ollama (%s)", c.model)
}

func (c *ollamaClient) Chat(ctx context.Context, history []Message, documentContext string) (string, error) {
	if !lastUserMessage(history) {
		return "", fmt.Errorf("chat needs a trailing user message")
	}
	msgs := make([]ollamaMessage, 0, len(history)+1)
	msgs = append(msgs, ollamaMessage{Role: "system", Content: tutorSystemPrompt(documentContext)})
	for _, m := range history {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	return c.chat(ctx, msgs, nil)
}

func (c *ollamaClient) Summarize(ctx context.Context, title, documentContext string) (string, error) {
	text := clipText(documentContext, maxSummaryChars)
	if text == "" {
		return "", fmt.Errorf("cannot summarize: %w", ErrEmptyContext)
	}
	return c.chat(ctx, []ollamaMessage{{Role: "user", Content: buildSummaryPrompt(title, text)}}, nil)
}

func (c *ollamaClient) Flashcards(ctx context.Context, title, documentContext string) (FlashcardSet, error) {
	text := clipText(documentContext, maxFlashcardChars)
	if text == "" {
		return FlashcardSet{}, fmt.Errorf("cannot build flashcards: %w", ErrEmptyContext)
	}
	raw, err := c.chat(ctx, []ollamaMessage{{Role: "user", Content: buildFlashcardPrompt(title, text)}}, flashcardSchema)
	if err != nil {
		return FlashcardSet{}, err
	}
	return parseFlashcards(raw)
}

func (c *ollamaClient) chat(ctx context.Context, msgs []ollamaMessage, format any) (string, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": msgs,
		"stream":   false,
	}
	if format != nil {
		payload["format"] = format
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	tokens := 0
	for _, m := range msgs {
		tokens += estimateTokens(m.Content)
	}

	return call(ctx, c.limiter, tokens, c.log, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(buf))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		if resp.StatusCode >= 400 {
			return "", &StatusError{Provider: "ollama", Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		var parsed struct {
			Message ollamaMessage `json:"message"`
			Done    bool          `json:"done"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("decode ollama response: %w", err)
		}
		if strings.TrimSpace(parsed.Message.Content) == "" {
			return "", fmt.Errorf("ollama returned an empty response")
		}
		c.log.Debug("reply of %d chars", len(parsed.Message.Content))
		return strings.TrimSpace(parsed.Message.Content), nil
	})
}
