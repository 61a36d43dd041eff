package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/csheth/studydesk/internal/logger"
)

type openAIClient struct {
	client  openai.Client
	model   string
	log     logger.Logger
	limiter *Limiter
}

func newOpenAIClient(apiKey, model, baseURL string, httpClient *http.Client, log logger.Logger, limiter *Limiter) *openAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		// Retries on 429 go through the shared limiter.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAIClient{
		client:  openai.NewClient(opts...),
		model:   model,
		log:     log,
		limiter: limiter,
	}
}

func (c *openAIClient) Name() string {
	return fmt.Sprintf("OpenAI (%s)", c.model)
}

func (c *openAIClient) Chat(ctx context.Context, history []Message, documentContext string) (string, error) {
	if !lastUserMessage(history) {
		return "", fmt.Errorf("chat needs a trailing user message")
	}
	input := make(responses.ResponseInputParam, 0, len(history))
	tokens := estimateTokens(documentContext)
	for _, m := range history {
		input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRole(m.Role)))
		tokens += estimateTokens(m.Content)
	}
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(tutorSystemPrompt(documentContext)),
		Input:        responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	return c.respond(ctx, tokens, params)
}

func (c *openAIClient) Summarize(ctx context.Context, title, documentContext string) (string, error) {
	text := clipText(documentContext, maxSummaryChars)
	if text == "" {
		return "", fmt.Errorf("cannot summarize: %w", ErrEmptyContext)
	}
	prompt := buildSummaryPrompt(title, text)
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	}
	return c.respond(ctx, estimateTokens(prompt), params)
}

func (c *openAIClient) Flashcards(ctx context.Context, title, documentContext string) (FlashcardSet, error) {
	text := clipText(documentContext, maxFlashcardChars)
	if text == "" {
		return FlashcardSet{}, fmt.Errorf("cannot build flashcards: %w", ErrEmptyContext)
	}
	prompt := buildFlashcardPrompt(title, text)
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema("flashcard_set", flashcardSchema),
		},
	}
	raw, err := c.respond(ctx, estimateTokens(prompt), params)
	if err != nil {
		return FlashcardSet{}, err
	}
	return parseFlashcards(raw)
}

func (c *openAIClient) respond(ctx context.Context, tokens int, params responses.ResponseNewParams) (string, error) {
	return call(ctx, c.limiter, tokens, c.log, func(ctx context.Context) (string, error) {
		resp, err := c.client.Responses.New(ctx, params)
		if err != nil {
			return "", err
		}
		out := strings.TrimSpace(resp.OutputText())
		if out == "" {
			return "", fmt.Errorf("openai returned an empty response")
		}
		c.log.Debug("reply of %d chars", len(out))
		return out, nil
	})
}
