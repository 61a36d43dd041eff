package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/csheth/studydesk/internal/logger"
)

const (
	defaultOllamaModel = "llama3.1:8b"
	defaultOpenAIModel = "gpt-5-mini"
	defaultOllamaHost  = "http://localhost:11434"

	// Summaries and flashcards see more of the document than a chat turn,
	// which also carries history.
	maxSummaryChars   = 60_000
	maxFlashcardChars = 60_000
)

const defaultLLMHTTPTimeout = 3 * time.Minute

// Provider names a backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// ErrEmptyContext is returned when a document-wide task gets no text.
var ErrEmptyContext = errors.New("document text empty")

// Config describes how to build an LLM client.
type Config struct {
	Provider   Provider
	Model      string
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Log        logger.Logger
	Limiter    *Limiter
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of chat history.
type Message struct {
	Role    Role
	Content string
}

// Flashcard is one multiple-choice question.
type Flashcard struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// FlashcardSet is a titled deck of five to ten cards.
type FlashcardSet struct {
	Title      string      `json:"title"`
	Flashcards []Flashcard `json:"flashcards"`
}

// Client generates tutor replies and study material.
type Client interface {
	// Chat answers the last user message. The reply may end with a
	// "commands:" block.
	Chat(ctx context.Context, history []Message, documentContext string) (string, error)
	Summarize(ctx context.Context, title, documentContext string) (string, error)
	Flashcards(ctx context.Context, title, documentContext string) (FlashcardSet, error)
	Name() string
}

// New builds a client from cfg, filling blanks from the environment
// (OLLAMA_HOST, OLLAMA_MODEL, OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL).
func New(cfg Config) (Client, error) {
	log := cfg.Log
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter(LimiterConfig{})
	}
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOllama
		if cfg.APIKey != "" {
			provider = ProviderOpenAI
		}
	}

	switch provider {
	case ProviderOllama:
		host := firstNonEmpty(cfg.Endpoint, os.Getenv("OLLAMA_HOST"), defaultOllamaHost)
		model := firstNonEmpty(cfg.Model, os.Getenv("OLLAMA_MODEL"), defaultOllamaModel)
		return &ollamaClient{
			host:    strings.TrimRight(host, "/"),
			model:   model,
			client:  pickHTTPClient(cfg.HTTPClient),
			log:     log.With("ollama"),
			limiter: limiter,
		}, nil
	case ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, errors.New("openai provider needs an API key (OPENAI_API_KEY)")
		}
		model := firstNonEmpty(cfg.Model, os.Getenv("OPENAI_MODEL"), defaultOpenAIModel)
		base := firstNonEmpty(cfg.Endpoint, os.Getenv("OPENAI_BASE_URL"))
		return newOpenAIClient(key, model, base, pickHTTPClient(cfg.HTTPClient), log.With("openai"), limiter), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Local models often need more than a minute; the caller's context cancels.
	return &http.Client{Timeout: defaultLLMHTTPTimeout}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// lastUserMessage reports whether history ends with a non-empty user turn.
func lastUserMessage(history []Message) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	return last.Role == RoleUser && strings.TrimSpace(last.Content) != ""
}
