package llm

import (
	"net/http"
	"testing"
	"time"
)

func TestPickHTTPClientHonorsCustomClient(t *testing.T) {
	custom := &http.Client{Timeout: 42 * time.Second}
	if got := pickHTTPClient(custom); got != custom {
		t.Fatalf("expected custom client to be returned")
	}
}

func TestPickHTTPClientUsesLongerTimeout(t *testing.T) {
	client := pickHTTPClient(nil)
	if client.Timeout != defaultLLMHTTPTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultLLMHTTPTimeout, client.Timeout)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OLLAMA_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "")

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oc, ok := c.(*ollamaClient)
	if !ok {
		t.Fatalf("expected ollama client, got %T", c)
	}
	if oc.host != defaultOllamaHost || oc.model != defaultOllamaModel {
		t.Fatalf("unexpected defaults %q %q", oc.host, oc.model)
	}

	c, err = New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*openAIClient); !ok {
		t.Fatalf("expected openai client when a key is set, got %T", c)
	}

	if _, err := New(Config{Provider: ProviderOpenAI}); err == nil {
		t.Fatal("expected error without an API key")
	}
	if _, err := New(Config{Provider: "gemini"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewReadsOllamaEnvironment(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434/")
	t.Setenv("OLLAMA_MODEL", "qwen3:8b")

	c, err := New(Config{Provider: ProviderOllama})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oc := c.(*ollamaClient)
	if oc.host != "http://gpu-box:11434" || oc.model != "qwen3:8b" {
		t.Fatalf("environment ignored: %q %q", oc.host, oc.model)
	}
	if got := c.Name(); got != "Ollama (qwen3:8b)" {
		t.Fatalf("Name() = %q", got)
	}
}
