package llm

import (
	"strings"
	"testing"
)

func card(q, correct string, opts ...string) Flashcard {
	return Flashcard{Question: q, Options: opts, CorrectAnswer: correct, Explanation: "because"}
}

func TestTutorSystemPromptTeachesProtocol(t *testing.T) {
	t.Parallel()

	prompt := tutorSystemPrompt("--- Page 1 ---\nphotosynthesis")
	for _, want := range []string{"commands:", "/page/{n}", "/highlight/{n}/{term}", "/annotate/{n}/{text}", "`page[3]`", "photosynthesis"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(prompt, "photosynthesis") {
		t.Fatal("document content should close the prompt")
	}
}

func TestParseFlashcardsKeepsValidCards(t *testing.T) {
	t.Parallel()

	opts := []string{"A", "B", "C", "D"}
	raw := "Here you go:\n```json\n" + `{"title":"  Deck ","flashcards":[` +
		`{"question":"q1","options":["A","B","C","D"],"correctAnswer":"A","explanation":"e"},` +
		`{"question":"q2","options":["A","B","C","D"],"correctAnswer":"B","explanation":"e"},` +
		`{"question":"q3","options":["A","B","C"],"correctAnswer":"A","explanation":"three options"},` +
		`{"question":"q4","options":["A","B","C","D"],"correctAnswer":"E","explanation":"answer not an option"},` +
		`{"question":"q5","options":["A","B","C","D"],"correctAnswer":"C","explanation":"e"},` +
		`{"question":"q6","options":["A","B","C","D"],"correctAnswer":"D","explanation":"e"},` +
		`{"question":"q7","options":["A","B","C","D"],"correctAnswer":"A","explanation":"e"},` +
		`{"question":"","options":["A","B","C","D"],"correctAnswer":"A","explanation":"blank"}` +
		"]}\n```"
	set, err := parseFlashcards(raw)
	if err != nil {
		t.Fatalf("parseFlashcards: %v", err)
	}
	if set.Title != "Deck" {
		t.Fatalf("title = %q", set.Title)
	}
	if len(set.Flashcards) != 5 {
		t.Fatalf("expected 5 valid cards, got %d", len(set.Flashcards))
	}
	for _, c := range set.Flashcards {
		if len(c.Options) != len(opts) {
			t.Fatalf("card %q has %d options", c.Question, len(c.Options))
		}
	}
}

func TestParseFlashcardsCapsAtTen(t *testing.T) {
	t.Parallel()

	set := FlashcardSet{}
	for i := 0; i < 14; i++ {
		set.Flashcards = append(set.Flashcards, card("q", "A", "A", "B", "C", "D"))
	}
	got, err := sanitizeFlashcards(set)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if len(got.Flashcards) != maxFlashcards {
		t.Fatalf("expected %d cards, got %d", maxFlashcards, len(got.Flashcards))
	}
	if got.Title != "Flashcards" {
		t.Fatalf("expected default title, got %q", got.Title)
	}
}

func TestParseFlashcardsRejectsShortDeck(t *testing.T) {
	t.Parallel()

	raw := `{"title":"x","flashcards":[{"question":"q","options":["A","B","C","D"],"correctAnswer":"A","explanation":"e"}]}`
	if _, err := parseFlashcards(raw); err == nil {
		t.Fatal("expected error for fewer than five cards")
	}
	if _, err := parseFlashcards("not json at all"); err == nil {
		t.Fatal("expected error for prose")
	}
	if _, err := parseFlashcards(""); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestClipTextIsRuneSafe(t *testing.T) {
	t.Parallel()

	if got := clipText("  héllo wörld  ", 5); got != "héllo" {
		t.Fatalf("clipText = %q", got)
	}
	if got := clipText("short", 100); got != "short" {
		t.Fatalf("clipText = %q", got)
	}
}
