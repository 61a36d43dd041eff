package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	minFlashcards = 5
	maxFlashcards = 10
	flashcardOpts = 4
)

var whitespaceRe = regexp.MustCompile(`\s+`)

func clipText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// tutorSystemPrompt teaches the model the reply layout the viewer executes:
// prose first, then an optional trailing "commands:" block.
func tutorSystemPrompt(documentContext string) string {
	return `You are a study tutor. The learner has opened a document and you help them learn from it.

Reply layout (enforced):
- Write your answer first. If you send commands, put them after all other text, starting on a line that reads exactly "commands:". Nothing may follow the command block.
- Commands anywhere else are ignored.

Answering:
- Base answers on the document whenever you can.
- If a question is related but not covered, you may answer from general knowledge and say clearly that it is not from the document.
- Be clear, concise and encouraging.
- Cite pages as ` + "`page[n]`" + ` in backticks, for example ` + "`page[3]`" + `.

Commands (one per line, one kind per reply, n is the 1-based page number):
/page/{n}              jump to page n
/highlight/{n}/{term}  highlight a term that appears exactly on page n (matched case-insensitively)
/annotate/{n}/{text}   attach a short note (under 3 sentences) with helpful background the document does not contain

Include at least one highlight when a relevant term exists; use several lines for several terms.

Example:
The Kalinga War, discussed on ` + "`page[2]`" + `, changed Ashoka's reign.

commands:
/highlight/2/Kalinga
/highlight/2/war

Document content:
` + documentContext
}

func buildSummaryPrompt(title, documentContext string) string {
	if title == "" {
		title = "the document"
	}
	return "You are a study tutor. Write a structured study summary of " + title + ".\n" +
		"Start with a two-sentence overview, then 5-8 bullets of key ideas, then a short list of terms worth memorising.\n" +
		"Cite pages as `page[n]` where the idea appears.\n\n" +
		"Document content:\n" + documentContext
}

func buildFlashcardPrompt(title, documentContext string) string {
	if title == "" {
		title = "the document"
	}
	return fmt.Sprintf(`You are a study tutor writing multiple-choice flashcards for %s.
Write %d-%d flashcards that test understanding, not trivia.
Each flashcard has a question, exactly %d options, a correctAnswer that is copied verbatim from the options, and a one or two sentence explanation.
Return ONLY JSON formatted as {"title":"","flashcards":[{"question":"","options":["","","",""],"correctAnswer":"","explanation":""}]}.

Document content:
%s`, title, minFlashcards, maxFlashcards, flashcardOpts, documentContext)
}

// flashcardSchema is the structured-output schema for providers that support it.
var flashcardSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"flashcards": map[string]any{
			"type":     "array",
			"minItems": minFlashcards,
			"maxItems": maxFlashcards,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
					"options": map[string]any{
						"type":     "array",
						"items":    map[string]any{"type": "string"},
						"minItems": flashcardOpts,
						"maxItems": flashcardOpts,
					},
					"correctAnswer": map[string]any{"type": "string"},
					"explanation":   map[string]any{"type": "string"},
				},
				"required":             []string{"question", "options", "correctAnswer", "explanation"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"title", "flashcards"},
	"additionalProperties": false,
}

// parseFlashcards accepts the JSON object, possibly wrapped in prose or a
// code fence, and keeps only well-formed cards.
func parseFlashcards(raw string) (FlashcardSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FlashcardSet{}, errors.New("empty flashcard response")
	}
	candidates := []string{raw}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	for _, candidate := range candidates {
		var set FlashcardSet
		if err := json.Unmarshal([]byte(candidate), &set); err != nil {
			continue
		}
		return sanitizeFlashcards(set)
	}
	return FlashcardSet{}, errors.New("unable to parse flashcard payload")
}

func sanitizeFlashcards(set FlashcardSet) (FlashcardSet, error) {
	out := FlashcardSet{Title: normalizeSpace(set.Title)}
	for _, card := range set.Flashcards {
		c := Flashcard{
			Question:      normalizeSpace(card.Question),
			CorrectAnswer: normalizeSpace(card.CorrectAnswer),
			Explanation:   normalizeSpace(card.Explanation),
		}
		for _, opt := range card.Options {
			c.Options = append(c.Options, normalizeSpace(opt))
		}
		if !validFlashcard(c) {
			continue
		}
		out.Flashcards = append(out.Flashcards, c)
		if len(out.Flashcards) == maxFlashcards {
			break
		}
	}
	if len(out.Flashcards) < minFlashcards {
		return FlashcardSet{}, fmt.Errorf("only %d usable flashcards, need at least %d", len(out.Flashcards), minFlashcards)
	}
	if out.Title == "" {
		out.Title = "Flashcards"
	}
	return out, nil
}

func validFlashcard(c Flashcard) bool {
	if c.Question == "" || len(c.Options) != flashcardOpts {
		return false
	}
	found := false
	for _, opt := range c.Options {
		if opt == "" {
			return false
		}
		if opt == c.CorrectAnswer {
			found = true
		}
	}
	return found
}

func normalizeSpace(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}
