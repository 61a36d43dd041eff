package guide

import (
	"strings"
	"testing"
)

func TestBuildDefaultsTitle(t *testing.T) {
	steps := Build(Metadata{})
	if len(steps) != 3 {
		t.Fatalf("step count mismatch: got %d want 3", len(steps))
	}
	if !strings.Contains(steps[0].Description, "the document") {
		t.Fatalf("expected placeholder title, got %q", steps[0].Description)
	}
	if steps[1].Title != "Ask" {
		t.Fatalf("tutor plan should start with Ask, got %q", steps[1].Title)
	}
}

func TestBuildTailorsMode(t *testing.T) {
	cases := map[string]string{"flashcards": "Quiz", "summary": "Compare", "tutor": "Ask"}
	for mode, want := range cases {
		steps := Build(Metadata{Title: "Cells", Mode: mode})
		if steps[1].Title != want {
			t.Fatalf("%s: second step mismatch: got %q want %q", mode, steps[1].Title, want)
		}
	}
}

func TestBuildChunksLongDocuments(t *testing.T) {
	steps := Build(Metadata{Title: "Atlas", Pages: 80})
	if !strings.Contains(steps[0].Description, "chunks of about 20 pages") {
		t.Fatalf("expected chunked skim, got %q", steps[0].Description)
	}
	steps = Build(Metadata{Title: "Atlas", Pages: 12})
	if !strings.Contains(steps[0].Description, "about 5 pages") {
		t.Fatalf("expected minimum chunk, got %q", steps[0].Description)
	}
}
