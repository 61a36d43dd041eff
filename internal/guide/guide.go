// Package guide builds the short study plan shown next to the key help.
package guide

import (
	"fmt"
	"strings"
)

// Step is one recommendation in the study plan.
type Step struct {
	Title       string
	Description string
}

// Metadata carries just enough context to tailor the plan.
type Metadata struct {
	Title string
	Pages int
	// Mode is the session type: "tutor", "flashcards" or "summary".
	Mode string
}

// Build returns a study plan for one document. Long documents get a
// chunked first pass.
func Build(meta Metadata) []Step {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = "the document"
	}

	skim := fmt.Sprintf("Page through %s and note headings, figures and unfamiliar terms.", title)
	if meta.Pages > 10 {
		skim = fmt.Sprintf("Skim %s in chunks of about %d pages and note headings and unfamiliar terms.", title, chunkSize(meta.Pages))
	}
	steps := []Step{{Title: "Skim", Description: skim}}

	switch meta.Mode {
	case "flashcards":
		steps = append(steps,
			Step{Title: "Quiz", Description: "Answer each card before reading the marked option, then check the explanation."},
			Step{Title: "Revisit", Description: "Search the pages for terms you missed and press f for a fresh deck."},
		)
	case "summary":
		steps = append(steps,
			Step{Title: "Compare", Description: "Read the summary against the pages it covers and look for anything it skipped."},
			Step{Title: "Ask", Description: "Open a tutor session for the parts that still feel unclear."},
		)
	default:
		steps = append(steps,
			Step{Title: "Ask", Description: "Press i and ask about one section at a time; replies jump to the pages they cite."},
			Step{Title: "Review", Description: "Read the notes written under each page, then press f to test yourself."},
		)
	}
	return steps
}

func chunkSize(pages int) int {
	size := pages / 4
	if size < 5 {
		return 5
	}
	return size
}
