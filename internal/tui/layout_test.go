package tui

import (
	"regexp"
	"strings"
	"testing"

	"github.com/csheth/studydesk/internal/viewer"
)

func TestPageLayoutUpdate(t *testing.T) {
	cases := []struct {
		name             string
		width            int
		height           int
		viewportWidth    int
		viewportHeight   int
		transcriptHeight int
		composerHeight   int
	}{
		{name: "narrow", width: 80, height: 24, viewportWidth: 76, viewportHeight: 10, transcriptHeight: 4, composerHeight: 1},
		{name: "wide", width: 200, height: 40, viewportWidth: 196, viewportHeight: 20, transcriptHeight: 10, composerHeight: 1},
		{name: "tiny", width: 20, height: 10, viewportWidth: 40, viewportHeight: 8, transcriptHeight: 4, composerHeight: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			layout := newPageLayout()
			layout.Update(tc.width, tc.height)
			if layout.viewportWidth != tc.viewportWidth {
				t.Fatalf("viewport width mismatch: got %d want %d", layout.viewportWidth, tc.viewportWidth)
			}
			if layout.viewportHeight != tc.viewportHeight {
				t.Fatalf("viewport height mismatch: got %d want %d", layout.viewportHeight, tc.viewportHeight)
			}
			if layout.transcriptHeight != tc.transcriptHeight {
				t.Fatalf("transcript height mismatch: got %d want %d", layout.transcriptHeight, tc.transcriptHeight)
			}
			if layout.composerHeight != tc.composerHeight {
				t.Fatalf("composer height mismatch: got %d want %d", layout.composerHeight, tc.composerHeight)
			}
		})
	}
}

func TestRenderSegmentsKeepsText(t *testing.T) {
	t.Parallel()
	segments := []viewer.Segment{
		{Text: "the "},
		{Text: "cat", Mark: viewer.MarkActive, Style: viewer.StyleHighlight},
		{Text: " sat\non ", Mark: viewer.MarkNone},
		{Text: "the\nmat", Mark: viewer.MarkSearch},
	}
	got := renderSegments(segments)
	if plain := stripStyles(got); plain != "the cat sat\non the\nmat" {
		t.Fatalf("text changed by styling: %q", plain)
	}
	if strings.Count(got, "\n") != 2 {
		t.Fatalf("line breaks changed: %q", got)
	}
}

func TestBuildDocumentViewAnchors(t *testing.T) {
	m := newTestModel(t)
	view := m.buildDocumentView()
	for i := 0; i < 3; i++ {
		if _, ok := view.anchors[viewer.Anchor{PageIndex: i, Area: viewer.AreaPage}]; !ok {
			t.Fatalf("missing page anchor %d", i)
		}
	}
	if _, ok := view.anchors[viewer.Anchor{PageIndex: 0, Area: viewer.AreaAnnotations}]; ok {
		t.Fatal("pages without notes should have no notes anchor")
	}
	first := view.anchors[viewer.Anchor{PageIndex: 0}]
	second := view.anchors[viewer.Anchor{PageIndex: 1}]
	if second <= first {
		t.Fatalf("anchors out of order: %d then %d", first, second)
	}
	lines := strings.Split(view.content, "\n")
	if !strings.Contains(lines[second], "Page 2 of 3") {
		t.Fatalf("anchor does not point at the page header: %q", lines[second])
	}
}

func TestWrapTextHonoursMinimum(t *testing.T) {
	t.Parallel()
	got := wrapText(strings.Repeat("word ", 20), 5)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > minPageWrapWidth {
			t.Fatalf("line longer than minimum width: %q", line)
		}
	}
}

func TestPreviewText(t *testing.T) {
	t.Parallel()
	if got := previewText("  short  ", 10); got != "short" {
		t.Fatalf("preview mismatch: %q", got)
	}
	if got := previewText("abcdefghij", 4); got != "abcd…" {
		t.Fatalf("preview mismatch: %q", got)
	}
}

var ansiEscapeCodes = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripStyles(text string) string {
	return ansiEscapeCodes.ReplaceAllString(text, "")
}
