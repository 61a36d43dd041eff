package viewer

import (
	"reflect"
	"testing"
)

func TestFindAll(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text, term string
		want       []span
	}{
		{text: "Cat cat CAT", term: "cat", want: []span{{0, 3}, {4, 7}, {8, 11}}},
		{text: "aaaa", term: "aa", want: []span{{0, 2}, {2, 4}}},
		{text: "café Café", term: "CAFÉ", want: []span{{0, 5}, {6, 11}}},
		{text: "abc", term: "", want: nil},
		{text: "ab", term: "abc", want: nil},
	}
	for _, tc := range cases {
		if got := findAll(tc.text, tc.term); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("findAll(%q, %q): got %v want %v", tc.text, tc.term, got, tc.want)
		}
	}
}

func TestRenderLayersInPrecedence(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "the Kalinga war ended the war")
	v.ScrollToPosition(0, "Kalinga war", StyleHighlight)
	v.SetPersistentTerm("war")
	v.Highlight("the")

	got := v.Render(0)
	want := []Segment{
		{Text: "the", Mark: MarkSearch},
		{Text: " "},
		{Text: "Kalinga ", Mark: MarkActive, Style: StyleHighlight},
		{Text: "war", Mark: MarkPersistent},
		{Text: " ended "},
		{Text: "the", Mark: MarkSearch},
		{Text: " "},
		{Text: "war", Mark: MarkPersistent},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Render:\n got %+v\nwant %+v", got, want)
	}
}

func TestRenderActiveHighlightOnlyOnItsPage(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "alpha", "alpha")
	v.ScrollToPosition(1, "alpha", StyleCitation)
	if got := v.Render(0); len(got) != 1 || got[0].Mark != MarkNone {
		t.Fatalf("page 0 should be unmarked: %+v", got)
	}
	if got := v.Render(1); len(got) != 1 || got[0].Mark != MarkActive || got[0].Style != StyleCitation {
		t.Fatalf("page 1 should carry citation: %+v", got)
	}
}

func TestRenderOutOfRangeIsEmpty(t *testing.T) {
	t.Parallel()

	v, _, _ := newTestViewer(t, "x")
	if got := v.Render(4); got != nil {
		t.Fatalf("Render out of range: %+v", got)
	}
}
