package source

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	arxivURLPattern = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf)/([0-9a-z.\-/]+?)(?:\.pdf)?$`)
	// 2101.00001, 2308.01234v2, hep-th/9901001
	arxivBarePattern = regexp.MustCompile(`(?i)^(?:\d{4}\.\d{4,5}|[a-z\-]+(?:\.[a-z]{2})?/\d{7})(?:v\d+)?$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// ErrPaperNotFound is returned when the arXiv API has no entry for an id.
var ErrPaperNotFound = errors.New("paper not found")

// Paper is the arXiv metadata used to title an imported document.
type Paper struct {
	ID       string
	Title    string
	Authors  []string
	Abstract string
}

// ArxivID extracts an arXiv identifier from an abs/pdf URL, an "arXiv:"
// prefixed id or a bare id. It returns "" for anything else.
func ArxivID(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if m := arxivURLPattern.FindStringSubmatch(input); len(m) > 1 {
		return m[1]
	}
	if len(input) > 6 && strings.EqualFold(input[:6], "arxiv:") {
		input = strings.TrimSpace(input[6:])
	}
	if len(input) > 4 && strings.EqualFold(input[len(input)-4:], ".pdf") {
		input = input[:len(input)-4]
	}
	if arxivBarePattern.MatchString(input) {
		return input
	}
	return ""
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string       `xml:"id"`
	Title   string       `xml:"title"`
	Summary string       `xml:"summary"`
	Authors []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

func (r *Resolver) fetchPaper(ctx context.Context, id string) (Paper, error) {
	endpoint := fmt.Sprintf("%s/api/query?id_list=%s", r.apiBase, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Paper{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Paper{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Paper{}, fmt.Errorf("arxiv API error: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return Paper{}, fmt.Errorf("decode arxiv response: %w", err)
	}
	if len(feed.Entries) == 0 || strings.TrimSpace(feed.Entries[0].Title) == "" {
		return Paper{}, ErrPaperNotFound
	}
	entry := feed.Entries[0]
	paper := Paper{
		ID:       id,
		Title:    normalizeWhitespace(entry.Title),
		Abstract: normalizeWhitespace(entry.Summary),
	}
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	return paper, nil
}

func normalizeWhitespace(s string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}
