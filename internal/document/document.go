package document

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxContextChars caps the document text handed to the model. The cut is a
// hard prefix, so material past the budget is not visible to the tutor.
const MaxContextChars = 15000

// Page is one page chunk: extracted text plus the annotations revealed so far.
type Page struct {
	PageNumber  int      `json:"pageNumber"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Text        string   `json:"text"`
	Annotations []string `json:"annotations"`
}

// Content is the page-chunked body of a document.
type Content struct {
	Pages              []Page `json:"pages"`
	TotalPages         int    `json:"totalPages"`
	NeedsClientParsing bool   `json:"needsClientParsing,omitempty"`
}

// Metadata records facts captured when the file was imported.
type Metadata struct {
	PageCount  int       `json:"pageCount"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Parsed     bool      `json:"parsed"`
}

// Document is the persisted record owning a Content.
type Document struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	Title      string    `json:"title"`
	SourcePath string    `json:"sourcePath"`
	Content    Content   `json:"content"`
	Metadata   Metadata  `json:"metadata"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Placeholder is stored for documents whose pages are parsed on first open.
func Placeholder() Content {
	return Content{Pages: []Page{}, TotalPages: 0, NeedsClientParsing: true}
}

// FromTexts builds content with one page per text. Dimensions are left zero.
func FromTexts(texts ...string) Content {
	pages := make([]Page, len(texts))
	for i, text := range texts {
		pages[i] = Page{PageNumber: i + 1, Text: text}
	}
	return Content{Pages: pages, TotalPages: len(pages)}
}

// PageCount returns the number of pages held.
func (c Content) PageCount() int {
	return len(c.Pages)
}

func (c Content) inRange(i int) bool {
	return i >= 0 && i < len(c.Pages)
}

// PageText returns the text of page i, or "" when i is out of range.
func (c Content) PageText(i int) string {
	if !c.inRange(i) {
		return ""
	}
	return c.Pages[i].Text
}

// Annotations returns a copy of the annotations stored on page i.
func (c Content) Annotations(i int) []string {
	if !c.inRange(i) {
		return nil
	}
	return append([]string(nil), c.Pages[i].Annotations...)
}

// HasAnnotation reports whether text is already stored verbatim on page i.
func (c Content) HasAnnotation(i int, text string) bool {
	if !c.inRange(i) {
		return false
	}
	for _, existing := range c.Pages[i].Annotations {
		if existing == text {
			return true
		}
	}
	return false
}

// AppendAnnotation adds text to page i unless it is already present.
// It reports whether the page changed.
func (c *Content) AppendAnnotation(i int, text string) bool {
	if !c.inRange(i) || c.HasAnnotation(i, text) {
		return false
	}
	c.Pages[i].Annotations = append(c.Pages[i].Annotations, text)
	return true
}

// Texts returns the page texts in page order.
func (c Content) Texts() []string {
	out := make([]string, len(c.Pages))
	for i, page := range c.Pages {
		out[i] = page.Text
	}
	return out
}

// Clone deep-copies the content so callers can replace a stored document wholesale.
func (c Content) Clone() Content {
	out := c
	if c.Pages != nil {
		out.Pages = make([]Page, len(c.Pages))
		for i, page := range c.Pages {
			page.Annotations = append([]string(nil), page.Annotations...)
			out.Pages[i] = page
		}
	}
	return out
}

// Validate checks the page count and 1-based numbering of parsed content.
func (c Content) Validate() error {
	if c.NeedsClientParsing {
		if len(c.Pages) != 0 || c.TotalPages != 0 {
			return errors.New("placeholder content must not carry pages")
		}
		return nil
	}
	if c.TotalPages != len(c.Pages) {
		return fmt.Errorf("total pages %d does not match %d parsed pages", c.TotalPages, len(c.Pages))
	}
	for i, page := range c.Pages {
		if page.PageNumber != i+1 {
			return fmt.Errorf("page %d is numbered %d", i+1, page.PageNumber)
		}
	}
	return nil
}

// PromptContext renders every page as "[Page n]" followed by its text and
// clips the result to MaxContextChars runes.
func (c Content) PromptContext() string {
	parts := make([]string, 0, len(c.Pages))
	for _, page := range c.Pages {
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", page.PageNumber, page.Text))
	}
	return clip(strings.Join(parts, "\n\n"), MaxContextChars)
}

func clip(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
