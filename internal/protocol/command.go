package protocol

import "fmt"

// Wire tokens shared with the tutor prompt. Changing them breaks every
// model reply already stored in a session.
const (
	Marker         = "commands:"
	PageToken      = "/page/"
	HighlightToken = "/highlight/"
	AnnotateToken  = "/annotate/"
)

// Kind names a command variant.
type Kind string

const (
	KindPage      Kind = "page"
	KindHighlight Kind = "highlight"
	KindAnnotate  Kind = "annotate"
)

// Command is one directive decoded from a reply's command block.
// Page indices are zero-based; the wire format is one-based.
type Command interface {
	Kind() Kind
	Target() int
	String() string
	sealed()
}

// Page moves the viewer to a page.
type Page struct {
	PageIndex int
}

// Highlight marks a term on a page as a citation.
type Highlight struct {
	PageIndex int
	Term      string
}

// Annotate attaches a short note to a page.
type Annotate struct {
	PageIndex int
	Text      string
}

func (Page) Kind() Kind      { return KindPage }
func (Highlight) Kind() Kind { return KindHighlight }
func (Annotate) Kind() Kind  { return KindAnnotate }

func (c Page) Target() int      { return c.PageIndex }
func (c Highlight) Target() int { return c.PageIndex }
func (c Annotate) Target() int  { return c.PageIndex }

// String renders the command in wire form.
func (c Page) String() string { return fmt.Sprintf("%s%d", PageToken, c.PageIndex+1) }

func (c Highlight) String() string {
	return fmt.Sprintf("%s%d/%s", HighlightToken, c.PageIndex+1, c.Term)
}

func (c Annotate) String() string {
	return fmt.Sprintf("%s%d/%s", AnnotateToken, c.PageIndex+1, c.Text)
}

func (Page) sealed()      {}
func (Highlight) sealed() {}
func (Annotate) sealed()  {}

// FirstPage returns the first Page command. Later ones are ignored by the host.
func FirstPage(cmds []Command) (Page, bool) {
	for _, cmd := range cmds {
		if p, ok := cmd.(Page); ok {
			return p, true
		}
	}
	return Page{}, false
}

// Highlights returns the highlight commands in order.
func Highlights(cmds []Command) []Highlight {
	var out []Highlight
	for _, cmd := range cmds {
		if h, ok := cmd.(Highlight); ok {
			out = append(out, h)
		}
	}
	return out
}

// Annotations returns the annotate commands in order.
func Annotations(cmds []Command) []Annotate {
	var out []Annotate
	for _, cmd := range cmds {
		if a, ok := cmd.(Annotate); ok {
			out = append(out, a)
		}
	}
	return out
}
