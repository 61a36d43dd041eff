package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/csheth/studydesk/internal/logger"
)

var (
	// ErrUnknownCommand marks a block line that matches no rule.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadPageNumber marks a missing, non-numeric or non-positive page number.
	ErrBadPageNumber = errors.New("page number must be a positive integer")
	// ErrEmptyPayload marks a highlight or annotate line with nothing to apply.
	ErrEmptyPayload = errors.New("empty command payload")
)

var (
	markerPattern  = regexp.MustCompile(`(?m)^commands:\s*`)
	pageRefPattern = regexp.MustCompile(`page\[(\d+)\]`)
)

// Reply is a model reply split into what the user reads and what the viewer runs.
type Reply struct {
	Display  string
	Block    string
	HasBlock bool
	Commands []Command
}

type rule struct {
	token string
	// leading reads the page number from the leading digits and ignores the
	// rest of the line.
	leading bool
	build   func(pageIndex int, payload string) (Command, error)
}

// One rule per command kind. Each consumes a whole line.
var rules = []rule{
	{token: PageToken, leading: true, build: buildPage},
	{token: HighlightToken, build: buildHighlight},
	{token: AnnotateToken, build: buildAnnotate},
}

func buildPage(pageIndex int, _ string) (Command, error) {
	return Page{PageIndex: pageIndex}, nil
}

func buildHighlight(pageIndex int, payload string) (Command, error) {
	if i := strings.IndexByte(payload, '"'); i >= 0 {
		payload = payload[:i]
	}
	term := strings.TrimSpace(payload)
	if term == "" {
		return nil, fmt.Errorf("%w: highlight on page %d", ErrEmptyPayload, pageIndex+1)
	}
	return Highlight{PageIndex: pageIndex, Term: term}, nil
}

func buildAnnotate(pageIndex int, payload string) (Command, error) {
	text := strings.TrimSpace(payload)
	if text == "" {
		return nil, fmt.Errorf("%w: annotate on page %d", ErrEmptyPayload, pageIndex+1)
	}
	return Annotate{PageIndex: pageIndex, Text: text}, nil
}

// Parser decodes command blocks and logs the lines it has to skip.
type Parser struct {
	log logger.Logger
}

// NewParser returns a parser writing anomalies to log at debug level.
func NewParser(log logger.Logger) *Parser {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Parser{log: log}
}

var defaultParser = NewParser(nil)

// Parse splits text with a parser that discards anomalies.
func Parse(text string) Reply {
	return defaultParser.Parse(text)
}

// Strip returns only the display text of a reply.
func Strip(text string) string {
	return defaultParser.Parse(text).Display
}

// Parse locates the last "commands:" line, decodes every line after it and
// returns the remaining text trimmed as the display text. Without a marker the
// input is returned unchanged and no commands are produced.
func (p *Parser) Parse(text string) Reply {
	locs := markerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return Reply{Display: text}
	}
	last := locs[len(locs)-1]
	block := text[last[1]:]
	reply := Reply{
		Display:  strings.TrimSpace(text[:last[0]]),
		Block:    strings.TrimSpace(block),
		HasBlock: true,
	}
	reply.Commands = p.ParseBlock(block)
	if len(reply.Commands) == 0 {
		p.log.Debug("command block without recognised commands: %q", reply.Block)
	}
	return reply
}

// ParseBlock decodes the lines of a block that has already been separated
// from its marker. Lines that do not decode are logged and skipped.
func (p *Parser) ParseBlock(block string) []Command {
	var cmds []Command
	for _, line := range strings.Split(block, "\n") {
		cmd, err := ParseLine(line)
		if err != nil {
			p.log.Debug("skipping command line %q: %v", strings.TrimSpace(line), err)
			continue
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// ParseLine decodes a single block line. Blank lines yield (nil, nil).
func ParseLine(line string) (Command, error) {
	line = cleanLine(line)
	if line == "" {
		return nil, nil
	}
	for _, r := range rules {
		if !strings.HasPrefix(line, r.token) {
			continue
		}
		rest := line[len(r.token):]
		var number, payload string
		if r.leading {
			end := strings.IndexFunc(rest, func(c rune) bool { return c < '0' || c > '9' })
			if end < 0 {
				end = len(rest)
			}
			number, payload = rest[:end], rest[end:]
		} else {
			number, payload, _ = strings.Cut(rest, "/")
			number = strings.TrimSpace(number)
		}
		n, err := strconv.Atoi(number)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrBadPageNumber, rest)
		}
		return r.build(n-1, payload)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
}

// cleanLine drops list bullets and a pair of quotes or backticks wrapping the
// whole line. Quotes inside or at the end of a payload are kept.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	for _, bullet := range []string{"- ", "* ", "• "} {
		line = strings.TrimPrefix(line, bullet)
	}
	line = strings.TrimSpace(line)
	for _, q := range []string{"`", "\""} {
		if len(line) >= 2 && strings.HasPrefix(line, q) && strings.HasSuffix(line, q) {
			return strings.TrimSpace(line[1 : len(line)-1])
		}
	}
	return strings.TrimLeft(line, "`\"")
}

// PageRefs returns the zero-based pages cited as page[n] in display text,
// de-duplicated in order of first mention.
func PageRefs(display string) []int {
	var refs []int
	seen := map[int]bool{}
	for _, match := range pageRefPattern.FindAllStringSubmatch(display, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || seen[n-1] {
			continue
		}
		seen[n-1] = true
		refs = append(refs, n-1)
	}
	return refs
}
