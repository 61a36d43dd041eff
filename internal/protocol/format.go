package protocol

import "strings"

// Format serialises commands as a block that parses back to the same list.
// Newlines inside payloads are folded to spaces and highlight terms are cut
// at the first quote, mirroring what the parser accepts.
func Format(cmds []Command) string {
	if len(cmds) == 0 {
		return ""
	}
	lines := make([]string, 0, len(cmds)+1)
	lines = append(lines, Marker)
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case Highlight:
			term, _, _ := strings.Cut(flatten(c.Term), `"`)
			c.Term = strings.TrimSpace(term)
			lines = append(lines, c.String())
		case Annotate:
			c.Text = strings.TrimSpace(flatten(c.Text))
			lines = append(lines, c.String())
		default:
			lines = append(lines, cmd.String())
		}
	}
	return strings.Join(lines, "\n")
}

// Compose appends a formatted block to display text the way the tutor prompt
// asks the model to.
func Compose(display string, cmds []Command) string {
	block := Format(cmds)
	if block == "" {
		return display
	}
	return strings.TrimSpace(display) + "\n\n" + block
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
