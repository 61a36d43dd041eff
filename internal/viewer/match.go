package viewer

import "unicode"

// span is a half-open byte range into page text.
type span struct {
	start, end int
}

// findAll returns every non-overlapping case-insensitive occurrence of term
// in text, scanning left to right. Offsets are byte offsets on rune boundaries.
func findAll(text, term string) []span {
	if term == "" || text == "" {
		return nil
	}
	hay, offsets := foldRunes(text)
	needle, _ := foldRunes(term)
	if len(needle) > len(hay) {
		return nil
	}
	var out []span
	for i := 0; i+len(needle) <= len(hay); {
		if equalRunes(hay[i:i+len(needle)], needle) {
			out = append(out, span{start: offsets[i], end: offsets[i+len(needle)]})
			i += len(needle)
			continue
		}
		i++
	}
	return out
}

// containsFold reports whether term occurs in text ignoring case.
func containsFold(text, term string) bool {
	return len(findAll(text, term)) > 0
}

// foldRunes lowers each rune and records the byte offset where it starts,
// plus a trailing entry for len(s).
func foldRunes(s string) ([]rune, []int) {
	runes := make([]rune, 0, len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		runes = append(runes, unicode.ToLower(r))
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))
	return runes, offsets
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
