package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultHighlightWindow is the snippet width in characters around the
// first query match.
const DefaultHighlightWindow = 150

// highlightTokens splits the query into highlightable tokens. Tokens
// shorter than two runes are skipped; they match too much to be useful.
func highlightTokens(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// highlight returns a snippet of text around the first token match,
// with every token occurrence inside the snippet wrapped in <mark>
// tags. An empty string means no token matched.
func highlight(text, query string, window int) string {
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	tokens := highlightTokens(query)
	if len(tokens) == 0 {
		return ""
	}

	lower := strings.ToLower(text)
	first := -1
	for _, token := range tokens {
		if pos := strings.Index(lower, strings.ToLower(token)); pos >= 0 {
			if first == -1 || pos < first {
				first = pos
			}
		}
	}
	if first == -1 {
		return ""
	}

	start := first - window
	if start < 0 {
		start = 0
	}
	end := first + window
	if end > len(text) {
		end = len(text)
	}
	// Snap to rune boundaries so the snippet never splits a multi-byte
	// character.
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	snippet := text[start:end]
	marked := markTokens(snippet, tokens)
	if start > 0 {
		marked = "…" + marked
	}
	if end < len(text) {
		marked += "…"
	}
	return marked
}

// span is a half-open [start, end) byte range inside a snippet.
type span struct{ start, end int }

// markTokens wraps case-insensitive token occurrences in <mark> tags.
func markTokens(snippet string, tokens []string) string {
	lower := strings.ToLower(snippet)
	var spans []span
	for _, token := range tokens {
		t := strings.ToLower(token)
		for pos := 0; ; {
			idx := strings.Index(lower[pos:], t)
			if idx < 0 {
				break
			}
			abs := pos + idx
			spans = append(spans, span{abs, abs + len(t)})
			pos = abs + len(t)
		}
	}
	if len(spans) == 0 {
		return snippet
	}

	// Merge overlaps so nested tags never appear.
	sortSpans(spans)
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var sb strings.Builder
	prev := 0
	for _, s := range merged {
		sb.WriteString(snippet[prev:s.start])
		sb.WriteString("<mark>")
		sb.WriteString(snippet[s.start:s.end])
		sb.WriteString("</mark>")
		prev = s.end
	}
	sb.WriteString(snippet[prev:])
	return sb.String()
}

func sortSpans(spans []span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}
