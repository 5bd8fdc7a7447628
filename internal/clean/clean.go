// Package clean normalizes extracted gazette text before chunking.
//
// Cleaning is deterministic and idempotent: running Clean over already
// cleaned text returns it unchanged. Malformed input degrades to a
// conservative cleanup; Clean never fails.
package clean

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// mojibake repairs the common UTF-8-decoded-as-Latin-1 sequences found
// in gazette PDFs. Longer patterns go first so the replacer prefers them.
var mojibake = strings.NewReplacer(
	"Ã¡", "á",
	"Ã©", "é",
	"Ã­", "í",
	"Ã³", "ó",
	"Ãº", "ú",
	"Ã±", "ñ",
	"Ã¼", "ü",
	"Ã", "Á",
	"Ã", "É",
	"Ã", "Í",
	"Ã", "Ó",
	"Ã", "Ú",
	"Ã", "Ñ",
	"Â¿", "¿",
	"Â¡", "¡",
	"Â°", "°",
	"Âº", "º",
	"Âª", "ª",
	"Â«", "«",
	"Â»", "»",
)

var (
	reSpaceRun   = regexp.MustCompile(`[ \t]+`)
	reNewlineRun = regexp.MustCompile(`\n{4,}`) // cap blank-line runs at two

	// Artifact lines produced by PDF extraction. Matched against the
	// whole trimmed line.
	rePageNumber = regexp.MustCompile(`^\d{1,4}$`)
	reSeparator  = regexp.MustCompile(`^[-_]{3,}$`)
	rePageOfES   = regexp.MustCompile(`(?i)^p[áa]g(?:ina)?\.?\s+\d+\s+de\s+\d+$`)
	rePageOfEN   = regexp.MustCompile(`(?i)^page\s+\d+\s+of\s+\d+$`)

	// Legal canonicalization. The N-degree groups also accept the NFKC
	// fold of "º" into "o".
	reArticleWord = regexp.MustCompile(`(?i)\bart[íi]culo\b`)
	reArticleAbbr = regexp.MustCompile(`(?i)\bart\.`)
	reDecreeNum   = regexp.MustCompile(`(?i)\bdecreto\s+n(?:[°º]|r?o\.?)?\s*(\d+)`)
	reResolution  = regexp.MustCompile(`(?i)\bresoluci[óo]n\s+n(?:[°º]|r?o\.?)?\s*(\d+)`)
	reCurrency    = regexp.MustCompile(`\$(\d)`)
)

// watermarkPrefixes are dropped when a line consists solely of a known
// watermark. Comparison is against the lowercased trimmed line.
var watermarkPrefixes = []string{
	"boletín oficial",
	"boletin oficial",
	"documento sin valor legal",
	"copia fiel del original",
}

// Clean runs the full normalization pipeline: encoding repair, NFKC,
// whitespace normalization, artifact removal, and legal-text
// canonicalization.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = repairEncoding(text)
	text = norm.NFKC.String(text)
	text = normalizeWhitespace(text)
	text = removeArtifacts(text)
	text = canonicalizeLegal(text)
	// Canonicalization can leave double spaces or trailing spaces at
	// replacement boundaries; a second whitespace pass keeps Clean
	// idempotent.
	return normalizeWhitespace(text)
}

// repairEncoding fixes mojibake from mis-decoded UTF-8/Latin-1 round trips.
func repairEncoding(text string) string {
	return mojibake.Replace(text)
}

// normalizeWhitespace maps Unicode space variants to plain spaces,
// collapses space runs, trims line edges, and caps blank-line runs.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
			b.WriteByte('\n')
		case r == ' ' || r == ' ' || r == ' ' ||
			(r >= ' ' && r <= ' ') || r == '　':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	text = b.String()
	text = reSpaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = reNewlineRun.ReplaceAllString(text, "\n\n\n")
	return strings.TrimSpace(text)
}

// removeArtifacts drops lines that carry no content: bare page numbers,
// decorative separators, "page X of Y" footers, and watermarks.
func removeArtifacts(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isArtifactLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isArtifactLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false // blank lines are structure, not artifacts
	}
	if rePageNumber.MatchString(trimmed) ||
		reSeparator.MatchString(trimmed) ||
		rePageOfES.MatchString(trimmed) ||
		rePageOfEN.MatchString(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, w := range watermarkPrefixes {
		if lower == w || strings.HasPrefix(lower, w+" -") || strings.HasPrefix(lower, w+" –") {
			return true
		}
	}
	return false
}

// canonicalizeLegal rewrites the abbreviations gazettes use for legal
// references into the uppercase forms the chunker splits on.
func canonicalizeLegal(text string) string {
	text = reArticleWord.ReplaceAllString(text, "ARTICULO")
	text = reArticleAbbr.ReplaceAllString(text, "ARTICULO ")
	text = reDecreeNum.ReplaceAllString(text, "DECRETO $1")
	text = reResolution.ReplaceAllString(text, "RESOLUCION $1")
	text = reCurrency.ReplaceAllString(text, "pesos $1")
	return text
}
