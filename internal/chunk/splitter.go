// Package chunk splits cleaned gazette text into size-bounded,
// overlap-preserving chunks using a hierarchy of separators.
//
// The hierarchy runs from structural boundaries (article and decree
// headers) down to words, so chunks break at the most semantic boundary
// available. All sizes and offsets are measured in runes.
package chunk

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// Splitting defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100
)

// defaultSeparators is the gazette-aware hierarchy, strongest boundary
// first: structural headers, then paragraphs, lines, sentences, words.
var defaultSeparators = []string{
	"\nARTICULO ",
	"\nDECRETO ",
	"\nRESOLUCION ",
	"\n---\n",
	"\n\n\n",
	"\n\n",
	"\n",
	". ",
	" ",
}

// DefaultSeparators returns a copy of the built-in separator hierarchy.
func DefaultSeparators() []string {
	out := make([]string, len(defaultSeparators))
	copy(out, defaultSeparators)
	return out
}

// Options configures a Splitter. Zero values take the defaults above.
type Options struct {
	// ChunkSize is the maximum chunk size in runes.
	ChunkSize int
	// ChunkOverlap is the maximum number of runes shared between
	// consecutive chunks. Must be smaller than ChunkSize.
	ChunkOverlap int
	// MinChunkSize drops fragments that end up shorter after packing.
	MinChunkSize int
	// Separators is the ordered hierarchy, most semantic first.
	Separators []string
}

// ChunkResult is one emitted chunk with its position in the source text.
type ChunkResult struct {
	// Text is the chunk body, whitespace-trimmed at both ends.
	Text string `json:"text"`
	// ChunkIndex is 0-based and dense, assigned in emission order.
	ChunkIndex int `json:"chunk_index"`
	// StartChar is the rune offset of Text in the cleaned document.
	StartChar int `json:"start_char"`
	// EndChar is StartChar + NumChars.
	EndChar int `json:"end_char"`
	// NumChars is the rune length of Text.
	NumChars int `json:"num_chars"`
}

// Splitter implements recursive separator-hierarchical splitting.
type Splitter struct {
	opts Options
}

// NewSplitter validates opts and returns a Splitter. Zero-valued fields
// take defaults; an overlap not smaller than the chunk size is rejected.
func NewSplitter(opts Options) (*Splitter, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap == 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.MinChunkSize == 0 {
		opts.MinChunkSize = DefaultMinChunkSize
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators()
	}

	if opts.ChunkSize < 1 {
		return nil, dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunk_size must be at least 1, got %d", opts.ChunkSize), nil)
	}
	if opts.ChunkOverlap < 0 {
		return nil, dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunk_overlap must be non-negative, got %d", opts.ChunkOverlap), nil)
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		return nil, dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
				opts.ChunkOverlap, opts.ChunkSize), nil)
	}
	if opts.MinChunkSize < 0 || opts.MinChunkSize > opts.ChunkSize {
		return nil, dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("min_chunk_size must be between 0 and chunk_size, got %d", opts.MinChunkSize), nil)
	}
	return &Splitter{opts: opts}, nil
}

// Options returns the effective options after defaulting.
func (s *Splitter) Options() Options {
	return s.opts
}

// piece is a fragment of the source text whose rune length never exceeds
// ChunkSize. Pieces concatenate back to the exact source text, which is
// what makes offset tracking exact.
type piece struct {
	text  string
	start int // rune offset into the source text
}

// Split chunks text. It first reduces the text to an ordered stream of
// pieces, splitting on the strongest separator present and recursing
// with the remaining hierarchy on oversized fragments, then greedily
// packs the stream into chunks, seeding each new chunk with the last
// piece of the previous one when that piece fits the overlap budget.
func (s *Splitter) Split(text string) []ChunkResult {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.opts.ChunkSize {
		c, ok := s.materialize([]piece{{text: text}})
		if !ok || c.NumChars < s.opts.MinChunkSize {
			return nil
		}
		return []ChunkResult{c}
	}
	return s.pack(text, s.splitPieces(text, 0, s.opts.Separators))
}

// splitPieces reduces text into pieces of at most ChunkSize runes.
func (s *Splitter) splitPieces(text string, start int, seps []string) []piece {
	if utf8.RuneCountInString(text) <= s.opts.ChunkSize {
		return []piece{{text: text, start: start}}
	}
	for i, sep := range seps {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.Split(text, sep)
		pieces := make([]piece, 0, len(parts))
		off := start
		for j, part := range parts {
			// The separator stays at the start of every piece but
			// the first, so concatenation reproduces the input.
			if j > 0 {
				part = sep + part
			} else if part == "" {
				continue
			}
			if utf8.RuneCountInString(part) <= s.opts.ChunkSize {
				pieces = append(pieces, piece{text: part, start: off})
			} else {
				pieces = append(pieces, s.splitPieces(part, off, seps[i+1:])...)
			}
			off += utf8.RuneCountInString(part)
		}
		return pieces
	}
	return s.splitFixed(text, start)
}

// splitFixed is the last resort for text none of the separators can
// break: cut every ChunkSize runes.
func (s *Splitter) splitFixed(text string, start int) []piece {
	runes := []rune(text)
	var pieces []piece
	for off := 0; off < len(runes); off += s.opts.ChunkSize {
		end := off + s.opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, piece{text: string(runes[off:end]), start: start + off})
	}
	return pieces
}

// pack greedily fills chunks from the piece stream. Packing runs across
// structural boundaries; the separators only decide where pieces begin.
func (s *Splitter) pack(source string, pieces []piece) []ChunkResult {
	var (
		chunks []ChunkResult
		buf    []piece
		bufLen int
	)

	emit := func() {
		if c, ok := s.materialize(buf); ok && c.NumChars >= s.opts.MinChunkSize {
			c.ChunkIndex = len(chunks)
			chunks = append(chunks, c)
		}
	}

	for _, p := range pieces {
		plen := utf8.RuneCountInString(p.text)
		if bufLen > 0 && bufLen+plen > s.opts.ChunkSize {
			emit()
			// Seed the next buffer with the last piece to enforce
			// overlap, but only when it fits both the overlap budget
			// and the size bound next to the incoming piece.
			last := buf[len(buf)-1]
			lastLen := utf8.RuneCountInString(last.text)
			if lastLen <= s.opts.ChunkOverlap && lastLen+plen <= s.opts.ChunkSize {
				buf, bufLen = []piece{last}, lastLen
			} else {
				buf, bufLen = nil, 0
			}
		}
		buf = append(buf, p)
		bufLen += plen
	}

	if bufLen > 0 {
		tail, ok := s.materialize(buf)
		switch {
		case ok && tail.NumChars >= s.opts.MinChunkSize:
			tail.ChunkIndex = len(chunks)
			chunks = append(chunks, tail)
		case ok && len(chunks) > 0:
			// Sub-minimum tail: extend the previous chunk over it when
			// the size bound allows, otherwise drop it.
			prev := &chunks[len(chunks)-1]
			if tail.EndChar > prev.EndChar && tail.EndChar-prev.StartChar <= s.opts.ChunkSize {
				runes := []rune(source)
				merged := strings.TrimRightFunc(string(runes[prev.StartChar:tail.EndChar]), unicode.IsSpace)
				prev.Text = merged
				prev.NumChars = utf8.RuneCountInString(merged)
				prev.EndChar = prev.StartChar + prev.NumChars
			}
		}
	}

	return chunks
}

// materialize joins the buffered pieces into a chunk, trimming boundary
// whitespace and adjusting offsets accordingly. ok is false only when
// the buffer trims to nothing; the MinChunkSize check stays with the
// caller, which may still need the offsets of a sub-minimum tail.
func (s *Splitter) materialize(buf []piece) (ChunkResult, bool) {
	if len(buf) == 0 {
		return ChunkResult{}, false
	}
	var sb strings.Builder
	for _, p := range buf {
		sb.WriteString(p.text)
	}
	raw := sb.String()

	left := strings.TrimLeftFunc(raw, unicode.IsSpace)
	start := buf[0].start + utf8.RuneCountInString(raw) - utf8.RuneCountInString(left)
	text := strings.TrimRightFunc(left, unicode.IsSpace)

	n := utf8.RuneCountInString(text)
	if n == 0 {
		return ChunkResult{}, false
	}
	return ChunkResult{
		Text:      text,
		StartChar: start,
		EndChar:   start + n,
		NumChars:  n,
	}, true
}
