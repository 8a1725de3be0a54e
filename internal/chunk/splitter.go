package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// level is one granularity of the recursive split.
type level struct {
	split func(string) []string
	join  string
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// levels are tried coarsest first.
var levels = []level{
	{split: splitParagraphs, join: "\n\n"},
	{split: splitLines, join: "\n"},
	{split: splitSentences, join: " "},
	{split: strings.Fields, join: " "},
}

// Split breaks text into chunks of at most maxChunkSize runes, preferring
// paragraph, then line, then sentence, then word boundaries. A finer
// boundary is only used for a unit that is still too large. With overlap > 0,
// each chunk starts with trailing units of the previous one, up to overlap
// runes. A single word longer than maxChunkSize is returned whole.
//
// maxChunkSize <= 0 disables the limit. Split is deterministic and never
// returns empty chunks.
func Split(text string, maxChunkSize, overlap int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if maxChunkSize <= 0 {
		return []string{trimmed}
	}
	if overlap < 0 {
		overlap = 0
	}
	s := splitter{max: maxChunkSize, overlap: overlap}
	return s.split(trimmed, 0)
}

type splitter struct {
	max     int
	overlap int
}

func (s splitter) split(text string, depth int) []string {
	if runeLen(text) <= s.max {
		return []string{text}
	}
	if depth == len(levels) {
		return []string{text}
	}

	lvl := levels[depth]
	var out, small []string
	flush := func() {
		if len(small) > 0 {
			out = append(out, s.merge(small, lvl.join)...)
			small = nil
		}
	}

	for _, piece := range lvl.split(text) {
		if runeLen(piece) <= s.max {
			small = append(small, piece)
			continue
		}
		flush()
		out = append(out, s.split(piece, depth+1)...)
	}
	flush()

	return out
}

// merge packs pieces greedily into chunks no longer than max, carrying the
// trailing pieces of each chunk into the next one when overlap is set.
func (s splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var chunks, window []string
	total := 0

	for _, p := range pieces {
		l := runeLen(p)
		if len(window) > 0 && total+sepLen+l > s.max {
			chunks = append(chunks, strings.Join(window, sep))
			for len(window) > 0 && (total > s.overlap || total+sepLen+l > s.max) {
				total -= runeLen(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, p)
		total += l
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, sep))
	}

	return chunks
}

func splitParagraphs(text string) []string {
	return nonEmpty(paragraphBreak.Split(text, -1))
}

func splitLines(text string) []string {
	return nonEmpty(strings.Split(text, "\n"))
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(text string) []string {
	var parts []string
	start := 0
	prevTerminal := false
	for i, r := range text {
		if prevTerminal && unicode.IsSpace(r) {
			parts = append(parts, text[start:i])
			start = i
		}
		prevTerminal = r == '.' || r == '!' || r == '?'
	}
	parts = append(parts, text[start:])
	return nonEmpty(parts)
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Options configures a Splitter.
type Options struct {
	MaxChunkSize int        // Runes per chunk (default: DefaultMaxChunkSize)
	Overlap      int        // Runes repeated between chunks (default: DefaultOverlap)
	IDs          IDStrategy // Chunk id derivation (default: ContentIDs)
}

// Splitter turns documents into identified chunks.
type Splitter struct {
	opts Options
}

// NewSplitter validates opts and returns a Splitter.
func NewSplitter(opts Options) (*Splitter, error) {
	if opts.MaxChunkSize == 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.MaxChunkSize < 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", opts.MaxChunkSize)
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxChunkSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", opts.MaxChunkSize, opts.Overlap)
	}
	if opts.IDs == nil {
		opts.IDs = ContentIDs{}
	}
	return &Splitter{opts: opts}, nil
}

// Options returns the effective options.
func (s *Splitter) Options() Options {
	return s.opts
}

// Chunk splits doc and assigns ids and ordinals.
func (s *Splitter) Chunk(doc Document) []*Chunk {
	texts := Split(doc.Text, s.opts.MaxChunkSize, s.opts.Overlap)
	chunks := make([]*Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &Chunk{
			ID:       s.opts.IDs.ChunkID(doc.SourceID, i, text),
			SourceID: doc.SourceID,
			Ordinal:  i,
			Text:     text,
		})
	}
	return chunks
}
