package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordsText builds space-separated words totalling exactly n runes.
func wordsText(n int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < n; i++ {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(fmt.Sprintf("word%03d", i))
	}
	return sb.String()[:n]
}

func TestSplit_FiveHundredCharsMakesTwoChunks(t *testing.T) {
	// Given: a 500 character document
	text := wordsText(500)
	require.Len(t, text, 500)

	// When: splitting at 300 with no overlap
	chunks := Split(text, 300, 0)

	// Then: exactly two chunks, both within bounds
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 300)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(chunks[0]+" "+chunks[1]))
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	p3 := strings.Repeat("c", 40)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := Split(text, 90, 0)

	assert.Equal(t, []string{p1 + "\n\n" + p2, p3}, chunks)
}

func TestSplit_FallsBackToSentences(t *testing.T) {
	text := "First sentence is here. Second one follows! Is this the third? Yes it is."

	chunks := Split(text, 30, 0)

	assert.Equal(t, []string{
		"First sentence is here.",
		"Second one follows!",
		"Is this the third? Yes it is.",
	}, chunks)
}

func TestSplit_LinesBeforeSentences(t *testing.T) {
	text := "line one. still one\nline two\nline three"

	chunks := Split(text, 20, 0)

	assert.Equal(t, []string{"line one. still one", "line two\nline three"}, chunks)
}

func TestSplit_LongWordKeptWhole(t *testing.T) {
	long := strings.Repeat("x", 50)

	chunks := Split("short "+long+" tail", 10, 0)

	assert.Equal(t, []string{"short", long, "tail"}, chunks)
}

func TestSplit_NeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("日本語のテキスト ", 40)

	chunks := Split(text, 17, 0)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 17)
	}
}

func TestSplit_Overlap(t *testing.T) {
	text := "one two three four five six seven eight"

	chunks := Split(text, 14, 5)

	// Each chunk after the first repeats the trailing word of the previous one.
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		cur := strings.Fields(chunks[i])
		assert.Equal(t, prev[len(prev)-1], cur[0], "chunk %d", i)
	}
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 14)
	}
}

func TestSplit_EmptyAndBlank(t *testing.T) {
	assert.Nil(t, Split("", 10, 0))
	assert.Nil(t, Split(" \n\n\t ", 10, 0))
	assert.Equal(t, []string{"abc"}, Split("  abc  ", 0, 0))
}

func TestSplit_Deterministic(t *testing.T) {
	text := wordsText(2000) + "\n\nSecond para. With sentences! " + wordsText(700)

	first := Split(text, 120, 20)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Split(text, 120, 20))
	}
	for _, c := range first {
		assert.NotEmpty(t, strings.TrimSpace(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120)
	}
}

func TestSplitter_AssignsContentIDs(t *testing.T) {
	s, err := NewSplitter(Options{MaxChunkSize: 300})
	require.NoError(t, err)

	doc := Document{SourceID: "docs/a.txt", Text: wordsText(500)}
	first := s.Chunk(doc)
	second := s.Chunk(doc)

	require.Len(t, first, 2)
	for i := range first {
		assert.Equal(t, i, first[i].Ordinal)
		assert.Equal(t, "docs/a.txt", first[i].SourceID)
		assert.Len(t, first[i].ID, 16)
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestSplitter_UUIDStrategy(t *testing.T) {
	ids, err := StrategyByName("uuid")
	require.NoError(t, err)
	s, err := NewSplitter(Options{MaxChunkSize: 300, IDs: ids})
	require.NoError(t, err)

	doc := Document{SourceID: "a.txt", Text: "hello"}

	assert.NotEqual(t, s.Chunk(doc)[0].ID, s.Chunk(doc)[0].ID)
}

func TestNewSplitter_Validation(t *testing.T) {
	_, err := NewSplitter(Options{MaxChunkSize: -1})
	assert.Error(t, err)

	_, err = NewSplitter(Options{MaxChunkSize: 100, Overlap: 100})
	assert.Error(t, err)

	_, err = StrategyByName("sequential")
	assert.Error(t, err)

	s, err := NewSplitter(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxChunkSize, s.Options().MaxChunkSize)
}

func TestID_DependsOnSourceAndText(t *testing.T) {
	assert.Equal(t, ID("a", "x"), ID("a", "x"))
	assert.NotEqual(t, ID("a", "x"), ID("b", "x"))
	assert.NotEqual(t, ID("a", "x"), ID("a", "y"))
}
