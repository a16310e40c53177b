package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/sitechat/source"
)

func TestChunker_Split_ShortTextSingleChunk(t *testing.T) {
	c := NewDefault()
	text := "A short document."
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunker_Split_ExactSizeSingleChunk(t *testing.T) {
	c, err := New(Config{ChunkSize: 10, Overlap: 2})
	require.NoError(t, err)
	chunks := c.Split("0123456789")
	require.Len(t, chunks, 1)
	assert.Equal(t, "0123456789", chunks[0])
}

func TestChunker_Split_PrefersNewlineBoundary(t *testing.T) {
	c, err := New(Config{ChunkSize: 20, Overlap: 0})
	require.NoError(t, err)

	text := "first line\nsecond line that runs much longer than the chunk"
	chunks := c.Split(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "first line", chunks[0], "cut should land after the newline")
}

func TestChunker_Split_FallsBackToSentenceBoundary(t *testing.T) {
	c, err := New(Config{ChunkSize: 30, Overlap: 0})
	require.NoError(t, err)

	text := "One sentence here. Another sentence that keeps going and going"
	chunks := c.Split(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "One sentence here.", chunks[0])
}

func TestChunker_Split_HardCutWithoutBoundary(t *testing.T) {
	c, err := New(Config{ChunkSize: 10, Overlap: 0})
	require.NoError(t, err)

	chunks := c.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, chunks)
}

func TestChunker_Split_NoEmptyChunks(t *testing.T) {
	c, err := New(Config{ChunkSize: 5, Overlap: 1})
	require.NoError(t, err)

	chunks := c.Split("a   \n\n   b   \n\n   c")
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk)
		assert.Equal(t, strings.TrimSpace(chunk), chunk)
	}
}

func TestChunker_Split_OverlapCarriesText(t *testing.T) {
	c, err := New(Config{ChunkSize: 10, Overlap: 4})
	require.NoError(t, err)

	chunks := c.Split("abcdefghijklmnopqrstuvwxyz")
	require.GreaterOrEqual(t, len(chunks), 2)
	// The start of each subsequent chunk repeats the tail of the previous.
	assert.True(t, strings.HasSuffix(chunks[0], chunks[1][:4]))
}

func TestChunker_Split_OverlapLargerThanChunkTerminates(t *testing.T) {
	// Overlap >= ChunkSize must not loop: progress is forced when the
	// stepped-back start would not advance.
	c, err := New(Config{ChunkSize: 5, Overlap: 10})
	require.NoError(t, err)

	chunks := c.Split(strings.Repeat("y", 50))
	assert.NotEmpty(t, chunks)
	assert.Equal(t, 10, len(chunks))
}

func TestChunker_Split_ReconstructsWithoutOverlap(t *testing.T) {
	c, err := New(Config{ChunkSize: 12, Overlap: 0})
	require.NoError(t, err)

	text := "alpha beta gamma delta epsilon zeta eta theta"
	chunks := c.Split(text)

	joined := strings.Join(chunks, "")
	// With zero overlap, concatenation reconstructs the text modulo the
	// whitespace trimmed at cut points.
	assert.Equal(t,
		strings.Join(strings.Fields(text), ""),
		strings.Join(strings.Fields(joined), ""))
}

func TestChunker_ChunkDocuments(t *testing.T) {
	c := NewDefault()

	docs := []source.Document{
		{Text: "Some page content here.", Metadata: map[string]string{"source": "https://a.com/x"}},
		{Text: "", Metadata: map[string]string{"source": "https://a.com/empty"}},
	}

	chunks := c.ChunkDocuments(docs)
	require.Len(t, chunks, 1, "empty documents yield zero chunks")

	assert.NotEmpty(t, chunks[0].ID)
	assert.Equal(t, "Some page content here.", chunks[0].Text)
	assert.Equal(t, "https://a.com/x", chunks[0].Metadata["source"])
}

func TestChunker_ChunkDocuments_FreshIDs(t *testing.T) {
	c := NewDefault()
	doc := source.Document{Text: "Same text.", Metadata: map[string]string{"source": "s"}}

	first := c.ChunkDocuments([]source.Document{doc})
	second := c.ChunkDocuments([]source.Document{doc})
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID, "re-chunking assigns new ids")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{ChunkSize: 0, Overlap: 1}.Validate())
	assert.Error(t, Config{ChunkSize: 10, Overlap: -1}.Validate())
	assert.NoError(t, Config{ChunkSize: 5, Overlap: 10}.Validate())
}
