// Package chunker splits document text into overlapping, boundary-aware
// chunks for embedding and retrieval.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sitechat/sitechat/source"
)

// Config holds chunking configuration.
type Config struct {
	// ChunkSize is the approximate chunk length in characters.
	ChunkSize int

	// Overlap is the number of characters carried from the end of one
	// chunk into the start of the next.
	Overlap int
}

// DefaultConfig returns the standard chunking parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 1000,
		Overlap:   200,
	}
}

// Validate checks if the configuration is valid. Overlap >= ChunkSize is
// permitted; forward progress is guaranteed at split time.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("Overlap must not be negative, got %d", c.Overlap)
	}
	return nil
}

// Chunker splits documents into overlapping chunks.
type Chunker struct {
	config Config
}

// New creates a new Chunker with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize == 0 && cfg.Overlap == 0 {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: cfg}, nil
}

// NewDefault creates a Chunker with default configuration.
func NewDefault() *Chunker {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// Split cuts text into chunks of approximately ChunkSize characters with
// Overlap characters of carry-over, preferring to break just after a newline
// or a sentence period rather than mid-word. Chunks are trimmed and never
// empty; a text no longer than ChunkSize yields exactly one chunk.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	textLen := len(runes)

	var chunks []string
	start := 0

	for start < textLen {
		end := start + c.config.ChunkSize
		if end > textLen {
			end = textLen
		}

		// For non-final chunks, pull the cut back to the last newline in
		// range, or failing that the last sentence period. The newline
		// preference is deliberate even when a stray newline sits just
		// past the ideal cut and shrinks the chunk.
		if end < textLen {
			if nl := lastIndexRune(runes, '\n', start, end); nl >= 0 {
				end = nl + 1
			} else if p := lastSentenceEnd(runes, start, end); p >= 0 {
				end = p + 1
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == textLen {
			break
		}

		// Step back by the overlap, but never stall: a boundary cut that
		// moved end before start+overlap would otherwise repeat ground.
		nextStart := end - c.config.Overlap
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// ChunkDocuments splits each document and wraps every slice with a fresh
// UUID and the document's metadata attached verbatim. Documents with empty
// text produce zero chunks.
func (c *Chunker) ChunkDocuments(docs []source.Document) []source.Chunk {
	var all []source.Chunk
	for _, doc := range docs {
		if doc.Text == "" {
			continue
		}
		for _, text := range c.Split(doc.Text) {
			all = append(all, source.Chunk{
				ID:       uuid.New().String(),
				Text:     text,
				Metadata: doc.Metadata,
			})
		}
	}
	return all
}

// lastIndexRune returns the last index of r within [start, end), or -1.
func lastIndexRune(runes []rune, r rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// lastSentenceEnd returns the last index of a period followed by a space
// within [start, end), or -1.
func lastSentenceEnd(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		if runes[i] == '.' && runes[i+1] == ' ' {
			return i
		}
	}
	return -1
}
