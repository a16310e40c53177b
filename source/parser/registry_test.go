package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMimeTypeFromExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".md", "text/markdown"},
		{".markdown", "text/markdown"},
		{".txt", "text/plain"},
		{".TXT", "text/plain"},
		{".pdf", "application/pdf"},
		{".exe", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, MimeTypeFromExtension(tt.ext))
		})
	}
}

func TestRegistryGetByExtension(t *testing.T) {
	r := NewRegistry()

	assert.IsType(t, &MarkdownParser{}, r.GetByExtension("notes.md"))
	assert.IsType(t, &TextParser{}, r.GetByExtension("readme.txt"))
	assert.IsType(t, &PDFParser{}, r.GetByExtension("manual.pdf"))
	assert.Nil(t, r.GetByExtension("image.png"))
}

func TestRegistryParseUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Parse("image.png", []byte("data"))
	assert.Error(t, err)
}

func TestRegistryListMimeTypes(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"application/pdf", "text/markdown", "text/plain"}, r.ListMimeTypes())
}

func TestTextParser(t *testing.T) {
	doc, err := NewTextParser().Parse("docs/readme.txt", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", doc.Text)
	assert.Equal(t, "docs/readme.txt", doc.Metadata["source"])
}

func TestMarkdownParserStripsFrontmatter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "with frontmatter",
			input: "---\ntitle: Pricing\n---\n# Pricing\n\nPlans start at $10.",
			want:  "# Pricing\n\nPlans start at $10.",
		},
		{
			name:  "no frontmatter",
			input: "# Pricing\n\nPlans start at $10.",
			want:  "# Pricing\n\nPlans start at $10.",
		},
		{
			name:  "unclosed frontmatter",
			input: "---\ntitle: Pricing\n# Pricing",
			want:  "---\ntitle: Pricing\n# Pricing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewMarkdownParser().Parse("page.md", []byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Text)
		})
	}
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	_, err := NewPDFParser().Parse("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestBytesReaderAt(t *testing.T) {
	r := newBytesReaderAt([]byte("abcdef"))

	buf := make([]byte, 3)
	n, err := r.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "cde", string(buf))

	_, err = r.ReadAt(buf, 10)
	assert.Error(t, err)

	_, err = r.ReadAt(buf, -1)
	assert.Error(t, err)
}
