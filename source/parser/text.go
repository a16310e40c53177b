package parser

import (
	"strings"

	"github.com/sitechat/sitechat/source"
)

// TextParser parses plain text files verbatim.
type TextParser struct{}

// NewTextParser creates a new plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse returns the file content as the document text.
func (p *TextParser) Parse(filename string, content []byte) (source.Document, error) {
	return source.Document{
		Text:     string(content),
		Metadata: map[string]string{"source": filename},
	}, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *TextParser) CanParse(mimeType string) bool {
	return mimeType == "text/plain"
}

// MimeType returns the primary MIME type for this parser.
func (p *TextParser) MimeType() string {
	return "text/plain"
}

// MarkdownParser parses markdown files, stripping YAML frontmatter when
// present so only the body is indexed.
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse returns the markdown body as the document text.
func (p *MarkdownParser) Parse(filename string, content []byte) (source.Document, error) {
	return source.Document{
		Text:     stripFrontmatter(string(content)),
		Metadata: map[string]string{"source": filename},
	}, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *MarkdownParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/markdown", "text/x-markdown":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *MarkdownParser) MimeType() string {
	return "text/markdown"
}

// stripFrontmatter removes a leading YAML frontmatter block delimited by
// "---" lines. Content without a well-formed block passes through unchanged.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return content
	}
	rest := content[strings.IndexByte(content, '\n')+1:]
	for _, delim := range []string{"\n---\n", "\n---\r\n"} {
		if idx := strings.Index(rest, delim); idx >= 0 {
			return rest[idx+len(delim):]
		}
	}
	// No closing delimiter; treat the whole file as body.
	return content
}
