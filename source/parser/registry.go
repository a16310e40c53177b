// Package parser turns local files into ingestable documents. Parsers are
// registered by MIME type; file extensions map onto MIME types for lookup.
package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sitechat/sitechat/source"
)

// Parser defines the interface for file parsers.
type Parser interface {
	// Parse extracts document text from the raw file content.
	Parse(filename string, content []byte) (source.Document, error)

	// CanParse returns true if this parser handles the given MIME type.
	CanParse(mimeType string) bool

	// MimeType returns the primary MIME type for this parser.
	MimeType() string
}

// Registry manages file parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // keyed by primary MIME type
}

// DefaultRegistry is the global parser registry with default parsers.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a registry with the default parsers registered.
func NewRegistry() *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
	}
	r.Register(NewTextParser())
	r.Register(NewMarkdownParser())
	r.Register(NewPDFParser())
	return r
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.MimeType()] = p
}

// GetByMimeType returns a parser for the given MIME type, or nil.
func (r *Registry) GetByMimeType(mimeType string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.parsers[mimeType]; ok {
		return p
	}
	for _, p := range r.parsers {
		if p.CanParse(mimeType) {
			return p
		}
	}
	return nil
}

// GetByExtension returns a parser based on the file's extension.
func (r *Registry) GetByExtension(filename string) Parser {
	return r.GetByMimeType(MimeTypeFromExtension(filepath.Ext(filename)))
}

// Parse parses a file using the parser matching its extension.
func (r *Registry) Parse(filename string, content []byte) (source.Document, error) {
	parser := r.GetByExtension(filename)
	if parser == nil {
		return source.Document{}, fmt.Errorf("no parser for file type: %s", filepath.Ext(filename))
	}
	return parser.Parse(filename, content)
}

// ListMimeTypes returns all registered MIME types, sorted.
func (r *Registry) ListMimeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MimeTypeFromExtension returns the MIME type for a file extension.
func MimeTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".text":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}
