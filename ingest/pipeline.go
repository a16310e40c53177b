// Package ingest wires the crawl, chunk, embed, and store stages into one
// pipeline. Stages can also run separately via JSON artifact files, so a
// crawl can be chunked and indexed later without refetching.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sitechat/sitechat/embedding"
	"github.com/sitechat/sitechat/metrics"
	"github.com/sitechat/sitechat/source"
	"github.com/sitechat/sitechat/source/chunker"
	"github.com/sitechat/sitechat/source/parser"
	"github.com/sitechat/sitechat/vectorstore"
)

// Crawler collects site pages starting from a seed URL.
type Crawler interface {
	Crawl(ctx context.Context, seed string) (source.CrawlData, error)
}

// Pipeline runs ingestion end to end or stage by stage.
type Pipeline struct {
	crawler  Crawler
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    vectorstore.Store
	parsers  *parser.Registry
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParsers overrides the file parser registry.
func WithParsers(registry *parser.Registry) Option {
	return func(p *Pipeline) {
		if registry != nil {
			p.parsers = registry
		}
	}
}

// New creates a Pipeline. The crawler may be nil when only file or artifact
// ingestion is used; embedder and store are always required.
func New(crawler Crawler, ch *chunker.Chunker, embedder embedding.Embedder, store vectorstore.Store, opts ...Option) (*Pipeline, error) {
	if ch == nil {
		return nil, errors.New("chunker is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	p := &Pipeline{
		crawler:  crawler,
		chunker:  ch,
		embedder: embedder,
		store:    store,
		parsers:  parser.DefaultRegistry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// IngestSite crawls seed, chunks every page, and indexes the chunks. Returns
// the number of chunks indexed.
func (p *Pipeline) IngestSite(ctx context.Context, seed string) (int, error) {
	if p.crawler == nil {
		return 0, errors.New("no crawler configured")
	}

	p.logger.Info("starting crawl", "seed", seed)
	data, err := p.crawler.Crawl(ctx, seed)
	if err != nil {
		return 0, fmt.Errorf("crawl %s: %w", seed, err)
	}
	p.logger.Info("crawl complete", "pages", len(data))

	chunks := p.chunker.ChunkDocuments(data.Documents())
	return p.IngestChunks(ctx, chunks)
}

// IngestChunks embeds each chunk and upserts the batch. Returns the number
// of chunks indexed.
func (p *Pipeline) IngestChunks(ctx context.Context, chunks []source.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %d: %w", i+1, len(chunks), err)
		}
		vectors = append(vectors, vector)
	}

	if err := p.store.Upsert(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}

	metrics.ChunksIngested.Add(float64(len(chunks)))
	p.logger.Info("chunks indexed", "count", len(chunks))
	return len(chunks), nil
}

// CrawlToFile crawls seed and writes the page data to a JSON artifact.
func (p *Pipeline) CrawlToFile(ctx context.Context, seed, path string) (int, error) {
	if p.crawler == nil {
		return 0, errors.New("no crawler configured")
	}

	data, err := p.crawler.Crawl(ctx, seed)
	if err != nil {
		return 0, fmt.Errorf("crawl %s: %w", seed, err)
	}
	if err := source.WriteCrawlFile(path, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// ChunkFile reads a crawl artifact, chunks its pages, and writes the chunk
// artifact. Returns the number of chunks written.
func (p *Pipeline) ChunkFile(inPath, outPath string) (int, error) {
	data, err := source.ReadCrawlFile(inPath)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.ChunkDocuments(data.Documents())
	if err := source.WriteChunkFile(outPath, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IngestChunkFile reads a chunk artifact and indexes its chunks.
func (p *Pipeline) IngestChunkFile(ctx context.Context, path string) (int, error) {
	chunks, err := source.ReadChunkFile(path)
	if err != nil {
		return 0, err
	}
	return p.IngestChunks(ctx, chunks)
}

// IngestFiles parses local files matching a doublestar glob pattern, chunks
// them, and indexes the chunks. Files without a registered parser are
// skipped with a warning; a file that fails to parse is skipped likewise.
func (p *Pipeline) IngestFiles(ctx context.Context, pattern string) (int, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return 0, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no files match %q", pattern)
	}

	var docs []source.Document
	for _, path := range matches {
		if p.parsers.GetByExtension(path) == nil {
			p.logger.Warn("skipping unsupported file", "path", path)
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		doc, err := p.parsers.Parse(path, content)
		if err != nil {
			p.logger.Warn("skipping unparseable file", "path", path, "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	chunks := p.chunker.ChunkDocuments(docs)
	return p.IngestChunks(ctx, chunks)
}
