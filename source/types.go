// Package source defines the data types shared across the ingestion
// pipeline: crawled pages, documents, chunks, and the JSON artifact files
// that decouple crawling from chunking and ingestion runs.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// PageRecord is the extracted content of one successfully fetched page.
// Links holds the traversal link set (navigation included), sorted ascending.
// Records are immutable once stored in a crawl result.
type PageRecord struct {
	Text  string   `json:"text"`
	Links []string `json:"links"`
}

// CrawlData maps canonical URL to its page record. It is the crawl artifact
// format (one crawl invocation produces one CrawlData).
type CrawlData map[string]PageRecord

// Document is the unit the chunker consumes: free text plus provenance
// metadata. Pages become documents with metadata {"source": url}; other
// loaders (PDF, plain files) attach their own source.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Chunk is a bounded slice of a document's text with the document's metadata
// attached verbatim. The ID is a fresh UUID assigned at chunking time;
// re-chunking the same document produces different IDs.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Documents converts crawl data into chunker input, one document per page
// with the page URL as source. Output is ordered by URL for reproducibility.
func (d CrawlData) Documents() []Document {
	urls := make([]string, 0, len(d))
	for u := range d {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	docs := make([]Document, 0, len(urls))
	for _, u := range urls {
		docs = append(docs, Document{
			Text:     d[u].Text,
			Metadata: map[string]string{"source": u},
		})
	}
	return docs
}

// WriteCrawlFile persists crawl data as indented JSON.
func WriteCrawlFile(path string, data CrawlData) error {
	return writeJSONFile(path, data)
}

// ReadCrawlFile loads a crawl artifact written by WriteCrawlFile.
func ReadCrawlFile(path string) (CrawlData, error) {
	var data CrawlData
	if err := readJSONFile(path, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteChunkFile persists chunk records as indented JSON.
func WriteChunkFile(path string, chunks []Chunk) error {
	return writeJSONFile(path, chunks)
}

// ReadChunkFile loads a chunk artifact written by WriteChunkFile.
func ReadChunkFile(path string) ([]Chunk, error) {
	var chunks []Chunk
	if err := readJSONFile(path, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
