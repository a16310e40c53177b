package main

import (
	"fmt"
	"time"

	"github.com/sitechat/sitechat/chat"
	"github.com/sitechat/sitechat/embedding"
	"github.com/sitechat/sitechat/ingest"
	"github.com/sitechat/sitechat/llm"
	"github.com/sitechat/sitechat/llm/backends"
	"github.com/sitechat/sitechat/source/chunker"
	"github.com/sitechat/sitechat/source/crawler"
	"github.com/sitechat/sitechat/vectorstore"
	"github.com/sitechat/sitechat/vectorstore/memory"
	"github.com/sitechat/sitechat/vectorstore/qdrant"
)

const crawlUserAgent = "sitechat/" + Version

func (a *app) buildCrawler() (*crawler.Crawler, error) {
	fetcher := crawler.NewHTTPFetcher(30*time.Second, crawlUserAgent)
	return crawler.New(fetcher, crawler.Config{
		MaxPages:       a.cfg.Crawl.MaxPages,
		MaxDepth:       a.cfg.Crawl.MaxDepth,
		Delay:          a.cfg.Crawl.Delay,
		BaseDomain:     a.cfg.Crawl.BaseDomain,
		IgnoredDomains: a.cfg.Crawl.IgnoredDomains,
	}, crawler.WithLogger(a.logger))
}

func (a *app) buildChunker() (*chunker.Chunker, error) {
	return chunker.New(chunker.Config{
		ChunkSize: a.cfg.Chunk.ChunkSize,
		Overlap:   a.cfg.Chunk.Overlap,
	})
}

func (a *app) buildEmbedder() embedding.Embedder {
	return embedding.NewClient(embedding.Config{
		BaseURL:   a.cfg.Embedding.BaseURL,
		Model:     a.cfg.Embedding.Model,
		APIKeyEnv: a.cfg.Embedding.APIKeyEnv,
	})
}

func (a *app) buildStore() (vectorstore.Store, error) {
	switch a.cfg.Store.Type {
	case "memory":
		return memory.New(), nil
	case "qdrant":
		return qdrant.New(qdrant.Config{
			URL:        a.cfg.Store.Qdrant.URL,
			APIKey:     a.cfg.Store.Qdrant.APIKey,
			Collection: a.cfg.Store.Qdrant.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown store type %q", a.cfg.Store.Type)
	}
}

func (a *app) buildBackend() (llm.Backend, error) {
	switch a.cfg.LLM.Provider {
	case "ollama":
		return backends.NewOllama(a.cfg.LLM.Ollama.URL, a.cfg.LLM.Ollama.Model, a.logger)
	case "openai":
		return backends.NewOpenAIChat(a.cfg.LLM.OpenAI.URL, a.cfg.LLM.OpenAI.Model, a.cfg.LLM.OpenAI.APIKeyEnv, a.logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", a.cfg.LLM.Provider)
	}
}

func (a *app) buildEngine(store vectorstore.Store) (*chat.Engine, error) {
	backend, err := a.buildBackend()
	if err != nil {
		return nil, err
	}
	return chat.New(a.buildEmbedder(), store, backend,
		chat.WithTopK(a.cfg.Server.TopK),
		chat.WithLogger(a.logger))
}

func (a *app) buildPipeline(store vectorstore.Store, withCrawler bool) (*ingest.Pipeline, error) {
	var siteCrawler ingest.Crawler
	if withCrawler {
		c, err := a.buildCrawler()
		if err != nil {
			return nil, err
		}
		siteCrawler = c
	}

	ch, err := a.buildChunker()
	if err != nil {
		return nil, err
	}

	return ingest.New(siteCrawler, ch, a.buildEmbedder(), store,
		ingest.WithLogger(a.logger))
}
