// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PagesCrawled counts pages fetched and recorded by the crawler.
	PagesCrawled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitechat_pages_crawled_total",
		Help: "Pages fetched and recorded during crawls.",
	})

	// PageErrors counts per-page fetch or extraction failures (non-fatal).
	PageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitechat_page_errors_total",
		Help: "Per-page crawl failures that were skipped.",
	})

	// ChunksIngested counts chunks embedded and upserted to the vector store.
	ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitechat_chunks_ingested_total",
		Help: "Chunks embedded and written to the vector store.",
	})

	// ChatQueries counts questions handled by the query engine.
	ChatQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitechat_chat_queries_total",
		Help: "Questions answered by the query engine.",
	})

	// GenerationFailures counts backend generation errors surfaced as
	// degraded answers.
	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitechat_generation_failures_total",
		Help: "Generation backend errors converted to degraded answers.",
	})
)

// Handler serves the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
