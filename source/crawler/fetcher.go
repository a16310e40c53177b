package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// defaultSizeCap bounds how much of a page body is read.
const defaultSizeCap = 5 << 20 // 5MB

// Fetcher retrieves the markup of a single page. Implementations are the
// crawl's external collaborator boundary; the shipped implementation is a
// plain HTTP client, but anything that can render a page (a headless
// browser driver, a fixture map in tests) satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP with gzip support, a response size
// cap, and charset normalization to UTF-8.
type HTTPFetcher struct {
	client    *http.Client
	sizeCap   int64
	userAgent string
}

// NewHTTPFetcher creates a fetcher with its own pooled transport.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "sitechat-crawler/1.0"
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		sizeCap:   defaultSizeCap,
		userAgent: userAgent,
	}
}

// Fetch retrieves one page and returns its markup decoded to UTF-8.
// Non-HTML content and non-2xx/3xx statuses are errors.
func (h *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", fmt.Errorf("http status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	// Some servers omit the header entirely; only reject an explicit
	// non-HTML type.
	if mediaType != "" && !strings.Contains(mediaType, "text/html") &&
		!strings.Contains(mediaType, "application/xhtml+xml") {
		return "", errors.New("non-html content")
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(io.LimitReader(body, h.sizeCap))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return decodeToUTF8(data, contentType)
}

// decodeToUTF8 converts a page body to UTF-8 using the declared or sniffed
// charset, falling back to the raw bytes when they are already valid UTF-8.
func decodeToUTF8(data []byte, contentType string) (string, error) {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if utf8.Valid(data) {
			return string(bytes.ToValidUTF8(data, nil)), nil
		}
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return string(decoded), nil
}
