// Package fetchref implements retrieval.Fetcher: given a URL, it downloads
// the page and extracts readable article text with go-readability, falling
// back to a simple HTML strip when extraction comes up empty.
package fetchref

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const (
	fetchTimeout = 15 * time.Second
	bodyLimit    = 1 << 20 // 1MB
	userAgent    = "Mozilla/5.0 (compatible; OrchestratorBot/1.0)"
)

// Fetcher downloads and extracts readable text for a URL. It satisfies
// retrieval.Fetcher structurally.
type Fetcher struct {
	client *http.Client
}

// New constructs a Fetcher with a bounded HTTP client.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// Fetch downloads rawURL and returns its extracted article text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	html := string(body)
	parsedURL, _ := url.Parse(rawURL)

	if article, err := readability.FromReader(strings.NewReader(html), parsedURL); err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return stripHTML(html), nil
}

var (
	tagPattern        = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	anyTagPattern     = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// stripHTML is the fallback extractor when readability finds no article
// content: drop script/style blocks, drop remaining tags, and collapse
// whitespace.
func stripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, "")
	text = anyTagPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
