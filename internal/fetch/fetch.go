// Package fetch implements the URL reader behind the read_url tool: it
// downloads a URL and extracts readable text from HTML pages or PDF
// documents.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/qunqin/chatbridge/internal/httpkit"
)

// Result content types.
const (
	TypeWebpage = "webpage"
	TypePDF     = "pdf"
)

// DefaultTimeout is the HTTP request timeout for fetching documents.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBytes is the maximum response body size (10 MB; PDFs get big).
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// DefaultMaxChars limits extracted text length.
const DefaultMaxChars = 50000

// Result holds the extracted content of a fetched URL.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Fetcher downloads and extracts readable content from URLs.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	maxChars int
}

// New creates a Fetcher with default limits. userAgent identifies the
// bot to origin servers.
func New(userAgent string) *Fetcher {
	return &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(DefaultTimeout),
			httpkit.WithUserAgent(userAgent),
		),
		maxBytes: DefaultMaxBytes,
		maxChars: DefaultMaxChars,
	}
}

// arxivAbsPattern matches arXiv abstract URLs, which get rewritten to
// their PDF form so the reader returns the paper body, not the landing
// page.
var arxivAbsPattern = regexp.MustCompile(`^(https?://arxiv\.org)/abs/(.+)$`)

// NormalizeURL adds a scheme when missing and rewrites known
// academic-paper URLs to their PDF form.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if m := arxivAbsPattern.FindStringSubmatch(rawURL); m != nil {
		rawURL = m[1] + "/pdf/" + m[2]
	}
	return rawURL
}

// Fetch downloads rawURL and extracts its text. PDF documents are
// recognized by content type, magic bytes, or a .pdf path; everything
// else is treated as a web page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("read_url: url is required")
	}
	rawURL = NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("read_url: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read_url: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil, fmt.Errorf("read_url: HTTP %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read_url: read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if isPDF(rawURL, contentType, body) {
		text, err := extractPDF(body)
		if err != nil {
			return nil, fmt.Errorf("read_url: extract pdf: %w", err)
		}
		return &Result{
			URL:     rawURL,
			Content: truncateUTF8(text, f.maxChars),
			Type:    TypePDF,
		}, nil
	}

	title, text := extractHTML(string(body))
	return &Result{
		URL:     rawURL,
		Title:   title,
		Content: truncateUTF8(text, f.maxChars),
		Type:    TypeWebpage,
	}, nil
}

// isPDF detects PDF documents by content type, the %PDF- magic bytes,
// or a .pdf path suffix.
func isPDF(rawURL, contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	if len(body) >= 5 && string(body[:5]) == "%PDF-" {
		return true
	}
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}

// truncateUTF8 cuts s to at most maxChars runes without splitting a
// multi-byte character.
func truncateUTF8(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
