// Package fetch downloads a reference page and extracts its readable text.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// ErrNoContent means the page was retrieved but held no usable article text.
var ErrNoContent = errors.New("no extractable content")

const (
	minContentChars = 100
	maxBodyBytes    = 5 << 20
	userAgent       = "autoblog/1.0 (+https://github.com/TobiSchelling/autoblog)"
)

// HTTPError is a non-success response from the page's server.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// Page is the readable part of a fetched page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// PageFetcher fetches pages via HTTP + readability extraction.
type PageFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewPageFetcher creates a fetcher. A zero timeout means 15 seconds.
func NewPageFetcher(timeout time.Duration, logger *zap.Logger) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger,
	}
}

// Fetch returns the readable text of pageURL.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) <= minContentChars {
		return nil, ErrNoContent
	}
	f.logger.Debug("fetched reference page", zap.String("url", pageURL), zap.Int("chars", len(text)))
	return &Page{URL: pageURL, Title: strings.TrimSpace(article.Title), Text: text}, nil
}
