package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPISource searches NewsAPI for recent articles.
type NewsAPISource struct {
	apiKey   string
	query    string
	pageSize int
	baseURL  string
	client   *http.Client
	logger   *zap.Logger
}

func NewNewsAPISource(cfg config.NewsAPIConfig, logger *zap.Logger) *NewsAPISource {
	query := cfg.Query
	if query == "" {
		query = "technology"
	}
	return &NewsAPISource{
		apiKey:   os.Getenv(cfg.APIKeyEnv),
		query:    query,
		pageSize: 50,
		baseURL:  newsAPIBaseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (n *NewsAPISource) Name() string { return "newsapi" }

// IsConfigured returns whether the API key is available.
func (n *NewsAPISource) IsConfigured() bool {
	return n.apiKey != ""
}

func (n *NewsAPISource) Headlines(ctx context.Context, daysBack int) ([]Headline, error) {
	if n.apiKey == "" {
		return nil, fmt.Errorf("newsapi: no API key")
	}

	now := time.Now()
	params := url.Values{
		"q":        {n.query},
		"from":     {now.AddDate(0, 0, -daysBack).Format(time.DateOnly)},
		"to":       {now.Format(time.DateOnly)},
		"language": {"en"},
		"pageSize": {strconv.Itoa(n.pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi: HTTP %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
			Content     string `json:"content"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("newsapi decode: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q: %s", result.Status, result.Message)
	}

	var headlines []Headline
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" || a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		var published string
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			published = t.Format(time.DateOnly)
		}
		summary := a.Description
		if summary == "" {
			summary = a.Content
		}
		source := a.Source.Name
		if source == "" {
			source = "NewsAPI"
		}
		headlines = append(headlines, Headline{
			URL:           a.URL,
			Title:         strings.TrimSpace(a.Title),
			Summary:       strings.TrimSpace(summary),
			PublishedDate: published,
			Source:        source,
		})
	}

	n.logger.Debug("newsapi search", zap.String("query", n.query), zap.Int("results", len(headlines)))
	return headlines, nil
}
