package topics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
	"github.com/TobiSchelling/autoblog/internal/llm"
)

func rssFeed(items ...string) string {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`
	for _, it := range items {
		body += it
	}
	return body + `</channel></rss>`
}

func rssItem(title, link string, published time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><description>&lt;p&gt;About %s&amp;more&lt;/p&gt;</description><pubDate>%s</pubDate></item>`,
		title, link, title, published.Format(time.RFC1123Z))
}

func TestFeedSourceWindowAndParsing(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed(
			rssItem("Fresh news", "https://example.com/fresh", now),
			rssItem("Old news", "https://example.com/old", now.AddDate(0, 0, -30)),
			`<item><title></title><link>https://example.com/untitled</link></item>`,
		))
	}))
	defer srv.Close()

	src := NewFeedSource([]config.Feed{{URL: srv.URL, Name: "Example"}}, zap.NewNop())
	got, err := src.Headlines(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fresh news", got[0].Title)
	assert.Equal(t, "https://example.com/fresh", got[0].URL)
	assert.Equal(t, "About Fresh news&more", got[0].Summary)
	assert.Equal(t, "Example", got[0].Source)
	assert.Equal(t, now.Format(time.DateOnly), got[0].PublishedDate)
}

func TestFeedSourceAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewFeedSource([]config.Feed{{URL: srv.URL}}, zap.NewNop()).Headlines(context.Background(), 2)
	assert.Error(t, err)
}

func TestNewsAPISource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"status":"ok","articles":[
			{"url":"https://n.com/1","title":" Go 2 ","publishedAt":"2024-03-01T10:00:00Z","description":"d","source":{"name":"Wire"}},
			{"url":"https://removed.com","title":"[Removed]"},
			{"url":"","title":"no url"}
		]}`)
	}))
	defer srv.Close()

	t.Setenv("TEST_NEWSAPI_KEY", "secret")
	src := NewNewsAPISource(config.NewsAPIConfig{APIKeyEnv: "TEST_NEWSAPI_KEY", Query: "golang"}, zap.NewNop())
	src.baseURL = srv.URL
	require.True(t, src.IsConfigured())

	got, err := src.Headlines(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Headline{URL: "https://n.com/1", Title: "Go 2", Summary: "d", PublishedDate: "2024-03-01", Source: "Wire"}, got[0])
}

func TestNewsAPISourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","message":"rate limited"}`)
	}))
	defer srv.Close()

	t.Setenv("TEST_NEWSAPI_KEY", "secret")
	src := NewNewsAPISource(config.NewsAPIConfig{APIKeyEnv: "TEST_NEWSAPI_KEY"}, zap.NewNop())
	src.baseURL = srv.URL
	_, err := src.Headlines(context.Background(), 1)
	assert.ErrorContains(t, err, "rate limited")
}

type staticSource struct {
	name  string
	items []Headline
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Headlines(context.Context, int) ([]Headline, error) { return s.items, s.err }

func TestCollectorDedupAndSkipsFailures(t *testing.T) {
	c := NewCollectorWithSources(2, zap.NewNop(),
		staticSource{name: "a", items: []Headline{{URL: "https://x.com/1", Title: "one"}, {URL: "https://x.com/2", Title: "two"}}},
		staticSource{name: "broken", err: errors.New("down")},
		staticSource{name: "b", items: []Headline{{URL: "https://x.com/1/", Title: "one again"}, {URL: "https://x.com/3", Title: "three"}}},
	)
	got := c.Collect(context.Background())
	require.Len(t, got, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{got[0].Title, got[1].Title, got[2].Title})
}

func TestNewCollectorSkipsUnconfiguredNewsAPI(t *testing.T) {
	t.Setenv("TEST_NEWSAPI_KEY", "")
	c := NewCollector(config.Topics{NewsAPI: config.NewsAPIConfig{Enabled: true, APIKeyEnv: "TEST_NEWSAPI_KEY"}}, zap.NewNop())
	assert.Empty(t, c.sources)
}

type mockProvider struct {
	response string
	err      error
	prompt   string
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) IsConfigured() bool { return true }
func (m *mockProvider) Generate(_ context.Context, req llm.Request) (string, error) {
	m.prompt = req.Prompt
	return m.response, m.err
}

type memLedger map[string]bool

func (l memLedger) IsTopicUsed(url string) (bool, error) { return l[url], nil }

var headlines = []Headline{
	{URL: "https://a.com", Title: "Used already", Source: "A"},
	{URL: "https://b.com", Title: "Rust in the kernel", Source: "B", Summary: "kernel news"},
	{URL: "https://c.com", Title: "New telescope images", Source: "C"},
}

func TestPlannerUsesModelChoice(t *testing.T) {
	p := &mockProvider{response: "Sure!\n```json\n{\"topic\": \"What the new telescope shows us\", \"tags\": [\"Science\", \"space\", \" \", \"science\"], \"source_url\": \"https://c.com/\"}\n```"}
	planner := NewPlanner(p, memLedger{"https://a.com": true}, []string{"blog"}, zap.NewNop())

	plan, err := planner.Plan(context.Background(), headlines)
	require.NoError(t, err)
	assert.Equal(t, "What the new telescope shows us", plan.Prompt)
	assert.Equal(t, []string{"science", "space"}, plan.Tags)
	assert.Equal(t, "https://c.com", plan.SourceURL)
	assert.NotContains(t, p.prompt, "Used already")
	assert.Contains(t, p.prompt, "kernel news")
}

func TestPlannerFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
	}{
		{"no provider", nil},
		{"provider error", &mockProvider{err: errors.New("timeout")}},
		{"not json", &mockProvider{response: "I like telescopes"}},
		{"unknown url", &mockProvider{response: `{"topic":"x","tags":["y"],"source_url":"https://elsewhere.com"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlanner(tt.provider, memLedger{"https://a.com": true}, []string{"blog"}, nil).Plan(context.Background(), headlines)
			require.NoError(t, err)
			assert.Equal(t, "Rust in the kernel", plan.Prompt)
			assert.Equal(t, []string{"blog"}, plan.Tags)
			assert.Equal(t, "https://b.com", plan.SourceURL)
		})
	}
}

func TestPlannerNoTopics(t *testing.T) {
	ledger := memLedger{"https://a.com": true, "https://b.com": true, "https://c.com": true}
	_, err := NewPlanner(nil, ledger, nil, nil).Plan(context.Background(), headlines)
	assert.ErrorIs(t, err, ErrNoTopics)

	_, err = NewPlanner(nil, nil, nil, nil).Plan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "Sciencedaily", sourceName("https://www.sciencedaily.com/rss/top.xml"))
	assert.Equal(t, "Hnrss", sourceName("https://hnrss.org/frontpage"))
	assert.Equal(t, "not a url", sourceName("not a url"))
}
