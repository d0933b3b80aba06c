package topics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
)

const maxPerFeed = 20

// FeedSource reads RSS/Atom feeds.
type FeedSource struct {
	feeds  []config.Feed
	parser *gofeed.Parser
	logger *zap.Logger
}

func NewFeedSource(feeds []config.Feed, logger *zap.Logger) *FeedSource {
	return &FeedSource{feeds: feeds, parser: gofeed.NewParser(), logger: logger}
}

func (f *FeedSource) Name() string { return "feeds" }

// Headlines returns entries within daysBack from every feed. Individual feed
// failures are logged; an error is returned only if every feed failed.
func (f *FeedSource) Headlines(ctx context.Context, daysBack int) ([]Headline, error) {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []Headline
	failed := 0
	for _, fc := range f.feeds {
		name := fc.Name
		if name == "" {
			name = sourceName(fc.URL)
		}
		entries, err := f.parseFeed(ctx, fc.URL, name, cutoff)
		if err != nil {
			failed++
			f.logger.Warn("failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}
		all = append(all, entries...)
		f.logger.Debug("parsed feed", zap.String("feed", name), zap.Int("entries", len(entries)), zap.Int("days_back", daysBack))
	}
	if failed > 0 && failed == len(f.feeds) {
		return nil, fmt.Errorf("all %d feeds failed", failed)
	}
	return all, nil
}

func (f *FeedSource) parseFeed(ctx context.Context, feedURL, source string, cutoff time.Time) ([]Headline, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var entries []Headline
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}
		h, ok := headlineFromItem(item, source)
		if ok && withinWindow(h.PublishedDate, cutoff) {
			entries = append(entries, h)
		}
	}
	return entries, nil
}

func headlineFromItem(item *gofeed.Item, source string) (Headline, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return Headline{}, false
	}

	var published string
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.Format(time.DateOnly)
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.Format(time.DateOnly)
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return Headline{
		URL:           link,
		Title:         title,
		Summary:       stripHTML(summary),
		PublishedDate: published,
		Source:        source,
	}, true
}

func withinWindow(published string, cutoff time.Time) bool {
	if published == "" {
		return true
	}
	pub, err := time.Parse(time.DateOnly, published)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff.Truncate(24 * time.Hour))
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func stripHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(entityReplacer.Replace(b.String())), " ")
}

// sourceName derives a display name such as "Sciencedaily" from a feed URL.
func sourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}
	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
