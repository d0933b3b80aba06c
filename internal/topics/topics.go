// Package topics gathers candidate headlines and picks the next article topic.
package topics

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
)

// Headline is a candidate topic taken from a feed or news search.
type Headline struct {
	URL           string
	Title         string
	Summary       string
	PublishedDate string // YYYY-MM-DD or empty
	Source        string
}

// Source yields recent headlines.
type Source interface {
	Name() string
	Headlines(ctx context.Context, daysBack int) ([]Headline, error)
}

// Collector merges headlines from every configured source.
type Collector struct {
	sources  []Source
	daysBack int
	logger   *zap.Logger
}

// NewCollector builds sources from configuration. Disabled or unconfigured
// sources are left out.
func NewCollector(cfg config.Topics, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{daysBack: cfg.DaysBack, logger: logger}
	if len(cfg.Feeds) > 0 {
		c.sources = append(c.sources, NewFeedSource(cfg.Feeds, logger))
	}
	if cfg.NewsAPI.Enabled {
		news := NewNewsAPISource(cfg.NewsAPI, logger)
		if news.IsConfigured() {
			c.sources = append(c.sources, news)
		} else {
			logger.Warn("NewsAPI enabled but no API key set", zap.String("env", cfg.NewsAPI.APIKeyEnv))
		}
	}
	return c
}

// NewCollectorWithSources is used when sources are built by the caller.
func NewCollectorWithSources(daysBack int, logger *zap.Logger, sources ...Source) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{sources: sources, daysBack: daysBack, logger: logger}
}

// Collect returns headlines from all sources, deduplicated by URL, in source
// order. A failing source is logged and skipped.
func (c *Collector) Collect(ctx context.Context) []Headline {
	seen := make(map[string]struct{})
	var all []Headline
	for _, s := range c.sources {
		items, err := s.Headlines(ctx, c.daysBack)
		if err != nil {
			c.logger.Warn("topic source failed", zap.String("source", s.Name()), zap.Error(err))
			continue
		}
		for _, h := range items {
			key := strings.TrimRight(h.URL, "/")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, h)
		}
	}
	c.logger.Info("collected headlines", zap.Int("count", len(all)), zap.Int("sources", len(c.sources)))
	return all
}
