package pipeline

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/article"
	"github.com/TobiSchelling/autoblog/internal/config"
	"github.com/TobiSchelling/autoblog/internal/cover"
	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/fetch"
	"github.com/TobiSchelling/autoblog/internal/llm"
	"github.com/TobiSchelling/autoblog/internal/publish"
	"github.com/TobiSchelling/autoblog/internal/topics"
)

// FromConfig wires a Runner from configuration. With dryRun set, rounds are
// published to a local directory under the data dir instead of the
// configured target.
func FromConfig(cfg *config.Config, db *database.DB, dryRun bool, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := llm.CreateProvider(cfg.LLM, logger)

	renderer, err := cover.NewRenderer(cfg.Cover)
	if err != nil {
		return nil, fmt.Errorf("cover renderer: %w", err)
	}
	assembler, err := article.NewAssembler(cfg, provider, renderer, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := NewPublisher(cfg, dryRun, logger)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Assembler: assembler,
		Publisher: publisher,
		Fetcher:   fetch.NewPageFetcher(0, logger),
		Collector: topics.NewCollector(cfg.Topics, logger),
	}
	if db != nil {
		deps.Store = db
		deps.Planner = topics.NewPlanner(provider, db, cfg.Article.DefaultTags, logger)
	} else {
		deps.Planner = topics.NewPlanner(provider, nil, cfg.Article.DefaultTags, logger)
	}
	return New(deps, cfg.Schedule.Interval, logger), nil
}

// NewPublisher returns the configured publish target, or the local dry-run
// directory when dryRun is set.
func NewPublisher(cfg *config.Config, dryRun bool, logger *zap.Logger) (publish.Publisher, error) {
	if dryRun {
		return publish.NewLocalPublisher(filepath.Join(cfg.GetDataDir(), "dry-run"), logger), nil
	}
	switch cfg.Publish.Target {
	case "github":
		gh, err := publish.NewGitHubPublisher(cfg.Publish, logger)
		if err != nil {
			return nil, err
		}
		return gh, nil
	default:
		return publish.NewLocalPublisher(cfg.LocalPublishDir(), logger), nil
	}
}
