// Package article assembles one generation round: draft, reconciled header,
// cover image and file names.
package article

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
	"github.com/TobiSchelling/autoblog/internal/cover"
	"github.com/TobiSchelling/autoblog/internal/frontmatter"
	"github.com/TobiSchelling/autoblog/internal/llm"
)

// Failure kinds, matched with errors.Is.
var (
	// ErrGenerationFailed means no provider is configured or the model call failed.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrRenderFailed means the cover image could not be drawn.
	ErrRenderFailed = errors.New("render failed")
	// ErrEmojiSuggestionFailed is logged when Suggest falls back to the
	// default emoji. It never fails a round.
	ErrEmojiSuggestionFailed = errors.New("emoji suggestion failed")
)

// Renderer draws a cover image.
type Renderer interface {
	Render(ctx context.Context, s cover.Spec) ([]byte, error)
}

// Request describes one article to write.
type Request struct {
	Prompt string
	Tags   []string
	Date   string
	// Source is optional reference text the article is grounded in.
	Source    string
	SourceURL string
}

// Article is a finished round, ready to publish.
type Article struct {
	Name        string
	Title       string
	Description string
	Date        string
	Tags        []string
	Emoji       string
	Document    string
	Cover       []byte
	ArticlePath string
	ImagePath   string
	CoverURL    string
}

// Files returns the article and its image keyed by repository path.
func (a *Article) Files() map[string][]byte {
	return map[string][]byte{
		a.ArticlePath: []byte(a.Document),
		a.ImagePath:   a.Cover,
	}
}

// CommitMessage is the message used when publishing the article.
func (a *Article) CommitMessage() string {
	return "Add article: " + a.Title
}

// Assembler runs generation, reconciliation and cover rendering for a round.
type Assembler struct {
	provider   llm.Provider
	reconciler *frontmatter.Reconciler
	suggester  *Suggester
	renderer   Renderer
	llmCfg     config.LLM
	cfg        config.Article
	paths      config.Publish
	logger     *zap.Logger

	now   func() time.Time
	token func() string
}

// NewAssembler wires an assembler from configuration.
func NewAssembler(cfg *config.Config, provider llm.Provider, renderer Renderer, logger *zap.Logger) (*Assembler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := frontmatter.LookupPolicy(cfg.Article.Policy)
	if err != nil {
		return nil, err
	}
	return &Assembler{
		provider:   provider,
		reconciler: frontmatter.NewReconciler(policy),
		suggester:  NewSuggester(provider, cfg.Article.DefaultEmoji, logger),
		renderer:   renderer,
		llmCfg:     cfg.LLM,
		cfg:        cfg.Article,
		paths:      cfg.Publish,
		logger:     logger,
		now:        time.Now,
		token:      func() string { return uuid.NewString()[:8] },
	}, nil
}

// Assemble produces the finished article text and its cover image. Nothing
// is published here; any failure means the round has no artifacts.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Article, error) {
	if err := frontmatter.CheckCanonical(req.Date, req.Tags); err != nil {
		return nil, err
	}
	if a.provider == nil {
		return nil, fmt.Errorf("%w: no LLM provider configured", ErrGenerationFailed)
	}

	system := a.cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	draft, err := a.provider.Generate(ctx, llm.Request{
		System:      system,
		Prompt:      buildArticlePrompt(req, a.cfg.Words),
		MaxTokens:   a.llmCfg.MaxTokens,
		Temperature: a.llmCfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGenerationFailed, a.provider.Name(), err)
	}
	if strings.TrimSpace(draft) == "" {
		a.logger.Warn("model returned an empty draft, using fallbacks", zap.String("prompt", req.Prompt))
	}

	res, err := a.reconciler.Reconcile(draft, req.Date, req.Tags, req.Prompt)
	if err != nil {
		return nil, err
	}

	emoji := a.suggester.Suggest(ctx, res.Title, res.Header.Tags)
	name := a.fileName(res.Title)

	png, err := a.renderer.Render(ctx, cover.Spec{Title: res.Title, Tags: res.Header.Tags, Emoji: emoji})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	coverURL := strings.TrimRight(a.paths.CoverURLPrefix, "/") + "/" + name + ".png"
	art := &Article{
		Name:        name,
		Title:       res.Title,
		Description: res.Header.Description,
		Date:        res.Header.Date,
		Tags:        res.Header.Tags,
		Emoji:       emoji,
		Document:    frontmatter.RewriteCover(res.Document(), coverURL),
		Cover:       png,
		ArticlePath: path.Join(a.paths.PostsDir, name+".md"),
		ImagePath:   path.Join(a.paths.ImagesDir, name+".png"),
		CoverURL:    coverURL,
	}
	a.logger.Info("article assembled",
		zap.String("title", art.Title),
		zap.String("name", name),
		zap.Int("cover_bytes", len(png)))
	return art, nil
}

// fileName is "<UTC timestamp>-<random token>-<slug>".
func (a *Assembler) fileName(title string) string {
	return a.now().UTC().Format("20060102-150405") + "-" + a.token() + "-" + Slug(title)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 50

// Slug reduces a title to lowercase ASCII words joined by hyphens.
func Slug(title string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "article"
	}
	return s
}
