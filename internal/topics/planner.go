package topics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/llm"
)

// ErrNoTopics means every candidate headline has already been used.
var ErrNoTopics = errors.New("no unused topics")

const (
	maxCandidates = 15
	maxTags       = 5
)

const planPrompt = `You pick the next topic for a blog. Choose ONE of these recent headlines
that would make an interesting, evergreen article, and phrase a topic for it.

%s
Respond with ONLY this JSON:
{
    "topic": "one sentence describing the article to write",
    "tags": ["tag1", "tag2"],
    "source_url": "the url of the chosen headline"
}`

// Ledger tells the planner which headlines were already written about.
type Ledger interface {
	IsTopicUsed(url string) (bool, error)
}

// Plan is a chosen topic, ready to hand to the article assembler.
type Plan struct {
	Prompt    string
	Tags      []string
	SourceURL string
	Headline  Headline
}

// Planner asks the model to choose among unused headlines.
type Planner struct {
	provider    llm.Provider
	ledger      Ledger
	defaultTags []string
	logger      *zap.Logger
}

func NewPlanner(provider llm.Provider, ledger Ledger, defaultTags []string, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{provider: provider, ledger: ledger, defaultTags: defaultTags, logger: logger}
}

// Plan picks a topic from headlines. Without a usable model answer the
// first unused headline is taken with the default tags.
func (p *Planner) Plan(ctx context.Context, headlines []Headline) (*Plan, error) {
	candidates, err := p.unused(headlines)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoTopics
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	if p.provider != nil {
		plan, err := p.ask(ctx, candidates)
		if err == nil {
			return plan, nil
		}
		p.logger.Warn("topic planning fell back to first headline", zap.Error(err))
	}
	return p.fallback(candidates[0]), nil
}

func (p *Planner) unused(headlines []Headline) ([]Headline, error) {
	if p.ledger == nil {
		return headlines, nil
	}
	var out []Headline
	for _, h := range headlines {
		used, err := p.ledger.IsTopicUsed(h.URL)
		if err != nil {
			return nil, fmt.Errorf("checking topic ledger: %w", err)
		}
		if !used {
			out = append(out, h)
		}
	}
	return out, nil
}

func (p *Planner) ask(ctx context.Context, candidates []Headline) (*Plan, error) {
	var list strings.Builder
	for i, h := range candidates {
		fmt.Fprintf(&list, "%d. %s (%s)\n   url: %s\n", i+1, h.Title, h.Source, h.URL)
		if h.Summary != "" {
			fmt.Fprintf(&list, "   %s\n", truncate(h.Summary, 240))
		}
	}

	resp, err := p.provider.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(planPrompt, list.String()),
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		return nil, err
	}

	var answer struct {
		Topic     string   `json:"topic"`
		Tags      []string `json:"tags"`
		SourceURL string   `json:"source_url"`
	}
	if err := llm.ParseJSONResponse(resp, &answer); err != nil {
		return nil, err
	}

	chosen, ok := find(candidates, answer.SourceURL)
	if !ok {
		return nil, fmt.Errorf("model chose unknown url %q", answer.SourceURL)
	}
	plan := p.fallback(chosen)
	if topic := strings.TrimSpace(answer.Topic); topic != "" {
		plan.Prompt = topic
	}
	if tags := cleanTags(answer.Tags); len(tags) > 0 {
		plan.Tags = tags
	}
	return plan, nil
}

func (p *Planner) fallback(h Headline) *Plan {
	tags := make([]string, len(p.defaultTags))
	copy(tags, p.defaultTags)
	return &Plan{Prompt: h.Title, Tags: tags, SourceURL: h.URL, Headline: h}
}

func find(candidates []Headline, u string) (Headline, bool) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	for _, h := range candidates {
		if strings.TrimRight(h.URL, "/") == u {
			return h, true
		}
	}
	return Headline{}, false
}

// cleanTags keeps single-line, non-blank, lowercased tags without duplicates.
func cleanTags(tags []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || strings.ContainsAny(t, "\r\n") {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
