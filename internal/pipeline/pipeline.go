// Package pipeline runs batches of generation rounds against a publish target.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/autoblog/internal/article"
	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/fetch"
	"github.com/TobiSchelling/autoblog/internal/publish"
	"github.com/TobiSchelling/autoblog/internal/topics"
)

// ErrRoundPanicked reports a round that crashed instead of returning an error.
var ErrRoundPanicked = errors.New("round panicked")

// Job is a request for Count articles.
type Job struct {
	Count  int
	Prompt string
	Tags   []string
	// Date is the canonical article date; empty means today.
	Date      string
	SourceURL string
	// FromTopics picks each round's prompt, tags and source from collected
	// headlines instead of Prompt.
	FromTopics bool
}

// StepResult holds the result of a single step of a round.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// RoundResult is the outcome of one round.
type RoundResult struct {
	Index     int
	RoundID   int64
	Prompt    string
	Tags      []string
	SourceURL string
	Article   *article.Article
	BaseRef   string
	Ref       string
	Steps     []StepResult
	Err       error
	Duration  time.Duration
}

// Report is the outcome of a batch.
type Report struct {
	BatchID string
	Rounds  []RoundResult
	// Err is the error that stopped the batch, if any.
	Err error
}

// Published counts rounds that reached the publish target.
func (r *Report) Published() int {
	n := 0
	for _, rr := range r.Rounds {
		if rr.Err == nil {
			n++
		}
	}
	return n
}

// Assembler produces a finished article.
type Assembler interface {
	Assemble(ctx context.Context, req article.Request) (*article.Article, error)
}

// Fetcher loads reference text for a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*fetch.Page, error)
}

// HeadlineCollector gathers topic candidates.
type HeadlineCollector interface {
	Collect(ctx context.Context) []topics.Headline
}

// TopicPlanner chooses one topic among candidates.
type TopicPlanner interface {
	Plan(ctx context.Context, headlines []topics.Headline) (*topics.Plan, error)
}

// Store records rounds and used topics.
type Store interface {
	InsertRound(r *database.Round) (int64, error)
	MarkTopicUsed(url, title string) error
}

// Deps are the collaborators of a Runner. Store, Fetcher, Collector and
// Planner are optional.
type Deps struct {
	Assembler Assembler
	Publisher publish.Publisher
	Store     Store
	Fetcher   Fetcher
	Collector HeadlineCollector
	Planner   TopicPlanner
}

// Runner executes batches. Rounds run strictly one after another, each
// publishing on top of the ref the previous round produced; batches are
// serialized for the same reason.
type Runner struct {
	deps    Deps
	limiter *rate.Limiter
	logger  *zap.Logger
	mu      sync.Mutex

	newBatchID func() string
	today      func() string
}

// New creates a runner that starts at most one round per interval.
func New(deps Deps, interval time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Runner{
		deps:       deps,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		newBatchID: uuid.NewString,
		today:      database.GetToday,
	}
}

// PublisherName names the configured publish target.
func (r *Runner) PublisherName() string {
	return r.deps.Publisher.Name()
}

// Run executes job. The first failed round stops the batch; rounds published
// before it stay published. Every attempted round is recorded.
func (r *Runner) Run(ctx context.Context, job Job) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{BatchID: r.newBatchID()}
	if job.Count <= 0 {
		job.Count = 1
	}
	if job.Date == "" {
		job.Date = r.today()
	}
	log := r.logger.With(zap.String("batch", report.BatchID))
	log.Info("starting batch",
		zap.Int("count", job.Count),
		zap.Bool("from_topics", job.FromTopics),
		zap.String("target", r.deps.Publisher.Name()))

	var headlines []topics.Headline
	if job.FromTopics {
		if r.deps.Collector == nil || r.deps.Planner == nil {
			report.Err = errors.New("topic planning is not configured")
			return report
		}
		headlines = r.deps.Collector.Collect(ctx)
	}

	base, err := r.deps.Publisher.Head(ctx)
	if err != nil {
		report.Err = err
		log.Error("reading publish head", zap.Error(err))
		return report
	}

	for i := 0; i < job.Count; i++ {
		if err := r.limiter.Wait(ctx); err != nil {
			report.Err = err
			break
		}

		start := time.Now()
		res := r.runRound(ctx, log, i, job, base, &headlines)
		res.Duration = time.Since(start)
		r.record(log, report.BatchID, job.Date, &res)
		report.Rounds = append(report.Rounds, res)

		if res.Err != nil {
			report.Err = res.Err
			log.Error("round failed, stopping batch", zap.Int("round", i), zap.Error(res.Err))
			break
		}
		log.Info("round published",
			zap.Int("round", i),
			zap.String("title", res.Article.Title),
			zap.String("ref", res.Ref),
			zap.Duration("took", res.Duration))
		base = res.Ref
	}

	log.Info("batch finished", zap.Int("published", report.Published()), zap.Int("attempted", len(report.Rounds)))
	return report
}

func (r *Runner) runRound(ctx context.Context, log *zap.Logger, index int, job Job, base string, headlines *[]topics.Headline) (res RoundResult) {
	res = RoundResult{Index: index, Prompt: job.Prompt, Tags: job.Tags, SourceURL: job.SourceURL, BaseRef: base}
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: round %d: %v", ErrRoundPanicked, index, p)
			res.Article = nil
			res.Ref = ""
			log.Error("round panicked", zap.Int("round", index), zap.Any("panic", p), zap.Stack("stack"))
		}
	}()

	var plan *topics.Plan
	if job.FromTopics {
		var err error
		plan, err = r.deps.Planner.Plan(ctx, *headlines)
		if err != nil {
			res.Err = fmt.Errorf("round %d: planning topic: %w", index, err)
			res.Steps = append(res.Steps, StepResult{Name: "Plan", Err: err})
			return res
		}
		*headlines = without(*headlines, plan.SourceURL)
		res.Prompt, res.Tags, res.SourceURL = plan.Prompt, plan.Tags, plan.SourceURL
		res.Steps = append(res.Steps, StepResult{Name: "Plan", Summary: fmt.Sprintf("Picked %q from %s", plan.Headline.Title, plan.Headline.Source)})
	}

	req := article.Request{Prompt: res.Prompt, Tags: res.Tags, Date: job.Date, SourceURL: res.SourceURL}
	if res.SourceURL != "" && r.deps.Fetcher != nil {
		page, err := r.deps.Fetcher.Fetch(ctx, res.SourceURL)
		if err != nil {
			// An article without grounding is still worth writing.
			log.Warn("reference page unavailable", zap.String("url", res.SourceURL), zap.Error(err))
			res.Steps = append(res.Steps, StepResult{Name: "Fetch", Summary: "Reference unavailable: " + err.Error()})
		} else {
			req.Source = page.Text
			res.Steps = append(res.Steps, StepResult{Name: "Fetch", Summary: fmt.Sprintf("Fetched %d chars of reference text", len(page.Text))})
		}
	}

	art, err := r.deps.Assembler.Assemble(ctx, req)
	if err != nil {
		res.Err = fmt.Errorf("round %d: %w", index, err)
		res.Steps = append(res.Steps, StepResult{Name: "Assemble", Err: err})
		return res
	}
	res.Article = art
	res.Steps = append(res.Steps, StepResult{Name: "Assemble", Summary: fmt.Sprintf("%s (%d bytes, %d byte cover)", art.Title, len(art.Document), len(art.Cover))})

	ref, err := r.deps.Publisher.Publish(ctx, publish.Commit{
		Files:   art.Files(),
		BaseRef: base,
		Message: art.CommitMessage(),
	})
	if err != nil {
		res.Err = fmt.Errorf("round %d: %w", index, err)
		res.Steps = append(res.Steps, StepResult{Name: "Publish", Err: err})
		return res
	}
	res.Ref = ref
	res.Steps = append(res.Steps, StepResult{Name: "Publish", Summary: fmt.Sprintf("%s and %s at %s", art.ArticlePath, art.ImagePath, shortRef(ref))})

	if plan != nil && r.deps.Store != nil {
		if err := r.deps.Store.MarkTopicUsed(plan.SourceURL, plan.Headline.Title); err != nil {
			log.Warn("could not mark topic used", zap.String("url", plan.SourceURL), zap.Error(err))
		}
	}
	return res
}

func (r *Runner) record(log *zap.Logger, batchID, date string, res *RoundResult) {
	if r.deps.Store == nil {
		return
	}
	row := &database.Round{
		BatchID:   batchID,
		Index:     res.Index,
		Status:    database.StatusPublished,
		Prompt:    res.Prompt,
		Tags:      res.Tags,
		Date:      date,
		SourceURL: res.SourceURL,
		BaseRef:   res.BaseRef,
		Ref:       res.Ref,
	}
	if res.Err != nil {
		row.Status = database.StatusFailed
		row.Error = res.Err.Error()
	}
	if a := res.Article; a != nil {
		row.Title = a.Title
		row.Description = a.Description
		row.Tags = a.Tags
		row.Name = a.Name
		row.ArticlePath = a.ArticlePath
		row.ImagePath = a.ImagePath
		row.CoverURL = a.CoverURL
		row.Document = a.Document
		row.Cover = a.Cover
	}
	id, err := r.deps.Store.InsertRound(row)
	if err != nil {
		log.Error("recording round", zap.Int("round", res.Index), zap.Error(err))
		return
	}
	res.RoundID = id
}

func without(headlines []topics.Headline, url string) []topics.Headline {
	out := headlines[:0:0]
	for _, h := range headlines {
		if strings.TrimRight(h.URL, "/") != strings.TrimRight(url, "/") {
			out = append(out, h)
		}
	}
	return out
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}
