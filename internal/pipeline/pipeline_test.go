package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/article"
	"github.com/TobiSchelling/autoblog/internal/config"
	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/fetch"
	"github.com/TobiSchelling/autoblog/internal/publish"
	"github.com/TobiSchelling/autoblog/internal/topics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAssembler builds articles from the prompt; failAt and panicAt select
// the call that misbehaves.
type fakeAssembler struct {
	mu       sync.Mutex
	requests []article.Request
	failAt   int
	panicAt  int
	err      error
}

func newFakeAssembler() *fakeAssembler {
	return &fakeAssembler{failAt: -1, panicAt: -1}
}

func (f *fakeAssembler) Assemble(_ context.Context, req article.Request) (*article.Article, error) {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if call == f.panicAt {
		panic("renderer exploded")
	}
	if call == f.failAt {
		return nil, f.err
	}
	name := fmt.Sprintf("round-%d", call)
	return &article.Article{
		Name:        name,
		Title:       "✨ " + req.Prompt,
		Date:        req.Date,
		Tags:        req.Tags,
		Document:    "---\ntitle: \"" + req.Prompt + "\"\n---\n\n# " + req.Prompt + "\n",
		Cover:       []byte("png"),
		ArticlePath: "posts/" + name + ".md",
		ImagePath:   "images/" + name + ".png",
	}, nil
}

// recordingPublisher wraps a local publisher and records each commit's base.
type recordingPublisher struct {
	*publish.LocalPublisher
	bases   []string
	commits []publish.Commit
	err     error
}

func (r *recordingPublisher) Publish(ctx context.Context, c publish.Commit) (string, error) {
	r.bases = append(r.bases, c.BaseRef)
	r.commits = append(r.commits, c)
	if r.err != nil {
		return "", r.err
	}
	return r.LocalPublisher.Publish(ctx, c)
}

func newRecordingPublisher(t *testing.T) *recordingPublisher {
	return &recordingPublisher{LocalPublisher: publish.NewLocalPublisher(t.TempDir(), zap.NewNop())}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRunner(deps Deps) *Runner {
	r := New(deps, 0, zap.NewNop())
	n := 0
	r.newBatchID = func() string {
		n++
		return fmt.Sprintf("batch-%d", n)
	}
	r.today = func() string { return "2024-01-01" }
	return r
}

func TestRunChainsRefsSequentially(t *testing.T) {
	asm := newFakeAssembler()
	pub := newRecordingPublisher(t)
	db := openTestDB(t)
	r := newTestRunner(Deps{Assembler: asm, Publisher: pub, Store: db})

	report := r.Run(context.Background(), Job{Count: 3, Prompt: "go", Tags: []string{"tech"}})
	require.NoError(t, report.Err)
	require.Len(t, report.Rounds, 3)
	assert.Equal(t, 3, report.Published())

	assert.Equal(t, "", pub.bases[0], "first round starts from the empty local head")
	assert.Equal(t, report.Rounds[0].Ref, pub.bases[1])
	assert.Equal(t, report.Rounds[1].Ref, pub.bases[2])

	head, err := pub.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Rounds[2].Ref, head)

	for i, c := range pub.commits {
		assert.Len(t, c.Files, 2, "round %d must commit article and image together", i)
	}
	for _, req := range asm.requests {
		assert.Equal(t, "2024-01-01", req.Date)
	}

	rounds, err := db.GetBatchRounds("batch-1")
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for _, rr := range rounds {
		assert.True(t, rr.Published())
	}
	assert.Equal(t, report.Rounds[1].Ref, rounds[2].BaseRef)
}

func TestRunRenderFailureStopsBeforePublish(t *testing.T) {
	asm := newFakeAssembler()
	asm.failAt = 1
	asm.err = fmt.Errorf("%w: font missing", article.ErrRenderFailed)
	pub := newRecordingPublisher(t)
	db := openTestDB(t)
	r := newTestRunner(Deps{Assembler: asm, Publisher: pub, Store: db})

	report := r.Run(context.Background(), Job{Count: 3, Prompt: "go", Tags: []string{"tech"}})
	require.ErrorIs(t, report.Err, article.ErrRenderFailed)
	require.Len(t, report.Rounds, 2)
	assert.Equal(t, 1, report.Published())
	assert.Len(t, pub.commits, 1, "failed round must not publish")
	assert.Len(t, asm.requests, 2, "batch stops at the first failure")

	rounds, err := db.GetBatchRounds("batch-1")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, database.StatusPublished, rounds[0].Status)
	assert.Equal(t, database.StatusFailed, rounds[1].Status)
	assert.Contains(t, rounds[1].Error, "font missing")
}

func TestRunRecoversPanic(t *testing.T) {
	asm := newFakeAssembler()
	asm.panicAt = 1
	pub := newRecordingPublisher(t)
	db := openTestDB(t)
	r := newTestRunner(Deps{Assembler: asm, Publisher: pub, Store: db})

	report := r.Run(context.Background(), Job{Count: 2, Prompt: "go", Tags: []string{}})
	require.ErrorIs(t, report.Err, ErrRoundPanicked)
	assert.Contains(t, report.Err.Error(), "round 1")
	assert.Equal(t, 1, report.Published())

	head, err := pub.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Rounds[0].Ref, head, "earlier round must stay committed")

	rounds, err := db.GetBatchRounds("batch-1")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, database.StatusFailed, rounds[1].Status)
}

func TestRunPublishFailure(t *testing.T) {
	pub := newRecordingPublisher(t)
	pub.err = fmt.Errorf("%w: HTTP 409", publish.ErrPublishFailed)
	r := newTestRunner(Deps{Assembler: newFakeAssembler(), Publisher: pub})

	report := r.Run(context.Background(), Job{Count: 2, Prompt: "go", Tags: []string{"a"}})
	require.ErrorIs(t, report.Err, publish.ErrPublishFailed)
	assert.Len(t, report.Rounds, 1)
	assert.Zero(t, report.Published())
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	asm := newFakeAssembler()
	r := newTestRunner(Deps{Assembler: asm, Publisher: newRecordingPublisher(t)})

	report := r.Run(ctx, Job{Count: 2, Prompt: "go", Tags: []string{"a"}})
	assert.Error(t, report.Err)
	assert.Empty(t, asm.requests)
}

func TestRunPacesRounds(t *testing.T) {
	r := New(Deps{Assembler: newFakeAssembler(), Publisher: newRecordingPublisher(t)}, 40*time.Millisecond, zap.NewNop())
	start := time.Now()
	report := r.Run(context.Background(), Job{Count: 3, Prompt: "go", Tags: []string{"a"}})
	require.NoError(t, report.Err)
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestRunDefaultsCount(t *testing.T) {
	asm := newFakeAssembler()
	report := newTestRunner(Deps{Assembler: asm, Publisher: newRecordingPublisher(t)}).Run(context.Background(), Job{Prompt: "go", Tags: []string{"a"}})
	require.NoError(t, report.Err)
	assert.Len(t, report.Rounds, 1)
}

type fakeFetcher struct {
	text string
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (*fetch.Page, error) {
	f.urls = append(f.urls, u)
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Page{URL: u, Text: f.text}, nil
}

func TestRunGroundsInSourcePage(t *testing.T) {
	asm := newFakeAssembler()
	f := &fakeFetcher{text: "reference body"}
	r := newTestRunner(Deps{Assembler: asm, Publisher: newRecordingPublisher(t), Fetcher: f})

	report := r.Run(context.Background(), Job{Prompt: "go", Tags: []string{"a"}, SourceURL: "https://example.com/post"})
	require.NoError(t, report.Err)
	assert.Equal(t, []string{"https://example.com/post"}, f.urls)
	assert.Equal(t, "reference body", asm.requests[0].Source)
}

func TestRunFetchFailureIsNotFatal(t *testing.T) {
	asm := newFakeAssembler()
	f := &fakeFetcher{err: fetch.ErrNoContent}
	r := newTestRunner(Deps{Assembler: asm, Publisher: newRecordingPublisher(t), Fetcher: f})

	report := r.Run(context.Background(), Job{Prompt: "go", Tags: []string{"a"}, SourceURL: "https://example.com/post"})
	require.NoError(t, report.Err)
	assert.Empty(t, asm.requests[0].Source)
}

type fakeCollector struct{ headlines []topics.Headline }

func (f fakeCollector) Collect(context.Context) []topics.Headline { return f.headlines }

func TestRunFromTopics(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MarkTopicUsed("https://a.com", "A"))
	collector := fakeCollector{headlines: []topics.Headline{
		{URL: "https://a.com", Title: "A"},
		{URL: "https://b.com", Title: "B"},
		{URL: "https://c.com", Title: "C"},
	}}
	asm := newFakeAssembler()
	r := newTestRunner(Deps{
		Assembler: asm,
		Publisher: newRecordingPublisher(t),
		Store:     db,
		Collector: collector,
		Planner:   topics.NewPlanner(nil, db, []string{"news"}, zap.NewNop()),
	})

	report := r.Run(context.Background(), Job{Count: 2, FromTopics: true})
	require.NoError(t, report.Err)
	require.Len(t, asm.requests, 2)
	assert.Equal(t, "B", asm.requests[0].Prompt)
	assert.Equal(t, "C", asm.requests[1].Prompt)
	assert.Equal(t, []string{"news"}, asm.requests[0].Tags)

	for _, u := range []string{"https://b.com", "https://c.com"} {
		used, err := db.IsTopicUsed(u)
		require.NoError(t, err)
		assert.True(t, used, u)
	}

	report = r.Run(context.Background(), Job{Count: 1, FromTopics: true})
	require.ErrorIs(t, report.Err, topics.ErrNoTopics)
}

func TestRunFromTopicsUnconfigured(t *testing.T) {
	report := newTestRunner(Deps{Assembler: newFakeAssembler(), Publisher: newRecordingPublisher(t)}).Run(context.Background(), Job{FromTopics: true})
	assert.Error(t, report.Err)
	assert.Empty(t, report.Rounds)
}

func TestFromConfigDryRun(t *testing.T) {
	cfg := config.Default()
	cfg.Output.DataDir = t.TempDir()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKeyEnv = "AUTOBLOG_TEST_UNSET_KEY"
	t.Setenv("AUTOBLOG_TEST_UNSET_KEY", "")

	r, err := FromConfig(cfg, nil, true, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(r.PublisherName(), "dry-run"), r.PublisherName())

	report := r.Run(context.Background(), Job{Prompt: "x", Tags: []string{"a"}})
	assert.ErrorIs(t, report.Err, article.ErrGenerationFailed, "no provider configured")
}

func TestNewPublisherGitHubNeedsToken(t *testing.T) {
	cfg := config.Default()
	cfg.Publish.Target = "github"
	cfg.Publish.TokenEnv = "AUTOBLOG_TEST_UNSET_TOKEN"
	t.Setenv("AUTOBLOG_TEST_UNSET_TOKEN", "")
	_, err := NewPublisher(cfg, false, nil)
	assert.True(t, errors.Is(err, publish.ErrPublishFailed))
}
