package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/article"
	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/frontmatter"
	"github.com/TobiSchelling/autoblog/internal/pipeline"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, opts Options) *Server {
	t.Helper()
	srv, err := New(db, opts)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func insertPublished(t *testing.T, db *database.DB, title string) int64 {
	t.Helper()
	header := frontmatter.Header{
		Title:       title,
		Description: "All about " + title,
		Date:        "2024-03-01",
		Tags:        []string{"tech"},
		Cover:       "/images/" + title + ".png",
	}
	id, err := db.InsertRound(&database.Round{
		BatchID:     "batch-" + title,
		Status:      database.StatusPublished,
		Prompt:      "write about " + title,
		Title:       title,
		Description: header.Description,
		Tags:        header.Tags,
		Date:        header.Date,
		ArticlePath: "content/posts/" + title + ".md",
		Ref:         "0123456789abcdef0123",
		Document:    frontmatter.Document(header, "# "+title+"\n\nSome **bold** text."),
		Cover:       []byte("\x89PNG fake"),
	})
	require.NoError(t, err)
	return id
}

type fakeGenerator struct {
	jobs   []pipeline.Job
	report *pipeline.Report
}

func (g *fakeGenerator) Run(_ context.Context, job pipeline.Job) *pipeline.Report {
	g.jobs = append(g.jobs, job)
	return g.report
}

type fixedNext time.Time

func (n fixedNext) Next() time.Time { return time.Time(n) }

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	insertPublished(t, db, "gophers")
	_, err := db.InsertRound(&database.Round{BatchID: "b2", Status: database.StatusFailed, Prompt: "broken prompt", Tags: []string{}, Error: "generation failed"})
	require.NoError(t, err)

	srv := newTestServer(t, db, Options{Schedule: fixedNext(time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC))})
	rec := do(t, srv, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Rounds")
	assert.Contains(t, body, "gophers")
	assert.Contains(t, body, "broken prompt")
	assert.Contains(t, body, "Mar 01, 2024")
	assert.Contains(t, body, "0123456789ab")
	assert.Contains(t, body, "next run Mar 02 09:30")
}

func TestIndexRouteEmpty(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(t, srv, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No rounds yet")
	assert.NotContains(t, rec.Body.String(), "next run")
}

func TestUnknownPathIsNotFound(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoundRoute(t *testing.T) {
	db := openTestDB(t)
	id := insertPublished(t, db, "gophers")
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/rounds/%d", id), "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.Contains(t, body, "All about gophers")
	assert.Contains(t, body, fmt.Sprintf("/rounds/%d/cover.png", id))
	assert.Contains(t, body, "content/posts/gophers.md")
}

func TestRoundRouteFailedRound(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertRound(&database.Round{BatchID: "b", Status: database.StatusFailed, Prompt: "p", Tags: []string{"x"}, Error: "publish failed: conflict"})
	require.NoError(t, err)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/rounds/%d", id), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "publish failed: conflict")
	assert.NotContains(t, rec.Body.String(), "cover.png")
}

func TestRoundRouteMissing(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/rounds/999", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/rounds/abc", "").Code)
}

func TestCoverRoute(t *testing.T) {
	db := openTestDB(t)
	id := insertPublished(t, db, "gophers")
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/rounds/%d/cover.png", id), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG fake", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/rounds/42/cover.png", "").Code)
}

func TestStaticEmbedded(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(t, srv, http.MethodGet, "/static/style.css", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "table.rounds")
}

func TestStaticDirOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("body{color:red}"), 0o644))
	srv := newTestServer(t, openTestDB(t), Options{StaticDir: dir})

	rec := do(t, srv, http.MethodGet, "/static/style.css", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{color:red}", rec.Body.String())
}

func TestListRoundsAPI(t *testing.T) {
	db := openTestDB(t)
	insertPublished(t, db, "first")
	insertPublished(t, db, "second")
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/api/rounds?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []storedRound
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Title)
	assert.Equal(t, database.StatusPublished, got[0].Status)
	assert.Equal(t, []string{"tech"}, got[0].Tags)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/rounds?limit=x", "").Code)
}

func TestGenerateDisabled(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(t, srv, http.MethodPost, "/api/generate", `{"prompt":"go"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerateValidation(t *testing.T) {
	gen := &fakeGenerator{report: &pipeline.Report{}}
	srv := newTestServer(t, openTestDB(t), Options{Generator: gen})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing prompt", `{"count":1}`, "Prompt"},
		{"count too large", `{"prompt":"go","count":11}`, "Count"},
		{"bad date", `{"prompt":"go","date":"01/02/2024"}`, "Date"},
		{"bad source url", `{"prompt":"go","source_url":"not a url"}`, "SourceURL"},
		{"blank tag", `{"prompt":"go","tags":["ok",""]}`, "Tags[1]"},
		{"unknown field", `{"prompt":"go","extra":true}`, "invalid JSON"},
		{"malformed", `{"prompt":`, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/generate", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
	assert.Empty(t, gen.jobs)
}

func TestGenerateFromTopicsNeedsNoPrompt(t *testing.T) {
	gen := &fakeGenerator{report: &pipeline.Report{BatchID: "b"}}
	srv := newTestServer(t, openTestDB(t), Options{Generator: gen, DefaultTags: []string{"tech"}})

	rec := do(t, srv, http.MethodPost, "/api/generate", `{"from_topics":true,"count":2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, gen.jobs, 1)
	assert.True(t, gen.jobs[0].FromTopics)
	assert.Equal(t, 2, gen.jobs[0].Count)
	assert.Nil(t, gen.jobs[0].Tags)
}

func TestGenerateSuccess(t *testing.T) {
	gen := &fakeGenerator{report: &pipeline.Report{
		BatchID: "batch-1",
		Rounds: []pipeline.RoundResult{{
			Index:   0,
			RoundID: 7,
			Prompt:  "Go generics",
			Tags:    []string{"go"},
			Article: &article.Article{
				Title:       "💻 Go Generics",
				Name:        "20240301-000000-abcd1234-go-generics",
				ArticlePath: "content/posts/20240301-000000-abcd1234-go-generics.md",
				ImagePath:   "static/images/20240301-000000-abcd1234-go-generics.png",
				CoverURL:    "/images/20240301-000000-abcd1234-go-generics.png",
			},
			BaseRef:  "base",
			Ref:      "next",
			Duration: 1500 * time.Millisecond,
		}},
	}}
	srv := newTestServer(t, openTestDB(t), Options{Generator: gen, DefaultTags: []string{"tech", "blog"}})

	rec := do(t, srv, http.MethodPost, "/api/generate", `{"prompt":"  Go generics  ","date":"2024-03-01"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Len(t, gen.jobs, 1)
	assert.Equal(t, "Go generics", gen.jobs[0].Prompt)
	assert.Equal(t, []string{"tech", "blog"}, gen.jobs[0].Tags)
	assert.Equal(t, "2024-03-01", gen.jobs[0].Date)

	var resp reportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "batch-1", resp.BatchID)
	assert.Equal(t, 1, resp.Published)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Rounds, 1)
	assert.Equal(t, "💻 Go Generics", resp.Rounds[0].Title)
	assert.Equal(t, "next", resp.Rounds[0].Ref)
	assert.Equal(t, int64(1500), resp.Rounds[0].DurationMS)
}

func TestGenerateFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("round 0: %w: tag 0 is blank", frontmatter.ErrInvalidInput), http.StatusBadRequest},
		{"collaborator failure", fmt.Errorf("round 0: %w: boom", article.ErrGenerationFailed), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{report: &pipeline.Report{
				BatchID: "b",
				Rounds:  []pipeline.RoundResult{{Index: 0, Err: tt.err}},
				Err:     tt.err,
			}}
			srv := newTestServer(t, openTestDB(t), Options{Generator: gen})

			rec := do(t, srv, http.MethodPost, "/api/generate", `{"prompt":"go","tags":["go"]}`)

			require.Equal(t, tt.want, rec.Code)
			var resp reportResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 0, resp.Published)
			assert.Equal(t, tt.err.Error(), resp.Error)
			assert.Equal(t, tt.err.Error(), resp.Rounds[0].Error)
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestDescribeValidationPassesThroughOtherErrors(t *testing.T) {
	assert.Equal(t, "boom", describeValidation(errors.New("boom")))
}
