package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Compilers Explained</title></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Compilers Explained</h1>
<p>%s</p>
<p>%s</p>
</article>
<footer>copyright</footer>
</body></html>`

func TestFetchExtractsArticle(t *testing.T) {
	para := strings.Repeat("A compiler turns source code into machine code through several passes. ", 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.UserAgent(), "autoblog")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Replace(strings.Replace(articleHTML, "%s", para, 1), "%s", para, 1)))
	}))
	defer srv.Close()

	page, err := NewPageFetcher(0, zap.NewNop()).Fetch(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Contains(t, page.Text, "A compiler turns source code")
	assert.Greater(t, len(page.Text), minContentChars)
	assert.Equal(t, srv.URL+"/post", page.URL)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewPageFetcher(0, nil).Fetch(context.Background(), srv.URL)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestFetchTooShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>tiny</p></body></html>"))
	}))
	defer srv.Close()

	_, err := NewPageFetcher(0, nil).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFetchRejectsBadURL(t *testing.T) {
	_, err := NewPageFetcher(0, nil).Fetch(context.Background(), "ftp://example.com/x")
	assert.Error(t, err)
}
