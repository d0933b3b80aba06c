package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const headFile = ".autoblog-head"

// LocalPublisher writes commits into a directory. Refs form a SHA-256 chain
// over the parent ref, the commit message and every path and content.
type LocalPublisher struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLocalPublisher creates a publisher writing into dir.
func NewLocalPublisher(dir string, logger *zap.Logger) *LocalPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalPublisher{dir: dir, logger: logger}
}

// Name identifies the target directory.
func (l *LocalPublisher) Name() string {
	return "local:" + l.dir
}

// Head returns the latest ref, or "" before the first publish.
func (l *LocalPublisher) Head(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head()
}

func (l *LocalPublisher) head() (string, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, headFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading head: %w", ErrPublishFailed, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Publish writes every file of c and advances the head. A BaseRef that is no
// longer the head fails without writing anything.
func (l *LocalPublisher) Publish(ctx context.Context, c Commit) (string, error) {
	if len(c.Files) == 0 {
		return "", fmt.Errorf("%w: nothing to commit", ErrPublishFailed)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.head()
	if err != nil {
		return "", err
	}
	base := c.BaseRef
	if base == "" {
		base = current
	}
	if base != current {
		return "", fmt.Errorf("%w: base %s is not the current head %s", ErrPublishFailed, short(base), short(current))
	}

	paths := sortedPaths(c.Files)
	h := sha256.New()
	fmt.Fprintf(h, "parent %s\nmessage %s\n", base, c.Message)

	// Stage every file before renaming any, so a write error leaves the
	// directory as it was.
	staged := make(map[string]string, len(paths))
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}
	for _, p := range paths {
		dst, err := l.resolve(p)
		if err != nil {
			cleanup()
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cleanup()
			return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		tmp := dst + ".tmp"
		if err := os.WriteFile(tmp, c.Files[p], 0o644); err != nil {
			cleanup()
			return "", fmt.Errorf("%w: writing %s: %w", ErrPublishFailed, p, err)
		}
		staged[dst] = tmp
		fmt.Fprintf(h, "file %s %d\n", p, len(c.Files[p]))
		h.Write(c.Files[p])
	}
	for dst, tmp := range staged {
		if err := os.Rename(tmp, dst); err != nil {
			cleanup()
			return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
	}

	ref := hex.EncodeToString(h.Sum(nil))
	if err := os.WriteFile(filepath.Join(l.dir, headFile), []byte(ref+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("%w: writing head: %w", ErrPublishFailed, err)
	}
	l.logger.Info("published commit",
		zap.String("target", l.Name()),
		zap.String("ref", short(ref)),
		zap.Int("files", len(paths)))
	return ref, nil
}

// resolve maps a repository path into the publish directory, rejecting
// paths that would escape it.
func (l *LocalPublisher) resolve(p string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(p)) {
		return "", fmt.Errorf("%w: path %q escapes the publish directory", ErrPublishFailed, p)
	}
	return filepath.Join(l.dir, filepath.FromSlash(p)), nil
}

func short(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}
