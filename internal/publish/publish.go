// Package publish commits finished rounds to a content repository.
package publish

import (
	"context"
	"errors"
	"sort"
)

// ErrPublishFailed wraps every failure reported by a publish target.
var ErrPublishFailed = errors.New("publish failed")

// Commit is one atomic change: every file lands together or none does.
type Commit struct {
	// Files maps repository paths to their full contents.
	Files map[string][]byte
	// BaseRef is the commit the change is applied on top of. Empty means
	// the current branch head.
	BaseRef string
	Message string
}

// Publisher is a target that accepts atomic multi-file commits.
type Publisher interface {
	Name() string
	// Head returns the current tip reference, or "" for an empty target.
	Head(ctx context.Context) (string, error)
	// Publish applies c and returns the new tip reference.
	Publish(ctx context.Context, c Commit) (string, error)
}

func sortedPaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
