// Package gitsource materializes git repositories into scratch directories.
package gitsource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/scratchdir"
	"git.home.luguber.info/inful/scratchdir/internal/logfields"
)

// Spec identifies what to clone.
type Spec struct {
	URL    string
	Branch string // empty means the remote default branch
	Depth  int    // 0 means full history
}

// CloneInto clones the repository described by spec into dest, which must be
// an existing empty directory (typically a fresh scratch dir). It returns the
// hash of the checked-out head commit.
func CloneInto(ctx context.Context, dest string, spec Spec) (string, error) {
	opts := &git.CloneOptions{URL: spec.URL}
	if spec.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(spec.Branch)
		opts.SingleBranch = true
	}
	if spec.Depth > 0 {
		opts.Depth = spec.Depth
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return "", fmt.Errorf("failed to clone repository %s: %w", spec.URL, err)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD after clone: %w", err)
	}
	hash := ref.Hash().String()

	slog.Info("Repository cloned into scratch directory",
		logfields.URL(spec.URL),
		logfields.Path(dest),
		slog.String("commit", hash[:8]))
	return hash, nil
}

// CloneScratch creates a fresh scratch directory and clones into it. On clone
// failure the directory is closed again so nothing is left behind.
func CloneScratch(ctx context.Context, prefix string, spec Spec, opts ...scratchdir.Option) (*scratchdir.Dir, string, error) {
	dir, err := scratchdir.New(prefix, opts...)
	if err != nil {
		return nil, "", err
	}
	hash, err := CloneInto(ctx, dir.Path(), spec)
	if err != nil {
		_ = dir.Close()
		return nil, "", err
	}
	return dir, hash, nil
}
