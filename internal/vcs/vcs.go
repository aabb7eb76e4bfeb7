// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"

	"github.com/goplus/winebuild/mod/version"
)

// VCS defines the version control operations needed to prepare a source tree.
type VCS interface {
	// Clone clones src, a URL or a local path, into dir.
	Clone(ctx context.Context, src, dir string) error

	// Reset hard-resets the tree in dir to ref. ref can be a tag, a commit
	// or a symbolic ref such as "@{upstream}".
	Reset(ctx context.Context, dir, ref string) error

	// Contains reports whether commit is reachable from a local branch.
	Contains(ctx context.Context, dir, commit string) (bool, error)

	// CherryPick applies commit to the current branch, preferring the
	// incoming side on conflicts.
	CherryPick(ctx context.Context, dir, commit string) error

	// ApplyBinary applies commit through a binary-safe patch, for commits
	// touching files cherry-pick cannot merge.
	ApplyBinary(ctx context.Context, dir, commit string) error

	// Describe returns the most recent tag reachable from HEAD.
	Describe(ctx context.Context, dir string) (string, error)

	// Tags returns all tags of the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Clone(ctx context.Context, src, dir string) error {
	if err := g.run(ctx, "", "clone", src, dir); err != nil {
		return fmt.Errorf("clone %s: %w", src, err)
	}
	return nil
}

func (g *gitVCS) Reset(ctx context.Context, dir, ref string) error {
	if err := g.run(ctx, dir, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("reset to %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) Contains(ctx context.Context, dir, commit string) (bool, error) {
	output, err := g.output(ctx, dir, nil, "branch", "--contains", commit)
	if err != nil {
		// unknown commits are not contained
		return false, nil
	}
	return strings.TrimSpace(output) != "", nil
}

func (g *gitVCS) CherryPick(ctx context.Context, dir, commit string) error {
	if err := g.run(ctx, dir, "cherry-pick", "--strategy=recursive", "-X", "theirs", "-x", commit); err != nil {
		return fmt.Errorf("cherry-pick %s: %w", commit, err)
	}
	return nil
}

func (g *gitVCS) ApplyBinary(ctx context.Context, dir, commit string) error {
	patch, err := g.output(ctx, dir, nil, "format-patch", "--binary", "--stdout", "-1", commit)
	if err != nil {
		return fmt.Errorf("format-patch %s: %w", commit, err)
	}
	if _, err := g.output(ctx, dir, strings.NewReader(patch), "am", "-3"); err != nil {
		return fmt.Errorf("apply %s: %w", commit, err)
	}
	return nil
}

func (g *gitVCS) Describe(ctx context.Context, dir string) (string, error) {
	output, err := g.output(ctx, dir, nil, "describe", "--tags", "--abbrev=0")
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	return strings.TrimSpace(output), nil
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	output, err := g.output(ctx, "", nil, "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list remote tags: %w", err)
	}

	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	var tags []string
	for _, line := range strings.Split(output, "\n") {
		// format: <hash>\trefs/tags/<tag>
		parts := strings.Split(line, "\t")
		if len(parts) == 2 {
			tags = append(tags, strings.TrimPrefix(parts[1], "refs/tags/"))
		}
	}
	return tags, nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, nil, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

type describer struct {
	vcs VCS
	dir string
}

func (d describer) Describe(ctx context.Context) (string, error) {
	return d.vcs.Describe(ctx, d.dir)
}

// Describer returns a version.Describer reporting the tag of the
// checkout in dir.
func Describer(v VCS, dir string) version.Describer {
	return describer{vcs: v, dir: dir}
}

// ReleaseTags filters tags down to mainline release tags ("wine-N.N")
// and returns their versions in ascending order.
func ReleaseTags(tags []string) []version.Version {
	var vs []version.Version
	for _, tag := range tags {
		if !strings.HasPrefix(tag, "wine-") {
			continue
		}
		v, err := version.Parse(tag)
		if err != nil {
			continue
		}
		vs = append(vs, v)
	}
	slices.SortFunc(vs, version.Version.Compare)
	return vs
}
