// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitx wraps the version-control command line as plain-text
// diff and status queries for the repair loop.
//
// Read operations (diffs, status) have no side effects. The only write
// operations are the explicit stage/commit/push calls used after a
// successful run.
package gitx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mendci/mendci/services/repair/execx"
)

// CommandRunner executes a command and captures its output.
// *execx.Runner satisfies this; tests substitute fakes.
type CommandRunner interface {
	Run(ctx context.Context, spec execx.Spec) (execx.Result, error)
}

// Gatherer issues git commands in a fixed repository.
//
// Thread Safety: Gatherer is safe for concurrent use; all state is
// read-only after construction.
type Gatherer struct {
	runner   CommandRunner
	repoRoot string
	logger   *slog.Logger
}

// NewGatherer creates a Gatherer for the repository at repoRoot.
func NewGatherer(runner CommandRunner, repoRoot string, logger *slog.Logger) *Gatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{runner: runner, repoRoot: repoRoot, logger: logger}
}

// git runs a git subcommand and returns its stdout.
func (g *Gatherer) git(ctx context.Context, args ...string) (string, error) {
	result, err := g.runner.Run(ctx, execx.Spec{
		Argv: append([]string{"git"}, args...),
		Dir:  g.repoRoot,
	})
	if err != nil {
		return "", err
	}
	if !result.Ok() {
		return "", fmt.Errorf("gitx: git %s exited %d: %s",
			args[0], result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// UnstagedDiff returns the diff of unstaged changes.
func (g *Gatherer) UnstagedDiff(ctx context.Context) (string, error) {
	return g.git(ctx, "diff")
}

// StagedDiff returns the diff of staged changes.
func (g *Gatherer) StagedDiff(ctx context.Context) (string, error) {
	return g.git(ctx, "diff", "--cached")
}

// FileDiff returns the unstaged diff for a single path.
func (g *Gatherer) FileDiff(ctx context.Context, path string) (string, error) {
	return g.git(ctx, "diff", "--", path)
}

// ShortStatus returns `git status --short` output.
func (g *Gatherer) ShortStatus(ctx context.Context) (string, error) {
	return g.git(ctx, "status", "--short")
}

// FocusedDiff concatenates per-file diffs for the given paths,
// separated by a blank line. Paths with empty diffs are skipped.
func (g *Gatherer) FocusedDiff(ctx context.Context, paths []string) (string, error) {
	var parts []string
	for _, path := range paths {
		diff, err := g.FileDiff(ctx, path)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(diff) == "" {
			continue
		}
		parts = append(parts, strings.TrimRight(diff, "\n"))
	}
	return strings.Join(parts, "\n\n"), nil
}

// StageAll stages every change in the working tree.
func (g *Gatherer) StageAll(ctx context.Context) error {
	_, err := g.git(ctx, "add", "-A")
	return err
}

// Commit creates a commit with the given message.
func (g *Gatherer) Commit(ctx context.Context, message string) error {
	_, err := g.git(ctx, "commit", "-m", message)
	return err
}

// Push pushes the current branch to its upstream.
func (g *Gatherer) Push(ctx context.Context) error {
	_, err := g.git(ctx, "push")
	return err
}

// DetachedHead reports whether HEAD is detached. Committing from a
// detached HEAD would strand the commit, so the commit flow treats
// this as fatal.
func (g *Gatherer) DetachedHead(ctx context.Context) (bool, error) {
	result, err := g.runner.Run(ctx, execx.Spec{
		Argv: []string{"git", "symbolic-ref", "-q", "HEAD"},
		Dir:  g.repoRoot,
	})
	if err != nil {
		return false, err
	}
	return !result.Ok(), nil
}
