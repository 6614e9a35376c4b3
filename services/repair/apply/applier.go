// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package apply writes a unified diff into the working tree.
//
// Application is two-tier, each tier two-phase (check, then commit):
//
//	Tier A: the structured tool (git apply) with a dry-run --check
//	        pass first. A reverse --check detects an already-applied
//	        patch, which is treated as success-no-op.
//	Tier B: a line-based fallback with forward-only fuzzy context
//	        matching, for patches whose line numbers drifted past what
//	        the structured tool tolerates. The dry run plans every file
//	        rewrite in memory before anything touches disk.
package apply

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mendci/mendci/services/repair/execx"
)

// CommandRunner executes a command and captures its output.
type CommandRunner interface {
	Run(ctx context.Context, spec execx.Spec) (execx.Result, error)
}

// Applier applies textual unified diffs to a working tree.
//
// Thread Safety: the loop is strictly sequential and never runs two
// applies concurrently; Applier does not add its own locking.
type Applier struct {
	runner CommandRunner
	root   string
	logger *slog.Logger
}

// NewApplier creates an Applier rooted at the repository root.
func NewApplier(runner CommandRunner, root string, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{runner: runner, root: root, logger: logger}
}

// Apply writes diffText into the working tree.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	diffText - The unified diff. A trailing newline is ensured first;
//	           git apply rejects patches without one.
//
// Outputs:
//
//	error - Nil on success (including the already-applied no-op);
//	        otherwise a *ApplyError, always retryable.
func (a *Applier) Apply(ctx context.Context, diffText string) error {
	if !strings.HasSuffix(diffText, "\n") {
		diffText += "\n"
	}

	// Tier A: structured apply, check then commit.
	check, err := a.gitApply(ctx, diffText, "--check")
	if err != nil {
		return &ApplyError{Stage: "structured apply", Err: err}
	}
	if check.Ok() {
		real, err := a.gitApply(ctx, diffText)
		if err != nil {
			return &ApplyError{Stage: "structured apply", Err: err}
		}
		if !real.Ok() {
			return &ApplyError{Stage: "structured apply", Output: real.CombinedOutput()}
		}
		a.logger.Debug("patch applied", slog.String("tier", "structured"))
		return nil
	}

	// Idempotence: a patch whose reverse applies cleanly is already
	// fully present in the tree. Re-applying would fail on context
	// that the previous attempt already rewrote.
	reverse, err := a.gitApply(ctx, diffText, "--check", "--reverse")
	if err != nil {
		return &ApplyError{Stage: "structured apply", Err: err}
	}
	if reverse.Ok() {
		a.logger.Info("patch already present in working tree, skipping")
		return nil
	}

	// Tier B: line-based fallback with fuzzy forward matching.
	return a.applyFallback(ctx, diffText, check.CombinedOutput())
}

// gitApply runs `git apply` with the diff on stdin.
func (a *Applier) gitApply(ctx context.Context, diffText string, args ...string) (execx.Result, error) {
	argv := append([]string{"git", "apply", "--whitespace=nowarn"}, args...)
	argv = append(argv, "-")
	return a.runner.Run(ctx, execx.Spec{
		Argv:  argv,
		Dir:   a.root,
		Stdin: strings.NewReader(diffText),
	})
}
