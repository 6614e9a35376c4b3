// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package apply

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendci/mendci/services/repair/execx"
)

// scriptedRunner answers git apply invocations by inspecting the argv.
type scriptedRunner struct {
	// exit codes per call shape; missing keys default to 0.
	checkExit   int
	applyExit   int
	reverseExit int

	calls [][]string
}

func (s *scriptedRunner) Run(_ context.Context, spec execx.Spec) (execx.Result, error) {
	s.calls = append(s.calls, spec.Argv)
	switch {
	case slices.Contains(spec.Argv, "--reverse"):
		return execx.Result{ExitCode: s.reverseExit}, nil
	case slices.Contains(spec.Argv, "--check"):
		return execx.Result{ExitCode: s.checkExit, Stderr: "patch does not apply"}, nil
	default:
		return execx.Result{ExitCode: s.applyExit}, nil
	}
}

const applierDiff = `diff --git a/src/x.py b/src/x.py
--- a/src/x.py
+++ b/src/x.py
@@ -1,1 +1,1 @@
-a = 1
+a = 2
`

func TestApply_StructuredPathChecksThenCommits(t *testing.T) {
	runner := &scriptedRunner{}
	applier := NewApplier(runner, t.TempDir(), nil)

	require.NoError(t, applier.Apply(context.Background(), applierDiff))

	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0], "--check")
	assert.NotContains(t, runner.calls[1], "--check")
	assert.Equal(t, "git", runner.calls[0][0])
	assert.Contains(t, runner.calls[0], "--whitespace=nowarn")
}

func TestApply_AlreadyAppliedIsSuccessNoop(t *testing.T) {
	runner := &scriptedRunner{checkExit: 1, reverseExit: 0}
	applier := NewApplier(runner, t.TempDir(), nil)

	require.NoError(t, applier.Apply(context.Background(), applierDiff))

	// check, then reverse check; no real apply, no fallback writes.
	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[1], "--reverse")
}

func TestApply_FallbackWhenStructuredCheckFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/x.py", "a = 1\n")

	runner := &scriptedRunner{checkExit: 1, reverseExit: 1}
	applier := NewApplier(runner, dir, nil)

	require.NoError(t, applier.Apply(context.Background(), applierDiff))
	assert.Equal(t, "a = 2\n", readFile(t, dir, "src/x.py"))
}

func TestApply_FallbackFailureIsRetryableApplyError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/x.py", "completely different content\n")

	runner := &scriptedRunner{checkExit: 1, reverseExit: 1}
	applier := NewApplier(runner, dir, nil)

	err := applier.Apply(context.Background(), applierDiff)
	require.Error(t, err)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.True(t, applyErr.Retryable())
	assert.Contains(t, applyErr.Error(), "context not found")
}

func TestApply_EnsuresTrailingNewline(t *testing.T) {
	runner := &scriptedRunner{}
	applier := NewApplier(runner, t.TempDir(), nil)

	// Diff without trailing newline must still be fed whole to git.
	require.NoError(t, applier.Apply(context.Background(), applierDiff[:len(applierDiff)-1]))
	require.Len(t, runner.calls, 2)
}

func TestApply_RunnerErrorWrapsAsApplyError(t *testing.T) {
	failing := runnerFunc(func(context.Context, execx.Spec) (execx.Result, error) {
		return execx.Result{}, errors.New("git not found")
	})
	applier := NewApplier(failing, t.TempDir(), nil)

	err := applier.Apply(context.Background(), applierDiff)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "structured apply", applyErr.Stage)
}

// runnerFunc adapts a function to CommandRunner.
type runnerFunc func(ctx context.Context, spec execx.Spec) (execx.Result, error)

func (f runnerFunc) Run(ctx context.Context, spec execx.Spec) (execx.Result, error) {
	return f(ctx, spec)
}
