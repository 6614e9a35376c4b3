// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package execx runs external commands for the repair loop.
//
// Every build/test run, git call, and assistant CLI invocation goes
// through Runner so that exit codes and captured output are handled
// uniformly.
//
// Thread Safety:
//
//	Runner is safe for concurrent use; it holds no mutable state.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mendci/mendci/services/repair/telemetry"
)

// Result is the outcome of a single command invocation.
//
// A Result is created fresh per invocation and never mutated afterward.
type Result struct {
	// ExitCode is the process exit status. Zero means success.
	ExitCode int

	// Stdout is the full captured standard output.
	Stdout string

	// Stderr is the full captured standard error.
	Stderr string
}

// Ok reports whether the command exited zero.
func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// CombinedOutput returns stdout followed by stderr.
func (r Result) CombinedOutput() string {
	return r.Stdout + r.Stderr
}

// Spec describes a command to run.
type Spec struct {
	// Argv is the command and its arguments. Must be non-empty.
	Argv []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is an environment overlay appended to the inherited
	// environment (later entries win).
	Env []string

	// Stdin is fed to the process when non-nil.
	Stdin io.Reader

	// Stream mirrors output to the console while capturing it.
	// Used for the build/test command so the operator sees progress.
	Stream bool
}

// Runner executes commands as blocking subprocess calls.
type Runner struct {
	logger *slog.Logger

	// stdout and stderr are the console destinations for streamed
	// output. Overridable for tests.
	stdout io.Writer
	stderr io.Writer
}

// NewRunner creates a Runner.
//
// Inputs:
//
//	logger - Logger for command diagnostics (nil for default).
//
// Outputs:
//
//	*Runner - Ready-to-use runner writing streamed output to the
//	          process's stdout/stderr.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: logger,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// NewRunnerWithOutput creates a Runner with explicit console writers.
// Used by tests to capture streamed output.
func NewRunnerWithOutput(logger *slog.Logger, stdout, stderr io.Writer) *Runner {
	r := NewRunner(logger)
	r.stdout = stdout
	r.stderr = stderr
	return r
}

// Run executes the command described by spec and captures its output.
//
// Description:
//
//	Runs the command to completion. A non-zero exit status is not an
//	error: the caller inspects Result.ExitCode. The returned error is
//	non-nil only when the command could not be started or an I/O
//	failure occurred while draining its output.
//
//	In streaming mode, stdout and stderr are each drained by a
//	dedicated goroutine that tees into an in-memory buffer and the
//	corresponding console stream. Both goroutines are joined before
//	Run returns. This prevents a full pipe buffer from deadlocking
//	the child while still presenting real-time output.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	spec - The command to run.
//
// Outputs:
//
//	Result - Exit code plus captured stdout/stderr.
//	error - Non-nil on start or I/O failure.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, errors.New("execx: empty argv")
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if spec.Stdin != nil {
		cmd.Stdin = spec.Stdin
	}

	var stdoutBuf, stderrBuf bytes.Buffer

	if spec.Stream {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return Result{}, fmt.Errorf("execx: stdout pipe: %w", err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return Result{}, fmt.Errorf("execx: stderr pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return Result{}, fmt.Errorf("execx: starting %s: %w", spec.Argv[0], err)
		}

		var group errgroup.Group
		group.Go(func() error {
			_, err := io.Copy(io.MultiWriter(&stdoutBuf, r.stdout), stdoutPipe)
			return err
		})
		group.Go(func() error {
			_, err := io.Copy(io.MultiWriter(&stderrBuf, r.stderr), stderrPipe)
			return err
		})

		drainErr := group.Wait()
		waitErr := cmd.Wait()
		if drainErr != nil {
			return Result{}, fmt.Errorf("execx: draining output: %w", drainErr)
		}
		result, err := r.finish(spec, stdoutBuf.String(), stderrBuf.String(), waitErr, start)
		return result, err
	}

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	runErr := cmd.Run()
	return r.finish(spec, stdoutBuf.String(), stderrBuf.String(), runErr, start)
}

// finish converts the wait error into a Result.
func (r *Runner) finish(spec Spec, stdout, stderr string, waitErr error, start time.Time) (Result, error) {
	result := Result{Stdout: stdout, Stderr: stderr}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("execx: running %s: %w", spec.Argv[0], waitErr)
		}
	}

	telemetry.RecordCommand(spec.Argv[0], result.ExitCode, time.Since(start))
	r.logger.Debug("command finished",
		slog.String("argv", strings.Join(spec.Argv, " ")),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
