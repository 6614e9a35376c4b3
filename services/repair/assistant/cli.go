// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mendci/mendci/services/repair/execx"
)

// CommandRunner executes a command and captures its output.
type CommandRunner interface {
	Run(ctx context.Context, spec execx.Spec) (execx.Result, error)
}

// CLIClient invokes the assistant as a subprocess.
//
// The prompt is fed on stdin; the reply is read from stdout. There is
// no timeout on the call: a hung assistant blocks the run until the
// operator interrupts it.
type CLIClient struct {
	runner CommandRunner
	binary string
	dir    string
	logger *slog.Logger
}

// NewCLIClient creates a CLI-backed client.
//
// Inputs:
//
//	runner - Command runner for the subprocess call.
//	binary - Assistant executable name or path.
//	dir - Working directory for the invocation.
//	logger - Logger (nil for default).
func NewCLIClient(runner CommandRunner, binary, dir string, logger *slog.Logger) *CLIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIClient{runner: runner, binary: binary, dir: dir, logger: logger}
}

// Name implements Client.
func (c *CLIClient) Name() string { return "cli" }

// Complete implements Client.
func (c *CLIClient) Complete(ctx context.Context, request Request) (*Response, error) {
	argv := []string{c.binary, "exec", "--model", request.Model}
	if request.ReasoningEffort != "" {
		argv = append(argv, "--reasoning-effort", request.ReasoningEffort)
	}
	argv = append(argv, "-")

	start := time.Now()
	result, err := c.runner.Run(ctx, execx.Spec{
		Argv:  argv,
		Dir:   c.dir,
		Stdin: strings.NewReader(request.Prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: invoking %s: %w", c.binary, err)
	}
	if !result.Ok() {
		return nil, &CLIError{ExitCode: result.ExitCode, Output: result.CombinedOutput()}
	}

	c.logger.Debug("assistant reply received",
		slog.Int("prompt_len", len(request.Prompt)),
		slog.Int("reply_len", len(result.Stdout)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &Response{Content: result.Stdout}, nil
}
