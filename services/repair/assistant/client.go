// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant talks to the external code-generation assistant.
//
// The assistant is a black box that accepts a text prompt and returns a
// text reply. Two backends are provided: a subprocess CLI (the default)
// and the OpenAI chat API. Helpers extract a unified diff block from the
// free-form reply.
//
// Thread Safety:
//
//	All clients in this package are safe for concurrent use.
package assistant

import (
	"context"
	"fmt"
	"strings"
)

// Request is a single completion request.
type Request struct {
	// Prompt is the full composed prompt text.
	Prompt string

	// Model is the assistant model identifier.
	Model string

	// ReasoningEffort is the optional effort level
	// (minimal|low|medium|high).
	ReasoningEffort string
}

// Response is the assistant's reply.
type Response struct {
	// Content is the full text response.
	Content string
}

// Client defines the interface for assistant interactions.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a prompt and returns the full text reply.
	//
	// Inputs:
	//   ctx - Context for cancellation.
	//   request - The completion request.
	//
	// Outputs:
	//   *Response - The reply.
	//   error - Non-nil if the backend failed; CLI failures are
	//           *CLIError carrying exit status and captured output.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the backend name ("cli", "openai").
	Name() string
}

// CLIError reports a failed assistant CLI invocation.
type CLIError struct {
	// ExitCode is the assistant process exit status.
	ExitCode int

	// Output is the captured combined output.
	Output string
}

// Error implements error.
func (e *CLIError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 400 {
		out = out[:400] + "..."
	}
	return fmt.Sprintf("assistant CLI exited %d: %s", e.ExitCode, out)
}
