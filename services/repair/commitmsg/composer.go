// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package commitmsg drafts a commit message from the staged diff.
package commitmsg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mendci/mendci/services/repair/assistant"
)

// MaxSubjectLen caps the commit subject line.
const MaxSubjectLen = 72

// ErrNothingStaged reports an empty staged diff.
var ErrNothingStaged = errors.New("commitmsg: nothing is staged")

// ErrDetachedHead refuses to operate on a detached HEAD: committing
// there silently strands the commit.
var ErrDetachedHead = errors.New("commitmsg: HEAD is detached; check out a branch first")

// GitClient is the slice of git operations the composer needs.
type GitClient interface {
	StagedDiff(ctx context.Context) (string, error)
	ShortStatus(ctx context.Context) (string, error)
	DetachedHead(ctx context.Context) (bool, error)
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// Message is a drafted commit message.
type Message struct {
	// Subject is the summary line, at most MaxSubjectLen characters.
	Subject string

	// Body is the optional explanatory body, without the subject.
	Body string
}

// Format renders the message in git's subject-blank-body convention.
func (m Message) Format() string {
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n\n" + m.Body
}

// Composer asks the assistant to describe the staged changes.
type Composer struct {
	git             GitClient
	client          assistant.Client
	model           string
	reasoningEffort string
	logger          *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(git GitClient, client assistant.Client, model, reasoningEffort string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		git:             git,
		client:          client,
		model:           model,
		reasoningEffort: reasoningEffort,
		logger:          logger,
	}
}

// Compose drafts a commit message for the currently staged diff.
//
// Description:
//
//	Refuses on a detached HEAD and on an empty staged diff. The staged
//	diff, the short status, and any extra operator context go into the
//	prompt; the reply is parsed into a subject line (truncated at
//	MaxSubjectLen) and an optional body.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	extraContext - Optional free text from the operator, e.g. a ticket
//	               reference. Empty is fine.
//
// Outputs:
//
//	Message - The drafted message.
//	error - ErrDetachedHead, ErrNothingStaged, or a backend failure.
func (c *Composer) Compose(ctx context.Context, extraContext string) (Message, error) {
	detached, err := c.git.DetachedHead(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("commitmsg: checking HEAD: %w", err)
	}
	if detached {
		return Message{}, ErrDetachedHead
	}

	staged, err := c.git.StagedDiff(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("commitmsg: reading staged diff: %w", err)
	}
	if strings.TrimSpace(staged) == "" {
		return Message{}, ErrNothingStaged
	}

	status, err := c.git.ShortStatus(ctx)
	if err != nil {
		c.logger.Warn("reading git status failed", slog.String("error", err.Error()))
		status = ""
	}

	response, err := c.client.Complete(ctx, assistant.Request{
		Prompt:          buildPrompt(staged, status, extraContext),
		Model:           c.model,
		ReasoningEffort: c.reasoningEffort,
	})
	if err != nil {
		return Message{}, fmt.Errorf("commitmsg: assistant request: %w", err)
	}

	message, err := ParseMessage(response.Content)
	if err != nil {
		return Message{}, err
	}
	return message, nil
}

// buildPrompt renders the commit-message prompt.
func buildPrompt(stagedDiff, status, extraContext string) string {
	var sb strings.Builder
	sb.WriteString("Write a commit message for the staged changes below.\n\n")
	sb.WriteString("Rules:\n")
	fmt.Fprintf(&sb, "- First line: imperative summary, at most %d characters.\n", MaxSubjectLen)
	sb.WriteString("- Optionally, after a blank line, a short body explaining what changed and why.\n")
	sb.WriteString("- Plain text only: no fences, no markdown, no trailers.\n")

	if extraContext != "" {
		sb.WriteString("\nContext from the author:\n")
		sb.WriteString(extraContext)
		sb.WriteString("\n")
	}
	if status != "" {
		sb.WriteString("\nStatus:\n```\n")
		sb.WriteString(strings.TrimRight(status, "\n"))
		sb.WriteString("\n```\n")
	}
	sb.WriteString("\nStaged diff:\n```diff\n")
	sb.WriteString(strings.TrimRight(stagedDiff, "\n"))
	sb.WriteString("\n```\n")
	return sb.String()
}

// ParseMessage extracts subject and body from a reply. Code fences and
// surrounding blank lines are stripped; the first non-empty line is
// the subject, everything after the following blank line is the body.
func ParseMessage(reply string) (Message, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, errors.New("commitmsg: assistant returned an empty message")
	}

	lines := strings.Split(text, "\n")
	subject := strings.TrimSpace(lines[0])
	if len(subject) > MaxSubjectLen {
		subject = strings.TrimSpace(subject[:MaxSubjectLen])
	}

	var body string
	if len(lines) > 1 {
		body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return Message{Subject: subject, Body: body}, nil
}

// FinishOptions selects the post-compose git actions.
type FinishOptions struct {
	// StageAll stages everything before composing.
	StageAll bool

	// Commit commits with the drafted message.
	Commit bool

	// Push pushes after committing. Ignored unless Commit is set.
	Push bool

	// ExtraContext is passed through to Compose.
	ExtraContext string
}

// Run composes and optionally stages, commits, and pushes.
func (c *Composer) Run(ctx context.Context, opts FinishOptions) (Message, error) {
	if opts.StageAll {
		if err := c.git.StageAll(ctx); err != nil {
			return Message{}, fmt.Errorf("commitmsg: staging changes: %w", err)
		}
	}

	message, err := c.Compose(ctx, opts.ExtraContext)
	if err != nil {
		return Message{}, err
	}

	if opts.Commit {
		if err := c.git.Commit(ctx, message.Format()); err != nil {
			return Message{}, fmt.Errorf("commitmsg: committing: %w", err)
		}
		if opts.Push {
			if err := c.git.Push(ctx); err != nil {
				return Message{}, fmt.Errorf("commitmsg: pushing: %w", err)
			}
		}
	}
	return message, nil
}
