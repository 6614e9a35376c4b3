// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mendci/mendci/pkg/ux"
)

// Decision is the operator's answer to a patch proposal.
type Decision int

const (
	// DecisionApprove applies the patch.
	DecisionApprove Decision = iota

	// DecisionDecline rejects this patch but keeps the cycle going.
	DecisionDecline

	// DecisionQuit aborts the whole run.
	DecisionQuit
)

// Approver decides whether a validated patch may be applied.
type Approver interface {
	Approve(ctx context.Context, diffText string) (Decision, error)
}

// AutoApprover approves every validated patch. Used by --approve auto
// and in non-interactive environments that opted in explicitly.
type AutoApprover struct{}

// Approve always returns DecisionApprove.
func (AutoApprover) Approve(_ context.Context, _ string) (Decision, error) {
	return DecisionApprove, nil
}

// InteractiveApprover shows the diff and reads y/n/q from the operator.
type InteractiveApprover struct {
	in  *bufio.Reader
	out io.Writer
}

// NewInteractiveApprover creates an approver reading from in and
// writing to out.
func NewInteractiveApprover(in io.Reader, out io.Writer) *InteractiveApprover {
	return &InteractiveApprover{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Approve renders the diff and prompts until it reads a recognizable
// answer. EOF on the input is treated as quit.
func (a *InteractiveApprover) Approve(ctx context.Context, diffText string) (Decision, error) {
	fmt.Fprintln(a.out, ux.Styles.Title.Render("Proposed patch"))
	fmt.Fprintln(a.out, ux.Styles.DiffBox.Render(strings.TrimRight(diffText, "\n")))

	for {
		if err := ctx.Err(); err != nil {
			return DecisionQuit, err
		}
		fmt.Fprint(a.out, "Apply this patch? [y/N/q] ")

		line, err := a.in.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return DecisionQuit, nil
			}
			return DecisionQuit, fmt.Errorf("reading approval answer: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return DecisionApprove, nil
		case "q", "quit":
			return DecisionQuit, nil
		default:
			// Anything else, including an empty line, declines.
			return DecisionDecline, nil
		}
	}
}
