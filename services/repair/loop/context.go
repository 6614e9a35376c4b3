// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"fmt"
	"strings"

	"github.com/mendci/mendci/services/repair/coverage"
)

// FailureContext is everything the prompt builder knows about one
// failure: the log tail, an optional structured summary, the implicated
// files, their current diffs, and an optional coverage shortfall. Built
// once per outer iteration and shared by every patch attempt in it.
type FailureContext struct {
	// Command is the build/test command as the operator would type it.
	Command string

	// Excerpt is the trailing LogTail lines of combined output.
	Excerpt string

	// Summary is the structured diagnostic summary, or "".
	Summary string

	// Files are the implicated file paths from the summary.
	Files []string

	// FocusedDiff is the current unstaged diff of the implicated
	// files, or "".
	FocusedDiff string

	// Coverage is the coverage shortfall, nil unless the command was
	// green but under-covered.
	Coverage *coverage.CheckResult
}

// PromptInput parameterizes one prompt render.
type PromptInput struct {
	Context *FailureContext

	// LastError is the previous attempt's failure reason, or "".
	LastError string

	// DemandCompleteDiff hardens the format instructions after
	// repeated extraction failures.
	DemandCompleteDiff bool
}

// BuildPrompt renders the assistant prompt for one patch attempt.
func BuildPrompt(in PromptInput) string {
	fc := in.Context
	var sb strings.Builder

	if fc.Coverage != nil {
		sb.WriteString("The test suite passes, but line coverage is below the required threshold of ")
		fmt.Fprintf(&sb, "%.0f%%.\n\n", fc.Coverage.Threshold)
		sb.WriteString("Coverage report:\n\n")
		sb.WriteString(fc.Coverage.TableText)
		sb.WriteString("\n\nFiles below threshold:\n")
		for _, d := range fc.Coverage.Deficits {
			fmt.Fprintf(&sb, "- %s (%.1f%%)\n", d.Path, d.Percent)
		}
		sb.WriteString("\nAdd or extend tests to raise coverage of the listed files above the threshold. Do not weaken assertions or delete code to game the number.\n")
	} else {
		fmt.Fprintf(&sb, "The command `%s` failed. Fix the underlying problem.\n\n", fc.Command)
		if fc.Summary != "" {
			sb.WriteString(fc.Summary)
			sb.WriteString("\n\n")
		}
		sb.WriteString("Output tail:\n\n```\n")
		sb.WriteString(strings.TrimRight(fc.Excerpt, "\n"))
		sb.WriteString("\n```\n")
	}

	if fc.FocusedDiff != "" {
		sb.WriteString("\nCurrent uncommitted changes to the implicated files:\n\n```diff\n")
		sb.WriteString(strings.TrimRight(fc.FocusedDiff, "\n"))
		sb.WriteString("\n```\n")
	}

	if in.LastError != "" {
		fmt.Fprintf(&sb, "\nYour previous patch was not accepted: %s\nPropose a different fix.\n", in.LastError)
	}

	sb.WriteString("\nReply with exactly one unified diff (git format, a/ and b/ prefixes) inside a ```diff fence. Keep the change minimal. If no code change can help, reply with the single word NOOP.\n")
	if in.DemandCompleteDiff {
		sb.WriteString("\nYour previous replies could not be parsed. Reply with a COMPLETE unified diff only: start with `diff --git`, include `---` and `+++` headers and @@ hunk markers for every file, and include nothing outside the fence.\n")
	}

	return sb.String()
}

// tailLines returns the last n lines of text.
func tailLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
