// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoDiff is returned when a reply contains no extractable diff.
var ErrNoDiff = errors.New("assistant: no unified diff found in reply")

// noopSentinel is the reply the assistant uses to decline to act.
const noopSentinel = "NOOP"

var (
	// fencedBlockPattern captures fenced code blocks, diff-tagged or
	// untagged (assistants are inconsistent about the language tag).
	fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\n(.*?)```")

	// diffGitHeaderPattern matches a unified diff file header.
	diffGitHeaderPattern = regexp.MustCompile(`(?m)^diff --git a/\S+ b/\S+`)
)

// ExtractDiff pulls a unified diff block out of a free-form reply.
//
// Description:
//
//	Prefers a fenced code block containing a "diff --git" header; when
//	several exist the first is taken. Failing that, scans the raw
//	reply for the first "diff --git" line and takes everything from
//	there to the end, trimming a trailing fence if the assistant left
//	one unbalanced. The extracted text starts at the header line -
//	prose before it is discarded.
//
// Inputs:
//
//	reply - The assistant's free-form reply.
//
// Outputs:
//
//	string - The extracted diff text.
//	error - ErrNoDiff when nothing resembling a diff is present.
func ExtractDiff(reply string) (string, error) {
	for _, match := range fencedBlockPattern.FindAllStringSubmatch(reply, -1) {
		block := match[1]
		if loc := diffGitHeaderPattern.FindStringIndex(block); loc != nil {
			return strings.TrimSpace(block[loc[0]:]), nil
		}
	}

	loc := diffGitHeaderPattern.FindStringIndex(reply)
	if loc == nil {
		return "", ErrNoDiff
	}
	diff := reply[loc[0]:]
	if idx := strings.Index(diff, "```"); idx != -1 {
		diff = diff[:idx]
	}
	diff = strings.TrimSpace(diff)
	if diff == "" {
		return "", ErrNoDiff
	}
	return diff, nil
}

// HasDiffHeaders reports whether text looks like a well-formed unified
// diff: a "diff --git" header plus the "---"/"+++" file markers.
func HasDiffHeaders(text string) bool {
	if !diffGitHeaderPattern.MatchString(text) {
		return false
	}
	hasOld, hasNew := false, false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "--- ") {
			hasOld = true
		}
		if strings.HasPrefix(line, "+++ ") {
			hasNew = true
		}
		if hasOld && hasNew {
			return true
		}
	}
	return false
}

// IsNoop reports whether the reply is empty or an explicit refusal to
// act. Either one ends the run: the assistant declined.
func IsNoop(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return true
	}
	return strings.EqualFold(strings.Trim(trimmed, "`."), noopSentinel)
}
