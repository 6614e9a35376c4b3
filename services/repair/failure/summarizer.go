// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package failure classifies build/test failure logs.
//
// Summarize condenses a failure log into a short human summary plus the
// list of implicated files. Detector recognizes the two failure shapes
// the loop refuses to hand to the assistant: a missing first-party
// symbol and a missing attribute traced to a repository file. Both call
// for human judgment rather than a guessed patch.
package failure

import (
	"fmt"
	"regexp"
	"strings"
)

// diagnosticLine matches a type-checker diagnostic: an absolute path
// under a user home directory followed by a line number.
var diagnosticLine = regexp.MustCompile(`((?:/home|/Users)/[^\s:]+):(\d+)`)

// summaryHeader introduces the implicated-file list in the summary.
const summaryHeader = "Type checker reported:"

// Summarize extracts a short summary and implicated files from a log.
//
// Description:
//
//	Scans the excerpt for type-checker diagnostic lines. Lines
//	containing the literal "pyright" are tool banner noise and are
//	skipped. Matches are deduplicated by file path - the first line
//	number seen for a path wins - and rendered as a bulleted list.
//
// Inputs:
//
//	logExcerpt - Tail of the failing command's combined output.
//
// Outputs:
//
//	summary - Bulleted summary, or "" when no diagnostics matched.
//	          Callers must treat "" as "no structured failure
//	          detected", not as success.
//	files - Implicated file paths, unique, in order of appearance.
func Summarize(logExcerpt string) (summary string, files []string) {
	seen := make(map[string]string)
	var order []string

	for _, line := range strings.Split(logExcerpt, "\n") {
		if strings.Contains(line, "pyright") {
			continue
		}
		match := diagnosticLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		path, lineNo := match[1], match[2]
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = lineNo
		order = append(order, path)
	}

	if len(order) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(summaryHeader)
	for _, path := range order {
		sb.WriteString(fmt.Sprintf("\n- %s (line %s)", path, seen[path]))
	}
	return sb.String(), order
}
