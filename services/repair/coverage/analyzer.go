// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coverage extracts per-file coverage deficits from test runner
// output.
//
// The analyzer recognizes the tabular coverage summary that coverage
// tools append to a test run: a header line beginning with "Name" and
// containing "Cover", followed by one row per file where the final
// column is a percentage.
package coverage

import (
	"strconv"
	"strings"
)

// DefaultThreshold is the coverage percentage below which a file is
// reported as deficient.
const DefaultThreshold = 80.0

// Deficit is one file below the coverage threshold.
type Deficit struct {
	// Path is the file path as printed in the coverage table.
	Path string

	// Percent is the measured line coverage (0-100).
	Percent float64
}

// CheckResult is the outcome of scanning output for a coverage table.
//
// A CheckResult always carries at least one deficit; an all-passing
// table yields a nil result, never an empty list.
type CheckResult struct {
	// TableText is the coverage table as found in the output,
	// preserved for display.
	TableText string

	// Deficits lists under-threshold files in table order.
	Deficits []Deficit

	// Threshold is the percentage the deficits were measured against.
	Threshold float64
}

// Extract scans combined command output for a coverage table and
// returns the files below threshold.
//
// Description:
//
//	Finds the LAST table header in the output (a line starting with
//	"Name" that also contains "Cover") - commands sometimes print more
//	than one coverage section and only the final one reflects the full
//	run. Rows are parsed by taking the final whitespace-separated
//	token, stripping a trailing %, and parsing it as a float; the
//	remaining leading tokens (all but the last three) rejoined with
//	spaces form the file path, which tolerates paths containing
//	spaces. Separator rows, short rows, unparsable rows, and the
//	TOTAL row are skipped.
//
// Inputs:
//
//	output - Combined stdout/stderr of the test run.
//	threshold - Deficit threshold; rows strictly below it qualify.
//
// Outputs:
//
//	*CheckResult - Non-nil only when a table was found and at least
//	               one file is below threshold.
func Extract(output string, threshold float64) *CheckResult {
	lines := strings.Split(output, "\n")

	headerIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Name") && strings.Contains(trimmed, "Cover") {
			headerIdx = i
		}
	}
	if headerIdx == -1 {
		return nil
	}

	table := []string{lines[headerIdx]}
	for _, line := range lines[headerIdx+1:] {
		if strings.TrimSpace(line) == "" {
			break
		}
		table = append(table, line)
	}
	if len(table) < 2 {
		return nil
	}

	var deficits []Deficit
	for _, row := range table[1:] {
		path, percent, ok := parseRow(row)
		if !ok {
			continue
		}
		if strings.EqualFold(path, "TOTAL") {
			continue
		}
		if percent < threshold {
			deficits = append(deficits, Deficit{Path: path, Percent: percent})
		}
	}
	if len(deficits) == 0 {
		return nil
	}

	return &CheckResult{
		TableText: strings.TrimSpace(strings.Join(table, "\n")),
		Deficits:  deficits,
		Threshold: threshold,
	}
}

// parseRow parses one coverage table data row.
func parseRow(row string) (path string, percent float64, ok bool) {
	trimmed := strings.TrimSpace(row)
	if trimmed == "" || strings.HasPrefix(trimmed, "-") {
		return "", 0, false
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 4 {
		return "", 0, false
	}

	last := fields[len(fields)-1]
	if !strings.HasSuffix(last, "%") {
		return "", 0, false
	}

	percent, err := strconv.ParseFloat(strings.TrimSuffix(last, "%"), 64)
	if err != nil {
		return "", 0, false
	}

	path = strings.Join(fields[:len(fields)-3], " ")
	return path, percent, true
}
