// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validate decides whether a proposed patch is safe to apply.
//
// The safety check is a pure function over the diff text and an
// immutable configuration: no filesystem access, no side effects,
// deterministic. Semantic understanding of the diff is out of scope -
// these are heuristic pattern checks only.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Pattern is one banned textual pattern.
type Pattern struct {
	// Name describes the pattern in risk reasons.
	Name string

	// Regex matches the dangerous text.
	Regex *regexp.Regexp
}

// DefaultBannedPatterns returns the fixed list of dangerous textual
// patterns: destructive shell deletion, destructive SQL, and
// programmatic invocation of a delete command.
func DefaultBannedPatterns() []Pattern {
	return []Pattern{
		{Name: "recursive shell deletion (rm -rf)", Regex: regexp.MustCompile(`\brm\s+-[a-z]*r[a-z]*f|\brm\s+-[a-z]*f[a-z]*r`)},
		{Name: "git clean -f", Regex: regexp.MustCompile(`\bgit\s+clean\s+-[a-z]*f`)},
		{Name: "SQL DROP TABLE", Regex: regexp.MustCompile(`(?i)\bdrop\s+table\b`)},
		{Name: "SQL DROP DATABASE", Regex: regexp.MustCompile(`(?i)\bdrop\s+database\b`)},
		{Name: "SQL TRUNCATE", Regex: regexp.MustCompile(`(?i)\btruncate\s+table\b`)},
		{Name: "recursive tree removal (shutil.rmtree)", Regex: regexp.MustCompile(`shutil\.rmtree`)},
		{Name: "filesystem removal call (os.remove/os.unlink)", Regex: regexp.MustCompile(`\bos\.(remove|unlink)\s*\(`)},
	}
}

// Config is the immutable safety configuration, constructed once at
// start-up and passed by parameter - no ambient global state.
type Config struct {
	// ProtectedPrefixes are path prefixes an automated patch must not
	// touch, typically the automation's own control scripts.
	ProtectedPrefixes []string

	// BannedPatterns are the dangerous textual patterns.
	BannedPatterns []Pattern
}

// DefaultConfig returns the default safety configuration.
func DefaultConfig() Config {
	return Config{
		ProtectedPrefixes: []string{"scripts/ci/", ".mendci/"},
		BannedPatterns:    DefaultBannedPatterns(),
	}
}

// SafetyValidator classifies candidate patches as safe or risky.
//
// Thread Safety: SafetyValidator is safe for concurrent use; it holds
// only read-only configuration.
type SafetyValidator struct {
	config Config
}

// NewSafetyValidator creates a validator with the given config.
// A zero-value config falls back to the defaults.
func NewSafetyValidator(config Config) *SafetyValidator {
	if len(config.BannedPatterns) == 0 {
		config.BannedPatterns = DefaultBannedPatterns()
	}
	return &SafetyValidator{config: config}
}

// diffGitHeader captures both paths of a "diff --git" header line.
var diffGitHeader = regexp.MustCompile(`(?m)^diff --git a/(\S+) b/(\S+)`)

// IsRisky decides whether a candidate diff is too dangerous to apply.
//
// Description:
//
//	Runs four checks in order, short-circuiting on the first failure:
//	  1. empty or blank diff text
//	  2. changed-line count (body + / - lines, not headers) over limit
//	  3. any header path under a protected prefix
//	  4. any banned textual pattern present
//
// Inputs:
//
//	diffText - The candidate unified diff.
//	maxLines - Changed-line budget for a single patch.
//
// Outputs:
//
//	bool - True when the patch is risky.
//	string - Human-readable reason, "" when safe.
func (v *SafetyValidator) IsRisky(diffText string, maxLines int) (bool, string) {
	if strings.TrimSpace(diffText) == "" {
		return true, "patch content was empty"
	}

	if changed := countChangedLines(diffText); changed > maxLines {
		return true, fmt.Sprintf("patch changes %d lines, over the %d line limit", changed, maxLines)
	}

	if protected := v.protectedPaths(diffText); len(protected) > 0 {
		return true, fmt.Sprintf("patch touches protected path(s): %s", strings.Join(protected, ", "))
	}

	for _, pattern := range v.config.BannedPatterns {
		if pattern.Regex.MatchString(diffText) {
			return true, fmt.Sprintf("patch matches risky pattern: %s", pattern.Name)
		}
	}

	return false, ""
}

// countChangedLines counts diff body lines starting with + or -,
// excluding the +++/--- file headers.
func countChangedLines(diffText string) int {
	count := 0
	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
			count++
		}
	}
	return count
}

// protectedPaths returns the protected paths a diff touches,
// deduplicated and sorted.
func (v *SafetyValidator) protectedPaths(diffText string) []string {
	seen := make(map[string]struct{})
	for _, match := range diffGitHeader.FindAllStringSubmatch(diffText, -1) {
		for _, path := range match[1:] {
			for _, prefix := range v.config.ProtectedPrefixes {
				if strings.HasPrefix(path, prefix) {
					seen[path] = struct{}{}
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
