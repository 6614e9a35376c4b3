// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Warning is a non-blocking finding about a candidate patch. The loop
// surfaces warnings to the operator but never rejects a patch on them.
type Warning struct {
	// Line is the 1-based line number within the diff text.
	Line int

	// Message describes the finding.
	Message string
}

// secretPattern pairs a regex with a display name. The value capture
// group (when present) is entropy-checked to cut false positives.
type secretPattern struct {
	name    string
	regex   *regexp.Regexp
	entropy bool
}

var secretPatterns = []secretPattern{
	{name: "AWS access key", regex: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{name: "private key block", regex: regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{name: "bearer token", regex: regexp.MustCompile(`(?i)authorization:\s*bearer\s+([A-Za-z0-9\-._~+/]{20,})`), entropy: true},
	{name: "hardcoded credential", regex: regexp.MustCompile(`(?i)\b(api_key|apikey|secret|password|token)\s*[:=]\s*["']([^"']{12,})["']`), entropy: true},
}

// minSecretEntropy is the Shannon-entropy floor (bits per character)
// for entropy-gated patterns. Plain words sit well below this.
const minSecretEntropy = 3.5

// ScanSecrets scans a diff's added lines for hardcoded secrets.
//
// Description:
//
//	Only added lines (leading +, not the +++ header) are scanned: the
//	patch should not be rejected for secrets that were already in the
//	tree. Patterns with broad shapes are gated on the entropy of the
//	captured value to reduce false positives on placeholder strings.
//
// Inputs:
//
//	diffText - The candidate unified diff.
//
// Outputs:
//
//	[]Warning - Findings, in diff order. Nil when clean.
func ScanSecrets(diffText string) []Warning {
	var warnings []Warning

	for i, line := range strings.Split(diffText, "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		added := strings.TrimPrefix(line, "+")

		for _, pattern := range secretPatterns {
			match := pattern.regex.FindStringSubmatch(added)
			if match == nil {
				continue
			}
			if pattern.entropy {
				value := match[len(match)-1]
				if shannonEntropy(value) < minSecretEntropy {
					continue
				}
			}
			warnings = append(warnings, Warning{
				Line:    i + 1,
				Message: fmt.Sprintf("possible %s in added line", pattern.name),
			})
			break
		}
	}
	return warnings
}

// shannonEntropy computes bits of entropy per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	length := float64(len([]rune(s)))
	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
