// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package failure

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Patterns for the two non-retryable failure shapes.
var (
	importErrorPattern = regexp.MustCompile(
		`ImportError: cannot import name '([^']+)' from '([^']+)'`)

	attributeErrorPattern = regexp.MustCompile(
		`AttributeError: (?:module )?'([^']+)'(?: object)? has no attribute '([^']+)'`)

	stackFramePattern = regexp.MustCompile(
		`File "([^"]+)", line (\d+)`)
)

// Detector recognizes failures that require manual intervention.
//
// Thread Safety: Detector is safe for concurrent use (read-only state).
type Detector struct {
	// RepoRoot is the absolute repository root used to decide whether
	// a stack frame or module path is first-party.
	RepoRoot string

	logger *slog.Logger
}

// NewDetector creates a Detector rooted at repoRoot.
func NewDetector(repoRoot string, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{RepoRoot: repoRoot, logger: logger}
}

// MissingSymbol detects an import error naming a first-party symbol
// that genuinely does not exist.
//
// Description:
//
//	Matches "ImportError: cannot import name 'X' from 'pkg.mod'". The
//	hint fires only when the named module file exists inside the
//	repository AND contains no reference to the symbol: the assistant
//	cannot reliably invent a missing symbol's implementation, so the
//	run must stop for a human. If the module is absent, or the symbol
//	is referenced somewhere in it, the normal patch cycle proceeds.
//
// Inputs:
//
//	log - Failure log excerpt.
//
// Outputs:
//
//	string - Human-readable hint, or "" when the pattern did not fire.
func (d *Detector) MissingSymbol(log string) string {
	match := importErrorPattern.FindStringSubmatch(log)
	if match == nil {
		return ""
	}
	symbol, module := match[1], match[2]

	modulePath := d.resolveModule(module)
	if modulePath == "" {
		return ""
	}

	content, err := os.ReadFile(modulePath)
	if err != nil {
		d.logger.Debug("missing-symbol check could not read module",
			slog.String("path", modulePath), slog.Any("error", err))
		return ""
	}

	symbolRef := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
	if symbolRef.Match(content) {
		return ""
	}

	rel := d.relPath(modulePath)
	return fmt.Sprintf("symbol %q cannot be imported from %s and is not defined there; define it manually before rerunning", symbol, rel)
}

// MissingAttribute detects an attribute error whose most recent stack
// frame resolves to a repository file.
//
// Description:
//
//	Matches "AttributeError: ... has no attribute 'X'", then searches
//	BACKWARD through the log's stack-frame lines for the most recent
//	frame inside the repository. A hit means first-party code accessed
//	a nonexistent attribute - the kind of structural mismatch a human
//	must resolve. When no in-repository frame exists the error likely
//	originated in a dependency and the patch cycle proceeds.
//
// Inputs:
//
//	log - Failure log excerpt.
//
// Outputs:
//
//	string - Human-readable hint, or "" when the pattern did not fire.
func (d *Detector) MissingAttribute(log string) string {
	match := attributeErrorPattern.FindStringSubmatch(log)
	if match == nil {
		return ""
	}
	object, attribute := match[1], match[2]

	lines := strings.Split(log, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		frame := stackFramePattern.FindStringSubmatch(lines[i])
		if frame == nil {
			continue
		}
		framePath := frame[1]
		if !d.insideRepo(framePath) {
			continue
		}
		return fmt.Sprintf("attribute %q is missing on %q (last repository frame %s:%s); inspect the call site manually", attribute, object, d.relPath(framePath), frame[2])
	}
	return ""
}

// resolveModule maps a dotted module path to a file under the repo.
// Returns "" when no candidate file exists.
func (d *Detector) resolveModule(module string) string {
	base := filepath.Join(d.RepoRoot, filepath.FromSlash(strings.ReplaceAll(module, ".", "/")))
	for _, candidate := range []string{base + ".py", filepath.Join(base, "__init__.py")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// insideRepo reports whether path resolves inside the repository root.
func (d *Detector) insideRepo(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	root, err := filepath.Abs(d.RepoRoot)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// relPath renders a path relative to the repo root for display.
func (d *Detector) relPath(path string) string {
	rel, err := filepath.Rel(d.RepoRoot, path)
	if err != nil {
		return path
	}
	return rel
}
