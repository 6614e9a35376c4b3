// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package apply

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// plannedWrite is one file mutation computed during the fallback dry
// run. Nothing touches disk until every file in the patch has planned
// cleanly.
type plannedWrite struct {
	path    string
	content []byte
	mode    fs.FileMode
	remove  bool
	create  bool
}

// applyFallback is Tier B: parse the diff, plan every rewrite in
// memory (the dry run), then commit the writes.
func (a *Applier) applyFallback(ctx context.Context, diffText, tierAOutput string) error {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(diffText)).ReadAllFiles()
	if err != nil {
		return &ApplyError{
			Stage:  "fallback preflight",
			Output: tierAOutput,
			Err:    fmt.Errorf("parsing diff: %w", err),
		}
	}

	writes, err := a.planWrites(fileDiffs)
	if err != nil {
		return &ApplyError{
			Stage:  "fallback preflight",
			Output: tierAOutput,
			Err:    err,
		}
	}

	for _, write := range writes {
		if err := ctx.Err(); err != nil {
			return &ApplyError{Stage: "fallback apply", Err: err}
		}
		if err := a.commitWrite(write); err != nil {
			return &ApplyError{Stage: "fallback apply", Err: err}
		}
	}

	a.logger.Debug("patch applied", slog.String("tier", "fallback"),
		slog.Int("files", len(writes)))
	return nil
}

// planWrites computes the post-patch content of every file in the diff.
func (a *Applier) planWrites(fileDiffs []*diff.FileDiff) ([]plannedWrite, error) {
	writes := make([]plannedWrite, 0, len(fileDiffs))

	for _, fd := range fileDiffs {
		origName := stripDiffPrefix(fd.OrigName)
		newName := stripDiffPrefix(fd.NewName)

		switch {
		case fd.NewName == "/dev/null":
			writes = append(writes, plannedWrite{
				path:   filepath.Join(a.root, origName),
				remove: true,
			})

		case fd.OrigName == "/dev/null":
			content := addedLines(fd)
			writes = append(writes, plannedWrite{
				path:    filepath.Join(a.root, newName),
				content: []byte(content),
				mode:    0o644,
				create:  true,
			})

		default:
			target := newName
			if target == "" {
				target = origName
			}
			fullPath := filepath.Join(a.root, target)

			original, err := os.ReadFile(fullPath)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", target, err)
			}
			info, err := os.Stat(fullPath)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", target, err)
			}

			patched, err := patchContent(string(original), fd)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", target, err)
			}
			writes = append(writes, plannedWrite{
				path:    fullPath,
				content: []byte(patched),
				mode:    info.Mode().Perm(),
			})
		}
	}
	return writes, nil
}

// commitWrite performs one planned mutation.
func (a *Applier) commitWrite(write plannedWrite) error {
	if write.remove {
		if err := os.Remove(write.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", write.path, err)
		}
		return nil
	}
	if write.create {
		if err := os.MkdirAll(filepath.Dir(write.path), 0o755); err != nil {
			return fmt.Errorf("creating directories for %s: %w", write.path, err)
		}
	}
	if err := os.WriteFile(write.path, write.content, write.mode); err != nil {
		return fmt.Errorf("writing %s: %w", write.path, err)
	}
	return nil
}

// patchContent applies a file's hunks with forward-only fuzzy context
// matching.
//
// For each hunk, the pre-image block (context + removed lines) is
// located starting at the hunk's recorded line; when line numbers have
// drifted, the search continues FORWARD from the previous hunk's end,
// never backward. The matched block is replaced by the post-image
// block (context + added lines).
func patchContent(original string, fd *diff.FileDiff) (string, error) {
	lines := strings.Split(original, "\n")
	searchFrom := 0

	for i, hunk := range fd.Hunks {
		oldBlock, newBlock := hunkBlocks(hunk)

		if len(oldBlock) == 0 {
			// Pure insertion with no context: honor the recorded
			// position, clamped to the file.
			at := int(hunk.OrigStartLine)
			if at < searchFrom {
				at = searchFrom
			}
			if at > len(lines) {
				at = len(lines)
			}
			lines = splice(lines, at, at, newBlock)
			searchFrom = at + len(newBlock)
			continue
		}

		at := findBlock(lines, oldBlock, searchFrom, int(hunk.OrigStartLine)-1)
		if at < 0 {
			return "", fmt.Errorf("hunk %d: context not found in current file content", i+1)
		}
		lines = splice(lines, at, at+len(oldBlock), newBlock)
		searchFrom = at + len(newBlock)
	}

	return strings.Join(lines, "\n"), nil
}

// hunkBlocks splits a hunk body into its pre-image and post-image
// line blocks. "\ No newline at end of file" markers are ignored.
func hunkBlocks(hunk *diff.Hunk) (oldBlock, newBlock []string) {
	for _, line := range strings.Split(string(hunk.Body), "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case ' ':
			oldBlock = append(oldBlock, line[1:])
			newBlock = append(newBlock, line[1:])
		case '-':
			oldBlock = append(oldBlock, line[1:])
		case '+':
			newBlock = append(newBlock, line[1:])
		case '\\':
			// no-newline marker
		}
	}
	return oldBlock, newBlock
}

// findBlock locates block within lines, trying the recorded hint
// position first and then scanning forward from searchFrom. Returns -1
// when the block cannot be found.
func findBlock(lines, block []string, searchFrom, hint int) int {
	if hint >= searchFrom && blockMatchesAt(lines, block, hint) {
		return hint
	}
	for i := searchFrom; i+len(block) <= len(lines); i++ {
		if blockMatchesAt(lines, block, i) {
			return i
		}
	}
	return -1
}

// blockMatchesAt reports whether block matches lines at position at.
func blockMatchesAt(lines, block []string, at int) bool {
	if at < 0 || at+len(block) > len(lines) {
		return false
	}
	for j, want := range block {
		if lines[at+j] != want {
			return false
		}
	}
	return true
}

// splice replaces lines[from:to] with replacement.
func splice(lines []string, from, to int, replacement []string) []string {
	result := make([]string, 0, len(lines)-(to-from)+len(replacement))
	result = append(result, lines[:from]...)
	result = append(result, replacement...)
	result = append(result, lines[to:]...)
	return result
}

// addedLines renders the full content of a newly created file from its
// hunks' added lines.
func addedLines(fd *diff.FileDiff) string {
	var lines []string
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if strings.HasPrefix(line, "+") {
				lines = append(lines, strings.TrimPrefix(line, "+"))
			}
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// stripDiffPrefix removes the a/ or b/ prefix git puts on diff paths.
func stripDiffPrefix(name string) string {
	name = strings.TrimPrefix(name, "a/")
	return strings.TrimPrefix(name, "b/")
}
