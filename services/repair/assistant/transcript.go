// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is an append-only audit log of every prompt sent to and
// reply received from the assistant. The system never reads it back.
//
// Thread Safety: Transcript is safe for concurrent use.
type Transcript struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

// OpenTranscript opens (creating if needed) the transcript at path and
// assigns this run a fresh ID.
func OpenTranscript(path string) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("assistant: creating transcript dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("assistant: opening transcript: %w", err)
	}
	return &Transcript{file: file, runID: uuid.NewString()}, nil
}

// RunID returns this run's transcript ID.
func (t *Transcript) RunID() string { return t.runID }

// Record appends one entry. kind is "prompt" or "response".
// Write failures are returned but callers may choose to ignore them -
// a broken audit log must not sink a repair run.
func (t *Transcript) Record(kind, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	header := fmt.Sprintf("---- run=%s %s %s ----\n",
		t.runID, time.Now().UTC().Format(time.RFC3339), kind)
	if _, err := t.file.WriteString(header + text + "\n\n"); err != nil {
		return fmt.Errorf("assistant: writing transcript: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
