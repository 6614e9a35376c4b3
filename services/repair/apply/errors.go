// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package apply

import (
	"fmt"
	"strings"
)

// ApplyError reports a failed patch application.
//
// Every error this package produces is retryable: the orchestrator
// treats apply failures as something a fresh patch attempt might fix,
// never as immediately fatal.
type ApplyError struct {
	// Stage names the tier that failed
	// ("structured apply", "fallback preflight", "fallback apply").
	Stage string

	// Output carries the diagnostic text from the failing tier(s).
	Output string

	// Err is the underlying error, if any.
	Err error
}

// Error implements error.
func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("apply: %s failed", e.Stage)
	if out := strings.TrimSpace(e.Output); out != "" {
		if len(out) > 600 {
			out = out[:600] + "..."
		}
		msg += ": " + out
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ApplyError) Unwrap() error { return e.Err }

// Retryable reports whether a fresh patch attempt may succeed.
// Always true for apply failures.
func (e *ApplyError) Retryable() bool { return true }
