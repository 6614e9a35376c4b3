// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

// Process exit codes.
const (
	// ExitSuccess: the command is green and no coverage deficit remains.
	ExitSuccess = 0

	// ExitFailure: the loop aborted (budget exhausted, NOOP reply,
	// manual-intervention pattern, operator quit, or an internal error).
	ExitFailure = 1

	// ExitInterrupted: the run was cancelled by SIGINT.
	ExitInterrupted = 130
)

// Kind tags an Outcome.
type Kind int

const (
	// KindDone is terminal success.
	KindDone Kind = iota

	// KindAborted is terminal failure with a reason.
	KindAborted
)

// Outcome is the terminal result of a repair run. It is an explicit
// value the caller maps to an exit code; no control flow escapes the
// loop any other way.
type Outcome struct {
	Kind   Kind
	Code   int
	Reason string
}

// Done builds the success outcome.
func Done() Outcome {
	return Outcome{Kind: KindDone, Code: ExitSuccess}
}

// Aborted builds a failure outcome with the given exit code and reason.
func Aborted(code int, reason string) Outcome {
	return Outcome{Kind: KindAborted, Code: code, Reason: reason}
}

// Success reports whether the run finished green.
func (o Outcome) Success() bool { return o.Kind == KindDone }
