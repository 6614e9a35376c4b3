// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import "errors"

// DefaultExtraRetryBudget is the pool of additional attempts grantable
// when an apply (not validation) failure occurs, tolerating transient
// apply issues without burning the whole run.
const DefaultExtraRetryBudget = 3

// ErrRetriesExhausted is the terminal condition of one failure
// context's repair cycle: no attempts remain and no extra budget can
// extend the ceiling.
var ErrRetriesExhausted = errors.New("patch retries exhausted")

// ErrAttemptOverrun reports that the attempt counter passed the
// ceiling without RecordFailure noticing - a programming invariant,
// checked before each new request.
var ErrAttemptOverrun = errors.New("attempt counter exceeds the attempt ceiling")

// AttemptState tracks the patch attempt budget for one failure
// context. It is constructed fresh every time the outer loop starts a
// new iteration.
type AttemptState struct {
	// MaxAttempts is the current attempt ceiling. Extended (at most
	// ExtraBudget times) when an apply failure consumes extra budget.
	MaxAttempts int

	// Attempt is the 1-based attempt counter.
	Attempt int

	// ExtraBudget is the remaining extension pool.
	ExtraBudget int

	// LastError is the most recent failure reason, fed back into the
	// next prompt. Empty on the first attempt.
	LastError string
}

// NewAttemptState creates the attempt budget for one failure context.
// The ceiling is patchRetries+1: the first attempt plus the configured
// retries.
func NewAttemptState(patchRetries int) *AttemptState {
	return &AttemptState{
		MaxAttempts: patchRetries + 1,
		Attempt:     1,
		ExtraBudget: DefaultExtraRetryBudget,
	}
}

// EnsureBudget asserts the attempt counter is within the ceiling.
// Called before each new request; a violation is a bug, not a retry.
func (s *AttemptState) EnsureBudget() error {
	if s.Attempt > s.MaxAttempts {
		return ErrAttemptOverrun
	}
	return nil
}

// RecordFailure books one failed attempt.
//
// Description:
//
//	Stores the reason for the next prompt and increments the attempt
//	counter. When the counter passes the ceiling: a retryable failure
//	(an apply failure) consumes one unit of extra budget to extend the
//	ceiling; otherwise, or when the extra budget is gone, the cycle is
//	over.
//
// Inputs:
//
//	reason - Human-readable failure reason.
//	retryable - True for apply failures, which may draw on the extra
//	            retry budget.
//
// Outputs:
//
//	error - ErrRetriesExhausted when no attempts remain; nil otherwise.
func (s *AttemptState) RecordFailure(reason string, retryable bool) error {
	s.LastError = reason
	s.Attempt++

	if s.Attempt <= s.MaxAttempts {
		return nil
	}
	if retryable && s.ExtraBudget > 0 {
		s.ExtraBudget--
		s.MaxAttempts++
		return nil
	}
	return ErrRetriesExhausted
}
