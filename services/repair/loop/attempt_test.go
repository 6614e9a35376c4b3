// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptState_Defaults(t *testing.T) {
	s := NewAttemptState(1)

	assert.Equal(t, 2, s.MaxAttempts, "retries+1")
	assert.Equal(t, 1, s.Attempt)
	assert.Equal(t, DefaultExtraRetryBudget, s.ExtraBudget)
	assert.Empty(t, s.LastError)
	assert.NoError(t, s.EnsureBudget())
}

func TestRecordFailure_NonRetryableExhaustsAtCeiling(t *testing.T) {
	s := NewAttemptState(1)

	require.NoError(t, s.RecordFailure("bad diff", false))
	assert.Equal(t, 2, s.Attempt)
	assert.Equal(t, "bad diff", s.LastError)

	err := s.RecordFailure("bad diff again", false)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, DefaultExtraRetryBudget, s.ExtraBudget, "validation failures never draw extra budget")
}

func TestRecordFailure_RetryableExtendsCeiling(t *testing.T) {
	s := NewAttemptState(1)

	require.NoError(t, s.RecordFailure("apply failed", true))

	// At the ceiling now; each retryable failure consumes one unit of
	// extra budget and extends the ceiling by one.
	for i := 1; i <= DefaultExtraRetryBudget; i++ {
		require.NoError(t, s.RecordFailure("apply failed", true))
		assert.Equal(t, DefaultExtraRetryBudget-i, s.ExtraBudget)
		assert.Equal(t, 2+i, s.MaxAttempts)
		assert.NoError(t, s.EnsureBudget())
	}

	err := s.RecordFailure("apply failed", true)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestRecordFailure_RetryableWithinCeilingKeepsBudget(t *testing.T) {
	s := NewAttemptState(3) // ceiling 4

	require.NoError(t, s.RecordFailure("apply failed", true))
	assert.Equal(t, DefaultExtraRetryBudget, s.ExtraBudget, "budget is only drawn at the ceiling")
	assert.Equal(t, 4, s.MaxAttempts)
}

func TestEnsureBudget_DetectsOverrun(t *testing.T) {
	s := NewAttemptState(0)
	s.Attempt = 5

	assert.ErrorIs(t, s.EnsureBudget(), ErrAttemptOverrun)
}

func TestAttemptState_ZeroRetriesSingleAttempt(t *testing.T) {
	s := NewAttemptState(0)
	assert.Equal(t, 1, s.MaxAttempts)

	err := s.RecordFailure("rejected", false)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}
