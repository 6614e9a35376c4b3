// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractiveApprover_Decisions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{"yes", "y\n", DecisionApprove},
		{"yes word", "yes\n", DecisionApprove},
		{"uppercase yes", "Y\n", DecisionApprove},
		{"no", "n\n", DecisionDecline},
		{"empty line declines", "\n", DecisionDecline},
		{"garbage declines", "maybe\n", DecisionDecline},
		{"quit", "q\n", DecisionQuit},
		{"quit word", "quit\n", DecisionQuit},
		{"eof quits", "", DecisionQuit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			approver := NewInteractiveApprover(strings.NewReader(tt.input), &out)

			decision, err := approver.Approve(context.Background(), "diff --git a/x b/x\n")
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestInteractiveApprover_ShowsDiffAndPrompt(t *testing.T) {
	var out bytes.Buffer
	approver := NewInteractiveApprover(strings.NewReader("y\n"), &out)

	_, err := approver.Approve(context.Background(), "diff --git a/src/x.py b/src/x.py\n+fixed\n")
	require.NoError(t, err)

	rendered := out.String()
	assert.Contains(t, rendered, "Proposed patch")
	assert.Contains(t, rendered, "+fixed")
	assert.Contains(t, rendered, "[y/N/q]")
}

func TestAutoApprover_AlwaysApproves(t *testing.T) {
	decision, err := AutoApprover{}.Approve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, decision)
}

func TestInteractiveApprover_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	approver := NewInteractiveApprover(strings.NewReader("y\n"), &out)

	_, err := approver.Approve(ctx, "diff")
	assert.Error(t, err)
}
