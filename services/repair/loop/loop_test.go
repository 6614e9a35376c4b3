// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendci/mendci/services/repair/assistant"
	"github.com/mendci/mendci/services/repair/config"
	"github.com/mendci/mendci/services/repair/execx"
	"github.com/mendci/mendci/services/repair/validate"
)

// seqRunner returns scripted results in order, repeating the last one.
type seqRunner struct {
	results []execx.Result
	calls   int
}

func (s *seqRunner) Run(_ context.Context, _ execx.Spec) (execx.Result, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx], nil
}

// fakeApplier records applied diffs and fails on request.
type fakeApplier struct {
	applied []string
	err     error
}

func (f *fakeApplier) Apply(_ context.Context, diffText string) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, diffText)
	return nil
}

type fakeGatherer struct{ diff string }

func (f *fakeGatherer) FocusedDiff(context.Context, []string) (string, error) {
	return f.diff, nil
}

type fakeDetector struct{ symbolHint, attrHint string }

func (f *fakeDetector) MissingSymbol(string) string    { return f.symbolHint }
func (f *fakeDetector) MissingAttribute(string) string { return f.attrHint }

// scriptedApprover returns decisions in order, then approves.
type scriptedApprover struct {
	decisions []Decision
	calls     int
}

func (s *scriptedApprover) Approve(context.Context, string) (Decision, error) {
	if s.calls < len(s.decisions) {
		d := s.decisions[s.calls]
		s.calls++
		return d, nil
	}
	s.calls++
	return DecisionApprove, nil
}

// testDiff builds a distinct, well-formed diff per variant.
func testDiff(variant int) string {
	return fmt.Sprintf(`diff --git a/src/app.py b/src/app.py
--- a/src/app.py
+++ b/src/app.py
@@ -1,1 +1,1 @@
-value = 0
+value = %d
`, variant)
}

// fencedReply wraps a diff the way assistants usually do.
func fencedReply(diffText string) string {
	return "Here you go:\n\n```diff\n" + diffText + "```\n"
}

func testOptions() config.Options {
	opts := config.Default()
	opts.RepoRoot = "/repo"
	opts.Approval = config.ApprovalAuto
	return opts
}

func newTestLoop(opts config.Options, runner *seqRunner, client assistant.Client, applier *fakeApplier, approver Approver) *Loop {
	if approver == nil {
		approver = AutoApprover{}
	}
	return New(Deps{
		Options:   opts,
		Runner:    runner,
		Client:    client,
		Validator: validate.NewSafetyValidator(validate.DefaultConfig()),
		Applier:   applier,
		Gatherer:  &fakeGatherer{},
		Detector:  &fakeDetector{},
		Approver:  approver,
	})
}

func TestRun_GreenFirstRun(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{{ExitCode: 0, Stdout: "all passed"}}}
	client := assistant.NewMockClient()
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	assert.True(t, outcome.Success())
	assert.Equal(t, ExitSuccess, outcome.Code)
	assert.Equal(t, 1, runner.calls)
	assert.Zero(t, client.CallCount(), "no assistant contact on a green run")
	assert.Empty(t, applier.applied)
}

func TestRun_FailTwiceThenGreen(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{
		{ExitCode: 1, Stderr: "test_a failed"},
		{ExitCode: 1, Stderr: "test_b failed"},
		{ExitCode: 0, Stdout: "all passed"},
	}}
	client := assistant.NewMockClient(
		fencedReply(testDiff(1)),
		fencedReply(testDiff(2)),
	)
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	require.True(t, outcome.Success())
	assert.Equal(t, 3, runner.calls, "command runs once per iteration")
	assert.Equal(t, 2, client.CallCount())
	require.Len(t, applier.applied, 2)
	assert.NotEqual(t, applier.applied[0], applier.applied[1])
}

func TestRun_DuplicatePatchIsRejected(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "boom"}}}
	client := assistant.NewMockClient(
		fencedReply(testDiff(1)),
		fencedReply(testDiff(1)), // resubmission after the first apply
		fencedReply(testDiff(1)),
	)
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "already proposed")
	assert.Len(t, applier.applied, 1, "the duplicate never reaches apply")
}

func TestRun_NoopReplyAbortsRun(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "boom"}}}
	client := assistant.NewMockClient("NOOP")
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "NOOP")
	assert.Equal(t, 1, client.CallCount())
}

func TestRun_DetectorHintAbortsForManualIntervention(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "ImportError"}}}
	client := assistant.NewMockClient()
	applier := &fakeApplier{}

	lp := New(Deps{
		Options:   testOptions(),
		Runner:    runner,
		Client:    client,
		Validator: validate.NewSafetyValidator(validate.DefaultConfig()),
		Applier:   applier,
		Gatherer:  &fakeGatherer{},
		Detector:  &fakeDetector{symbolHint: "symbol \"Account\" is not defined"},
		Approver:  AutoApprover{},
	})
	outcome := lp.Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "manual intervention")
	assert.Zero(t, client.CallCount())
}

func TestRun_RiskyPatchExhaustsRetries(t *testing.T) {
	risky := `diff --git a/src/clean.py b/src/clean.py
--- a/src/clean.py
+++ b/src/clean.py
@@ -1,1 +1,1 @@
+    subprocess.run("rm -rf build", shell=True)
`
	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "boom"}}}
	client := assistant.NewMockClient(fencedReply(risky), fencedReply(risky+"# v2\n"))
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "patch retries exhausted")
	assert.Empty(t, applier.applied)
	assert.Equal(t, 2, client.CallCount(), "default budget is the first attempt plus one retry")
}

func TestRun_ApplyFailuresDrawExtraBudget(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "boom"}}}

	var replies []string
	for i := 0; i < 10; i++ {
		replies = append(replies, fencedReply(testDiff(i)))
	}
	client := assistant.NewMockClient(replies...)
	applier := &fakeApplier{err: errors.New("hunk 1: context not found")}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "patch retries exhausted")
	// Default ceiling 2, plus the full extra budget for apply failures.
	assert.Equal(t, 2+DefaultExtraRetryBudget, client.CallCount())
}

func TestRun_IterationCeiling(t *testing.T) {
	opts := testOptions()
	opts.MaxIterations = 2

	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "boom"}}}
	client := assistant.NewMockClient(fencedReply(testDiff(1)), fencedReply(testDiff(2)))
	applier := &fakeApplier{}

	outcome := newTestLoop(opts, runner, client, applier, nil).Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "no fix after 2 iterations")
	assert.Equal(t, 2, runner.calls)
	assert.Len(t, applier.applied, 2)
}

func TestRun_OperatorQuitAborts(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{{ExitCode: 1, Stderr: "boom"}}}
	client := assistant.NewMockClient(fencedReply(testDiff(1)))
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier,
		&scriptedApprover{decisions: []Decision{DecisionQuit}}).Run(context.Background())

	require.False(t, outcome.Success())
	assert.Contains(t, outcome.Reason, "operator quit")
	assert.Empty(t, applier.applied)
}

func TestRun_OperatorDeclineCountsAgainstBudget(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{
		{ExitCode: 1, Stderr: "boom"},
		{ExitCode: 0, Stdout: "passed"},
	}}
	client := assistant.NewMockClient(fencedReply(testDiff(1)), fencedReply(testDiff(2)))
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier,
		&scriptedApprover{decisions: []Decision{DecisionDecline, DecisionApprove}}).Run(context.Background())

	require.True(t, outcome.Success())
	require.Len(t, applier.applied, 1)
	assert.Contains(t, applier.applied[0], "value = 2", "the declined patch is not the one applied")
}

func TestRun_RepeatedExtractionFailuresHardenThePrompt(t *testing.T) {
	opts := testOptions()
	opts.PatchRetries = 3

	runner := &seqRunner{results: []execx.Result{
		{ExitCode: 1, Stderr: "boom"},
		{ExitCode: 0, Stdout: "passed"},
	}}
	client := assistant.NewMockClient(
		"I think the problem is in app.py but I am not sure.",
		"Maybe try reinstalling?",
		fencedReply(testDiff(1)),
	)
	applier := &fakeApplier{}

	outcome := newTestLoop(opts, runner, client, applier, nil).Run(context.Background())

	require.True(t, outcome.Success())
	require.Equal(t, 3, client.CallCount())
	assert.NotContains(t, client.Calls[0].Prompt, "COMPLETE unified diff")
	assert.NotContains(t, client.Calls[1].Prompt, "COMPLETE unified diff")
	assert.Contains(t, client.Calls[2].Prompt, "COMPLETE unified diff")
}

func TestRun_CoverageDeficitTriggersRepairDespiteGreenExit(t *testing.T) {
	coverageOutput := `42 passed

Name            Stmts   Miss  Cover
src/app.py         100     40    60%
TOTAL              100     40    60%
`
	runner := &seqRunner{results: []execx.Result{
		{ExitCode: 0, Stdout: coverageOutput},
		{ExitCode: 0, Stdout: "Name  Stmts  Miss  Cover\nsrc/app.py  100  10  90%\n"},
	}}
	client := assistant.NewMockClient(fencedReply(testDiff(1)))
	applier := &fakeApplier{}

	outcome := newTestLoop(testOptions(), runner, client, applier, nil).Run(context.Background())

	require.True(t, outcome.Success())
	require.Equal(t, 1, client.CallCount())
	assert.Contains(t, client.Calls[0].Prompt, "coverage")
	assert.Contains(t, client.Calls[0].Prompt, "src/app.py")
	assert.Len(t, applier.applied, 1)
}

func TestRun_DryRun(t *testing.T) {
	t.Run("green", func(t *testing.T) {
		runner := &seqRunner{results: []execx.Result{{ExitCode: 0}}}
		client := assistant.NewMockClient()

		opts := testOptions()
		opts.DryRun = true
		outcome := newTestLoop(opts, runner, client, &fakeApplier{}, nil).Run(context.Background())

		assert.True(t, outcome.Success())
		assert.Zero(t, client.CallCount())
	})

	t.Run("failing", func(t *testing.T) {
		runner := &seqRunner{results: []execx.Result{{ExitCode: 2}}}
		client := assistant.NewMockClient()

		opts := testOptions()
		opts.DryRun = true
		outcome := newTestLoop(opts, runner, client, &fakeApplier{}, nil).Run(context.Background())

		require.False(t, outcome.Success())
		assert.Contains(t, outcome.Reason, "dry run")
		assert.Zero(t, client.CallCount())
	})
}

func TestRun_CancelledContextIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &seqRunner{results: []execx.Result{{ExitCode: 1}}}
	client := assistant.NewMockClient(fencedReply(testDiff(1)))

	outcome := newTestLoop(testOptions(), runner, client, &fakeApplier{}, nil).Run(ctx)

	require.False(t, outcome.Success())
	assert.Equal(t, ExitInterrupted, outcome.Code)
}

func TestRun_FailurePromptCarriesLogTailAndSummary(t *testing.T) {
	runner := &seqRunner{results: []execx.Result{
		{ExitCode: 1, Stderr: "/home/dev/proj/src/app.py:12 - error: bad type\n"},
		{ExitCode: 0, Stdout: "passed"},
	}}
	client := assistant.NewMockClient(fencedReply(testDiff(1)))
	applier := &fakeApplier{}

	lp := New(Deps{
		Options:   testOptions(),
		Runner:    runner,
		Client:    client,
		Validator: validate.NewSafetyValidator(validate.DefaultConfig()),
		Applier:   applier,
		Gatherer:  &fakeGatherer{diff: "diff --git a/src/app.py b/src/app.py\n..."},
		Detector:  &fakeDetector{},
		Approver:  AutoApprover{},
	})
	outcome := lp.Run(context.Background())

	require.True(t, outcome.Success())
	prompt := client.Calls[0].Prompt
	assert.Contains(t, prompt, "/home/dev/proj/src/app.py:12")
	assert.Contains(t, prompt, "Type checker reported:")
	assert.Contains(t, prompt, "uncommitted changes")
}
