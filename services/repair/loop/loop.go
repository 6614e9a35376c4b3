// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package loop orchestrates the repair cycle: run the build/test
// command, classify the result, request a patch from the assistant,
// validate it, ask for approval, apply it, and run again - within an
// iteration ceiling and a per-failure attempt budget.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mendci/mendci/pkg/ux"
	"github.com/mendci/mendci/services/repair/assistant"
	"github.com/mendci/mendci/services/repair/config"
	"github.com/mendci/mendci/services/repair/coverage"
	"github.com/mendci/mendci/services/repair/execx"
	"github.com/mendci/mendci/services/repair/failure"
	"github.com/mendci/mendci/services/repair/telemetry"
	"github.com/mendci/mendci/services/repair/validate"
)

// consecutiveExtractionLimit is how many back-to-back unparsable
// replies it takes before the prompt demands a complete diff.
const consecutiveExtractionLimit = 2

// CommandRunner executes the build/test command.
type CommandRunner interface {
	Run(ctx context.Context, spec execx.Spec) (execx.Result, error)
}

// PatchApplier applies a unified diff to the working tree.
type PatchApplier interface {
	Apply(ctx context.Context, diffText string) error
}

// DiffGatherer reads the current git diff of selected files.
type DiffGatherer interface {
	FocusedDiff(ctx context.Context, paths []string) (string, error)
}

// FailureDetector recognizes failure shapes that need a human.
type FailureDetector interface {
	MissingSymbol(log string) string
	MissingAttribute(log string) string
}

// SafetyChecker screens a candidate diff before approval.
type SafetyChecker interface {
	IsRisky(diffText string, maxLines int) (bool, string)
}

// Transcriber records prompt/reply pairs for audit. May be nil.
type Transcriber interface {
	Record(kind, text string) error
}

// Deps wires the loop's collaborators. Every field except Transcript
// and Logger is required.
type Deps struct {
	Options    config.Options
	Runner     CommandRunner
	Client     assistant.Client
	Validator  SafetyChecker
	Applier    PatchApplier
	Gatherer   DiffGatherer
	Detector   FailureDetector
	Approver   Approver
	Transcript Transcriber
	Logger     *slog.Logger
}

// Loop runs the repair cycle until the command is green, a budget is
// exhausted, or an abort condition fires.
//
// Thread Safety: NOT safe for concurrent use. One Loop runs one repair
// session.
type Loop struct {
	opts       config.Options
	runner     CommandRunner
	client     assistant.Client
	validator  SafetyChecker
	applier    PatchApplier
	gatherer   DiffGatherer
	detector   FailureDetector
	approver   Approver
	transcript Transcriber
	logger     *slog.Logger

	machine *StateMachine

	// seenPatches holds every diff proposed during this run, keyed by
	// exact text. A byte-identical resubmission is rejected regardless
	// of its other properties.
	seenPatches map[string]struct{}
}

// New creates a Loop from its dependencies.
func New(deps Deps) *Loop {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		opts:        deps.Options,
		runner:      deps.Runner,
		client:      deps.Client,
		validator:   deps.Validator,
		applier:     deps.Applier,
		gatherer:    deps.Gatherer,
		detector:    deps.Detector,
		approver:    deps.Approver,
		transcript:  deps.Transcript,
		logger:      logger,
		machine:     NewStateMachine(),
		seenPatches: make(map[string]struct{}),
	}
}

// Run drives the repair session to a terminal Outcome.
//
// Description:
//
//	Each outer iteration runs the command, classifies the result, and -
//	unless the run is green with adequate coverage - enters a repair
//	cycle of patch attempts for that failure. An applied patch ends the
//	cycle and the next iteration re-runs the command. The session ends
//	at success, at the iteration ceiling, or at any abort condition.
//
// Inputs:
//
//	ctx - Cancels the whole session. A cancelled context yields an
//	      ExitInterrupted outcome.
//
// Outputs:
//
//	Outcome - The terminal result; never panics, never os.Exits.
func (l *Loop) Run(ctx context.Context) Outcome {
	if l.opts.DryRun {
		return l.runDry(ctx)
	}

	for iteration := 1; iteration <= l.opts.MaxIterations; iteration++ {
		iterCtx, span := telemetry.StartIterationSpan(ctx, iteration)
		telemetry.RecordIteration(iteration)
		ux.Titlef("Iteration %d/%d: %s", iteration, l.opts.MaxIterations, l.commandLine())

		fc, outcome := l.runAndClassify(iterCtx)
		if outcome != nil {
			span.End()
			return *outcome
		}
		if fc == nil {
			span.End()
			ux.Successf("command passed")
			return Done()
		}

		if outcome := l.repairCycle(iterCtx, fc); outcome != nil {
			span.End()
			return *outcome
		}
		span.End()
	}

	return l.abort(fmt.Sprintf("no fix after %d iterations; giving up", l.opts.MaxIterations))
}

// runDry executes the command once and reports, without touching the
// assistant or the working tree.
func (l *Loop) runDry(ctx context.Context) Outcome {
	result, err := l.runCommand(ctx)
	if err != nil {
		return l.abort(fmt.Sprintf("running %s: %v", l.commandLine(), err))
	}
	if !result.Ok() {
		return Aborted(ExitFailure, fmt.Sprintf("dry run: command exited %d", result.ExitCode))
	}
	if cov := coverage.Extract(result.CombinedOutput(), l.opts.CoverageThreshold); cov != nil {
		return Aborted(ExitFailure, fmt.Sprintf("dry run: %d file(s) below %.0f%% coverage", len(cov.Deficits), cov.Threshold))
	}
	return Done()
}

// runAndClassify runs the command and builds the failure context.
//
// Outputs:
//
//	*FailureContext - Non-nil when repair is needed.
//	*Outcome - Non-nil on a terminal condition (start failure,
//	           cancellation, manual-intervention pattern).
//
// Exactly one of the two is non-nil, except on full success where both
// are nil.
func (l *Loop) runAndClassify(ctx context.Context) (*FailureContext, *Outcome) {
	result, err := l.runCommand(ctx)
	if err != nil {
		l.mustTransition(StateAborted)
		if errors.Is(err, context.Canceled) {
			o := Aborted(ExitInterrupted, "interrupted")
			return nil, &o
		}
		o := Aborted(ExitFailure, fmt.Sprintf("running %s: %v", l.commandLine(), err))
		return nil, &o
	}
	l.mustTransition(StateClassifying)

	if result.Ok() {
		cov := coverage.Extract(result.CombinedOutput(), l.opts.CoverageThreshold)
		if cov == nil {
			l.mustTransition(StateDone)
			return nil, nil
		}
		ux.Warnf("tests pass, but %d file(s) are below %.0f%% coverage", len(cov.Deficits), cov.Threshold)
		return &FailureContext{
			Command:  l.commandLine(),
			Coverage: cov,
		}, nil
	}

	excerpt := tailLines(result.CombinedOutput(), l.opts.LogTail)

	// Two failure shapes are never worth an automated patch: a symbol
	// that does not exist in the repository, and an attribute error
	// rooted in first-party code whose cause is structural.
	if hint := l.detector.MissingSymbol(excerpt); hint != "" {
		l.mustTransition(StateAborted)
		o := Aborted(ExitFailure, "manual intervention required: "+hint)
		return nil, &o
	}
	if hint := l.detector.MissingAttribute(excerpt); hint != "" {
		l.mustTransition(StateAborted)
		o := Aborted(ExitFailure, "manual intervention required: "+hint)
		return nil, &o
	}

	summary, files := failure.Summarize(excerpt)
	fc := &FailureContext{
		Command: l.commandLine(),
		Excerpt: excerpt,
		Summary: summary,
		Files:   files,
	}
	if len(files) > 0 {
		focused, err := l.gatherer.FocusedDiff(ctx, files)
		if err != nil {
			l.logger.Warn("gathering focused diff failed", slog.String("error", err.Error()))
		} else {
			fc.FocusedDiff = focused
		}
	}
	return fc, nil
}

// repairCycle runs patch attempts for one failure context until a
// patch applies (nil) or a terminal condition fires (*Outcome).
func (l *Loop) repairCycle(ctx context.Context, fc *FailureContext) *Outcome {
	attempts := NewAttemptState(l.opts.PatchRetries)
	extractionFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			o := Aborted(ExitInterrupted, "interrupted")
			return &o
		}
		if err := attempts.EnsureBudget(); err != nil {
			o := l.abort("internal error: " + err.Error())
			return &o
		}

		l.mustTransition(StateRequesting)
		l.logger.Info("requesting patch",
			slog.Int("attempt", attempts.Attempt),
			slog.Int("max_attempts", attempts.MaxAttempts))

		reply, err := l.complete(ctx, PromptInput{
			Context:            fc,
			LastError:          attempts.LastError,
			DemandCompleteDiff: extractionFailures >= consecutiveExtractionLimit,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				o := Aborted(ExitInterrupted, "interrupted")
				return &o
			}
			if outcome := l.recordRejection(attempts, "assistant request failed: "+err.Error(), false); outcome != nil {
				return outcome
			}
			continue
		}

		if assistant.IsNoop(reply) {
			l.mustTransition(StateAborted)
			o := Aborted(ExitFailure, "assistant replied NOOP: no code change can address this failure")
			return &o
		}

		diffText, err := assistant.ExtractDiff(reply)
		if err != nil {
			extractionFailures++
			if outcome := l.recordRejection(attempts, "your reply contained no parsable unified diff", false); outcome != nil {
				return outcome
			}
			continue
		}
		extractionFailures = 0

		l.mustTransition(StateValidating)
		if reason, ok := l.screenPatch(diffText); !ok {
			telemetry.RecordAttempt("rejected")
			ux.Warnf("patch rejected: %s", reason)
			if outcome := l.recordRejection(attempts, reason, false); outcome != nil {
				return outcome
			}
			continue
		}

		for _, warning := range validate.ScanSecrets(diffText) {
			ux.Warnf("possible secret in patch: %s", warning.Message)
			l.logger.Warn("possible secret in patch",
				slog.String("detail", warning.Message))
		}

		l.mustTransition(StateApproving)
		decision, err := l.approver.Approve(ctx, diffText)
		if err != nil {
			o := l.abort("approval failed: " + err.Error())
			return &o
		}
		switch decision {
		case DecisionQuit:
			l.mustTransition(StateAborted)
			o := Aborted(ExitFailure, "operator quit")
			return &o
		case DecisionDecline:
			telemetry.RecordAttempt("declined")
			if outcome := l.recordRejection(attempts, "the operator declined the patch", false); outcome != nil {
				return outcome
			}
			continue
		}

		l.mustTransition(StateApplying)
		if err := l.applier.Apply(ctx, diffText); err != nil {
			telemetry.RecordAttempt("apply_failed")
			ux.Warnf("apply failed: %v", err)
			if outcome := l.recordRejection(attempts, "applying your patch failed: "+err.Error(), true); outcome != nil {
				return outcome
			}
			continue
		}

		telemetry.RecordAttempt("applied")
		telemetry.RecordApplied()
		ux.Successf("patch applied")
		l.mustTransition(StateRunning)
		return nil
	}
}

// complete sends one prompt and records the exchange in the transcript.
func (l *Loop) complete(ctx context.Context, in PromptInput) (string, error) {
	prompt := BuildPrompt(in)
	l.record("prompt", prompt)

	response, err := l.client.Complete(ctx, assistant.Request{
		Prompt:          prompt,
		Model:           l.opts.Model,
		ReasoningEffort: l.opts.ReasoningEffort,
	})
	if err != nil {
		l.record("error", err.Error())
		return "", err
	}
	l.record("reply", response.Content)
	return response.Content, nil
}

// screenPatch runs the validation checks in order: duplicate of a
// seen patch, missing diff headers, then the safety screen. Returns
// ok=false with a rejection reason on the first failure. Every
// candidate is remembered, whatever the verdict.
func (l *Loop) screenPatch(diffText string) (reason string, ok bool) {
	if _, dup := l.seenPatches[diffText]; dup {
		return "this exact patch was already proposed; produce a materially different fix", false
	}
	l.seenPatches[diffText] = struct{}{}

	if !assistant.HasDiffHeaders(diffText) {
		return "the patch is missing unified diff headers (--- / +++)", false
	}
	if risky, why := l.validator.IsRisky(diffText, l.opts.MaxPatchLines); risky {
		return why, false
	}
	return "", true
}

// recordRejection books a failed attempt, translating an exhausted
// budget into an abort outcome. The caller continues on nil.
func (l *Loop) recordRejection(attempts *AttemptState, reason string, retryable bool) *Outcome {
	if err := attempts.RecordFailure(reason, retryable); err != nil {
		l.mustTransition(StateAborted)
		o := Aborted(ExitFailure, fmt.Sprintf("%s (last failure: %s)", err, reason))
		return &o
	}
	if l.machine.Current() != StateRequesting {
		l.mustTransition(StateRequesting)
	}
	return nil
}

// runCommand executes the build/test command with the env overlay,
// streaming output to the console.
func (l *Loop) runCommand(ctx context.Context) (execx.Result, error) {
	return l.runner.Run(ctx, execx.Spec{
		Argv:   l.opts.Command,
		Dir:    l.opts.RepoRoot,
		Env:    l.opts.EnvOverlay,
		Stream: true,
	})
}

// record appends to the transcript when one is configured.
func (l *Loop) record(kind, text string) {
	if l.transcript == nil {
		return
	}
	if err := l.transcript.Record(kind, text); err != nil {
		l.logger.Warn("transcript write failed", slog.String("error", err.Error()))
	}
}

// abort marks the machine aborted and builds the outcome.
func (l *Loop) abort(reason string) Outcome {
	if l.machine.Current() != StateAborted && l.machine.Current() != StateDone {
		l.mustTransition(StateAborted)
	}
	return Aborted(ExitFailure, reason)
}

// mustTransition moves the state machine, logging (not panicking) on a
// graph violation so a bug degrades to a traceable log line.
func (l *Loop) mustTransition(to State) {
	if err := l.machine.Transition(to); err != nil {
		l.logger.Error("state machine violation",
			slog.String("from", string(l.machine.Current())),
			slog.String("to", string(to)))
		l.machine.current = to
	}
}

func (l *Loop) commandLine() string {
	return strings.Join(l.opts.Command, " ")
}
