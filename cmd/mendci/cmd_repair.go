// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mendci/mendci/pkg/ux"
	"github.com/mendci/mendci/services/repair/apply"
	"github.com/mendci/mendci/services/repair/assistant"
	"github.com/mendci/mendci/services/repair/commitmsg"
	"github.com/mendci/mendci/services/repair/config"
	"github.com/mendci/mendci/services/repair/execx"
	"github.com/mendci/mendci/services/repair/failure"
	"github.com/mendci/mendci/services/repair/gitx"
	"github.com/mendci/mendci/services/repair/loop"
	"github.com/mendci/mendci/services/repair/validate"
)

func runRepair(cmd *cobra.Command, _ []string) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger("repair")
	if err != nil {
		return err
	}
	defer logger.Close()

	client, err := newAssistantClient(opts, logger.Logger)
	if err != nil {
		return err
	}

	var transcript *assistant.Transcript
	if opts.TranscriptPath != "" {
		transcript, err = assistant.OpenTranscript(opts.TranscriptPath)
		if err != nil {
			return err
		}
		defer transcript.Close()
	}

	runner := execx.NewRunner(logger.Logger)
	gatherer := gitx.NewGatherer(runner, opts.RepoRoot, logger.Logger)

	deps := loop.Deps{
		Options: opts,
		Runner:  runner,
		Client:  client,
		Validator: validate.NewSafetyValidator(validate.Config{
			ProtectedPrefixes: opts.ProtectedPrefixes,
			BannedPatterns:    validate.DefaultBannedPatterns(),
		}),
		Applier:  apply.NewApplier(runner, opts.RepoRoot, logger.Logger),
		Gatherer: gatherer,
		Detector: failure.NewDetector(opts.RepoRoot, logger.Logger),
		Approver: newApprover(opts),
		Logger:   logger.Logger,
	}
	if transcript != nil {
		deps.Transcript = transcript
	}

	outcome := loop.New(deps).Run(cmd.Context())
	if !outcome.Success() {
		return &exitError{code: outcome.Code, reason: outcome.Reason}
	}

	if opts.StageAll || opts.ComposeCommitMessage {
		if err := finishRun(cmd, opts, gatherer, client, logger.Logger); err != nil {
			return err
		}
	}
	return nil
}

// finishRun handles the post-success git work: staging and, when
// requested, drafting a commit message to stdout.
func finishRun(cmd *cobra.Command, opts config.Options, gatherer *gitx.Gatherer, client assistant.Client, logger *slog.Logger) error {
	ctx := cmd.Context()

	if opts.StageAll {
		if err := gatherer.StageAll(ctx); err != nil {
			return fmt.Errorf("staging changes: %w", err)
		}
		ux.Infof("staged all changes")
	}

	if !opts.ComposeCommitMessage {
		return nil
	}

	composer := commitmsg.NewComposer(gatherer, client, opts.Model, opts.ReasoningEffort, logger)
	message, err := composer.Compose(ctx, opts.CommitContext)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), message.Format())
	return nil
}

// newAssistantClient builds the configured backend.
func newAssistantClient(opts config.Options, logger *slog.Logger) (assistant.Client, error) {
	switch opts.Backend {
	case config.BackendOpenAI:
		return assistant.NewOpenAIClient(opts.OpenAIAPIKey, logger)
	default:
		return assistant.NewCLIClient(execx.NewRunner(logger), opts.AssistantBinary, opts.RepoRoot, logger), nil
	}
}

// newApprover builds the configured approval strategy.
func newApprover(opts config.Options) loop.Approver {
	if opts.Approval == config.ApprovalAuto {
		return loop.AutoApprover{}
	}
	return loop.NewInteractiveApprover(os.Stdin, os.Stderr)
}
