// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mendci/mendci/services/repair/commitmsg"
	"github.com/mendci/mendci/services/repair/config"
	"github.com/mendci/mendci/services/repair/execx"
	"github.com/mendci/mendci/services/repair/gitx"
)

func runCommitmsg(cmd *cobra.Command, _ []string) error {
	opts := config.Default()
	opts.Model = flagModel
	opts.ReasoningEffort = flagReasoning
	opts.Backend = config.Backend(flagBackend)
	opts.AssistantBinary = flagAssistantBinary
	opts.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	opts.RepoRoot = root

	if err := opts.Validate(); err != nil {
		return err
	}

	logger, err := newLogger("commitmsg")
	if err != nil {
		return err
	}
	defer logger.Close()

	client, err := newAssistantClient(opts, logger.Logger)
	if err != nil {
		return err
	}

	runner := execx.NewRunner(logger.Logger)
	gatherer := gitx.NewGatherer(runner, root, logger.Logger)
	composer := commitmsg.NewComposer(gatherer, client, opts.Model, opts.ReasoningEffort, logger.Logger)

	message, err := composer.Run(cmd.Context(), commitmsg.FinishOptions{
		StageAll:     flagCMStageAll,
		Commit:       flagCMCommit,
		Push:         flagCMPush,
		ExtraContext: flagCMContext,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), message.Format())
	return nil
}
