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

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mendci/mendci/pkg/logging"
	"github.com/mendci/mendci/services/repair/config"
)

// exitError carries an explicit process exit code out of a command.
type exitError struct {
	code   int
	reason string
}

func (e *exitError) Error() string { return e.reason }

var (
	rootCmd = &cobra.Command{
		Use:   "mendci",
		Short: "Automated repair of failing build/test commands",
		Long: `Mendci runs your CI check command locally and, when it fails,
asks a coding assistant for a unified diff, screens the diff against
safety rules, applies it, and re-runs the command - repeating until the
command passes or a retry budget runs out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	repairCmd = &cobra.Command{
		Use:   "repair",
		Short: "Run the build/test command and repair failures",
		RunE:  runRepair,
	}

	commitmsgCmd = &cobra.Command{
		Use:   "commitmsg",
		Short: "Draft a commit message from the staged diff",
		RunE:  runCommitmsg,
	}

	// Persistent flags.
	flagLogLevel        string
	flagLogDir          string
	flagModel           string
	flagReasoning       string
	flagBackend         string
	flagAssistantBinary string

	// repair flags.
	flagCommand           []string
	flagMaxIterations     int
	flagLogTail           int
	flagMaxPatchLines     int
	flagApprove           string
	flagPatchRetries      int
	flagCoverageThreshold float64
	flagStageAll          bool
	flagCommitMsg         bool
	flagCommitContext     string
	flagDryRun            bool
	flagEnvFile           string
	flagConfigFile        string
	flagTranscript        string

	// commitmsg flags.
	flagCMStageAll bool
	flagCMCommit   bool
	flagCMPush     bool
	flagCMContext  string
)

func init() {
	defaults := config.Default()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	pf.StringVar(&flagLogDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")
	pf.StringVar(&flagModel, "model", defaults.Model, "Assistant model identifier")
	pf.StringVar(&flagReasoning, "reasoning", defaults.ReasoningEffort, "Assistant reasoning effort (minimal|low|medium|high)")
	pf.StringVar(&flagBackend, "backend", string(defaults.Backend), "Assistant backend (cli|openai)")
	pf.StringVar(&flagAssistantBinary, "assistant-binary", defaults.AssistantBinary, "Executable for the cli backend")

	rf := repairCmd.Flags()
	rf.StringSliceVar(&flagCommand, "cmd", defaults.Command, "Build/test command (repeat or comma-separate for arguments)")
	rf.IntVar(&flagMaxIterations, "max-iterations", defaults.MaxIterations, "Overall run/patch/re-run iteration ceiling")
	rf.IntVar(&flagLogTail, "log-tail", defaults.LogTail, "Trailing output lines sent to the assistant")
	rf.IntVar(&flagMaxPatchLines, "max-patch-lines", defaults.MaxPatchLines, "Changed-line budget per patch")
	rf.StringVar(&flagApprove, "approve", string(defaults.Approval), "Patch approval mode (prompt|auto)")
	rf.IntVar(&flagPatchRetries, "patch-retries", defaults.PatchRetries, "Patch attempts per failure beyond the first")
	rf.Float64Var(&flagCoverageThreshold, "coverage-threshold", defaults.CoverageThreshold, "Per-file coverage percentage treated as passing")
	rf.BoolVar(&flagStageAll, "stage-all", false, "Stage all changes after a successful run")
	rf.BoolVar(&flagCommitMsg, "commit-msg", false, "Draft a commit message after a successful run")
	rf.StringVar(&flagCommitContext, "commit-context", "", "Extra context for the drafted commit message")
	rf.BoolVar(&flagDryRun, "dry-run", false, "Run the command once and exit without repairing")
	rf.StringVar(&flagEnvFile, "env-file", "", "Dotenv file overlaid onto the command environment")
	rf.StringVar(&flagConfigFile, "config", "", "YAML config file")
	rf.StringVar(&flagTranscript, "transcript", defaults.TranscriptPath, "Assistant transcript path (disabled when empty)")

	cf := commitmsgCmd.Flags()
	cf.BoolVar(&flagCMStageAll, "stage-all", false, "Stage all changes before composing")
	cf.BoolVar(&flagCMCommit, "commit", false, "Commit with the drafted message")
	cf.BoolVar(&flagCMPush, "push", false, "Push after committing")
	cf.StringVar(&flagCMContext, "context", "", "Extra context for the prompt")

	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(commitmsgCmd)
}

// buildOptions assembles the immutable run options from defaults, the
// optional config file, and explicitly set flags - in that precedence
// order, lowest first.
func buildOptions(cmd *cobra.Command) (config.Options, error) {
	opts := config.Default()

	if flagConfigFile != "" {
		fc, err := config.LoadFile(flagConfigFile)
		if err != nil {
			return opts, err
		}
		opts = opts.Merge(fc)
	}

	root, err := os.Getwd()
	if err != nil {
		return opts, fmt.Errorf("resolving working directory: %w", err)
	}
	opts.RepoRoot = root

	set := cmd.Flags().Changed
	if set("cmd") {
		opts.Command = flagCommand
	}
	if set("max-iterations") {
		opts.MaxIterations = flagMaxIterations
	}
	if set("log-tail") {
		opts.LogTail = flagLogTail
	}
	if set("model") {
		opts.Model = flagModel
	}
	if set("reasoning") {
		opts.ReasoningEffort = flagReasoning
	}
	if set("max-patch-lines") {
		opts.MaxPatchLines = flagMaxPatchLines
	}
	if set("approve") {
		opts.Approval = config.ApprovalMode(flagApprove)
	}
	if set("patch-retries") {
		opts.PatchRetries = flagPatchRetries
	}
	if set("coverage-threshold") {
		opts.CoverageThreshold = flagCoverageThreshold
	}
	if set("backend") {
		opts.Backend = config.Backend(flagBackend)
	}
	if set("assistant-binary") {
		opts.AssistantBinary = flagAssistantBinary
	}
	if set("transcript") {
		opts.TranscriptPath = flagTranscript
	}

	opts.StageAll = flagStageAll
	opts.ComposeCommitMessage = flagCommitMsg
	opts.CommitContext = flagCommitContext
	opts.DryRun = flagDryRun
	opts.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	if flagEnvFile != "" {
		overlay, err := config.ParseEnvFile(flagEnvFile)
		if err != nil {
			return opts, err
		}
		opts.EnvOverlay = overlay
	}

	if opts.Approval == config.ApprovalPrompt && !opts.DryRun &&
		!isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return opts, fmt.Errorf("stdin is not a terminal; use --approve auto for non-interactive runs")
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// newLogger builds the process logger from the persistent flags.
func newLogger(service string) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(flagLogLevel),
		LogDir:  flagLogDir,
		Service: service,
	})
}
