// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config builds the immutable runtime options for a repair run.
//
// Options are assembled once at start-up from CLI flags, an optional
// YAML config file, and an optional dotenv-style environment file, then
// validated and passed by value into every component. There is no
// ambient global configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SupportedModel is the single assistant model this tool is validated
// against. Any other value aborts before running anything.
const SupportedModel = "gpt-5.1-codex"

// ApprovalMode selects how patch attempts are approved.
type ApprovalMode string

const (
	// ApprovalPrompt asks the operator per attempt (yes/no/quit).
	ApprovalPrompt ApprovalMode = "prompt"

	// ApprovalAuto approves every validated patch.
	ApprovalAuto ApprovalMode = "auto"
)

// Backend selects the assistant transport.
type Backend string

const (
	// BackendCLI invokes the assistant executable as a subprocess.
	BackendCLI Backend = "cli"

	// BackendOpenAI calls the OpenAI chat API.
	BackendOpenAI Backend = "openai"
)

// Defaults worth preserving exactly; see the CLI help text.
const (
	DefaultCommand           = "./scripts/ci_check.sh"
	DefaultMaxIterations     = 5
	DefaultLogTail           = 200
	DefaultMaxPatchLines     = 1500
	DefaultPatchRetries      = 1
	DefaultCoverageThreshold = 80.0
	DefaultAssistantBinary   = "codex"
	DefaultTranscriptPath    = ".mendci/transcript.log"
)

// Options is the immutable configuration for one run.
type Options struct {
	// Command is the build/test command tokens.
	Command []string `validate:"required,min=1"`

	// RepoRoot is the repository root the loop operates in.
	RepoRoot string `validate:"required"`

	// MaxIterations is the overall iteration ceiling.
	MaxIterations int `validate:"gte=1"`

	// LogTail is how many trailing output lines feed the failure
	// context.
	LogTail int `validate:"gte=1"`

	// Model is the assistant model identifier.
	Model string `validate:"required"`

	// ReasoningEffort is the assistant effort level.
	ReasoningEffort string `validate:"oneof=minimal low medium high"`

	// MaxPatchLines is the changed-line budget per patch.
	MaxPatchLines int `validate:"gte=1"`

	// Approval selects prompt or auto approval.
	Approval ApprovalMode `validate:"oneof=prompt auto"`

	// PatchRetries is the extra per-iteration patch attempts beyond
	// the first (attempt ceiling = PatchRetries + 1).
	PatchRetries int `validate:"gte=0"`

	// CoverageThreshold is the coverage deficit threshold (0-100).
	CoverageThreshold float64 `validate:"gte=0,lte=100"`

	// StageAll stages every change after a successful run.
	StageAll bool

	// ComposeCommitMessage drafts a commit message after success.
	ComposeCommitMessage bool

	// CommitContext is extra free text for the commit-message prompt.
	CommitContext string

	// DryRun runs the command once and skips assistant interaction.
	DryRun bool

	// EnvOverlay is extra KEY=VALUE pairs for the build/test command.
	EnvOverlay []string

	// Backend selects the assistant transport.
	Backend Backend `validate:"oneof=cli openai"`

	// AssistantBinary is the executable for the CLI backend.
	AssistantBinary string

	// OpenAIAPIKey authenticates the openai backend.
	OpenAIAPIKey string

	// TranscriptPath is the append-only assistant audit log.
	TranscriptPath string

	// ProtectedPrefixes are path prefixes patches must not touch.
	ProtectedPrefixes []string
}

// Default returns Options with every default applied. The caller still
// must set RepoRoot.
func Default() Options {
	return Options{
		Command:           []string{DefaultCommand},
		MaxIterations:     DefaultMaxIterations,
		LogTail:           DefaultLogTail,
		Model:             SupportedModel,
		ReasoningEffort:   "medium",
		MaxPatchLines:     DefaultMaxPatchLines,
		Approval:          ApprovalPrompt,
		PatchRetries:      DefaultPatchRetries,
		CoverageThreshold: DefaultCoverageThreshold,
		Backend:           BackendCLI,
		AssistantBinary:   DefaultAssistantBinary,
		TranscriptPath:    DefaultTranscriptPath,
		ProtectedPrefixes: []string{"scripts/ci/", ".mendci/"},
	}
}

// FileConfig is the YAML config file shape. Zero values mean "not set"
// and leave the corresponding option untouched.
type FileConfig struct {
	Command           []string `yaml:"command"`
	MaxIterations     int      `yaml:"max_iterations"`
	LogTail           int      `yaml:"log_tail"`
	Model             string   `yaml:"model"`
	ReasoningEffort   string   `yaml:"reasoning_effort"`
	MaxPatchLines     int      `yaml:"max_patch_lines"`
	Approval          string   `yaml:"approval"`
	PatchRetries      *int     `yaml:"patch_retries"`
	CoverageThreshold float64  `yaml:"coverage_threshold"`
	Backend           string   `yaml:"backend"`
	AssistantBinary   string   `yaml:"assistant_binary"`
	TranscriptPath    string   `yaml:"transcript_path"`
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return fc, nil
}

// Merge overlays set file values onto o and returns the result.
func (o Options) Merge(fc FileConfig) Options {
	if len(fc.Command) > 0 {
		o.Command = fc.Command
	}
	if fc.MaxIterations > 0 {
		o.MaxIterations = fc.MaxIterations
	}
	if fc.LogTail > 0 {
		o.LogTail = fc.LogTail
	}
	if fc.Model != "" {
		o.Model = fc.Model
	}
	if fc.ReasoningEffort != "" {
		o.ReasoningEffort = fc.ReasoningEffort
	}
	if fc.MaxPatchLines > 0 {
		o.MaxPatchLines = fc.MaxPatchLines
	}
	if fc.Approval != "" {
		o.Approval = ApprovalMode(fc.Approval)
	}
	if fc.PatchRetries != nil {
		o.PatchRetries = *fc.PatchRetries
	}
	if fc.CoverageThreshold > 0 {
		o.CoverageThreshold = fc.CoverageThreshold
	}
	if fc.Backend != "" {
		o.Backend = Backend(fc.Backend)
	}
	if fc.AssistantBinary != "" {
		o.AssistantBinary = fc.AssistantBinary
	}
	if fc.TranscriptPath != "" {
		o.TranscriptPath = fc.TranscriptPath
	}
	if len(fc.ProtectedPrefixes) > 0 {
		o.ProtectedPrefixes = fc.ProtectedPrefixes
	}
	return o
}

// Validate checks structural constraints plus the model allowlist.
// Called once at start-up, before any command runs.
func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if o.Model != SupportedModel {
		return fmt.Errorf("config: unsupported model %q (only %q is supported)", o.Model, SupportedModel)
	}
	if o.Backend == BackendOpenAI && o.OpenAIAPIKey == "" {
		return fmt.Errorf("config: backend %q requires OPENAI_API_KEY", o.Backend)
	}
	return nil
}
