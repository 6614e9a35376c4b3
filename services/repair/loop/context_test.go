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

	"github.com/mendci/mendci/services/repair/coverage"
)

func TestTailLines(t *testing.T) {
	text := "a\nb\nc\nd\ne\n"

	assert.Equal(t, "d\ne", tailLines(text, 2))
	assert.Equal(t, "a\nb\nc\nd\ne", tailLines(text, 10), "short input is returned whole")
	assert.Equal(t, "e", tailLines(text, 1))
	assert.Equal(t, "", tailLines("", 5))
}

func TestBuildPrompt_FailureIncludesCommandAndExcerpt(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Context: &FailureContext{
		Command: "./scripts/ci_check.sh",
		Excerpt: "AssertionError: expected 2 got 1",
		Summary: "Type checker reported:\n- src/app.py (line 3)",
	}})

	assert.Contains(t, prompt, "./scripts/ci_check.sh")
	assert.Contains(t, prompt, "AssertionError")
	assert.Contains(t, prompt, "src/app.py (line 3)")
	assert.Contains(t, prompt, "NOOP")
	assert.Contains(t, prompt, "```diff")
}

func TestBuildPrompt_LastErrorFeedback(t *testing.T) {
	fc := &FailureContext{Command: "make test", Excerpt: "fail"}

	first := BuildPrompt(PromptInput{Context: fc})
	assert.NotContains(t, first, "was not accepted")

	second := BuildPrompt(PromptInput{Context: fc, LastError: "patch changes 2000 lines"})
	assert.Contains(t, second, "was not accepted")
	assert.Contains(t, second, "patch changes 2000 lines")
}

func TestBuildPrompt_CoverageMode(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Context: &FailureContext{
		Command: "make test",
		Coverage: &coverage.CheckResult{
			TableText: "Name  Stmts  Miss  Cover\nsrc/app.py  100  40  60%",
			Deficits:  []coverage.Deficit{{Path: "src/app.py", Percent: 60}},
			Threshold: 80,
		},
	}})

	assert.Contains(t, prompt, "coverage is below")
	assert.Contains(t, prompt, "80%")
	assert.Contains(t, prompt, "src/app.py (60.0%)")
	assert.NotContains(t, prompt, "Output tail", "coverage prompts do not carry a failure excerpt")
}
