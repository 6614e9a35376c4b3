// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command mendci runs a build/test command and, on failure, drives an
// assistant-backed repair loop until the command passes or a budget
// runs out.
//
// Usage:
//
//	mendci repair
//	mendci repair --cmd "pytest -x" --approve auto
//	mendci commitmsg --stage-all --commit
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mendci/mendci/pkg/ux"
	"github.com/mendci/mendci/services/repair/loop"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.reason != "" {
			ux.Errorf("%s", exit.reason)
		}
		os.Exit(exit.code)
	}

	ux.Errorf("%v", err)
	if ctx.Err() != nil {
		os.Exit(loop.ExitInterrupted)
	}
	os.Exit(loop.ExitFailure)
}
