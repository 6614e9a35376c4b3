// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the mendci CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Mendci color palette.
var (
	ColorPrimary = lipgloss.Color("#5FAFAF") // muted teal - headings
	ColorSuccess = lipgloss.Color("#5FD787") // green - passing runs
	ColorWarning = lipgloss.Color("#F4D03F") // amber - risky patches, retries
	ColorError   = lipgloss.Color("#E74C3C") // red - aborts
	ColorMuted   = lipgloss.Color("#6C7A80") // slate - secondary text
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	DiffBox lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	DiffBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1),

	StatusOK:      lipgloss.NewStyle().SetString("✓").Foreground(ColorSuccess),
	StatusWarning: lipgloss.NewStyle().SetString("⚠").Foreground(ColorWarning),
	StatusError:   lipgloss.NewStyle().SetString("✗").Foreground(ColorError),
}

// Successf prints a success line to stderr.
func Successf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.StatusOK.String(), fmt.Sprintf(format, args...))
}

// Warnf prints a warning line to stderr.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.StatusWarning.String(), Styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Errorf prints an error line to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.StatusError.String(), Styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Infof prints a muted informational line to stderr.
func Infof(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s\n", Styles.Muted.Render(fmt.Sprintf(format, args...)))
}

// Titlef prints a bold title line to stderr.
func Titlef(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s\n", Styles.Title.Render(fmt.Sprintf(format, args...)))
}
