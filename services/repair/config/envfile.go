// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envKeyPattern validates environment variable key names per POSIX
// conventions: a leading letter or underscore, then alphanumerics and
// underscores. Rejecting anything else prevents shell metacharacter
// injection through the env file.
var envKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseEnvFile reads a dotenv-style file into KEY=VALUE pairs.
//
// Description:
//
//	Supported syntax: one KEY=VALUE per line, blank lines, and #
//	comments. Values may be wrapped in single or double quotes, which
//	are stripped. There is no variable interpolation.
//
// Inputs:
//
//	path - The env file path.
//
// Outputs:
//
//	[]string - KEY=VALUE pairs in file order.
//	error - Non-nil on read failure or a malformed line.
func ParseEnvFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening env file: %w", err)
	}
	defer file.Close()

	var pairs []string
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("config: %s:%d: expected KEY=VALUE", path, lineNo)
		}
		key = strings.TrimSpace(key)
		if !envKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("config: %s:%d: invalid key %q", path, lineNo, key)
		}

		value = strings.TrimSpace(value)
		value = unquote(value)
		pairs = append(pairs, key+"="+value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading env file: %w", err)
	}
	return pairs, nil
}

// unquote strips one layer of matching single or double quotes.
func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if first == last && (first == '"' || first == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
