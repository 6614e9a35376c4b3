// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func safeDiff() string {
	return `diff --git a/src/app.py b/src/app.py
--- a/src/app.py
+++ b/src/app.py
@@ -1,3 +1,3 @@
 def main():
-    return 1
+    return 2
`
}

// diffWithChanges builds a valid-looking diff with exactly n changed
// lines.
func diffWithChanges(n int) string {
	var sb strings.Builder
	sb.WriteString("diff --git a/src/big.py b/src/big.py\n")
	sb.WriteString("--- a/src/big.py\n")
	sb.WriteString("+++ b/src/big.py\n")
	sb.WriteString(fmt.Sprintf("@@ -1,%d +1,%d @@\n", n, n))
	for i := 0; i < n; i++ {
		sb.WriteString(fmt.Sprintf("+line %d\n", i))
	}
	return sb.String()
}

func TestIsRisky_SafeDiffPasses(t *testing.T) {
	v := NewSafetyValidator(DefaultConfig())

	risky, reason := v.IsRisky(safeDiff(), 1500)
	assert.False(t, risky)
	assert.Empty(t, reason)
}

func TestIsRisky_EmptyDiff(t *testing.T) {
	v := NewSafetyValidator(DefaultConfig())

	for _, text := range []string{"", "   ", "\n\n"} {
		risky, reason := v.IsRisky(text, 1500)
		assert.True(t, risky)
		assert.Contains(t, reason, "empty")
	}
}

func TestIsRisky_LineBudget(t *testing.T) {
	v := NewSafetyValidator(DefaultConfig())

	risky, reason := v.IsRisky(diffWithChanges(1501), 1500)
	require.True(t, risky)
	assert.Contains(t, reason, "1501")
	assert.Contains(t, reason, "1500")

	risky, _ = v.IsRisky(diffWithChanges(1500), 1500)
	assert.False(t, risky, "exactly at the budget is allowed")
}

func TestIsRisky_HeaderLinesNotCounted(t *testing.T) {
	// The --- and +++ file headers start with - and + but are not
	// changed lines.
	risky, _ := NewSafetyValidator(DefaultConfig()).IsRisky(diffWithChanges(3), 3)
	assert.False(t, risky)
}

func TestIsRisky_ProtectedPaths(t *testing.T) {
	v := NewSafetyValidator(DefaultConfig())

	diffText := `diff --git a/scripts/ci/check.sh b/scripts/ci/check.sh
--- a/scripts/ci/check.sh
+++ b/scripts/ci/check.sh
@@ -1,1 +1,1 @@
-exit 1
+exit 0
`
	risky, reason := v.IsRisky(diffText, 1500)
	require.True(t, risky)
	assert.Contains(t, reason, "protected path")
	assert.Contains(t, reason, "scripts/ci/check.sh")
}

func TestIsRisky_BannedPatterns(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"rm -rf", "+\tsubprocess.run(['bash', '-c', 'rm -rf build'])"},
		{"rm -fr", "+os.system('rm -fr /tmp/x')"},
		{"git clean", "+    run('git clean -fd')"},
		{"drop table", "+cur.execute('DROP TABLE users')"},
		{"drop database lowercase", "+cur.execute('drop database prod')"},
		{"truncate", "+cur.execute('TRUNCATE TABLE logs')"},
		{"shutil.rmtree", "+shutil.rmtree(tmpdir)"},
		{"os.remove", "+os.remove(path)"},
		{"os.unlink", "+os.unlink(path)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffText := "diff --git a/src/x.py b/src/x.py\n--- a/src/x.py\n+++ b/src/x.py\n@@ -1,1 +1,1 @@\n" + tt.payload + "\n"
			risky, reason := NewSafetyValidator(DefaultConfig()).IsRisky(diffText, 1500)
			assert.True(t, risky, "payload should be flagged: %s", tt.payload)
			assert.Contains(t, reason, "risky pattern")
		})
	}
}

func TestIsRisky_CustomProtectedPrefixes(t *testing.T) {
	v := NewSafetyValidator(Config{ProtectedPrefixes: []string{"deploy/"}})

	diffText := `diff --git a/deploy/prod.yaml b/deploy/prod.yaml
--- a/deploy/prod.yaml
+++ b/deploy/prod.yaml
@@ -1,1 +1,1 @@
-replicas: 1
+replicas: 0
`
	risky, reason := v.IsRisky(diffText, 1500)
	require.True(t, risky)
	assert.Contains(t, reason, "deploy/prod.yaml")

	// The default prefixes are replaced, not appended.
	risky, _ = v.IsRisky(safeDiff(), 1500)
	assert.False(t, risky)
}

func TestCountChangedLines(t *testing.T) {
	assert.Equal(t, 2, countChangedLines(safeDiff()))
	assert.Equal(t, 0, countChangedLines("diff --git a/x b/x\n--- a/x\n+++ b/x\n"))
}
